package amqp

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"finex/internal/core"
)

// EventKind names a ledger mutation. The routing key is "ledger." + kind.
type EventKind string

const (
	TransactionCreated EventKind = "transaction.created"
	TransactionUpdated EventKind = "transaction.updated"
	TransactionDeleted EventKind = "transaction.deleted"
	CategoryCreated    EventKind = "category.created"
	CategoryUpdated    EventKind = "category.updated"
	CategoryDeleted    EventKind = "category.deleted"
)

const (
	routingKeyPrefix = "ledger."

	// BindAllLedger matches every ledger event on a topic exchange.
	BindAllLedger = "ledger.#"
	// BindTransactions matches transaction events only.
	BindTransactions = "ledger.transaction.*"
)

var errMalformedEvent = errors.New("malformed ledger event")

// TransactionPayload is the transaction snapshot carried by an event.
type TransactionPayload struct {
	ID           string `json:"id"`
	CategoryID   string `json:"categoryId"`
	CategoryName string `json:"categoryName,omitempty"`
	Type         string `json:"type"`
	Date         int64  `json:"date"` // unix nanoseconds
	Note         string `json:"note,omitempty"`
	ReceiptID    string `json:"receiptId,omitempty"`
	Amount       int64  `json:"amount"`
}

// CategoryPayload is the category snapshot carried by an event.
type CategoryPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Color string `json:"color"`
	Icon  string `json:"icon,omitempty"`
}

// LedgerEvent announces a successful mutation of one user's ledger.
// Category deletions carry only the entity id.
type LedgerEvent struct {
	ID          string              `json:"id"`
	Kind        EventKind           `json:"kind"`
	Principal   string              `json:"principal"`
	EntityID    string              `json:"entityId"`
	Transaction *TransactionPayload `json:"transaction,omitempty"`
	Category    *CategoryPayload    `json:"category,omitempty"`

	// PreviousDate is the transaction date before an update, in unix
	// nanoseconds. Zero when unknown.
	PreviousDate int64     `json:"previousDate,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func newEvent(kind EventKind, principal core.Principal, entityID string) *LedgerEvent {
	return &LedgerEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		Principal: string(principal),
		EntityID:  entityID,
		Timestamp: time.Now().UTC(),
	}
}

// NewTransactionEvent builds a created/updated event. categoryName may be
// empty when the category could not be resolved.
func NewTransactionEvent(kind EventKind, principal core.Principal, t core.Transaction, categoryName string) *LedgerEvent {
	return newEvent(kind, principal, t.ID).WithTransaction(t, categoryName)
}

// WithTransaction attaches a transaction snapshot, e.g. the last state of a
// deleted transaction.
func (e *LedgerEvent) WithTransaction(t core.Transaction, categoryName string) *LedgerEvent {
	e.Transaction = &TransactionPayload{
		ID:           t.ID,
		CategoryID:   t.CategoryID,
		CategoryName: categoryName,
		Type:         string(t.Type),
		Date:         core.ToNanos(t.Date),
		Note:         t.Note,
		ReceiptID:    t.ReceiptID,
		Amount:       t.Amount.Amount,
	}
	return e
}

// WithPreviousDate records where an updated transaction used to sit so
// consumers can move it.
func (e *LedgerEvent) WithPreviousDate(d time.Time) *LedgerEvent {
	e.PreviousDate = core.ToNanos(d)
	return e
}

// MovedAcrossYears reports whether an update changed the transaction's
// year.
func (e *LedgerEvent) MovedAcrossYears() bool {
	if e.PreviousDate == 0 || e.Transaction == nil {
		return false
	}
	return core.FromNanos(e.PreviousDate).Year() != core.FromNanos(e.Transaction.Date).Year()
}

// NewCategoryEvent builds a created/updated category event.
func NewCategoryEvent(kind EventKind, principal core.Principal, c core.Category) *LedgerEvent {
	ev := newEvent(kind, principal, c.ID)
	ev.Category = &CategoryPayload{ID: c.ID, Name: c.Name, Type: string(c.Type), Color: c.Color, Icon: c.Icon}
	return ev
}

// NewDeletionEvent builds an event for a removed entity. Attach the last
// known state with WithTransaction when available.
func NewDeletionEvent(kind EventKind, principal core.Principal, id string) *LedgerEvent {
	return newEvent(kind, principal, id)
}

// RoutingKey returns the topic the event is published under.
func (e *LedgerEvent) RoutingKey() string {
	return routingKeyPrefix + string(e.Kind)
}

// IsTransaction reports whether the event concerns a transaction.
func (e *LedgerEvent) IsTransaction() bool {
	return strings.HasPrefix(string(e.Kind), "transaction.")
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes an event and rejects ones missing their
// identity fields.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var ev LedgerEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if ev.Kind == "" || ev.Principal == "" || ev.EntityID == "" {
		return nil, errMalformedEvent
	}
	return &ev, nil
}

// ToCore converts the payload back into a domain transaction.
func (p *TransactionPayload) ToCore() core.Transaction {
	return core.Transaction{
		ID:         p.ID,
		CategoryID: p.CategoryID,
		Type:       core.CategoryType(p.Type),
		Date:       core.FromNanos(p.Date),
		Note:       p.Note,
		ReceiptID:  p.ReceiptID,
		Amount:     core.Money{Amount: p.Amount},
	}
}

// ToCore converts the payload back into a domain category.
func (p *CategoryPayload) ToCore() core.Category {
	return core.Category{ID: p.ID, Name: p.Name, Type: core.CategoryType(p.Type), Color: p.Color, Icon: p.Icon}
}
