package core

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	Expense CategoryType = "expense"
	Income  CategoryType = "income"
)

const (
	RoleAdmin UserRole = "admin"
	RoleUser  UserRole = "user"
	RoleGuest UserRole = "guest"
)

const (
	HealthSafe         HealthIndicator = "Safe"
	HealthWarning      HealthIndicator = "Warning"
	HealthOverspending HealthIndicator = "Overspending"
)

const (
	maxCategoryName = 50
	maxCategoryIcon = 2
	maxNote         = 500
	maxProfileName  = 80
)

type (
	CategoryType    string
	UserRole        string
	HealthIndicator string

	// Principal identifies the caller on whose behalf the backend acts.
	Principal string

	Money struct {
		Amount int64
	}

	Category struct {
		ID    string
		Name  string
		Type  CategoryType
		Color string
		Icon  string // optional, emoji or short glyph
	}

	Transaction struct {
		ID         string
		CategoryID string
		Type       CategoryType
		Date       time.Time
		Note       string
		ReceiptID  string // optional
		Amount     Money
	}

	UserProfile struct {
		Name string
	}

	// CashflowInsights is computed by the backend; the client only renders it.
	CashflowInsights struct {
		AverageMonthlyIncome               Money
		AverageMonthlyExpense              Money
		MonthOverMonthIncomeChange         Money
		MonthOverMonthExpenseChange        Money
		EndOfMonthBalanceForecast          Money
		LargestExpenseCategoryCurrentMonth string // category id, empty when none
		HealthIndicator                    HealthIndicator
	}
)

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("already exists")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrEmptyName           = errors.New("empty name")
	ErrNameTooLong         = errors.New("name too long")
	ErrInvalidColor        = errors.New("invalid color")
	ErrInvalidIcon         = errors.New("icon too long (max 2 characters)")
	ErrInvalidCategoryType = errors.New("invalid category type")
	ErrEmptyCategory       = errors.New("empty category")
	ErrCategoryMismatch    = errors.New("category type does not match transaction type")
	ErrInvalidDate         = errors.New("invalid date")
	ErrNoteTooLong         = errors.New("note too long (max 500 characters)")
	ErrEmptyID             = errors.New("empty id")
	ErrInvalidRole         = errors.New("invalid role")
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

func (t CategoryType) Valid() bool {
	return t == Expense || t == Income
}

func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleGuest:
		return true
	}
	return false
}

func (m Money) Validate() error {
	if m.Amount <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return ErrEmptyID
	}
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return ErrEmptyName
	}
	if utf8.RuneCountInString(name) > maxCategoryName {
		return ErrNameTooLong
	}
	if !c.Type.Valid() {
		return ErrInvalidCategoryType
	}
	if !colorPattern.MatchString(c.Color) {
		return ErrInvalidColor
	}
	if utf8.RuneCountInString(c.Icon) > maxCategoryIcon {
		return ErrInvalidIcon
	}
	return nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(t.CategoryID) == "" {
		return ErrEmptyCategory
	}
	if !t.Type.Valid() {
		return ErrInvalidCategoryType
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if t.Date.IsZero() {
		return ErrInvalidDate
	}
	if utf8.RuneCountInString(t.Note) > maxNote {
		return ErrNoteTooLong
	}
	return nil
}

func (p UserProfile) Validate() error {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return ErrEmptyName
	}
	if utf8.RuneCountInString(name) > maxProfileName {
		return ErrNameTooLong
	}
	return nil
}

// IsValidationError reports whether err stems from input validation rather
// than from storage or transport.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount, ErrEmptyName, ErrNameTooLong, ErrInvalidColor,
		ErrInvalidIcon, ErrInvalidCategoryType, ErrEmptyCategory,
		ErrCategoryMismatch, ErrInvalidDate, ErrNoteTooLong, ErrEmptyID,
		ErrInvalidRole, ErrInvalidReceipt, ErrReceiptTooLarge,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ToNanos converts a time to Unix nanoseconds, the wire representation of
// transaction dates.
func ToNanos(t time.Time) int64 {
	return t.UnixNano()
}

// FromNanos converts Unix nanoseconds back to a UTC time.
func FromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// NewDate returns midnight UTC of the given calendar day.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func NewTransactionID() string { return "tx-" + uuid.NewString() }
func NewCategoryID() string    { return "cat-" + uuid.NewString() }
func NewReceiptID() string     { return "receipt-" + uuid.NewString() }

// DefaultCategories is the starter set offered to a newly registered user.
func DefaultCategories() []Category {
	return []Category{
		{ID: "cat-gaji", Name: "Gaji", Type: Income, Color: "#10b981", Icon: "💰"},
		{ID: "cat-bonus", Name: "Bonus", Type: Income, Color: "#3b82f6", Icon: "🎁"},
		{ID: "cat-makan", Name: "Makan", Type: Expense, Color: "#f59e0b", Icon: "🍜"},
		{ID: "cat-transportasi", Name: "Transportasi", Type: Expense, Color: "#06b6d4", Icon: "🚌"},
		{ID: "cat-belanja", Name: "Belanja", Type: Expense, Color: "#ec4899", Icon: "🛒"},
		{ID: "cat-tagihan", Name: "Tagihan", Type: Expense, Color: "#ef4444", Icon: "🧾"},
		{ID: "cat-hiburan", Name: "Hiburan", Type: Expense, Color: "#8b5cf6", Icon: "🎬"},
	}
}
