package sheets

import (
	"context"
	"strings"
	"time"

	"finex/internal/core"
)

// Row is one exported ledger line.
type Row struct {
	TransactionID string
	Principal     string
	Date          time.Time
	Type          core.CategoryType
	CategoryID    string
	CategoryName  string
	Note          string
	Amount        core.Money
}

// Ports for outbound adapters.
type (
	// LedgerExporter mirrors transactions into an external sheet. Both
	// operations are idempotent so redelivered events are harmless.
	LedgerExporter interface {
		// Upsert writes r, replacing an existing row for the same
		// principal and transaction id.
		Upsert(ctx context.Context, r Row) error
		// Delete removes the row if present. date locates the row when the
		// exporter partitions by period; zero means the current period.
		Delete(ctx context.Context, principal, transactionID string, date time.Time) error
	}
)

// RowFromTransaction builds the export row for t.
func RowFromTransaction(principal core.Principal, t core.Transaction, categoryName string) Row {
	return Row{
		TransactionID: t.ID,
		Principal:     string(principal),
		Date:          t.Date,
		Type:          t.Type,
		CategoryID:    t.CategoryID,
		CategoryName:  categoryName,
		Note:          t.Note,
		Amount:        t.Amount,
	}
}

// formulaPrefixes start a formula in common spreadsheet applications.
const formulaPrefixes = "=+-@\t\r"

// TextCell returns s so that a spreadsheet shows it as typed instead of
// evaluating it. A leading formula character is escaped with an apostrophe.
func TextCell(s string) string {
	if s != "" && strings.ContainsRune(formulaPrefixes, rune(s[0])) {
		return "'" + s
	}
	return s
}
