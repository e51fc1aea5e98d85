package google

import (
	"fmt"
	"strings"

	"finex/internal/core"
	ports "finex/internal/sheets"
)

const dateLayout = "2006-01-02"

// rowValues lays out r as columns A:G. The amount stays numeric so sheet
// formulas can sum it; user text is escaped since rows are written as user
// entered input.
func rowValues(r ports.Row) []any {
	category := r.CategoryName
	if category == "" {
		category = r.CategoryID
	}
	return []any{
		ports.TextCell(r.TransactionID),
		ports.TextCell(r.Principal),
		r.Date.UTC().Format(dateLayout),
		typeLabel(r.Type),
		ports.TextCell(category),
		ports.TextCell(r.Note),
		r.Amount.Amount,
	}
}

func typeLabel(t core.CategoryType) string {
	switch t {
	case core.Income:
		return "Pemasukan"
	case core.Expense:
		return "Pengeluaran"
	default:
		return string(t)
	}
}

// matchRow scans A:B values for the transaction and returns its 1-based row
// number, or 0. The header row never matches.
func matchRow(values [][]any, principal, id string) int {
	for i, row := range values {
		if i == 0 {
			continue
		}
		cols := toStrings(row)
		if len(cols) < 2 {
			continue
		}
		if cols[0] == id && cols[1] == principal {
			return i + 1
		}
	}
	return 0
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
