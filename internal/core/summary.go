package core

import "time"

const (
	DefaultPageSize = 20
	MaxPageSize     = 1000
)

// Page is one slice of a paginated listing. Page is 0-based.
type Page[T any] struct {
	Items    []T
	Total    int
	Page     int
	PageSize int
}

// Paginate cuts items into the requested page. A size of 0 means the default
// size; sizes are clamped to [1, MaxPageSize]. Pages past the end are empty
// but still report the full total.
func Paginate[T any](items []T, page, size int) Page[T] {
	page, size = NormalizePage(page, size)
	out := Page[T]{Items: []T{}, Total: len(items), Page: page, PageSize: size}
	if !PageInRange(page, size, len(items)) {
		return out
	}
	start := page * size
	end := min(start+size, len(items))
	out.Items = append(out.Items, items[start:end]...)
	return out
}

// PageInRange reports whether a normalized page holds any of total items.
// The bound is checked before multiplying so huge page numbers cannot wrap.
func PageInRange(page, size, total int) bool {
	return page <= total/size && page*size < total
}

// NormalizePage applies the paging defaults and clamps used by Paginate.
func NormalizePage(page, size int) (int, int) {
	if size == 0 {
		size = DefaultPageSize
	}
	if size < 1 {
		size = 1
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	if page < 0 {
		page = 0
	}
	return page, size
}

// MonthSummary is the income/expense overview of one calendar month.
type MonthSummary struct {
	Year         int
	Month        time.Month
	Income       Money
	Expense      Money
	Balance      Money
	Overspending bool
}

// SummarizeMonth totals the transactions that fall in year/month.
func SummarizeMonth(txs []Transaction, year int, month time.Month) MonthSummary {
	s := MonthSummary{Year: year, Month: month}
	for _, t := range txs {
		if !inMonth(t.Date, year, month) {
			continue
		}
		switch t.Type {
		case Income:
			s.Income.Amount += t.Amount.Amount
		case Expense:
			s.Expense.Amount += t.Amount.Amount
		}
	}
	s.Balance.Amount = s.Income.Amount - s.Expense.Amount
	s.Overspending = s.Expense.Amount > s.Income.Amount
	return s
}

func inMonth(t time.Time, year int, month time.Month) bool {
	t = t.UTC()
	return t.Year() == year && t.Month() == month
}

func sameDay(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
