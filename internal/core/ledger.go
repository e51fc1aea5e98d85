package core

import (
	"net/url"
	"sort"
	"strings"
)

type (
	// TypeFilter restricts the ledger to one side of the books.
	TypeFilter string
	// SortOrder orders the ledger.
	SortOrder string
)

const (
	FilterAll     TypeFilter = "all"
	FilterIncome  TypeFilter = "income"
	FilterExpense TypeFilter = "expense"

	SortNewest   SortOrder = "newest"
	SortLargest  SortOrder = "largest"
	SortSmallest SortOrder = "smallest"
)

// LedgerQuery holds the ledger page's search, filter and sort controls.
type LedgerQuery struct {
	Search string
	Type   TypeFilter
	Sort   SortOrder
}

// ParseLedgerQuery reads q, type and sort from query values. Unknown values
// fall back to all/newest.
func ParseLedgerQuery(v url.Values) LedgerQuery {
	q := LedgerQuery{
		Search: strings.TrimSpace(v.Get("q")),
		Type:   TypeFilter(v.Get("type")),
		Sort:   SortOrder(v.Get("sort")),
	}
	switch q.Type {
	case FilterIncome, FilterExpense:
	default:
		q.Type = FilterAll
	}
	switch q.Sort {
	case SortLargest, SortSmallest:
	default:
		q.Sort = SortNewest
	}
	return q
}

// ApplyLedger filters and sorts an already-fetched transaction list. The
// search term matches the note or the category name, case-insensitively.
// txs is left untouched.
func ApplyLedger(txs []Transaction, categories []Category, q LedgerQuery) []Transaction {
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		names[c.ID] = strings.ToLower(c.Name)
	}
	term := strings.ToLower(strings.TrimSpace(q.Search))

	out := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		if term != "" &&
			!strings.Contains(strings.ToLower(t.Note), term) &&
			!strings.Contains(names[t.CategoryID], term) {
			continue
		}
		if q.Type != FilterAll && q.Type != "" && string(t.Type) != string(q.Type) {
			continue
		}
		out = append(out, t)
	}

	switch q.Sort {
	case SortLargest:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Amount.Amount > out[j].Amount.Amount })
	case SortSmallest:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Amount.Amount < out[j].Amount.Amount })
	default:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	}
	return out
}

// SortTransactions orders txs the way backends list them: date descending,
// then id ascending.
func SortTransactions(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.After(txs[j].Date)
		}
		return txs[i].ID < txs[j].ID
	})
}

// SortCategoriesByName orders by name, then id.
func SortCategoriesByName(cs []Category) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Name != cs[j].Name {
			return cs[i].Name < cs[j].Name
		}
		return cs[i].ID < cs[j].ID
	})
}

// SortCategoriesByType puts income categories first, each group by name.
func SortCategoriesByType(cs []Category) {
	SortCategoriesByName(cs)
	sort.SliceStable(cs, func(i, j int) bool {
		return cs[i].Type == Income && cs[j].Type != Income
	})
}

// SortCategoriesByColor orders by color (case-insensitive), then name.
func SortCategoriesByColor(cs []Category) {
	SortCategoriesByName(cs)
	sort.SliceStable(cs, func(i, j int) bool {
		return strings.ToLower(cs[i].Color) < strings.ToLower(cs[j].Color)
	})
}

// MatchesSearch reports whether a transaction note contains term,
// case-insensitively. An empty term matches nothing.
func MatchesSearch(t Transaction, term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return false
	}
	return strings.Contains(strings.ToLower(t.Note), term)
}
