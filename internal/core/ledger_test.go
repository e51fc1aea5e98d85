package core

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ledgerFixture() ([]Transaction, []Category) {
	cats := []Category{
		{ID: "cat-gaji", Name: "Gaji", Type: Income},
		{ID: "cat-makan", Name: "Makan", Type: Expense},
	}
	txs := []Transaction{
		{ID: "t1", CategoryID: "cat-makan", Type: Expense, Date: NewDate(2026, 10, 1), Note: "Bakso", Amount: Money{Amount: 20000}},
		{ID: "t2", CategoryID: "cat-gaji", Type: Income, Date: NewDate(2026, 10, 3), Note: "Oktober", Amount: Money{Amount: 5000000}},
		{ID: "t3", CategoryID: "cat-makan", Type: Expense, Date: NewDate(2026, 10, 2), Note: "kopi", Amount: Money{Amount: 20000}},
		{ID: "t4", CategoryID: "cat-makan", Type: Expense, Date: NewDate(2026, 9, 28), Note: "", Amount: Money{Amount: 150000}},
	}
	return txs, cats
}

func ids(txs []Transaction) []string {
	out := make([]string, len(txs))
	for i, t := range txs {
		out[i] = t.ID
	}
	return out
}

func TestParseLedgerQuery(t *testing.T) {
	q := ParseLedgerQuery(url.Values{})
	assert.Equal(t, LedgerQuery{Type: FilterAll, Sort: SortNewest}, q)

	q = ParseLedgerQuery(url.Values{"q": {"  kopi "}, "type": {"expense"}, "sort": {"largest"}})
	assert.Equal(t, LedgerQuery{Search: "kopi", Type: FilterExpense, Sort: SortLargest}, q)

	q = ParseLedgerQuery(url.Values{"type": {"transfer"}, "sort": {"random"}})
	assert.Equal(t, FilterAll, q.Type)
	assert.Equal(t, SortNewest, q.Sort)
}

func TestApplyLedger(t *testing.T) {
	txs, cats := ledgerFixture()

	cases := []struct {
		name string
		q    LedgerQuery
		want []string
	}{
		{"newest", LedgerQuery{Type: FilterAll, Sort: SortNewest}, []string{"t2", "t3", "t1", "t4"}},
		{"largest is stable", LedgerQuery{Sort: SortLargest}, []string{"t2", "t4", "t1", "t3"}},
		{"smallest is stable", LedgerQuery{Sort: SortSmallest}, []string{"t1", "t3", "t4", "t2"}},
		{"income only", LedgerQuery{Type: FilterIncome}, []string{"t2"}},
		{"note search ignores case", LedgerQuery{Search: "BAKSO"}, []string{"t1"}},
		{"category name search", LedgerQuery{Search: "makan", Sort: SortNewest}, []string{"t3", "t1", "t4"}},
		{"search and filter", LedgerQuery{Search: "o", Type: FilterIncome}, []string{"t2"}},
		{"no match", LedgerQuery{Search: "sewa"}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ids(ApplyLedger(txs, cats, tc.q)))
		})
	}
}

func TestApplyLedgerDoesNotMutateInput(t *testing.T) {
	txs, cats := ledgerFixture()
	before := ids(txs)
	_ = ApplyLedger(txs, cats, LedgerQuery{Sort: SortLargest})
	assert.Equal(t, before, ids(txs))
}

func TestSortTransactions(t *testing.T) {
	d := NewDate(2026, time.October, 1)
	txs := []Transaction{
		{ID: "b", Date: d},
		{ID: "c", Date: d.AddDate(0, 0, 1)},
		{ID: "a", Date: d},
	}
	SortTransactions(txs)
	assert.Equal(t, []string{"c", "a", "b"}, ids(txs))
}

func TestCategorySorts(t *testing.T) {
	cats := []Category{
		{ID: "1", Name: "Makan", Type: Expense, Color: "#F59E0B"},
		{ID: "2", Name: "Gaji", Type: Income, Color: "#10b981"},
		{ID: "3", Name: "Belanja", Type: Expense, Color: "#10B981"},
		{ID: "4", Name: "Bonus", Type: Income, Color: "#3b82f6"},
	}
	names := func(cs []Category) []string {
		out := make([]string, len(cs))
		for i, c := range cs {
			out[i] = c.Name
		}
		return out
	}

	byName := append([]Category(nil), cats...)
	SortCategoriesByName(byName)
	assert.Equal(t, []string{"Belanja", "Bonus", "Gaji", "Makan"}, names(byName))

	byType := append([]Category(nil), cats...)
	SortCategoriesByType(byType)
	assert.Equal(t, []string{"Bonus", "Gaji", "Belanja", "Makan"}, names(byType))

	byColor := append([]Category(nil), cats...)
	SortCategoriesByColor(byColor)
	require.Len(t, byColor, 4)
	assert.Equal(t, []string{"Belanja", "Gaji", "Bonus", "Makan"}, names(byColor))
}

func TestMatchesSearch(t *testing.T) {
	tr := Transaction{Note: "Kopi Susu"}
	assert.True(t, MatchesSearch(tr, "susu"))
	assert.False(t, MatchesSearch(tr, "teh"))
	assert.False(t, MatchesSearch(tr, " "))
}
