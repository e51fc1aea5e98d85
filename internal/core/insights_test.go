package core

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeInsightsEmpty(t *testing.T) {
	ins := ComputeInsights(nil, time.Date(2026, time.October, 10, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, CashflowInsights{HealthIndicator: HealthSafe}, ins)
}

func TestComputeInsights(t *testing.T) {
	now := time.Date(2026, time.October, 10, 8, 0, 0, 0, time.UTC)
	txs := []Transaction{
		// September
		tx("s1", "cat-gaji", Income, NewDate(2026, time.September, 1), 4000000),
		tx("s2", "cat-makan", Expense, NewDate(2026, time.September, 5), 1000000),
		// October
		tx("o1", "cat-gaji", Income, NewDate(2026, time.October, 1), 5000000),
		tx("o2", "cat-makan", Expense, NewDate(2026, time.October, 2), 600000),
		tx("o3", "cat-belanja", Expense, NewDate(2026, time.October, 3), 400000),
		tx("o4", "cat-makan", Expense, NewDate(2026, time.October, 4), 100000),
		// July, counts toward the averages only
		tx("j1", "cat-bonus", Income, NewDate(2026, time.July, 20), 300000),
	}
	ins := ComputeInsights(txs, now)

	assert.Equal(t, int64((4000000+5000000+300000)/3), ins.AverageMonthlyIncome.Amount)
	assert.Equal(t, int64((1000000+1100000)/3), ins.AverageMonthlyExpense.Amount)
	assert.Equal(t, int64(1000000), ins.MonthOverMonthIncomeChange.Amount)
	assert.Equal(t, int64(100000), ins.MonthOverMonthExpenseChange.Amount)
	assert.Equal(t, "cat-makan", ins.LargestExpenseCategoryCurrentMonth)
	// 1.100.000 spent in 10 of 31 days projects to 3.410.000
	assert.Equal(t, int64(5000000-3410000), ins.EndOfMonthBalanceForecast.Amount)
	assert.Equal(t, HealthSafe, ins.HealthIndicator)
}

func TestComputeInsightsJanuaryComparesWithDecember(t *testing.T) {
	now := time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC)
	txs := []Transaction{
		tx("d", "cat-makan", Expense, NewDate(2026, time.December, 31), 700),
		tx("j", "cat-makan", Expense, NewDate(2027, time.January, 1), 200),
	}
	ins := ComputeInsights(txs, now)
	assert.Equal(t, int64(-500), ins.MonthOverMonthExpenseChange.Amount)
	assert.Equal(t, int64(-200*31), ins.EndOfMonthBalanceForecast.Amount)
}

func TestLargestCategoryTieBreaksOnID(t *testing.T) {
	now := time.Date(2026, time.October, 20, 0, 0, 0, 0, time.UTC)
	txs := []Transaction{
		tx("a", "cat-z", Expense, NewDate(2026, time.October, 1), 500),
		tx("b", "cat-a", Expense, NewDate(2026, time.October, 2), 500),
	}
	assert.Equal(t, "cat-a", ComputeInsights(txs, now).LargestExpenseCategoryCurrentMonth)
}

func TestClassifyHealth(t *testing.T) {
	cases := []struct {
		income, expense int64
		want            HealthIndicator
	}{
		{0, 0, HealthSafe},
		{100, 79, HealthSafe},
		{100, 80, HealthWarning},
		{100, 100, HealthWarning},
		{100, 101, HealthOverspending},
		{0, 1, HealthOverspending},
	}
	for _, tc := range cases {
		if got := classifyHealth(tc.income, tc.expense); got != tc.want {
			t.Fatalf("classifyHealth(%d, %d) = %s, want %s", tc.income, tc.expense, got, tc.want)
		}
	}
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestValidateReceipt(t *testing.T) {
	ct, err := ValidateReceipt(pngHeader)
	assert.NoError(t, err)
	assert.Equal(t, "image/png", ct)

	ct, err = ValidateReceipt([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0x10, 'J', 'F', 'I', 'F'})
	assert.NoError(t, err)
	assert.Equal(t, "image/jpeg", ct)

	_, err = ValidateReceipt(nil)
	assert.True(t, errors.Is(err, ErrInvalidReceipt))

	_, err = ValidateReceipt([]byte("GIF89a......"))
	assert.True(t, errors.Is(err, ErrInvalidReceipt))

	big := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, MaxReceiptBytes)...)
	_, err = ValidateReceipt(big)
	assert.True(t, errors.Is(err, ErrReceiptTooLarge))
}
