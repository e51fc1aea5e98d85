package core

import "time"

// warningRatio is the share of income, in percent, at which spending
// switches the health indicator to Warning.
const warningRatio = 80

type monthKey struct {
	year  int
	month time.Month
}

type monthTotals struct {
	income, expense int64
}

// ComputeInsights derives the cashflow insights for one user's full
// transaction history as of now. It is used by backend implementations; the
// client renders the result as-is.
func ComputeInsights(txs []Transaction, now time.Time) CashflowInsights {
	now = now.UTC()
	cur := monthKey{now.Year(), now.Month()}
	py, pm := PrevMonth(cur.year, cur.month)
	prev := monthKey{py, pm}

	months := make(map[monthKey]*monthTotals)
	categoryExpense := make(map[string]int64)
	for _, t := range txs {
		d := t.Date.UTC()
		k := monthKey{d.Year(), d.Month()}
		mt := months[k]
		if mt == nil {
			mt = &monthTotals{}
			months[k] = mt
		}
		switch t.Type {
		case Income:
			mt.income += t.Amount.Amount
		case Expense:
			mt.expense += t.Amount.Amount
			if k == cur {
				categoryExpense[t.CategoryID] += t.Amount.Amount
			}
		}
	}

	var ins CashflowInsights
	if len(months) > 0 {
		var income, expense int64
		for _, mt := range months {
			income += mt.income
			expense += mt.expense
		}
		ins.AverageMonthlyIncome.Amount = income / int64(len(months))
		ins.AverageMonthlyExpense.Amount = expense / int64(len(months))
	}

	var curT, prevT monthTotals
	if mt := months[cur]; mt != nil {
		curT = *mt
	}
	if mt := months[prev]; mt != nil {
		prevT = *mt
	}
	ins.MonthOverMonthIncomeChange.Amount = curT.income - prevT.income
	ins.MonthOverMonthExpenseChange.Amount = curT.expense - prevT.expense

	var largest int64
	for id, amount := range categoryExpense {
		if amount > largest || (amount == largest && id < ins.LargestExpenseCategoryCurrentMonth) {
			largest = amount
			ins.LargestExpenseCategoryCurrentMonth = id
		}
	}

	daysInMonth := int64(NewDate(cur.year, cur.month, 1).AddDate(0, 1, -1).Day())
	projected := curT.expense * daysInMonth / int64(now.Day())
	ins.EndOfMonthBalanceForecast.Amount = curT.income - projected

	ins.HealthIndicator = classifyHealth(curT.income, curT.expense)
	return ins
}

func classifyHealth(income, expense int64) HealthIndicator {
	switch {
	case expense > income:
		return HealthOverspending
	case income > 0 && expense*100 >= income*warningRatio:
		return HealthWarning
	default:
		return HealthSafe
	}
}
