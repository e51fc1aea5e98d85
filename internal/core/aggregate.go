package core

import (
	"math"
	"sort"
	"strconv"
	"time"
)

// UnknownCategoryName labels totals whose category no longer exists.
const UnknownCategoryName = "Lainnya"

var (
	shortMonths = [...]string{"Jan", "Feb", "Mar", "Apr", "Mei", "Jun", "Jul", "Agu", "Sep", "Okt", "Nov", "Des"}
	longMonths  = [...]string{"Januari", "Februari", "Maret", "April", "Mei", "Juni", "Juli", "Agustus", "September", "Oktober", "November", "Desember"}

	// ChartPalette colors breakdown slices whose category has no color.
	ChartPalette = []string{"#10b981", "#3b82f6", "#8b5cf6", "#f59e0b", "#ef4444", "#06b6d4", "#ec4899"}
)

// ShortMonth returns the abbreviated Indonesian month name.
func ShortMonth(m time.Month) string { return shortMonths[m-1] }

// LongMonth returns the full Indonesian month name.
func LongMonth(m time.Month) string { return longMonths[m-1] }

// MonthLabel renders "Oktober 2026".
func MonthLabel(year int, m time.Month) string {
	return LongMonth(m) + " " + strconv.Itoa(year)
}

// DateLabel renders "18 Oktober 2026".
func DateLabel(t time.Time) string {
	t = t.UTC()
	return strconv.Itoa(t.Day()) + " " + LongMonth(t.Month()) + " " + strconv.Itoa(t.Year())
}

// PrevMonth returns the month before year/month.
func PrevMonth(year int, month time.Month) (int, time.Month) {
	if month == time.January {
		return year - 1, time.December
	}
	return year, month - 1
}

// NextMonth returns the month after year/month.
func NextMonth(year int, month time.Month) (int, time.Month) {
	if month == time.December {
		return year + 1, time.January
	}
	return year, month + 1
}

// TrendPoint is one month of the income/expense and cashflow charts.
type TrendPoint struct {
	Year     int
	Month    time.Month
	Label    string
	Income   Money
	Expense  Money
	Cashflow Money
}

// MonthlyTrend buckets txs into the n months ending with now's month,
// oldest first.
func MonthlyTrend(txs []Transaction, now time.Time, n int) []TrendPoint {
	if n <= 0 {
		return nil
	}
	now = now.UTC()
	year, month := now.Year(), now.Month()
	for i := 1; i < n; i++ {
		year, month = PrevMonth(year, month)
	}
	points := make([]TrendPoint, 0, n)
	for i := 0; i < n; i++ {
		s := SummarizeMonth(txs, year, month)
		points = append(points, TrendPoint{
			Year:     year,
			Month:    month,
			Label:    ShortMonth(month),
			Income:   s.Income,
			Expense:  s.Expense,
			Cashflow: s.Balance,
		})
		year, month = NextMonth(year, month)
	}
	return points
}

// CategorySlice is one entry of the expense-by-category breakdown.
type CategorySlice struct {
	CategoryID string
	Name       string
	Color      string
	Amount     Money
	Percent    int
}

// ExpenseBreakdown totals the month's expenses per category, largest first.
func ExpenseBreakdown(txs []Transaction, categories []Category, year int, month time.Month) []CategorySlice {
	byID := make(map[string]Category, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}

	totals := make(map[string]int64)
	var grand int64
	for _, t := range txs {
		if t.Type != Expense || !inMonth(t.Date, year, month) {
			continue
		}
		totals[t.CategoryID] += t.Amount.Amount
		grand += t.Amount.Amount
	}

	slices := make([]CategorySlice, 0, len(totals))
	for id, amount := range totals {
		s := CategorySlice{CategoryID: id, Name: UnknownCategoryName, Amount: Money{Amount: amount}}
		if c, ok := byID[id]; ok {
			s.Name = c.Name
			s.Color = c.Color
		}
		if grand > 0 {
			s.Percent = int(math.Round(float64(amount) * 100 / float64(grand)))
		}
		slices = append(slices, s)
	}
	sort.SliceStable(slices, func(i, j int) bool {
		if slices[i].Amount.Amount != slices[j].Amount.Amount {
			return slices[i].Amount.Amount > slices[j].Amount.Amount
		}
		if slices[i].Name != slices[j].Name {
			return slices[i].Name < slices[j].Name
		}
		return slices[i].CategoryID < slices[j].CategoryID
	})
	for i := range slices {
		if slices[i].Color == "" {
			slices[i].Color = ChartPalette[i%len(ChartPalette)]
		}
	}
	return slices
}

// Dominance describes which side of a calendar day outweighs the other.
type Dominance string

const (
	DominanceNone    Dominance = "none"
	DominanceIncome  Dominance = "income"
	DominanceExpense Dominance = "expense"
	DominanceEven    Dominance = "even"
)

// CalendarDay is a single cell of the calendar grid.
type CalendarDay struct {
	Day       int
	Date      time.Time
	Income    Money
	Expense   Money
	Dominance Dominance
}

// CalendarMonth is the calendar view for one month. LeadingBlanks is the
// weekday of the 1st with Sunday as 0, i.e. the number of empty cells before
// day 1 in a Sunday-first grid.
type CalendarMonth struct {
	Year          int
	Month         time.Month
	Label         string
	LeadingBlanks int
	Days          []CalendarDay
	Income        Money
	Expense       Money
	Net           Money
}

// BuildCalendar buckets txs by day for year/month.
func BuildCalendar(txs []Transaction, year int, month time.Month) CalendarMonth {
	first := NewDate(year, month, 1)
	daysInMonth := first.AddDate(0, 1, -1).Day()

	cal := CalendarMonth{
		Year:          year,
		Month:         month,
		Label:         MonthLabel(year, month),
		LeadingBlanks: int(first.Weekday()),
		Days:          make([]CalendarDay, daysInMonth),
	}
	for i := range cal.Days {
		cal.Days[i] = CalendarDay{Day: i + 1, Date: NewDate(year, month, i+1)}
	}

	for _, t := range txs {
		if !inMonth(t.Date, year, month) {
			continue
		}
		d := &cal.Days[t.Date.UTC().Day()-1]
		switch t.Type {
		case Income:
			d.Income.Amount += t.Amount.Amount
			cal.Income.Amount += t.Amount.Amount
		case Expense:
			d.Expense.Amount += t.Amount.Amount
			cal.Expense.Amount += t.Amount.Amount
		}
	}

	for i := range cal.Days {
		d := &cal.Days[i]
		switch {
		case d.Income.Amount == 0 && d.Expense.Amount == 0:
			d.Dominance = DominanceNone
		case d.Income.Amount > d.Expense.Amount:
			d.Dominance = DominanceIncome
		case d.Expense.Amount > d.Income.Amount:
			d.Dominance = DominanceExpense
		default:
			d.Dominance = DominanceEven
		}
	}
	cal.Net.Amount = cal.Income.Amount - cal.Expense.Amount
	return cal
}

// TransactionsOn returns the transactions dated on the same calendar day as
// date, preserving input order.
func TransactionsOn(txs []Transaction, date time.Time) []Transaction {
	var out []Transaction
	for _, t := range txs {
		if sameDay(t.Date, date) {
			out = append(out, t)
		}
	}
	return out
}

// CategoryName resolves a category id against a fetched list.
func CategoryName(categories []Category, id string) (string, bool) {
	for _, c := range categories {
		if c.ID == id {
			return c.Name, true
		}
	}
	return "", false
}
