package http

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"finex/internal/core"
	"finex/internal/log"
)

const (
	// ledgerFetchSize is how many transactions the client-side views load.
	ledgerFetchSize = 1000
	trendMonths     = 6

	chartWidth  = 600
	chartHeight = 200
	chartPad    = 20
)

// ledgerData is everything the client-side derivations work from.
type ledgerData struct {
	Transactions []core.Transaction
	Categories   []core.Category
	Insights     core.CashflowInsights
}

// loadLedger fetches transactions and categories concurrently, plus the
// insights when withInsights is set.
func (s *Server) loadLedger(ctx context.Context, withInsights bool) (ledgerData, error) {
	var d ledgerData
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		page, err := s.backend.GetTransactions(gctx, 0, ledgerFetchSize)
		if err != nil {
			return fmt.Errorf("transactions: %w", err)
		}
		d.Transactions = page.Items
		return nil
	})
	g.Go(func() error {
		cats, err := s.backend.GetCategoriesByType(gctx)
		if err != nil {
			return fmt.Errorf("categories: %w", err)
		}
		d.Categories = cats
		return nil
	})
	if withInsights {
		g.Go(func() error {
			ins, err := s.backend.GetCashflowInsights(gctx)
			if err != nil {
				return fmt.Errorf("insights: %w", err)
			}
			d.Insights = ins
			return nil
		})
	}
	return d, g.Wait()
}

type trendBar struct {
	Label      string
	Income     core.Money
	Expense    core.Money
	IncomePct  int
	ExpensePct int
}

type trendMarker struct {
	X, Y  int
	Label string
	Value core.Money
}

type trendLine struct {
	Width, Height int
	ZeroY         int
	LabelY        int
	Points        string
	Markers       []trendMarker
}

type dashboardView struct {
	MonthLabel      string
	Summary         core.MonthSummary
	Insights        core.CashflowInsights
	LargestCategory string
	Bars            []trendBar
	Breakdown       []core.CategorySlice
	Donut           template.CSS
	Trend           trendLine
}

func (s *Server) buildDashboard(d ledgerData) dashboardView {
	now := s.now().UTC()
	points := core.MonthlyTrend(d.Transactions, now, trendMonths)
	breakdown := core.ExpenseBreakdown(d.Transactions, d.Categories, now.Year(), now.Month())

	return dashboardView{
		MonthLabel:      core.MonthLabel(now.Year(), now.Month()),
		Summary:         core.SummarizeMonth(d.Transactions, now.Year(), now.Month()),
		Insights:        d.Insights,
		LargestCategory: largestCategoryName(d.Insights.LargestExpenseCategoryCurrentMonth, d.Categories),
		Bars:            trendBars(points),
		Breakdown:       breakdown,
		Donut:           donutGradient(breakdown),
		Trend:           cashflowLine(points),
	}
}

func largestCategoryName(id string, cats []core.Category) string {
	if id == "" {
		return "Tidak ada"
	}
	if name, ok := core.CategoryName(cats, id); ok {
		return name
	}
	return "Tidak diketahui"
}

// trendBars scales each month against the largest income or expense.
func trendBars(points []core.TrendPoint) []trendBar {
	var peak int64
	for _, p := range points {
		peak = max(peak, p.Income.Amount, p.Expense.Amount)
	}
	bars := make([]trendBar, len(points))
	for i, p := range points {
		bars[i] = trendBar{Label: p.Label, Income: p.Income, Expense: p.Expense}
		if peak > 0 {
			bars[i].IncomePct = int(p.Income.Amount * 100 / peak)
			bars[i].ExpensePct = int(p.Expense.Amount * 100 / peak)
		}
	}
	return bars
}

// donutGradient renders the breakdown as a CSS conic gradient. Colors are
// validated #rrggbb values, so the result is safe to emit unescaped.
func donutGradient(slices []core.CategorySlice) template.CSS {
	if len(slices) == 0 {
		return ""
	}
	var total int64
	for _, sl := range slices {
		total += sl.Amount.Amount
	}
	var b strings.Builder
	b.WriteString("background: conic-gradient(")
	var acc int64
	for i, sl := range slices {
		from := float64(acc) * 100 / float64(total)
		acc += sl.Amount.Amount
		to := float64(acc) * 100 / float64(total)
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s %.2f%% %.2f%%", sl.Color, from, to)
	}
	b.WriteString(")")
	return template.CSS(b.String())
}

// cashflowLine lays the monthly cashflow out as SVG polyline points.
func cashflowLine(points []core.TrendPoint) trendLine {
	line := trendLine{Width: chartWidth, Height: chartHeight, LabelY: chartHeight - 4}
	if len(points) == 0 {
		line.ZeroY = chartHeight / 2
		return line
	}

	lo, hi := int64(0), int64(0)
	for _, p := range points {
		lo = min(lo, p.Cashflow.Amount)
		hi = max(hi, p.Cashflow.Amount)
	}
	span := hi - lo
	inner := chartHeight - 2*chartPad
	y := func(v int64) int {
		if span == 0 {
			return chartHeight / 2
		}
		return chartPad + int((hi-v)*int64(inner)/span)
	}

	step := 0
	if len(points) > 1 {
		step = (chartWidth - 2*chartPad) / (len(points) - 1)
	}
	coords := make([]string, len(points))
	line.Markers = make([]trendMarker, len(points))
	for i, p := range points {
		m := trendMarker{X: chartPad + i*step, Y: y(p.Cashflow.Amount), Label: p.Label, Value: p.Cashflow}
		line.Markers[i] = m
		coords[i] = fmt.Sprintf("%d,%d", m.X, m.Y)
	}
	line.Points = strings.Join(coords, " ")
	line.ZeroY = y(0)
	return line
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, v *viewer) {
	d, err := s.loadLedger(r.Context(), true)
	if err != nil {
		s.fail(w, r, err, "Gagal memuat dashboard")
		return
	}
	s.renderPage(w, r, http.StatusOK, "dashboard", pageData{
		Title:    "Dashboard",
		UserName: v.Profile.Name,
		Content:  s.buildDashboard(d),
	})
}

// handleDashboardPartial re-renders the dashboard body after a ledger change.
func (s *Server) handleDashboardPartial(w http.ResponseWriter, r *http.Request, _ *viewer) {
	d, err := s.loadLedger(r.Context(), true)
	if err != nil {
		s.fail(w, r, err, "Gagal memuat dashboard")
		return
	}
	s.writePartial(w, r, NewHTMXResponse(), "dashboard_body", s.buildDashboard(d))
}

type incomeExpensePoint struct {
	Month   string `json:"month"`
	Income  int64  `json:"income"`
	Expense int64  `json:"expense"`
}

type cashflowPoint struct {
	Month    string `json:"month"`
	Cashflow int64  `json:"cashflow"`
}

type categoryPoint struct {
	CategoryID string `json:"categoryId"`
	Name       string `json:"name"`
	Value      int64  `json:"value"`
	Color      string `json:"color"`
	Percent    int    `json:"percent"`
}

func (s *Server) handleIncomeExpenseChart(w http.ResponseWriter, r *http.Request, _ *viewer) {
	d, err := s.loadLedger(r.Context(), false)
	if err != nil {
		s.failJSON(w, r, err)
		return
	}
	points := core.MonthlyTrend(d.Transactions, s.now(), trendMonths)
	out := make([]incomeExpensePoint, len(points))
	for i, p := range points {
		out[i] = incomeExpensePoint{Month: p.Label, Income: p.Income.Amount, Expense: p.Expense.Amount}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCashflowTrendChart(w http.ResponseWriter, r *http.Request, _ *viewer) {
	d, err := s.loadLedger(r.Context(), false)
	if err != nil {
		s.failJSON(w, r, err)
		return
	}
	points := core.MonthlyTrend(d.Transactions, s.now(), trendMonths)
	out := make([]cashflowPoint, len(points))
	for i, p := range points {
		out[i] = cashflowPoint{Month: p.Label, Cashflow: p.Cashflow.Amount}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExpenseCategoriesChart(w http.ResponseWriter, r *http.Request, _ *viewer) {
	d, err := s.loadLedger(r.Context(), false)
	if err != nil {
		s.failJSON(w, r, err)
		return
	}
	now := s.now().UTC()
	slices := core.ExpenseBreakdown(d.Transactions, d.Categories, now.Year(), now.Month())
	out := make([]categoryPoint, len(slices))
	for i, sl := range slices {
		out[i] = categoryPoint{CategoryID: sl.CategoryID, Name: sl.Name, Value: sl.Amount.Amount, Color: sl.Color, Percent: sl.Percent}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) failJSON(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Chart data failed", log.FieldError, err)
	}
	writeJSON(w, status, map[string]string{"error": messageFor(err, "Gagal memuat data grafik")})
}
