package http

import (
	"net/http"
	"strconv"
	"strings"

	"finex/internal/cache"
	"finex/internal/core"
)

var weekdays = []string{"Min", "Sen", "Sel", "Rab", "Kam", "Jum", "Sab"}

type calendarView struct {
	core.CalendarMonth
	Blanks    []struct{}
	Weekdays  []string
	Today     string
	PrevYear  int
	PrevMonth int
	NextYear  int
	NextMonth int
}

type calendarDayView struct {
	Label   string
	Rows    []transactionRow
	Income  core.Money
	Expense core.Money
}

// calendar builds the month grid. Grids are cached per principal and month
// until the ledger changes.
func (s *Server) calendar(r *http.Request, v *viewer) (calendarView, error) {
	mp := ParseMonthParams(r.URL.Query(), s.now().UTC())
	key := cache.Key(cache.KeyCalendarTotals, strconv.Itoa(mp.Year), strconv.Itoa(int(mp.Month)))

	cal, err := cache.Fetch(s.cache, v.Principal, key, func() (core.CalendarMonth, error) {
		page, err := s.backend.GetTransactions(r.Context(), 0, ledgerFetchSize)
		if err != nil {
			return core.CalendarMonth{}, err
		}
		return core.BuildCalendar(page.Items, mp.Year, mp.Month), nil
	})
	if err != nil {
		return calendarView{}, err
	}

	py, pm := core.PrevMonth(mp.Year, mp.Month)
	ny, nm := core.NextMonth(mp.Year, mp.Month)
	return calendarView{
		CalendarMonth: cal,
		Blanks:        make([]struct{}, cal.LeadingBlanks),
		Weekdays:      weekdays,
		Today:         s.now().UTC().Format(dateLayout),
		PrevYear:      py,
		PrevMonth:     int(pm),
		NextYear:      ny,
		NextMonth:     int(nm),
	}, nil
}

func (s *Server) handleCalendarPage(w http.ResponseWriter, r *http.Request, v *viewer) {
	cal, err := s.calendar(r, v)
	if err != nil {
		s.fail(w, r, err, "Gagal memuat kalender")
		return
	}
	s.renderPage(w, r, http.StatusOK, "calendar", pageData{
		Title:    "Kalender Transaksi",
		UserName: v.Profile.Name,
		Content:  cal,
	})
}

func (s *Server) handleCalendarPartial(w http.ResponseWriter, r *http.Request, v *viewer) {
	cal, err := s.calendar(r, v)
	if err != nil {
		s.fail(w, r, err, "Gagal memuat kalender")
		return
	}
	s.writePartial(w, r, NewHTMXResponse(), "calendar_body", cal)
}

// handleCalendarDay lists one day's transactions for the day modal.
func (s *Server) handleCalendarDay(w http.ResponseWriter, r *http.Request, _ *viewer) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		UnprocessableEntityError("Tanggal tidak valid").Write(w)
		return
	}
	date, err := parseDate(raw, s.now())
	if err != nil {
		s.fail(w, r, err, "Tanggal tidak valid")
		return
	}

	d, err := s.loadLedger(r.Context(), false)
	if err != nil {
		s.fail(w, r, err, "Gagal memuat transaksi")
		return
	}
	txs := core.TransactionsOn(d.Transactions, date)
	view := calendarDayView{Label: core.DateLabel(date), Rows: rowsFor(txs, d.Categories)}
	for _, t := range txs {
		switch t.Type {
		case core.Income:
			view.Income.Amount += t.Amount.Amount
		case core.Expense:
			view.Expense.Amount += t.Amount.Amount
		}
	}
	s.writePartial(w, r, NewHTMXResponse(), "calendar_day", view)
}
