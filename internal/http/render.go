package http

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"finex/internal/core"
	"finex/internal/log"
)

// Shells a page can be rendered into.
const (
	shellApp  = "layout"
	shellBare = "bare"
)

// pageShells lists every page template and the shell it renders in.
var pageShells = map[string]string{
	"dashboard":    shellApp,
	"transactions": shellApp,
	"categories":   shellApp,
	"calendar":     shellApp,
	"login":        shellBare,
	"profile":      shellBare,
	"denied":       shellBare,
}

type navItem struct {
	Href  string
	Label string
	Key   string
}

var navItems = []navItem{
	{"/", "Dashboard", "dashboard"},
	{"/transaksi", "Transaksi", "transactions"},
	{"/kategori", "Kategori", "categories"},
	{"/kalender", "Kalender", "calendar"},
}

// pageData is what the shells see. Content is the page's own view model.
type pageData struct {
	Title    string
	Active   string
	UserName string
	Nav      []navItem
	Content  any
}

// views holds the parsed templates: base carries the shells and partials,
// pages maps each page to a clone of base plus its content block.
type views struct {
	base  *template.Template
	pages map[string]*template.Template
}

func loadViews(fsys fs.FS) (*views, error) {
	base, err := template.New("base").Funcs(templateFuncs).ParseFS(fsys, "templates/layout.html", "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse base templates: %w", err)
	}

	v := &views{base: base, pages: make(map[string]*template.Template, len(pageShells))}
	for name := range pageShells {
		t, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone base for %s: %w", name, err)
		}
		if _, err := t.ParseFS(fsys, path.Join("templates/pages", name+".html")); err != nil {
			return nil, fmt.Errorf("parse page %s: %w", name, err)
		}
		v.pages[name] = t
	}
	return v, nil
}

// renderPage writes a full page. Rendering happens into a buffer so a
// template failure still yields a clean 500.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	t, ok := s.views.pages[name]
	if !ok {
		s.templateError(w, r, name, fmt.Errorf("unknown page"))
		return
	}
	data.Nav = navItems
	data.Active = name

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, pageShells[name], data); err != nil {
		s.templateError(w, r, name, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// partial renders a named partial into bytes for an HTMX response.
func (s *Server) partial(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.views.base.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

// writePartial renders name and writes it with the builder's triggers.
func (s *Server) writePartial(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, name string, data any) {
	body, err := s.partial(name, data)
	if err != nil {
		s.templateError(w, r, name, err)
		return
	}
	b.Header("Content-Type", "text/html; charset=utf-8").Body(body).Write(w)
}

func (s *Server) templateError(w http.ResponseWriter, r *http.Request, name string, err error) {
	log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
		"template", name,
		log.FieldError, err)
	InternalServerError("Terjadi kesalahan saat menampilkan halaman").Write(w)
}

var templateFuncs = template.FuncMap{
	"rupiah":         rupiah,
	"signedAmount":   signedAmount,
	"signedRupiah":   signedRupiah,
	"amountInput":    func(m core.Money) string { return core.FormatAmountInput(fmt.Sprint(m.Amount)) },
	"dateLabel":      core.DateLabel,
	"isoDate":        func(t time.Time) string { return t.UTC().Format(dateLayout) },
	"monthLabel":     core.MonthLabel,
	"typeLabel":      typeLabel,
	"healthLabel":    func(h core.HealthIndicator) string { return healthOf(h).Label },
	"healthProgress": func(h core.HealthIndicator) int { return healthOf(h).Progress },
	"healthClass":    func(h core.HealthIndicator) string { return healthOf(h).Class },
	"noteOr":         noteOr,
	"isIncome":       func(t core.CategoryType) bool { return t == core.Income },
	"lower":          strings.ToLower,
	"initial":        initial,
	"receiptSlot":    func(id string) receiptSlotView { return receiptSlotView{ReceiptID: id} },
}

// rupiah formats Money or a plain integer amount.
func rupiah(v any) string {
	switch n := v.(type) {
	case core.Money:
		return core.FormatRupiah(n.Amount)
	case int64:
		return core.FormatRupiah(n)
	case int:
		return core.FormatRupiah(int64(n))
	}
	return ""
}

// signedAmount renders a transaction amount with +/- by type.
func signedAmount(t core.Transaction) string {
	if t.Type == core.Income {
		return "+" + core.FormatRupiah(t.Amount.Amount)
	}
	return "-" + core.FormatRupiah(t.Amount.Amount)
}

// signedRupiah renders a change with an explicit sign; zero has none.
func signedRupiah(m core.Money) string {
	if m.Amount > 0 {
		return "+" + core.FormatRupiah(m.Amount)
	}
	return core.FormatRupiah(m.Amount)
}

func typeLabel(t core.CategoryType) string {
	if t == core.Income {
		return "Pemasukan"
	}
	return "Pengeluaran"
}

func noteOr(note string) string {
	if strings.TrimSpace(note) == "" {
		return "Tanpa catatan"
	}
	return note
}

func initial(name string) string {
	for _, r := range strings.TrimSpace(name) {
		return strings.ToUpper(string(r))
	}
	return "?"
}

type healthBadge struct {
	Label    string
	Progress int
	Class    string
}

var healthBadges = map[core.HealthIndicator]healthBadge{
	core.HealthSafe:         {"Aman", 100, "safe"},
	core.HealthWarning:      {"Waspada", 60, "warning"},
	core.HealthOverspending: {"Boros", 30, "danger"},
}

func healthOf(h core.HealthIndicator) healthBadge {
	if b, ok := healthBadges[h]; ok {
		return b
	}
	return healthBadges[core.HealthSafe]
}
