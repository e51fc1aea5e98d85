package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finex/internal/auth"
	"finex/internal/cache"
	"finex/internal/core"
	"finex/internal/memory"
)

type testEnv struct {
	t        *testing.T
	srv      *Server
	store    *memory.Store
	sessions *auth.Sessions
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := func() time.Time { return fixedNow }
	store := memory.New(memory.WithSeedCategories(true), memory.WithClock(clock))
	qc := cache.NewQueryCache(256, time.Minute, nil)
	sessions := auth.NewSessions("test-secret", time.Hour, false)

	srv, err := NewServer(ServerConfig{
		Backend:            cache.NewCachedBackend(store, qc),
		Sessions:           sessions,
		Cache:              qc,
		RateLimitPerMinute: 10000,
		Now:                clock,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return &testEnv{t: t, srv: srv, store: store, sessions: sessions}
}

type request struct {
	method      string
	target      string
	body        io.Reader
	contentType string
	principal   core.Principal
	htmx        bool
}

func (e *testEnv) do(req request) *httptest.ResponseRecorder {
	e.t.Helper()
	r := httptest.NewRequest(req.method, req.target, req.body)
	if req.contentType != "" {
		r.Header.Set("Content-Type", req.contentType)
	}
	if req.htmx {
		r.Header.Set("HX-Request", "true")
	}
	if req.principal != "" {
		issued := httptest.NewRecorder()
		e.sessions.Issue(issued, req.principal)
		for _, c := range issued.Result().Cookies() {
			r.AddCookie(c)
		}
	}
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, r)
	return rec
}

func (e *testEnv) get(p core.Principal, target string) *httptest.ResponseRecorder {
	return e.do(request{method: http.MethodGet, target: target, principal: p})
}

func (e *testEnv) form(p core.Principal, method, target string, values url.Values) *httptest.ResponseRecorder {
	return e.do(request{
		method:      method,
		target:      target,
		body:        strings.NewReader(values.Encode()),
		contentType: "application/x-www-form-urlencoded",
		principal:   p,
		htmx:        true,
	})
}

// member signs p up with a profile so it gets a role.
func (e *testEnv) member(p core.Principal, name string) {
	e.t.Helper()
	rec := e.form(p, http.MethodPost, "/profile", url.Values{"name": {name}})
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())
}

func (e *testEnv) ctx(p core.Principal) context.Context {
	return auth.WithPrincipal(context.Background(), p)
}

func (e *testEnv) transactions(p core.Principal) []core.Transaction {
	e.t.Helper()
	page, err := e.store.GetTransactions(e.ctx(p), 0, 100)
	require.NoError(e.t, err)
	return page.Items
}

func (e *testEnv) addTransaction(p core.Principal, typ, category, amount, date, note string) {
	e.t.Helper()
	rec := e.form(p, http.MethodPost, "/transactions", url.Values{
		"type":       {typ},
		"categoryId": {category},
		"amount":     {amount},
		"date":       {date},
		"note":       {note},
	})
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())
}

func triggers(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	raw := rec.Header().Get("HX-Trigger")
	require.NotEmpty(t, raw, "missing HX-Trigger")
	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func toastMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var n struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(triggers(t, rec)[EventNotification], &n))
	return n.Message
}

func TestAnonymousAccess(t *testing.T) {
	e := newTestEnv(t)

	rec := e.get("", "/")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Akses Terbatas")
	assert.Contains(t, rec.Body.String(), `action="/login"`)

	rec = e.do(request{method: http.MethodGet, target: "/ui/dashboard", htmx: true})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Silakan masuk terlebih dahulu", toastMessage(t, rec))

	rec = e.get("", "/api/charts/income-expense")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(request{
		method:      http.MethodPost,
		target:      "/login",
		body:        strings.NewReader("principal=alice"),
		contentType: "application/x-www-form-urlencoded",
	})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(session)
	p, err := e.sessions.Principal(r)
	require.NoError(t, err)
	assert.Equal(t, core.Principal("alice"), p)

	rec = e.do(request{
		method:      http.MethodPost,
		target:      "/login",
		body:        strings.NewReader("principal="),
		contentType: "application/x-www-form-urlencoded",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Identitas tidak boleh kosong")

	rec = e.get("alice", "/login")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestLogoutClearsSession(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(request{method: http.MethodPost, target: "/logout", principal: "alice"})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestProfileSetup(t *testing.T) {
	e := newTestEnv(t)

	rec := e.get("alice", "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Selamat Datang di Finex")

	rec = e.form("alice", http.MethodPost, "/profile", url.Values{"name": {""}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "Nama tidak boleh kosong", toastMessage(t, rec))

	rec = e.form("alice", http.MethodPost, "/profile", url.Values{"name": {"Alice Wijaya"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("HX-Redirect"))
	assert.Equal(t, "Profil berhasil disimpan", toastMessage(t, rec))
	assert.Contains(t, triggers(t, rec), EventProfileSaved)

	rec = e.get("alice", "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Alice Wijaya")
	assert.Contains(t, body, "Analisis Cashflow Otomatis")
	assert.Contains(t, body, "Saldo Saat Ini")
}

func TestGuestIsDenied(t *testing.T) {
	e := newTestEnv(t)
	e.member("alice", "Alice")
	e.member("bob", "Bob")
	require.NoError(t, e.store.AssignCallerUserRole(e.ctx("alice"), "bob", core.RoleGuest))

	rec := e.get("bob", "/transaksi")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Akses Terbatas")

	rec = e.form("bob", http.MethodPost, "/transactions", url.Values{
		"type": {"expense"}, "categoryId": {"cat-makan"}, "amount": {"1000"},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Anda tidak memiliki akses", toastMessage(t, rec))

	require.NoError(t, e.store.AssignCallerUserRole(e.ctx("alice"), "bob", core.RoleUser))
	rec = e.get("bob", "/transaksi")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTransactionLifecycle(t *testing.T) {
	e := newTestEnv(t)
	e.member("alice", "Alice")

	rec := e.form("alice", http.MethodPost, "/transactions", url.Values{
		"type":       {"expense"},
		"categoryId": {"cat-makan"},
		"amount":     {"50.000"},
		"date":       {"2026-10-17"},
		"note":       {"Makan siang"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tr := triggers(t, rec)
	assert.Contains(t, tr, EventLedgerChanged)
	assert.Contains(t, tr, EventCloseDialog)
	assert.Equal(t, "Transaksi berhasil ditambahkan", toastMessage(t, rec))

	txs := e.transactions("alice")
	require.Len(t, txs, 1)
	id := txs[0].ID
	assert.Equal(t, int64(50000), txs[0].Amount.Amount)

	rec = e.do(request{method: http.MethodGet, target: "/ui/transactions", principal: "alice", htmx: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Makan siang")
	assert.Contains(t, rec.Body.String(), "-Rp 50.000")
	assert.Contains(t, rec.Body.String(), "17 Oktober 2026")

	rec = e.get("alice", "/ui/transactions/"+id+"/edit")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Edit Transaksi")
	assert.Contains(t, rec.Body.String(), `value="50.000"`)

	rec = e.form("alice", http.MethodPost, "/transactions/"+id, url.Values{
		"type":       {"expense"},
		"categoryId": {"cat-makan"},
		"amount":     {"75000"},
		"date":       {"2026-10-17"},
		"note":       {"Makan malam"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Transaksi berhasil diperbarui", toastMessage(t, rec))
	txs = e.transactions("alice")
	require.Len(t, txs, 1)
	assert.Equal(t, int64(75000), txs[0].Amount.Amount)
	assert.Equal(t, "Makan malam", txs[0].Note)

	rec = e.do(request{method: http.MethodDelete, target: "/transactions/" + id, principal: "alice", htmx: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Transaksi berhasil dihapus", toastMessage(t, rec))
	assert.Contains(t, triggers(t, rec), EventLedgerChanged)
	assert.Empty(t, e.transactions("alice"))

	rec = e.get("alice", "/ui/transactions")
	assert.Contains(t, rec.Body.String(), "Belum ada transaksi")
}

func TestTransactionValidation(t *testing.T) {
	e := newTestEnv(t)
	e.member("alice", "Alice")

	tests := []struct {
		name    string
		values  url.Values
		message string
	}{
		{
			name:    "zero amount",
			values:  url.Values{"type": {"expense"}, "categoryId": {"cat-makan"}, "amount": {"0"}},
			message: "Nominal harus lebih dari 0",
		},
		{
			name:    "missing category",
			values:  url.Values{"type": {"expense"}, "amount": {"1000"}},
			message: "Pilih kategori terlebih dahulu",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.form("alice", http.MethodPost, "/transactions", tt.values)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Equal(t, tt.message, toastMessage(t, rec))
		})
	}
	assert.Empty(t, e.transactions("alice"))

	rec := e.form("alice", http.MethodPost, "/transactions/tx-missing", url.Values{
		"type": {"expense"}, "categoryId": {"cat-makan"}, "amount": {"1000"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransactionFilters(t *testing.T) {
	e := newTestEnv(t)
	e.member("alice", "Alice")
	e.addTransaction("alice", "income", "cat-gaji", "5000000", "2026-10-01", "Gaji Oktober")
	e.addTransaction("alice", "expense", "cat-makan", "25000", "2026-10-02", "Bakso")

	rec := e.get("alice", "/ui/transactions?type=income")
	assert.Contains(t, rec.Body.String(), "Gaji Oktober")
	assert.NotContains(t, rec.Body.String(), "Bakso")

	rec = e.get("alice", "/ui/transactions?q=bakso")
	assert.Contains(t, rec.Body.String(), "Bakso")
	assert.NotContains(t, rec.Body.String(), "Gaji Oktober")
}

func TestCategoryLifecycle(t *testing.T) {
	e := newTestEnv(t)
	e.member("alice", "Alice")

	rec := e.form("alice", http.MethodPost, "/categories", url.Values{
		"name":  {"Kopi"},
		"type":  {"expense"},
		"color": {CategoryPalette[2]},
		"icon":  {"☕"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Kategori berhasil ditambahkan", toastMessage(t, rec))
	assert.Contains(t, triggers(t, rec), EventCategoriesChanged)

	cats, err := e.store.GetCategoriesByType(e.ctx("alice"))
	require.NoError(t, err)
	var kopi *core.Category
	for i := range cats {
		if cats[i].Name == "Kopi" {
			kopi = &cats[i]
		}
	}
	require.NotNil(t, kopi)

	rec = e.get("alice", "/ui/categories")
	assert.Contains(t, rec.Body.String(), "Kopi")
	assert.Contains(t, rec.Body.String(), "Kategori Pengeluaran")

	rec = e.form("alice", http.MethodPost, "/categories", url.Values{"name": {""}, "type": {"expense"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "Nama kategori tidak boleh kosong", toastMessage(t, rec))

	e.addTransaction("alice", "expense", kopi.ID, "18000", "2026-10-18", "Kopi susu")
	rec = e.do(request{method: http.MethodDelete, target: "/categories/" + kopi.ID, principal: "alice", htmx: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Kategori berhasil dihapus", toastMessage(t, rec))
	tr := triggers(t, rec)
	assert.Contains(t, tr, EventCategoriesChanged)
	assert.Contains(t, tr, EventLedgerChanged)

	// the transaction survives under the fallback name
	rec = e.get("alice", "/ui/transactions")
	assert.Contains(t, rec.Body.String(), "Kopi susu")
	assert.Contains(t, rec.Body.String(), core.UnknownCategoryName)
}

func multipartReceipt(t *testing.T, filename string, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("receipt", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

var receiptIDPattern = regexp.MustCompile(`name="receiptId" value="([^"]+)"`)

func TestReceiptUpload(t *testing.T) {
	e := newTestEnv(t)
	e.member("alice", "Alice")

	png := []byte("\x89PNG\r\n\x1a\n0000")
	body, ct := multipartReceipt(t, "struk.png", png)
	rec := e.do(request{method: http.MethodPost, target: "/receipts", body: body, contentType: ct, principal: "alice", htmx: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Bukti transaksi berhasil diunggah", toastMessage(t, rec))

	m := receiptIDPattern.FindStringSubmatch(rec.Body.String())
	require.Len(t, m, 2)
	id := m[1]

	rec = e.get("alice", "/receipts/"+id)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, png, rec.Body.Bytes())

	// receipts are private to their owner's ledger
	e.member("bob", "Bob")
	rec = e.get("bob", "/receipts/"+id)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(request{method: http.MethodDelete, target: "/receipts/" + id, principal: "alice", htmx: true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="receipt"`)
	rec = e.get("alice", "/receipts/"+id)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReceiptUploadRejectsNonImages(t *testing.T) {
	e := newTestEnv(t)
	e.member("alice", "Alice")

	body, ct := multipartReceipt(t, "notes.txt", []byte("just some text"))
	rec := e.do(request{method: http.MethodPost, target: "/receipts", body: body, contentType: ct, principal: "alice", htmx: true})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "Hanya file JPG dan PNG yang diperbolehkan", toastMessage(t, rec))

	rec = e.do(request{
		method:      http.MethodPost,
		target:      "/receipts",
		body:        strings.NewReader(""),
		contentType: "multipart/form-data; boundary=x",
		principal:   "alice",
		htmx:        true,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCalendar(t *testing.T) {
	e := newTestEnv(t)
	e.member("alice", "Alice")
	e.addTransaction("alice", "expense", "cat-makan", "40000", "2026-10-17", "Sate")

	rec := e.get("alice", "/kalender")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Oktober 2026")
	assert.Contains(t, body, "Rp 40.000")
	assert.Contains(t, body, "/ui/calendar/day?date=2026-10-17")

	// the cached month grid is dropped when the ledger changes
	e.addTransaction("alice", "income", "cat-gaji", "900000", "2026-10-17", "Honor")
	rec = e.get("alice", "/ui/calendar?year=2026&month=10")
	assert.Contains(t, rec.Body.String(), "Rp 900.000")

	rec = e.get("alice", "/ui/calendar/day?date=2026-10-17")
	require.Equal(t, http.StatusOK, rec.Code)
	body = rec.Body.String()
	assert.Contains(t, body, "17 Oktober 2026")
	assert.Contains(t, body, "Sate")
	assert.Contains(t, body, "Honor")

	rec = e.get("alice", "/ui/calendar/day?date=2026-10-16")
	assert.Contains(t, rec.Body.String(), "Tidak ada transaksi")

	rec = e.get("alice", "/ui/calendar/day?date=kemarin")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = e.get("alice", "/ui/calendar?year=2026&month=9")
	assert.Contains(t, rec.Body.String(), "September 2026")
}

func TestDashboardOverspending(t *testing.T) {
	e := newTestEnv(t)
	e.member("alice", "Alice")
	e.addTransaction("alice", "income", "cat-gaji", "100000", "2026-10-01", "")
	e.addTransaction("alice", "expense", "cat-belanja", "300000", "2026-10-02", "")

	rec := e.get("alice", "/ui/dashboard")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Pengeluaran melebihi pemasukan")
	assert.Contains(t, body, "-Rp 200.000")
	assert.Contains(t, body, "Belanja")
	assert.Contains(t, body, "conic-gradient")
}

func TestChartData(t *testing.T) {
	e := newTestEnv(t)
	e.member("alice", "Alice")
	e.addTransaction("alice", "income", "cat-gaji", "1000000", "2026-10-01", "")
	e.addTransaction("alice", "expense", "cat-makan", "250000", "2026-10-05", "")
	e.addTransaction("alice", "expense", "cat-makan", "100000", "2026-09-05", "")

	rec := e.get("alice", "/api/charts/income-expense")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var bars []incomeExpensePoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bars))
	require.Len(t, bars, trendMonths)
	last := bars[len(bars)-1]
	assert.Equal(t, int64(1000000), last.Income)
	assert.Equal(t, int64(250000), last.Expense)
	assert.Equal(t, int64(100000), bars[len(bars)-2].Expense)

	rec = e.get("alice", "/api/charts/cashflow-trend")
	var flow []cashflowPoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &flow))
	require.Len(t, flow, trendMonths)
	assert.Equal(t, int64(750000), flow[len(flow)-1].Cashflow)
	assert.Equal(t, int64(-100000), flow[len(flow)-2].Cashflow)

	rec = e.get("alice", "/api/charts/expense-categories")
	var slices []categoryPoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &slices))
	require.Len(t, slices, 1)
	assert.Equal(t, "cat-makan", slices[0].CategoryID)
	assert.Equal(t, int64(250000), slices[0].Value)
	assert.Equal(t, 100, slices[0].Percent)
}

func TestOpsEndpoints(t *testing.T) {
	e := newTestEnv(t)

	rec := e.get("", "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = e.get("", "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityHeadersAndStaticAssets(t *testing.T) {
	e := newTestEnv(t)

	rec := e.get("", "/static/app.js")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "show-notification")
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
