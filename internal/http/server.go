// Package http serves the finex web UI: server-rendered pages and HTMX
// partials over a ports.Backend.
package http

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"finex/internal/auth"
	"finex/internal/cache"
	"finex/internal/cli"
	"finex/internal/log"
	"finex/internal/middleware/ratelimit"
	"finex/internal/middleware/security"
	"finex/internal/middleware/trace"
	"finex/internal/ports"
	appweb "finex/web"
)

// ServerConfig wires a Server. Backend and Sessions are required.
type ServerConfig struct {
	Addr     string
	Backend  ports.Backend
	Sessions *auth.Sessions
	// Cache is the query cache shared with the cached backend; nil disables
	// view caching.
	Cache *cache.QueryCache
	// RateLimitPerMinute bounds mutating requests per client IP.
	RateLimitPerMinute int
	// TrustedProxies are CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string
	Logger         *log.Logger
	// Assets overrides the embedded web assets, mainly for tests.
	Assets fs.FS
	Now    func() time.Time
}

type Server struct {
	http.Server
	backend  ports.Backend
	views    *views
	sessions *auth.Sessions
	cache    *cache.QueryCache
	limiter  *ratelimit.Limiter
	detector *security.Detector
	logger   *log.Logger
	now      func() time.Time

	shutdownOnce sync.Once
}

// NewServer parses the templates and configures routes and middleware,
// returning a ready-to-run server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Backend == nil {
		return nil, errors.New("http server requires a backend")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("http server requires a session manager")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	assets := cfg.Assets
	if assets == nil {
		assets = appweb.FS
	}

	v, err := loadViews(assets)
	if err != nil {
		return nil, err
	}

	s := &Server{
		backend:  cfg.Backend,
		views:    v,
		sessions: cfg.Sessions,
		cache:    cfg.Cache,
		detector: security.NewDetector(logger),
		logger:   logger.WithComponent(log.ComponentHTTP),
		now:      now,
	}
	for _, cidr := range cfg.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}
	s.limiter = ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		Logger:            logger,
	})

	mux := http.NewServeMux()
	s.routes(mux, assets)

	var handler http.Handler = mux
	handler = s.sessions.Middleware(handler)
	handler = s.limiter.Middleware(s.detector.ExtractClientIP, s.rateLimited)(handler)
	handler = s.detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = trace.NewMiddleware(s.detector.ExtractClientIP, logger).Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(mux *http.ServeMux, assets fs.FS) {
	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(assets, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	ops := cli.OpsHandler(s.ready)
	mux.Handle("GET /healthz", ops)
	mux.Handle("GET /readyz", ops)
	mux.Handle("GET /metrics", ops)

	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("POST /profile", s.handleSaveProfile)

	mux.HandleFunc("GET /{$}", s.member(s.handleDashboard))
	mux.HandleFunc("GET /ui/dashboard", s.member(s.handleDashboardPartial))
	mux.HandleFunc("GET /api/charts/income-expense", s.member(s.handleIncomeExpenseChart))
	mux.HandleFunc("GET /api/charts/cashflow-trend", s.member(s.handleCashflowTrendChart))
	mux.HandleFunc("GET /api/charts/expense-categories", s.member(s.handleExpenseCategoriesChart))

	mux.HandleFunc("GET /transaksi", s.member(s.handleTransactionsPage))
	mux.HandleFunc("GET /ui/transactions", s.member(s.handleTransactionList))
	mux.HandleFunc("GET /ui/transactions/new", s.member(s.handleNewTransactionForm))
	mux.HandleFunc("GET /ui/transactions/{id}/edit", s.member(s.handleEditTransactionForm))
	mux.HandleFunc("POST /transactions", s.member(s.handleCreateTransaction))
	mux.HandleFunc("POST /transactions/{id}", s.member(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /transactions/{id}", s.member(s.handleDeleteTransaction))

	mux.HandleFunc("GET /kategori", s.member(s.handleCategoriesPage))
	mux.HandleFunc("GET /ui/categories", s.member(s.handleCategoryList))
	mux.HandleFunc("GET /ui/categories/new", s.member(s.handleNewCategoryForm))
	mux.HandleFunc("GET /ui/categories/{id}/edit", s.member(s.handleEditCategoryForm))
	mux.HandleFunc("POST /categories", s.member(s.handleCreateCategory))
	mux.HandleFunc("POST /categories/{id}", s.member(s.handleUpdateCategory))
	mux.HandleFunc("DELETE /categories/{id}", s.member(s.handleDeleteCategory))

	mux.HandleFunc("GET /kalender", s.member(s.handleCalendarPage))
	mux.HandleFunc("GET /ui/calendar", s.member(s.handleCalendarPartial))
	mux.HandleFunc("GET /ui/calendar/day", s.member(s.handleCalendarDay))

	mux.HandleFunc("POST /receipts", s.member(s.handleUploadReceipt))
	mux.HandleFunc("GET /receipts/{id}", s.member(s.handleGetReceipt))
	mux.HandleFunc("DELETE /receipts/{id}", s.member(s.handleDeleteReceipt))
}

func (s *Server) ready(ctx context.Context) error {
	if p, ok := s.backend.(ports.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *Server) rateLimited(w http.ResponseWriter, _ *http.Request) {
	ErrorResponse(http.StatusTooManyRequests, "Terlalu banyak permintaan. Coba lagi nanti.").Write(w)
}

// Shutdown stops background routines and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	// Ensure shutdown logic runs only once
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
