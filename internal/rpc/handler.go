package rpc

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"finex/internal/auth"
	"finex/internal/core"
	"finex/internal/log"
	"finex/internal/ports"
)

type methodFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Handler serves a Backend over HTTP.
type Handler struct {
	backend ports.Backend
	token   string
	logger  *log.Logger
	methods map[string]methodFunc
	mux     *http.ServeMux
}

// NewHandler builds the RPC server. An empty token disables the bearer
// check, which is only sensible on a loopback interface.
func NewHandler(b ports.Backend, token string, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Nop()
	}
	h := &Handler{
		backend: b,
		token:   token,
		logger:  logger.WithComponent(log.ComponentRPC),
		mux:     http.NewServeMux(),
	}
	h.methods = h.buildMethods()
	h.mux.HandleFunc("POST "+rpcPrefix+"{method}", h.handleCall)
	h.mux.HandleFunc("GET /healthz", h.handleHealth)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.token == "" {
		return true
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.backend.(ports.Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.logger.ErrorContext(r.Context(), "Backend health check failed", log.FieldError, err)
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleCall(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	method := r.PathValue("method")

	if !h.authorized(r) {
		h.logger.WarnContext(r.Context(), "Rejected RPC call with bad token", log.FieldRPCMethod, method)
		writeJSON(w, http.StatusUnauthorized, envelope{Error: &wireError{Code: CodeUnauthorized, Message: "invalid token"}})
		return
	}

	fn, ok := h.methods[method]
	if !ok {
		h.writeError(w, r, method, fmt.Errorf("%w: unknown method %q", ErrBadRequest, method))
		return
	}

	var params json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&params); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, r, method, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}

	ctx := r.Context()
	if p := strings.TrimSpace(r.Header.Get(PrincipalHeader)); p != "" {
		ctx = auth.WithPrincipal(ctx, core.Principal(p))
	}

	result, err := fn(ctx, params)
	if err != nil {
		h.writeError(w, r, method, err)
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		h.writeError(w, r, method, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Result: raw})

	h.logger.DebugContext(ctx, "RPC call served",
		log.FieldRPCMethod, method,
		log.FieldDuration, time.Since(start).Milliseconds(),
	)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, method string, err error) {
	status, we := encodeError(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "RPC call failed", log.FieldRPCMethod, method, log.FieldError, err)
	} else {
		h.logger.DebugContext(r.Context(), "RPC call rejected", log.FieldRPCMethod, method, log.FieldError, err)
	}
	writeJSON(w, status, envelope{Error: we})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// bind decodes params into P before calling fn. Missing params decode as
// the zero value.
func bind[P any](fn func(ctx context.Context, p P) (any, error)) methodFunc {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p P
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
			}
		}
		return fn(ctx, p)
	}
}

func noParams(fn func(ctx context.Context) (any, error)) methodFunc {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		return fn(ctx)
	}
}

func optionalCategory(c *core.Category) *categoryDTO {
	if c == nil {
		return nil
	}
	d := toCategoryDTO(*c)
	return &d
}

func optionalTransaction(t *core.Transaction) *transactionDTO {
	if t == nil {
		return nil
	}
	d := toTransactionDTO(*t)
	return &d
}

func optionalProfile(p *core.UserProfile) *profileDTO {
	if p == nil {
		return nil
	}
	return &profileDTO{Name: p.Name}
}

func (h *Handler) buildMethods() map[string]methodFunc {
	b := h.backend
	txPage := func(p core.Page[core.Transaction], err error) (any, error) {
		if err != nil {
			return nil, err
		}
		return toPageDTO(p, toTransactionDTO), nil
	}
	catList := func(cs []core.Category, err error) (any, error) {
		if err != nil {
			return nil, err
		}
		return mapSlice(cs, toCategoryDTO), nil
	}

	return map[string]methodFunc{
		MethodAddCategory: bind(func(ctx context.Context, c categoryDTO) (any, error) {
			return nil, b.AddCategory(ctx, c.toCore())
		}),
		MethodUpdateCategory: bind(func(ctx context.Context, c categoryDTO) (any, error) {
			return nil, b.UpdateCategory(ctx, c.toCore())
		}),
		MethodDeleteCategory: bind(func(ctx context.Context, p idParams) (any, error) {
			return nil, b.DeleteCategory(ctx, p.ID)
		}),
		MethodGetCategory: bind(func(ctx context.Context, p idParams) (any, error) {
			c, err := b.GetCategory(ctx, p.ID)
			if err != nil {
				return nil, err
			}
			return optionalCategory(c), nil
		}),
		MethodGetCategories: bind(func(ctx context.Context, p pageParams) (any, error) {
			page, err := b.GetCategories(ctx, p.Page, p.Size)
			if err != nil {
				return nil, err
			}
			return toPageDTO(page, toCategoryDTO), nil
		}),
		MethodGetCategoriesByType: noParams(func(ctx context.Context) (any, error) {
			return catList(b.GetCategoriesByType(ctx))
		}),
		MethodGetCategoriesSortedByColor: noParams(func(ctx context.Context) (any, error) {
			return catList(b.GetCategoriesSortedByColor(ctx))
		}),

		MethodAddTransaction: bind(func(ctx context.Context, t transactionDTO) (any, error) {
			return nil, b.AddTransaction(ctx, t.toCore())
		}),
		MethodUpdateTransaction: bind(func(ctx context.Context, t transactionDTO) (any, error) {
			return nil, b.UpdateTransaction(ctx, t.toCore())
		}),
		MethodDeleteTransaction: bind(func(ctx context.Context, p idParams) (any, error) {
			return nil, b.DeleteTransaction(ctx, p.ID)
		}),
		MethodGetTransaction: bind(func(ctx context.Context, p idParams) (any, error) {
			t, err := b.GetTransaction(ctx, p.ID)
			if err != nil {
				return nil, err
			}
			return optionalTransaction(t), nil
		}),
		MethodGetTransactions: bind(func(ctx context.Context, p pageParams) (any, error) {
			return txPage(b.GetTransactions(ctx, p.Page, p.Size))
		}),
		MethodGetTransactionsByCategory: bind(func(ctx context.Context, p categoryPageParams) (any, error) {
			return txPage(b.GetTransactionsByCategory(ctx, p.CategoryID, p.Page, p.Size))
		}),
		MethodGetTransactionsByType: bind(func(ctx context.Context, p typePageParams) (any, error) {
			return txPage(b.GetTransactionsByType(ctx, core.CategoryType(p.Type), p.Page, p.Size))
		}),
		MethodSearchTransactions: bind(func(ctx context.Context, p searchParams) (any, error) {
			return txPage(b.SearchTransactions(ctx, p.Term, p.Page, p.Size))
		}),

		MethodUploadReceipt: bind(func(ctx context.Context, p receiptParams) (any, error) {
			return nil, b.UploadReceipt(ctx, p.ID, p.Data)
		}),
		MethodGetReceipt: bind(func(ctx context.Context, p idParams) (any, error) {
			return b.GetReceipt(ctx, p.ID)
		}),
		MethodDeleteReceipt: bind(func(ctx context.Context, p idParams) (any, error) {
			return nil, b.DeleteReceipt(ctx, p.ID)
		}),

		MethodGetCashflowInsights: noParams(func(ctx context.Context) (any, error) {
			ins, err := b.GetCashflowInsights(ctx)
			if err != nil {
				return nil, err
			}
			return toInsightsDTO(ins), nil
		}),

		MethodGetCallerUserProfile: noParams(func(ctx context.Context) (any, error) {
			p, err := b.GetCallerUserProfile(ctx)
			if err != nil {
				return nil, err
			}
			return optionalProfile(p), nil
		}),
		MethodSaveCallerUserProfile: bind(func(ctx context.Context, p profileDTO) (any, error) {
			return nil, b.SaveCallerUserProfile(ctx, core.UserProfile{Name: p.Name})
		}),
		MethodGetUserProfile: bind(func(ctx context.Context, p userParams) (any, error) {
			prof, err := b.GetUserProfile(ctx, core.Principal(p.User))
			if err != nil {
				return nil, err
			}
			return optionalProfile(prof), nil
		}),
		MethodGetCallerUserRole: noParams(func(ctx context.Context) (any, error) {
			return b.GetCallerUserRole(ctx)
		}),
		MethodAssignCallerUserRole: bind(func(ctx context.Context, p assignRoleParams) (any, error) {
			return nil, b.AssignCallerUserRole(ctx, core.Principal(p.User), core.UserRole(p.Role))
		}),
		MethodIsCallerAdmin: noParams(func(ctx context.Context) (any, error) {
			return b.IsCallerAdmin(ctx)
		}),
	}
}
