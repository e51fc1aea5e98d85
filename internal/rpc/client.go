package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"finex/internal/auth"
	"finex/internal/core"
	"finex/internal/metrics"
	"finex/internal/middleware/trace"
)

// Client talks to a remote backend. It satisfies ports.Backend.
type Client struct {
	baseURL string
	token   string
	hc      *http.Client
	metrics *metrics.Metrics
}

// NewClient returns a client for the backend at baseURL. A nil hc gets a
// client with a 15 second timeout.
func NewClient(baseURL, token string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		hc:      hc,
		metrics: metrics.Get(),
	}
}

func (c *Client) call(ctx context.Context, method string, params, out any) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.BackendCallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
		if err != nil {
			code := CodeInternal
			if e, ok := err.(*Error); ok {
				code = e.Code
			}
			c.metrics.BackendErrorsTotal.WithLabelValues(method, code).Inc()
		}
	}()

	if params == nil {
		params = struct{}{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode %s params: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+rpcPrefix+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if p, ok := auth.PrincipalFrom(ctx); ok {
		req.Header.Set(PrincipalHeader, string(p))
	}
	if id := trace.GetRequestID(ctx); id != "" {
		req.Header.Set(trace.RequestIDHeader, id)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&env); err != nil {
		return fmt.Errorf("decode %s response (status %d): %w", method, resp.StatusCode, err)
	}
	if env.Error != nil {
		return decodeError(env.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return &Error{Code: CodeInternal, Message: fmt.Sprintf("%s: unexpected status %d", method, resp.StatusCode)}
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

// Ping checks the remote health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("ping backend: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping backend: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) AddCategory(ctx context.Context, cat core.Category) error {
	return c.call(ctx, MethodAddCategory, toCategoryDTO(cat), nil)
}

func (c *Client) UpdateCategory(ctx context.Context, cat core.Category) error {
	return c.call(ctx, MethodUpdateCategory, toCategoryDTO(cat), nil)
}

func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	return c.call(ctx, MethodDeleteCategory, idParams{ID: id}, nil)
}

func (c *Client) GetCategory(ctx context.Context, id string) (*core.Category, error) {
	var out *categoryDTO
	if err := c.call(ctx, MethodGetCategory, idParams{ID: id}, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	cat := out.toCore()
	return &cat, nil
}

func (c *Client) GetCategories(ctx context.Context, page, size int) (core.Page[core.Category], error) {
	var out pageDTO[categoryDTO]
	if err := c.call(ctx, MethodGetCategories, pageParams{Page: page, Size: size}, &out); err != nil {
		return core.Page[core.Category]{}, err
	}
	return fromPageDTO(out, categoryDTO.toCore), nil
}

func (c *Client) categoryList(ctx context.Context, method string) ([]core.Category, error) {
	var out []categoryDTO
	if err := c.call(ctx, method, nil, &out); err != nil {
		return nil, err
	}
	return mapSlice(out, categoryDTO.toCore), nil
}

func (c *Client) GetCategoriesByType(ctx context.Context) ([]core.Category, error) {
	return c.categoryList(ctx, MethodGetCategoriesByType)
}

func (c *Client) GetCategoriesSortedByColor(ctx context.Context) ([]core.Category, error) {
	return c.categoryList(ctx, MethodGetCategoriesSortedByColor)
}

func (c *Client) AddTransaction(ctx context.Context, t core.Transaction) error {
	return c.call(ctx, MethodAddTransaction, toTransactionDTO(t), nil)
}

func (c *Client) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	return c.call(ctx, MethodUpdateTransaction, toTransactionDTO(t), nil)
}

func (c *Client) DeleteTransaction(ctx context.Context, id string) error {
	return c.call(ctx, MethodDeleteTransaction, idParams{ID: id}, nil)
}

func (c *Client) GetTransaction(ctx context.Context, id string) (*core.Transaction, error) {
	var out *transactionDTO
	if err := c.call(ctx, MethodGetTransaction, idParams{ID: id}, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	t := out.toCore()
	return &t, nil
}

func (c *Client) transactionPage(ctx context.Context, method string, params any) (core.Page[core.Transaction], error) {
	var out pageDTO[transactionDTO]
	if err := c.call(ctx, method, params, &out); err != nil {
		return core.Page[core.Transaction]{}, err
	}
	return fromPageDTO(out, transactionDTO.toCore), nil
}

func (c *Client) GetTransactions(ctx context.Context, page, size int) (core.Page[core.Transaction], error) {
	return c.transactionPage(ctx, MethodGetTransactions, pageParams{Page: page, Size: size})
}

func (c *Client) GetTransactionsByCategory(ctx context.Context, categoryID string, page, size int) (core.Page[core.Transaction], error) {
	return c.transactionPage(ctx, MethodGetTransactionsByCategory, categoryPageParams{CategoryID: categoryID, Page: page, Size: size})
}

func (c *Client) GetTransactionsByType(ctx context.Context, typ core.CategoryType, page, size int) (core.Page[core.Transaction], error) {
	return c.transactionPage(ctx, MethodGetTransactionsByType, typePageParams{Type: string(typ), Page: page, Size: size})
}

func (c *Client) SearchTransactions(ctx context.Context, term string, page, size int) (core.Page[core.Transaction], error) {
	return c.transactionPage(ctx, MethodSearchTransactions, searchParams{Term: term, Page: page, Size: size})
}

func (c *Client) UploadReceipt(ctx context.Context, id string, data []byte) error {
	return c.call(ctx, MethodUploadReceipt, receiptParams{ID: id, Data: data}, nil)
}

func (c *Client) GetReceipt(ctx context.Context, id string) ([]byte, error) {
	var out []byte
	if err := c.call(ctx, MethodGetReceipt, idParams{ID: id}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteReceipt(ctx context.Context, id string) error {
	return c.call(ctx, MethodDeleteReceipt, idParams{ID: id}, nil)
}

func (c *Client) GetCashflowInsights(ctx context.Context) (core.CashflowInsights, error) {
	var out insightsDTO
	if err := c.call(ctx, MethodGetCashflowInsights, nil, &out); err != nil {
		return core.CashflowInsights{}, err
	}
	return out.toCore(), nil
}

func (c *Client) GetCallerUserProfile(ctx context.Context) (*core.UserProfile, error) {
	return c.profile(ctx, MethodGetCallerUserProfile, nil)
}

func (c *Client) SaveCallerUserProfile(ctx context.Context, p core.UserProfile) error {
	return c.call(ctx, MethodSaveCallerUserProfile, profileDTO{Name: p.Name}, nil)
}

func (c *Client) GetUserProfile(ctx context.Context, user core.Principal) (*core.UserProfile, error) {
	return c.profile(ctx, MethodGetUserProfile, userParams{User: string(user)})
}

func (c *Client) profile(ctx context.Context, method string, params any) (*core.UserProfile, error) {
	var out *profileDTO
	if err := c.call(ctx, method, params, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	return &core.UserProfile{Name: out.Name}, nil
}

func (c *Client) GetCallerUserRole(ctx context.Context) (core.UserRole, error) {
	var out core.UserRole
	if err := c.call(ctx, MethodGetCallerUserRole, nil, &out); err != nil {
		return "", err
	}
	return out, nil
}

func (c *Client) AssignCallerUserRole(ctx context.Context, user core.Principal, role core.UserRole) error {
	return c.call(ctx, MethodAssignCallerUserRole, assignRoleParams{User: string(user), Role: string(role)}, nil)
}

func (c *Client) IsCallerAdmin(ctx context.Context) (bool, error) {
	var out bool
	if err := c.call(ctx, MethodIsCallerAdmin, nil, &out); err != nil {
		return false, err
	}
	return out, nil
}
