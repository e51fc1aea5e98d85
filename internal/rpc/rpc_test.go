package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finex/internal/auth"
	"finex/internal/backend/backendtest"
	"finex/internal/core"
	"finex/internal/memory"
	"finex/internal/middleware/trace"
	"finex/internal/ports"
)

const testToken = "s3cret"

func newServer(t *testing.T, b ports.Backend, token string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewHandler(b, token, nil))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientHandlerContract(t *testing.T) {
	backendtest.Run(t, func(t *testing.T, seed bool) ports.Backend {
		store := memory.New(memory.WithSeedCategories(seed), memory.WithClock(func() time.Time { return backendtest.Now }))
		srv := newServer(t, store, testToken)
		return NewClient(srv.URL, testToken, srv.Client())
	})
}

func TestWrongTokenIsRejected(t *testing.T) {
	srv := newServer(t, memory.New(), testToken)
	client := NewClient(srv.URL, "wrong", srv.Client())

	_, err := client.GetCallerUserRole(auth.WithPrincipal(context.Background(), "alice"))
	require.Error(t, err)
	var rpcErr *Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, CodeUnauthorized, rpcErr.Code)
	assert.ErrorIs(t, err, core.ErrUnauthorized)
}

func TestClientForwardsPrincipalAndRequestID(t *testing.T) {
	var principal, requestID string
	inner := NewHandler(memory.New(), "", nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal = r.Header.Get(PrincipalHeader)
		requestID = r.Header.Get(trace.RequestIDHeader)
		inner.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	ctx := auth.WithPrincipal(context.Background(), "alice")
	ctx = context.WithValue(ctx, trace.RequestIDKey, "req_feedface")
	_, err := NewClient(srv.URL, "", srv.Client()).GetCallerUserRole(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", principal)
	assert.Equal(t, "req_feedface", requestID)
}

func TestUnknownMethod(t *testing.T) {
	srv := newServer(t, memory.New(), "")

	resp, err := srv.Client().Post(srv.URL+"/rpc/dropTables", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestMalformedParams(t *testing.T) {
	srv := newServer(t, memory.New(), "")

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/rpc/"+MethodGetTransactions, strings.NewReader(`{"page":"zero"}`))
	require.NoError(t, err)
	req.Header.Set(PrincipalHeader, "alice")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestEncodeErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{core.ErrNotFound, http.StatusNotFound, CodeNotFound},
		{fmt.Errorf("update: %w", core.ErrConflict), http.StatusConflict, CodeConflict},
		{core.ErrUnauthorized, http.StatusForbidden, CodeUnauthorized},
		{core.ErrCategoryMismatch, http.StatusUnprocessableEntity, CodeInvalid},
		{core.ErrReceiptTooLarge, http.StatusUnprocessableEntity, CodeInvalid},
		{errors.New("disk on fire"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code+"/"+tt.err.Error(), func(t *testing.T) {
			status, we := encodeError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, we.Code)
		})
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	_, we := encodeError(errors.New("open /var/lib/finex.db: permission denied"))
	assert.Equal(t, "internal error", we.Message)
	assert.Empty(t, we.Reason)
}

func TestEverySentinelRoundTrips(t *testing.T) {
	for reason, sentinel := range sentinels {
		_, we := encodeError(sentinel)
		assert.Equal(t, reason, we.Reason)
		assert.ErrorIs(t, decodeError(we), sentinel)
	}
}

func TestPing(t *testing.T) {
	srv := newServer(t, memory.New(), testToken)
	client := NewClient(srv.URL, testToken, srv.Client())
	require.NoError(t, client.Ping(context.Background()))
}

func TestDatesKeepNanoseconds(t *testing.T) {
	srv := newServer(t, memory.New(), "")
	client := NewClient(srv.URL, "", srv.Client())
	ctx := auth.WithPrincipal(context.Background(), "alice")

	require.NoError(t, client.SaveCallerUserProfile(ctx, core.UserProfile{Name: "Alice"}))
	require.NoError(t, client.AddCategory(ctx, core.Category{ID: "food", Name: "Makan", Type: core.Expense, Color: "#f59e0b"}))
	d := time.Date(2026, time.October, 18, 7, 15, 3, 123456789, time.UTC)
	require.NoError(t, client.AddTransaction(ctx, core.Transaction{
		ID: "t1", CategoryID: "food", Type: core.Expense, Date: d, Amount: core.Money{Amount: 12000},
	}))

	got, err := client.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Date.Equal(d))
	assert.Equal(t, time.UTC, got.Date.Location())
}
