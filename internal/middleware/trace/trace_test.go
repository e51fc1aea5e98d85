package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finex/internal/log"
)

func TestMiddlewareAssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Level: slog.LevelDebug, JSON: true, Output: &buf})

	var seenID string
	var seenLogger *log.Logger
	mux := http.NewServeMux()
	mux.HandleFunc("GET /transaksi", func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
		seenLogger = log.FromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})

	h := NewMiddleware(func(*http.Request) string { return "1.2.3.4" }, logger).Middleware(mux)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transaksi", nil))

	require.NotEmpty(t, seenID)
	assert.True(t, strings.HasPrefix(seenID, "req_"))
	assert.Equal(t, seenID, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	require.NotNil(t, seenLogger)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var end map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &end))
	assert.Equal(t, "HTTP request completed", end["msg"])
	assert.Equal(t, float64(http.StatusTeapot), end[log.FieldStatusCode])
	assert.Equal(t, "1.2.3.4", end[log.FieldClientIP])
	assert.Equal(t, "WARN", end["level"])
}

func TestMiddlewareReusesForwardedRequestID(t *testing.T) {
	tests := []struct {
		name      string
		forwarded string
		reused    bool
	}{
		{"from ui server", "req_0123abcd", true},
		{"empty", "", false},
		{"header injection", "req 1\nfake=1", false},
		{"too long", strings.Repeat("a", 65), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seenID string
			h := NewMiddleware(nil, nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seenID = GetRequestID(r.Context())
			}))
			req := httptest.NewRequest(http.MethodPost, "/rpc/getCategory", nil)
			if tt.forwarded != "" {
				req.Header.Set(RequestIDHeader, tt.forwarded)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if tt.reused {
				assert.Equal(t, tt.forwarded, seenID)
			} else {
				assert.True(t, strings.HasPrefix(seenID, "req_"))
				assert.NotEqual(t, tt.forwarded, seenID)
			}
		})
	}
}

func TestGetRequestIDMissing(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestResponseWriterKeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusCreated, rw.statusCode)
	assert.Equal(t, rec, rw.Unwrap())
}
