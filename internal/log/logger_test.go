package log

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		out = append(out, rec)
	}
	return out
}

func TestWithComponentReplacesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{JSON: true, Output: &buf, Component: ComponentApp})

	logger.With(FieldRequestID, "r-1").WithComponent(ComponentRPC).Info("hello")

	recs := decodeLines(t, &buf)
	require.Len(t, recs, 1)
	assert.Equal(t, ComponentRPC, recs[0][FieldComponent])
	assert.Equal(t, "r-1", recs[0][FieldRequestID])
	assert.Equal(t, 1, strings.Count(buf.String(), `"component"`))
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
	assert.Equal(t, "unknown", l.Component())
}

func TestWithLoggerRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{JSON: true, Output: &buf}).WithComponent(ComponentHTTP).With(FieldRequestID, "abc")

	ctx := WithLogger(context.Background(), logger)
	seen := FromContext(ctx)
	seen.InfoContext(ctx, "inside")

	assert.Same(t, logger, seen)
	recs := decodeLines(t, &buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "abc", recs[0][FieldRequestID])
	assert.Equal(t, ComponentHTTP, recs[0][FieldComponent])
}

func TestHTTPEndLevelFollowsStatus(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{JSON: true, Output: &buf}))
	r := httptest.NewRequest(http.MethodPost, "/transactions", nil)

	sl.LogHTTPEnd(context.Background(), r, http.StatusOK, 3, "10.0.0.1")
	sl.LogHTTPEnd(context.Background(), r, http.StatusUnprocessableEntity, 3, "10.0.0.1")
	sl.LogHTTPEnd(context.Background(), r, http.StatusBadGateway, 3, "10.0.0.1")

	recs := decodeLines(t, &buf)
	require.Len(t, recs, 3)
	assert.Equal(t, "INFO", recs[0]["level"])
	assert.Equal(t, "WARN", recs[1]["level"])
	assert.Equal(t, "ERROR", recs[2]["level"])
}

func TestLedgerMutationNeverLogsNotes(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{JSON: true, Output: &buf}))

	sl.LogLedgerMutation(context.Background(), OpCreate, "alice",
		NewFields().WithTransaction("t1", "cat-makan", "expense", 42000))

	recs := decodeLines(t, &buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "t1", recs[0][FieldTransactionID])
	assert.Equal(t, "alice", recs[0][FieldPrincipal])
	assert.Equal(t, ComponentLedger, recs[0][FieldComponent])
	assert.NotContains(t, recs[0], "note")
}
