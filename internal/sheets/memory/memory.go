// Package memory is an in-process LedgerExporter used in development and
// tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"finex/internal/sheets"
)

type rowKey struct {
	principal string
	id        string
}

type Store struct {
	mu   sync.Mutex
	rows map[rowKey]sheets.Row
	// Writes counts Upsert calls, including overwrites.
	writes int
}

var _ sheets.LedgerExporter = (*Store)(nil)

func New() *Store {
	return &Store{rows: make(map[rowKey]sheets.Row)}
}

// Upsert stores the row, replacing any previous version.
func (s *Store) Upsert(_ context.Context, r sheets.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[rowKey{r.Principal, r.TransactionID}] = r
	s.writes++
	return nil
}

// Delete removes the row; missing rows are ignored.
func (s *Store) Delete(_ context.Context, principal, transactionID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, rowKey{principal, transactionID})
	return nil
}

// Rows returns the stored rows ordered by date, then id.
func (s *Store) Rows() []sheets.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sheets.Row, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].TransactionID < out[j].TransactionID
	})
	return out
}

// Writes reports how many upserts were applied.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
