package cache

import (
	"context"
	"strings"
	"time"

	"finex/internal/amqp"
	"finex/internal/core"
	"finex/internal/log"
	"finex/internal/metrics"
)

// Query keys. A mutation drops every entry whose key starts with one of the
// keys it affects.
const (
	KeyTransactions   = "transactions"
	KeyInsights       = "cashflowInsights"
	KeyCalendarTotals = "calendarTotals"
	KeyCategories     = "categories"
	KeyProfile        = "currentUserProfile"
)

// separates the principal from the query key; principals never contain NUL
const sep = "\x00"

var (
	transactionKeys = []string{KeyTransactions, KeyInsights, KeyCalendarTotals}
	categoryKeys    = []string{KeyCategories}
	// registration may seed default categories
	profileKeys = []string{KeyProfile, KeyCategories}
)

// QueryCache stores query results per principal.
type QueryCache struct {
	lru     *LRUCache[any]
	logger  *log.Logger
	metrics *metrics.Metrics
}

func NewQueryCache(size int, ttl time.Duration, logger *log.Logger) *QueryCache {
	if logger == nil {
		logger = log.Nop()
	}
	return &QueryCache{
		lru:     NewLRUCache[any](size, ttl),
		logger:  logger.WithComponent(log.ComponentCache),
		metrics: metrics.Get(),
	}
}

// Key joins a query name and its arguments, e.g. Key("transactions", "0", "20").
func Key(query string, args ...string) string {
	if len(args) == 0 {
		return query
	}
	return query + "/" + strings.Join(args, "/")
}

func entryKey(principal core.Principal, key string) string {
	return string(principal) + sep + key
}

// queryLabel trims arguments so metric cardinality stays bounded.
func queryLabel(key string) string {
	if i := strings.IndexByte(key, '/'); i >= 0 {
		return key[:i]
	}
	return key
}

func (q *QueryCache) get(principal core.Principal, key string) (any, bool) {
	v, ok := q.lru.Get(entryKey(principal, key))
	if ok {
		q.metrics.CacheHitsTotal.WithLabelValues(queryLabel(key)).Inc()
	} else {
		q.metrics.CacheMissesTotal.WithLabelValues(queryLabel(key)).Inc()
	}
	return v, ok
}

func (q *QueryCache) set(principal core.Principal, key string, v any) {
	q.lru.Set(entryKey(principal, key), v)
	q.metrics.CacheEntries.Set(float64(q.lru.Size()))
}

// Fetch returns the cached value for key or calls fn and caches its result.
// Errors are never cached.
func Fetch[T any](q *QueryCache, principal core.Principal, key string, fn func() (T, error)) (T, error) {
	if q == nil {
		return fn()
	}
	if v, ok := q.get(principal, key); ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
	}
	v, err := fn()
	if err != nil {
		return v, err
	}
	q.set(principal, key, v)
	return v, nil
}

// FetchPresent is Fetch for lookups that return nil when the record is
// absent. Absence is not cached, so a record created through another replica
// is seen on the next call.
func FetchPresent[T any](q *QueryCache, principal core.Principal, key string, fn func() (*T, error)) (*T, error) {
	if q == nil {
		return fn()
	}
	if v, ok := q.get(principal, key); ok {
		if t, ok := v.(*T); ok && t != nil {
			return t, nil
		}
	}
	v, err := fn()
	if err != nil || v == nil {
		return v, err
	}
	q.set(principal, key, v)
	return v, nil
}

// Invalidate drops every entry of principal whose key starts with one of
// prefixes.
func (q *QueryCache) Invalidate(principal core.Principal, prefixes ...string) {
	if q == nil {
		return
	}
	n := 0
	for _, p := range prefixes {
		n += q.lru.DeletePrefix(entryKey(principal, p))
	}
	q.metrics.CacheEntries.Set(float64(q.lru.Size()))
	if n > 0 {
		q.logger.Debug("Invalidated cached queries",
			log.FieldPrincipal, string(principal),
			"prefixes", prefixes,
			"count", n)
	}
}

// TransactionsChanged drops transaction listings and everything derived
// from them.
func (q *QueryCache) TransactionsChanged(principal core.Principal) {
	q.Invalidate(principal, transactionKeys...)
}

// CategoriesChanged drops category listings.
func (q *QueryCache) CategoriesChanged(principal core.Principal) {
	q.Invalidate(principal, categoryKeys...)
}

// ProfileChanged drops the caller profile.
func (q *QueryCache) ProfileChanged(principal core.Principal) {
	q.Invalidate(principal, profileKeys...)
}

// HandleLedgerEvent applies a mutation announced by another replica.
func (q *QueryCache) HandleLedgerEvent(_ context.Context, ev *amqp.LedgerEvent) error {
	p := core.Principal(ev.Principal)
	if ev.IsTransaction() {
		q.TransactionsChanged(p)
	} else {
		q.CategoriesChanged(p)
	}
	return nil
}

// Cleaner exposes the underlying LRU for Manager registration.
func (q *QueryCache) Cleaner() Cleaner { return q.lru }

// Size reports the number of cached entries.
func (q *QueryCache) Size() int { return q.lru.Size() }
