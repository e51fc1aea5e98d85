package cache

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"finex/internal/auth"
	"finex/internal/core"
	"finex/internal/ports"
)

// CachedBackend serves repeated reads from a QueryCache and invalidates the
// caller's entries after every successful mutation.
type CachedBackend struct {
	ports.Backend
	cache *QueryCache
}

func NewCachedBackend(b ports.Backend, q *QueryCache) *CachedBackend {
	return &CachedBackend{Backend: b, cache: q}
}

// cached runs fn through the cache for the caller. Calls without a principal
// go straight to the backend, which rejects them.
func cached[T any](ctx context.Context, q *QueryCache, key string, fn func() (T, error)) (T, error) {
	p, ok := auth.PrincipalFrom(ctx)
	if !ok {
		return fn()
	}
	return Fetch(q, p, key, fn)
}

func pageArgs(page, size int) []string {
	return []string{strconv.Itoa(page), strconv.Itoa(size)}
}

// after invalidates when err is nil and passes err through.
func (c *CachedBackend) after(ctx context.Context, err error, invalidate func(core.Principal)) error {
	if err != nil {
		return err
	}
	if p, ok := auth.PrincipalFrom(ctx); ok {
		invalidate(p)
	}
	return nil
}

func (c *CachedBackend) GetCategories(ctx context.Context, page, size int) (core.Page[core.Category], error) {
	return cached(ctx, c.cache, Key(KeyCategories, pageArgs(page, size)...), func() (core.Page[core.Category], error) {
		return c.Backend.GetCategories(ctx, page, size)
	})
}

func (c *CachedBackend) GetCategoriesByType(ctx context.Context) ([]core.Category, error) {
	return cached(ctx, c.cache, Key(KeyCategories, "byType"), func() ([]core.Category, error) {
		return c.Backend.GetCategoriesByType(ctx)
	})
}

func (c *CachedBackend) GetCategoriesSortedByColor(ctx context.Context) ([]core.Category, error) {
	return cached(ctx, c.cache, Key(KeyCategories, "byColor"), func() ([]core.Category, error) {
		return c.Backend.GetCategoriesSortedByColor(ctx)
	})
}

func (c *CachedBackend) GetTransactions(ctx context.Context, page, size int) (core.Page[core.Transaction], error) {
	return cached(ctx, c.cache, Key(KeyTransactions, pageArgs(page, size)...), func() (core.Page[core.Transaction], error) {
		return c.Backend.GetTransactions(ctx, page, size)
	})
}

func (c *CachedBackend) GetTransactionsByCategory(ctx context.Context, categoryID string, page, size int) (core.Page[core.Transaction], error) {
	key := Key(KeyTransactions, append([]string{"category", categoryID}, pageArgs(page, size)...)...)
	return cached(ctx, c.cache, key, func() (core.Page[core.Transaction], error) {
		return c.Backend.GetTransactionsByCategory(ctx, categoryID, page, size)
	})
}

func (c *CachedBackend) GetTransactionsByType(ctx context.Context, typ core.CategoryType, page, size int) (core.Page[core.Transaction], error) {
	key := Key(KeyTransactions, append([]string{"type", string(typ)}, pageArgs(page, size)...)...)
	return cached(ctx, c.cache, key, func() (core.Page[core.Transaction], error) {
		return c.Backend.GetTransactionsByType(ctx, typ, page, size)
	})
}

func (c *CachedBackend) SearchTransactions(ctx context.Context, term string, page, size int) (core.Page[core.Transaction], error) {
	key := Key(KeyTransactions, append([]string{"search", fmt.Sprintf("%q", term)}, pageArgs(page, size)...)...)
	return cached(ctx, c.cache, key, func() (core.Page[core.Transaction], error) {
		return c.Backend.SearchTransactions(ctx, term, page, size)
	})
}

func (c *CachedBackend) GetCashflowInsights(ctx context.Context) (core.CashflowInsights, error) {
	return cached(ctx, c.cache, KeyInsights, func() (core.CashflowInsights, error) {
		return c.Backend.GetCashflowInsights(ctx)
	})
}

// GetCallerUserProfile caches only existing profiles: registration may
// happen on another replica, and no event announces it.
func (c *CachedBackend) GetCallerUserProfile(ctx context.Context) (*core.UserProfile, error) {
	p, ok := auth.PrincipalFrom(ctx)
	if !ok {
		return c.Backend.GetCallerUserProfile(ctx)
	}
	return FetchPresent(c.cache, p, KeyProfile, func() (*core.UserProfile, error) {
		return c.Backend.GetCallerUserProfile(ctx)
	})
}

func (c *CachedBackend) AddCategory(ctx context.Context, cat core.Category) error {
	return c.after(ctx, c.Backend.AddCategory(ctx, cat), c.cache.CategoriesChanged)
}

func (c *CachedBackend) UpdateCategory(ctx context.Context, cat core.Category) error {
	return c.after(ctx, c.Backend.UpdateCategory(ctx, cat), c.cache.CategoriesChanged)
}

func (c *CachedBackend) DeleteCategory(ctx context.Context, id string) error {
	return c.after(ctx, c.Backend.DeleteCategory(ctx, id), c.cache.CategoriesChanged)
}

func (c *CachedBackend) AddTransaction(ctx context.Context, t core.Transaction) error {
	return c.after(ctx, c.Backend.AddTransaction(ctx, t), c.cache.TransactionsChanged)
}

func (c *CachedBackend) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	return c.after(ctx, c.Backend.UpdateTransaction(ctx, t), c.cache.TransactionsChanged)
}

func (c *CachedBackend) DeleteTransaction(ctx context.Context, id string) error {
	return c.after(ctx, c.Backend.DeleteTransaction(ctx, id), c.cache.TransactionsChanged)
}

func (c *CachedBackend) SaveCallerUserProfile(ctx context.Context, p core.UserProfile) error {
	return c.after(ctx, c.Backend.SaveCallerUserProfile(ctx, p), c.cache.ProfileChanged)
}

// AssignCallerUserRole drops everything cached for user, whose access to
// the ledger may have changed.
func (c *CachedBackend) AssignCallerUserRole(ctx context.Context, user core.Principal, role core.UserRole) error {
	if err := c.Backend.AssignCallerUserRole(ctx, user, role); err != nil {
		return err
	}
	c.cache.Invalidate(user, "")
	return nil
}

// Close closes the wrapped backend when it holds resources.
func (c *CachedBackend) Close() error {
	if cl, ok := c.Backend.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

// Ping forwards to the wrapped backend when it supports readiness checks.
func (c *CachedBackend) Ping(ctx context.Context) error {
	if p, ok := c.Backend.(ports.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
