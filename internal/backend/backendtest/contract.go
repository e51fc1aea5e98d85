// Package backendtest holds the behavioural contract every Backend
// implementation must satisfy. Implementations call Run from their tests.
package backendtest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finex/internal/auth"
	"finex/internal/core"
	"finex/internal/ports"
)

// Now is the fixed clock backends under test must use for insights.
var Now = time.Date(2026, time.October, 10, 9, 0, 0, 0, time.UTC)

// Factory builds a fresh, empty backend. seed controls default category
// seeding on registration.
type Factory func(t *testing.T, seed bool) ports.Backend

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDRfinex")

func as(p core.Principal) context.Context {
	return auth.WithPrincipal(context.Background(), p)
}

// register saves a profile for p and returns its context.
func register(t *testing.T, b ports.Backend, p core.Principal) context.Context {
	t.Helper()
	ctx := as(p)
	require.NoError(t, b.SaveCallerUserProfile(ctx, core.UserProfile{Name: string(p)}))
	return ctx
}

func category(id, name string, typ core.CategoryType, color string) core.Category {
	return core.Category{ID: id, Name: name, Type: typ, Color: color}
}

func transaction(id, cat string, typ core.CategoryType, d time.Time, amount int64, note string) core.Transaction {
	return core.Transaction{ID: id, CategoryID: cat, Type: typ, Date: d, Amount: core.Money{Amount: amount}, Note: note}
}

// Run executes the contract against newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Run("RolesAndProfiles", func(t *testing.T) { testRoles(t, newBackend(t, false)) })
	t.Run("Anonymous", func(t *testing.T) { testAnonymous(t, newBackend(t, false)) })
	t.Run("Seeding", func(t *testing.T) { testSeeding(t, newBackend(t, true)) })
	t.Run("Categories", func(t *testing.T) { testCategories(t, newBackend(t, false)) })
	t.Run("Transactions", func(t *testing.T) { testTransactions(t, newBackend(t, false)) })
	t.Run("Receipts", func(t *testing.T) { testReceipts(t, newBackend(t, false)) })
	t.Run("Insights", func(t *testing.T) { testInsights(t, newBackend(t, false)) })
	t.Run("Isolation", func(t *testing.T) { testIsolation(t, newBackend(t, false)) })
}

func testRoles(t *testing.T, b ports.Backend) {
	guest := as("guest")
	role, err := b.GetCallerUserRole(guest)
	require.NoError(t, err)
	assert.Equal(t, core.RoleGuest, role)

	prof, err := b.GetCallerUserProfile(guest)
	require.NoError(t, err)
	assert.Nil(t, prof)

	_, err = b.GetTransactions(guest, 0, 10)
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	assert.ErrorIs(t, b.SaveCallerUserProfile(guest, core.UserProfile{Name: " "}), core.ErrEmptyName)

	admin := register(t, b, "alice")
	role, err = b.GetCallerUserRole(admin)
	require.NoError(t, err)
	assert.Equal(t, core.RoleAdmin, role)
	isAdmin, err := b.IsCallerAdmin(admin)
	require.NoError(t, err)
	assert.True(t, isAdmin)

	user := register(t, b, "bob")
	role, err = b.GetCallerUserRole(user)
	require.NoError(t, err)
	assert.Equal(t, core.RoleUser, role)

	require.NoError(t, b.SaveCallerUserProfile(user, core.UserProfile{Name: "  Bob B  "}))
	prof, err = b.GetCallerUserProfile(user)
	require.NoError(t, err)
	require.NotNil(t, prof)
	assert.Equal(t, "Bob B", prof.Name)

	// bob may read only their own profile, alice anyone
	_, err = b.GetUserProfile(user, "alice")
	assert.ErrorIs(t, err, core.ErrUnauthorized)
	prof, err = b.GetUserProfile(user, "bob")
	require.NoError(t, err)
	require.NotNil(t, prof)
	prof, err = b.GetUserProfile(admin, "bob")
	require.NoError(t, err)
	require.NotNil(t, prof)
	assert.Equal(t, "Bob B", prof.Name)
	prof, err = b.GetUserProfile(admin, "nobody")
	require.NoError(t, err)
	assert.Nil(t, prof)

	assert.ErrorIs(t, b.AssignCallerUserRole(user, "alice", core.RoleGuest), core.ErrUnauthorized)
	assert.ErrorIs(t, b.AssignCallerUserRole(admin, "bob", "root"), core.ErrInvalidRole)

	require.NoError(t, b.AssignCallerUserRole(admin, "bob", core.RoleGuest))
	_, err = b.GetTransactions(user, 0, 10)
	assert.ErrorIs(t, err, core.ErrUnauthorized)

	// a demoted user stays demoted after editing the profile
	require.NoError(t, b.SaveCallerUserProfile(user, core.UserProfile{Name: "Bob"}))
	role, err = b.GetCallerUserRole(user)
	require.NoError(t, err)
	assert.Equal(t, core.RoleGuest, role)

	require.NoError(t, b.AssignCallerUserRole(admin, "bob", core.RoleAdmin))
	isAdmin, err = b.IsCallerAdmin(user)
	require.NoError(t, err)
	assert.True(t, isAdmin)
}

func testAnonymous(t *testing.T, b ports.Backend) {
	ctx := context.Background()
	_, err := b.GetCallerUserRole(ctx)
	assert.ErrorIs(t, err, core.ErrUnauthorized)
	_, err = b.GetCallerUserProfile(ctx)
	assert.ErrorIs(t, err, core.ErrUnauthorized)
	assert.ErrorIs(t, b.SaveCallerUserProfile(ctx, core.UserProfile{Name: "x"}), core.ErrUnauthorized)
	_, err = b.GetCategories(ctx, 0, 10)
	assert.ErrorIs(t, err, core.ErrUnauthorized)
	_, err = b.GetCashflowInsights(ctx)
	assert.ErrorIs(t, err, core.ErrUnauthorized)
}

func testSeeding(t *testing.T, b ports.Backend) {
	ctx := register(t, b, "alice")
	page, err := b.GetCategories(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, len(core.DefaultCategories()), page.Total)

	// a second save must not duplicate the seed
	require.NoError(t, b.SaveCallerUserProfile(ctx, core.UserProfile{Name: "Alice"}))
	page, err = b.GetCategories(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, len(core.DefaultCategories()), page.Total)

	// a role assigned before the first profile save still gets the seed
	require.NoError(t, b.AssignCallerUserRole(ctx, "carol", core.RoleUser))
	carol := as("carol")
	require.NoError(t, b.AddCategory(carol, category("own", "Kos", core.Expense, "#6366f1")))
	page, err = b.GetCategories(carol, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	require.NoError(t, b.SaveCallerUserProfile(carol, core.UserProfile{Name: "Carol"}))
	page, err = b.GetCategories(carol, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, len(core.DefaultCategories())+1, page.Total)
	role, err := b.GetCallerUserRole(carol)
	require.NoError(t, err)
	assert.Equal(t, core.RoleUser, role)

	// later edits never reseed removed defaults
	first := core.DefaultCategories()[0]
	require.NoError(t, b.DeleteCategory(carol, first.ID))
	require.NoError(t, b.SaveCallerUserProfile(carol, core.UserProfile{Name: "Carol C"}))
	got, err := b.GetCategory(carol, first.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func testCategories(t *testing.T, b ports.Backend) {
	ctx := register(t, b, "alice")

	require.NoError(t, b.AddCategory(ctx, category("c1", "Makan", core.Expense, "#F59E0B")))
	require.NoError(t, b.AddCategory(ctx, category("c2", "Gaji", core.Income, "#10b981")))
	require.NoError(t, b.AddCategory(ctx, category("c3", "Belanja", core.Expense, "#10B981")))

	assert.ErrorIs(t, b.AddCategory(ctx, category("c1", "Dup", core.Expense, "#000000")), core.ErrConflict)
	assert.ErrorIs(t, b.AddCategory(ctx, category("c9", "", core.Expense, "#000000")), core.ErrEmptyName)
	assert.ErrorIs(t, b.AddCategory(ctx, category("c9", "X", core.Expense, "blue")), core.ErrInvalidColor)

	page, err := b.GetCategories(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Belanja", page.Items[0].Name)
	assert.Equal(t, "Gaji", page.Items[1].Name)

	page, err = b.GetCategories(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Makan", page.Items[0].Name)

	page, err = b.GetCategories(ctx, math.MaxInt/10, 20)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 3, page.Total)

	byType, err := b.GetCategoriesByType(ctx)
	require.NoError(t, err)
	require.Len(t, byType, 3)
	assert.Equal(t, "Gaji", byType[0].Name)
	assert.Equal(t, "Belanja", byType[1].Name)

	byColor, err := b.GetCategoriesSortedByColor(ctx)
	require.NoError(t, err)
	require.Len(t, byColor, 3)
	assert.Equal(t, []string{"Belanja", "Gaji", "Makan"}, []string{byColor[0].Name, byColor[1].Name, byColor[2].Name})

	upd := category("c1", "Makan & Minum", core.Expense, "#ef4444")
	upd.Icon = "🍜"
	require.NoError(t, b.UpdateCategory(ctx, upd))
	got, err := b.GetCategory(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, upd, *got)

	assert.ErrorIs(t, b.UpdateCategory(ctx, category("nope", "X", core.Expense, "#000000")), core.ErrNotFound)

	require.NoError(t, b.AddTransaction(ctx, transaction("t1", "c3", core.Expense, Now, 100, "")))
	require.NoError(t, b.DeleteCategory(ctx, "c3"))
	assert.ErrorIs(t, b.DeleteCategory(ctx, "c3"), core.ErrNotFound)
	got, err = b.GetCategory(ctx, "c3")
	require.NoError(t, err)
	assert.Nil(t, got)

	// the referencing transaction keeps its dangling category id
	tx, err := b.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, tx)
	assert.Equal(t, "c3", tx.CategoryID)
}

func testTransactions(t *testing.T, b ports.Backend) {
	ctx := register(t, b, "alice")
	require.NoError(t, b.AddCategory(ctx, category("food", "Makan", core.Expense, "#f59e0b")))
	require.NoError(t, b.AddCategory(ctx, category("salary", "Gaji", core.Income, "#10b981")))

	d := core.NewDate(2026, time.October, 1)
	require.NoError(t, b.AddTransaction(ctx, transaction("b", "food", core.Expense, d, 20000, "Bakso")))
	require.NoError(t, b.AddTransaction(ctx, transaction("a", "food", core.Expense, d, 15000, "kopi susu")))
	require.NoError(t, b.AddTransaction(ctx, transaction("c", "salary", core.Income, d.AddDate(0, 0, 2), 5000000, "Gaji Oktober")))

	assert.ErrorIs(t, b.AddTransaction(ctx, transaction("a", "food", core.Expense, d, 1, "")), core.ErrConflict)
	assert.ErrorIs(t, b.AddTransaction(ctx, transaction("x", "food", core.Expense, d, 0, "")), core.ErrInvalidAmount)
	assert.ErrorIs(t, b.AddTransaction(ctx, transaction("x", "", core.Expense, d, 1, "")), core.ErrEmptyCategory)
	assert.ErrorIs(t, b.AddTransaction(ctx, transaction("x", "salary", core.Expense, d, 1, "")), core.ErrCategoryMismatch)
	assert.ErrorIs(t, b.AddTransaction(ctx, transaction("x", "ghost", core.Expense, d, 1, "")), core.ErrNotFound)

	page, err := b.GetTransactions(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 3)
	// date desc, then id
	assert.Equal(t, []string{"c", "a", "b"}, []string{page.Items[0].ID, page.Items[1].ID, page.Items[2].ID})
	assert.True(t, page.Items[0].Date.Equal(d.AddDate(0, 0, 2)))

	page, err = b.GetTransactions(ctx, 3, 1)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 3, page.Total)

	// page*size would wrap int
	page, err = b.GetTransactions(ctx, math.MaxInt/10, 20)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 3, page.Total)

	page, err = b.GetTransactionsByCategory(ctx, "food", math.MaxInt/10, 20)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 2, page.Total)

	page, err = b.SearchTransactions(ctx, "kopi", math.MaxInt, core.MaxPageSize)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 1, page.Total)

	page, err = b.GetTransactionsByCategory(ctx, "food", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = b.GetTransactionsByType(ctx, core.Income, 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "c", page.Items[0].ID)

	page, err = b.SearchTransactions(ctx, "KOPI", 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "a", page.Items[0].ID)

	page, err = b.SearchTransactions(ctx, "  ", 0, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 0, page.Total)

	upd := transaction("a", "food", core.Expense, d, 18000, "kopi susu gula aren")
	require.NoError(t, b.UpdateTransaction(ctx, upd))
	got, err := b.GetTransaction(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(18000), got.Amount.Amount)
	assert.Equal(t, "kopi susu gula aren", got.Note)
	assert.True(t, got.Date.Equal(d))

	assert.ErrorIs(t, b.UpdateTransaction(ctx, transaction("zz", "food", core.Expense, d, 1, "")), core.ErrNotFound)

	require.NoError(t, b.DeleteTransaction(ctx, "a"))
	assert.ErrorIs(t, b.DeleteTransaction(ctx, "a"), core.ErrNotFound)
	got, err = b.GetTransaction(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func testReceipts(t *testing.T, b ports.Backend) {
	ctx := register(t, b, "alice")

	assert.ErrorIs(t, b.UploadReceipt(ctx, "r1", []byte("not an image")), core.ErrInvalidReceipt)
	require.NoError(t, b.UploadReceipt(ctx, "r1", pngBytes))

	data, err := b.GetReceipt(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, pngBytes, data)

	data, err = b.GetReceipt(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, b.DeleteReceipt(ctx, "r1"))
	require.NoError(t, b.DeleteReceipt(ctx, "r1"))
	data, err = b.GetReceipt(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, data)

	// deleting a transaction removes its receipt
	require.NoError(t, b.AddCategory(ctx, category("food", "Makan", core.Expense, "#f59e0b")))
	require.NoError(t, b.UploadReceipt(ctx, "r2", pngBytes))
	tx := transaction("t1", "food", core.Expense, Now, 1000, "")
	tx.ReceiptID = "r2"
	require.NoError(t, b.AddTransaction(ctx, tx))
	require.NoError(t, b.DeleteTransaction(ctx, "t1"))
	data, err = b.GetReceipt(ctx, "r2")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func testInsights(t *testing.T, b ports.Backend) {
	ctx := register(t, b, "alice")
	require.NoError(t, b.AddCategory(ctx, category("food", "Makan", core.Expense, "#f59e0b")))
	require.NoError(t, b.AddCategory(ctx, category("salary", "Gaji", core.Income, "#10b981")))

	txs := []core.Transaction{
		transaction("s", "salary", core.Income, core.NewDate(2026, time.October, 1), 1000000, ""),
		transaction("f", "food", core.Expense, core.NewDate(2026, time.October, 2), 900000, ""),
		transaction("p", "food", core.Expense, core.NewDate(2026, time.September, 2), 100000, ""),
	}
	for _, tx := range txs {
		require.NoError(t, b.AddTransaction(ctx, tx))
	}

	ins, err := b.GetCashflowInsights(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.ComputeInsights(txs, Now), ins)
	assert.Equal(t, "food", ins.LargestExpenseCategoryCurrentMonth)
	assert.Equal(t, core.HealthWarning, ins.HealthIndicator)
}

func testIsolation(t *testing.T, b ports.Backend) {
	alice := register(t, b, "alice")
	bob := register(t, b, "bob")

	require.NoError(t, b.AddCategory(alice, category("food", "Makan", core.Expense, "#f59e0b")))
	require.NoError(t, b.AddTransaction(alice, transaction("t1", "food", core.Expense, Now, 1000, "")))
	require.NoError(t, b.UploadReceipt(alice, "r1", pngBytes))

	// bob may reuse the same ids in a separate ledger
	require.NoError(t, b.AddCategory(bob, category("food", "Jajan", core.Expense, "#ef4444")))

	page, err := b.GetTransactions(bob, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)

	got, err := b.GetTransaction(bob, "t1")
	require.NoError(t, err)
	assert.Nil(t, got)

	data, err := b.GetReceipt(bob, "r1")
	require.NoError(t, err)
	assert.Nil(t, data)

	assert.ErrorIs(t, b.DeleteTransaction(bob, "t1"), core.ErrNotFound)

	c, err := b.GetCategory(alice, "food")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "Makan", c.Name)
}
