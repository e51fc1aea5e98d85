// Package ports declares the finance backend contract. Every method acts on
// behalf of the principal carried by ctx (see auth.WithPrincipal).
package ports

import (
	"context"

	"finex/internal/core"
)

// CategoryStore manages a user's categories.
type CategoryStore interface {
	AddCategory(ctx context.Context, c core.Category) error
	UpdateCategory(ctx context.Context, c core.Category) error
	// DeleteCategory leaves referencing transactions untouched.
	DeleteCategory(ctx context.Context, id string) error
	// GetCategory returns nil, nil when the category does not exist.
	GetCategory(ctx context.Context, id string) (*core.Category, error)
	GetCategories(ctx context.Context, page, size int) (core.Page[core.Category], error)
	GetCategoriesByType(ctx context.Context) ([]core.Category, error)
	GetCategoriesSortedByColor(ctx context.Context) ([]core.Category, error)
}

// TransactionStore manages a user's ledger. Listings are ordered by date
// descending, then id.
type TransactionStore interface {
	AddTransaction(ctx context.Context, t core.Transaction) error
	UpdateTransaction(ctx context.Context, t core.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
	GetTransaction(ctx context.Context, id string) (*core.Transaction, error)
	GetTransactions(ctx context.Context, page, size int) (core.Page[core.Transaction], error)
	GetTransactionsByCategory(ctx context.Context, categoryID string, page, size int) (core.Page[core.Transaction], error)
	GetTransactionsByType(ctx context.Context, typ core.CategoryType, page, size int) (core.Page[core.Transaction], error)
	SearchTransactions(ctx context.Context, term string, page, size int) (core.Page[core.Transaction], error)
}

// ReceiptStore keeps raw receipt images.
type ReceiptStore interface {
	UploadReceipt(ctx context.Context, id string, data []byte) error
	// GetReceipt returns nil, nil when absent.
	GetReceipt(ctx context.Context, id string) ([]byte, error)
	DeleteReceipt(ctx context.Context, id string) error
}

// InsightsReader serves analytics computed from the caller's ledger.
type InsightsReader interface {
	GetCashflowInsights(ctx context.Context) (core.CashflowInsights, error)
}

// AccessControl covers profiles and roles.
type AccessControl interface {
	GetCallerUserProfile(ctx context.Context) (*core.UserProfile, error)
	SaveCallerUserProfile(ctx context.Context, p core.UserProfile) error
	GetUserProfile(ctx context.Context, user core.Principal) (*core.UserProfile, error)
	GetCallerUserRole(ctx context.Context) (core.UserRole, error)
	AssignCallerUserRole(ctx context.Context, user core.Principal, role core.UserRole) error
	IsCallerAdmin(ctx context.Context) (bool, error)
}

// Backend is the full typed client contract.
type Backend interface {
	CategoryStore
	TransactionStore
	ReceiptStore
	InsightsReader
	AccessControl
}

// Pinger is implemented by backends that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}
