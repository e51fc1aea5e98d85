package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"finex/internal/auth"
	"finex/internal/core"
	"finex/internal/ports"

	_ "modernc.org/sqlite"
)

var (
	_ ports.Backend = (*SQLiteRepository)(nil)
	_ ports.Pinger  = (*SQLiteRepository)(nil)
)

type SQLiteRepository struct {
	db   *sql.DB
	seed bool
	now  func() time.Time
}

// Option configures a SQLiteRepository.
type Option func(*SQLiteRepository)

// WithSeedCategories gives each newly registered user the default categories.
func WithSeedCategories(seed bool) Option {
	return func(r *SQLiteRepository) { r.seed = seed }
}

// WithClock overrides the clock used for insights.
func WithClock(now func() time.Time) Option {
	return func(r *SQLiteRepository) { r.now = now }
}

func dsn(dbPath string) string {
	return dbPath + "?_pragma=busy_timeout(5000)"
}

func NewSQLiteRepository(dbPath string, opts ...Option) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{db: db, now: time.Now}
	for _, o := range opts {
		o(repo)
	}
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func roleOf(ctx context.Context, q querier, p core.Principal) (core.UserRole, bool, error) {
	var role string
	err := q.QueryRowContext(ctx, `SELECT role FROM users WHERE principal = ?`, string(p)).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RoleGuest, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get role: %w", err)
	}
	return core.UserRole(role), true, nil
}

func (r *SQLiteRepository) caller(ctx context.Context) (core.Principal, core.UserRole, error) {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return "", "", err
	}
	role, _, err := roleOf(ctx, r.db, p)
	if err != nil {
		return "", "", err
	}
	return p, role, nil
}

// member resolves the caller and refuses guests.
func (r *SQLiteRepository) member(ctx context.Context) (core.Principal, error) {
	p, role, err := r.caller(ctx)
	if err != nil {
		return "", err
	}
	if !role.CanUseLedger() {
		return "", core.ErrUnauthorized
	}
	return p, nil
}

func (r *SQLiteRepository) GetCallerUserProfile(ctx context.Context) (*core.UserProfile, error) {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	return r.profile(ctx, p)
}

func (r *SQLiteRepository) profile(ctx context.Context, p core.Principal) (*core.UserProfile, error) {
	var name sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT profile_name FROM users WHERE principal = ?`, string(p)).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !name.Valid) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &core.UserProfile{Name: name.String}, nil
}

func (r *SQLiteRepository) SaveCallerUserProfile(ctx context.Context, prof core.UserProfile) error {
	if err := prof.Validate(); err != nil {
		return err
	}
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return err
	}
	name := strings.TrimSpace(prof.Name)

	return r.withTx(ctx, func(tx *sql.Tx) error {
		role, known, err := roleOf(ctx, tx, p)
		if err != nil {
			return err
		}
		var hadProfile bool
		if known {
			// an admin may have assigned a role before the first profile save
			if err := tx.QueryRowContext(ctx,
				`SELECT profile_name IS NOT NULL FROM users WHERE principal = ?`, string(p)).Scan(&hadProfile); err != nil {
				return fmt.Errorf("check profile: %w", err)
			}
			// Explicit role assignments, demotions included, survive profile edits.
			_, err := tx.ExecContext(ctx,
				`UPDATE users SET profile_name = ?, updated_at = CURRENT_TIMESTAMP WHERE principal = ?`,
				name, string(p))
			if err != nil {
				return fmt.Errorf("update profile: %w", err)
			}
			if hadProfile {
				return nil
			}
		} else {
			var adminExists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM users WHERE role = 'admin')`).Scan(&adminExists); err != nil {
				return fmt.Errorf("check admin: %w", err)
			}
			role = core.RoleForNewUser(adminExists)
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO users (principal, profile_name, role) VALUES (?, ?, ?)`,
				string(p), name, string(role)); err != nil {
				return fmt.Errorf("insert user: %w", err)
			}
		}

		if r.seed {
			if err := seedCategories(ctx, tx, p); err != nil {
				return err
			}
		}
		slog.InfoContext(ctx, "Registered user", "principal", p, "role", role)
		return nil
	})
}

// seedCategories adds the default categories the user does not have yet.
func seedCategories(ctx context.Context, tx *sql.Tx, p core.Principal) error {
	for _, c := range core.DefaultCategories() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO categories (principal, id, name, type, color, icon) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(principal, id) DO NOTHING`,
			string(p), c.ID, c.Name, string(c.Type), c.Color, c.Icon); err != nil {
			return fmt.Errorf("seed category %s: %w", c.ID, err)
		}
	}
	return nil
}

func (r *SQLiteRepository) GetUserProfile(ctx context.Context, user core.Principal) (*core.UserProfile, error) {
	p, role, err := r.caller(ctx)
	if err != nil {
		return nil, err
	}
	if p != user && role != core.RoleAdmin {
		return nil, core.ErrUnauthorized
	}
	return r.profile(ctx, user)
}

func (r *SQLiteRepository) GetCallerUserRole(ctx context.Context) (core.UserRole, error) {
	_, role, err := r.caller(ctx)
	return role, err
}

func (r *SQLiteRepository) AssignCallerUserRole(ctx context.Context, user core.Principal, role core.UserRole) error {
	if !role.Valid() {
		return core.ErrInvalidRole
	}
	if user == "" {
		return core.ErrEmptyID
	}
	_, callerRole, err := r.caller(ctx)
	if err != nil {
		return err
	}
	if callerRole != core.RoleAdmin {
		return core.ErrUnauthorized
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (principal, role) VALUES (?, ?)
		ON CONFLICT(principal) DO UPDATE SET role = excluded.role, updated_at = CURRENT_TIMESTAMP`,
		string(user), string(role))
	if err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	slog.InfoContext(ctx, "Assigned role", "principal", user, "role", role)
	return nil
}

func (r *SQLiteRepository) IsCallerAdmin(ctx context.Context) (bool, error) {
	role, err := r.GetCallerUserRole(ctx)
	if err != nil {
		return false, err
	}
	return role == core.RoleAdmin, nil
}

func (r *SQLiteRepository) GetCashflowInsights(ctx context.Context) (core.CashflowInsights, error) {
	p, err := r.member(ctx)
	if err != nil {
		return core.CashflowInsights{}, err
	}
	txs, err := r.listTransactions(ctx, p, "", nil, 0, 0)
	if err != nil {
		return core.CashflowInsights{}, err
	}
	return core.ComputeInsights(txs, r.now()), nil
}
