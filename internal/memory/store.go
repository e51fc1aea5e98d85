// Package memory is an in-process Backend. Data lives for the lifetime of
// the process and is partitioned by principal.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"finex/internal/auth"
	"finex/internal/core"
	"finex/internal/ports"
)

var (
	_ ports.Backend = (*Store)(nil)
	_ ports.Pinger  = (*Store)(nil)
)

type ledger struct {
	categories   map[string]core.Category
	transactions map[string]core.Transaction
	receipts     map[string][]byte
}

func newLedger() *ledger {
	return &ledger{
		categories:   map[string]core.Category{},
		transactions: map[string]core.Transaction{},
		receipts:     map[string][]byte{},
	}
}

type Store struct {
	mu          sync.RWMutex
	ledgers     map[core.Principal]*ledger
	profiles    map[core.Principal]core.UserProfile
	roles       map[core.Principal]core.UserRole
	adminExists bool
	seed        bool
	now         func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithSeedCategories gives each newly registered user the default categories.
func WithSeedCategories(seed bool) Option {
	return func(s *Store) { s.seed = seed }
}

// WithClock overrides the clock used for insights.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		ledgers:  map[core.Principal]*ledger{},
		profiles: map[core.Principal]core.UserProfile{},
		roles:    map[core.Principal]core.UserRole{},
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Ping(context.Context) error { return nil }

// caller resolves the principal and its role. Call with s.mu held.
func (s *Store) caller(ctx context.Context) (core.Principal, core.UserRole, error) {
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return "", "", err
	}
	role, ok := s.roles[p]
	if !ok {
		role = core.RoleGuest
	}
	return p, role, nil
}

// member returns the caller's ledger, refusing guests. Call with s.mu held.
func (s *Store) member(ctx context.Context) (*ledger, error) {
	p, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if !role.CanUseLedger() {
		return nil, core.ErrUnauthorized
	}
	l := s.ledgers[p]
	if l == nil {
		l = newLedger()
		s.ledgers[p] = l
	}
	return l, nil
}

// --- categories ---

func (s *Store) AddCategory(ctx context.Context, c core.Category) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.member(ctx)
	if err != nil {
		return err
	}
	if _, ok := l.categories[c.ID]; ok {
		return fmt.Errorf("category %s: %w", c.ID, core.ErrConflict)
	}
	c.Name = strings.TrimSpace(c.Name)
	l.categories[c.ID] = c
	return nil
}

func (s *Store) UpdateCategory(ctx context.Context, c core.Category) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.member(ctx)
	if err != nil {
		return err
	}
	if _, ok := l.categories[c.ID]; !ok {
		return fmt.Errorf("category %s: %w", c.ID, core.ErrNotFound)
	}
	c.Name = strings.TrimSpace(c.Name)
	l.categories[c.ID] = c
	return nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.member(ctx)
	if err != nil {
		return err
	}
	if _, ok := l.categories[id]; !ok {
		return fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	delete(l.categories, id)
	return nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (*core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.member(ctx)
	if err != nil {
		return nil, err
	}
	c, ok := l.categories[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *Store) allCategories(ctx context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.member(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Category, 0, len(l.categories))
	for _, c := range l.categories {
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) GetCategories(ctx context.Context, page, size int) (core.Page[core.Category], error) {
	cs, err := s.allCategories(ctx)
	if err != nil {
		return core.Page[core.Category]{}, err
	}
	core.SortCategoriesByName(cs)
	return core.Paginate(cs, page, size), nil
}

func (s *Store) GetCategoriesByType(ctx context.Context) ([]core.Category, error) {
	cs, err := s.allCategories(ctx)
	if err != nil {
		return nil, err
	}
	core.SortCategoriesByType(cs)
	return cs, nil
}

func (s *Store) GetCategoriesSortedByColor(ctx context.Context) ([]core.Category, error) {
	cs, err := s.allCategories(ctx)
	if err != nil {
		return nil, err
	}
	core.SortCategoriesByColor(cs)
	return cs, nil
}

// --- transactions ---

func (s *Store) putTransaction(ctx context.Context, t core.Transaction, create bool) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.member(ctx)
	if err != nil {
		return err
	}
	_, exists := l.transactions[t.ID]
	switch {
	case create && exists:
		return fmt.Errorf("transaction %s: %w", t.ID, core.ErrConflict)
	case !create && !exists:
		return fmt.Errorf("transaction %s: %w", t.ID, core.ErrNotFound)
	}
	var cat *core.Category
	if c, ok := l.categories[t.CategoryID]; ok {
		cat = &c
	}
	if err := core.CheckTransactionCategory(t, cat); err != nil {
		return fmt.Errorf("category %s: %w", t.CategoryID, err)
	}
	t.Date = t.Date.UTC()
	l.transactions[t.ID] = t
	return nil
}

func (s *Store) AddTransaction(ctx context.Context, t core.Transaction) error {
	return s.putTransaction(ctx, t, true)
}

func (s *Store) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	return s.putTransaction(ctx, t, false)
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.member(ctx)
	if err != nil {
		return err
	}
	t, ok := l.transactions[id]
	if !ok {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	delete(l.transactions, id)
	if t.ReceiptID != "" {
		delete(l.receipts, t.ReceiptID)
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.member(ctx)
	if err != nil {
		return nil, err
	}
	t, ok := l.transactions[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// transactions returns the caller's transactions matching keep, in listing
// order.
func (s *Store) transactions(ctx context.Context, keep func(core.Transaction) bool) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.member(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Transaction, 0, len(l.transactions))
	for _, t := range l.transactions {
		if keep == nil || keep(t) {
			out = append(out, t)
		}
	}
	core.SortTransactions(out)
	return out, nil
}

func (s *Store) page(ctx context.Context, page, size int, keep func(core.Transaction) bool) (core.Page[core.Transaction], error) {
	txs, err := s.transactions(ctx, keep)
	if err != nil {
		return core.Page[core.Transaction]{}, err
	}
	return core.Paginate(txs, page, size), nil
}

func (s *Store) GetTransactions(ctx context.Context, page, size int) (core.Page[core.Transaction], error) {
	return s.page(ctx, page, size, nil)
}

func (s *Store) GetTransactionsByCategory(ctx context.Context, categoryID string, page, size int) (core.Page[core.Transaction], error) {
	return s.page(ctx, page, size, func(t core.Transaction) bool { return t.CategoryID == categoryID })
}

func (s *Store) GetTransactionsByType(ctx context.Context, typ core.CategoryType, page, size int) (core.Page[core.Transaction], error) {
	if !typ.Valid() {
		return core.Page[core.Transaction]{}, core.ErrInvalidCategoryType
	}
	return s.page(ctx, page, size, func(t core.Transaction) bool { return t.Type == typ })
}

func (s *Store) SearchTransactions(ctx context.Context, term string, page, size int) (core.Page[core.Transaction], error) {
	return s.page(ctx, page, size, func(t core.Transaction) bool { return core.MatchesSearch(t, term) })
}

// --- receipts ---

func (s *Store) UploadReceipt(ctx context.Context, id string, data []byte) error {
	if strings.TrimSpace(id) == "" {
		return core.ErrEmptyID
	}
	if _, err := core.ValidateReceipt(data); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.member(ctx)
	if err != nil {
		return err
	}
	l.receipts[id] = append([]byte(nil), data...)
	return nil
}

func (s *Store) GetReceipt(ctx context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.member(ctx)
	if err != nil {
		return nil, err
	}
	data, ok := l.receipts[id]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

func (s *Store) DeleteReceipt(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, err := s.member(ctx)
	if err != nil {
		return err
	}
	delete(l.receipts, id)
	return nil
}

// --- insights ---

func (s *Store) GetCashflowInsights(ctx context.Context) (core.CashflowInsights, error) {
	txs, err := s.transactions(ctx, nil)
	if err != nil {
		return core.CashflowInsights{}, err
	}
	return core.ComputeInsights(txs, s.now()), nil
}

// --- access control ---

func (s *Store) GetCallerUserProfile(ctx context.Context) (*core.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return nil, err
	}
	prof, ok := s.profiles[p]
	if !ok {
		return nil, nil
	}
	return &prof, nil
}

func (s *Store) SaveCallerUserProfile(ctx context.Context, prof core.UserProfile) error {
	if err := prof.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := auth.RequirePrincipal(ctx)
	if err != nil {
		return err
	}
	prof.Name = strings.TrimSpace(prof.Name)
	_, registered := s.profiles[p]
	s.profiles[p] = prof
	if registered {
		return nil
	}

	// Explicit role assignments, demotions included, survive profile edits.
	if _, known := s.roles[p]; !known {
		role := core.RoleForNewUser(s.adminExists)
		s.roles[p] = role
		if role == core.RoleAdmin {
			s.adminExists = true
		}
	}
	l, ok := s.ledgers[p]
	if !ok {
		l = newLedger()
		s.ledgers[p] = l
	}
	if s.seed {
		for _, c := range core.DefaultCategories() {
			if _, exists := l.categories[c.ID]; !exists {
				l.categories[c.ID] = c
			}
		}
	}
	return nil
}

func (s *Store) GetUserProfile(ctx context.Context, user core.Principal) (*core.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, role, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}
	if p != user && role != core.RoleAdmin {
		return nil, core.ErrUnauthorized
	}
	prof, ok := s.profiles[user]
	if !ok {
		return nil, nil
	}
	return &prof, nil
}

func (s *Store) GetCallerUserRole(ctx context.Context) (core.UserRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, role, err := s.caller(ctx)
	return role, err
}

func (s *Store) AssignCallerUserRole(ctx context.Context, user core.Principal, role core.UserRole) error {
	if !role.Valid() {
		return core.ErrInvalidRole
	}
	if user == "" {
		return core.ErrEmptyID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, callerRole, err := s.caller(ctx)
	if err != nil {
		return err
	}
	if callerRole != core.RoleAdmin {
		return core.ErrUnauthorized
	}
	s.roles[user] = role
	if role == core.RoleAdmin {
		s.adminExists = true
	}
	return nil
}

func (s *Store) IsCallerAdmin(ctx context.Context) (bool, error) {
	role, err := s.GetCallerUserRole(ctx)
	if err != nil {
		return false, err
	}
	return role == core.RoleAdmin, nil
}
