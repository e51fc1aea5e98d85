package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finex/internal/amqp"
	"finex/internal/auth"
	"finex/internal/backend/backendtest"
	"finex/internal/core"
	"finex/internal/memory"
	"finex/internal/ports"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []*amqp.LedgerEvent
	err    error
	closed bool
}

func (f *fakePublisher) PublishLedgerEvent(_ context.Context, ev *amqp.LedgerEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func (f *fakePublisher) kinds() []amqp.EventKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]amqp.EventKind, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Kind
	}
	return out
}

func setup(t *testing.T) (*LedgerService, *fakePublisher, context.Context) {
	t.Helper()
	pub := &fakePublisher{}
	svc := NewLedgerService(memory.New(), pub, nil)
	ctx := auth.WithPrincipal(context.Background(), "alice")
	require.NoError(t, svc.SaveCallerUserProfile(ctx, core.UserProfile{Name: "Alice"}))
	return svc, pub, ctx
}

func TestLedgerServiceSatisfiesContract(t *testing.T) {
	backendtest.Run(t, func(t *testing.T, seed bool) ports.Backend {
		store := memory.New(memory.WithSeedCategories(seed), memory.WithClock(func() time.Time { return backendtest.Now }))
		return NewLedgerService(store, &fakePublisher{}, nil)
	})
}

func TestLedgerServicePublishesMutations(t *testing.T) {
	svc, pub, ctx := setup(t)

	cat := core.Category{ID: "food", Name: "Makan", Type: core.Expense, Color: "#f59e0b"}
	require.NoError(t, svc.AddCategory(ctx, cat))
	cat.Name = "Makan & Minum"
	require.NoError(t, svc.UpdateCategory(ctx, cat))

	tx := core.Transaction{ID: "t1", CategoryID: "food", Type: core.Expense, Date: backendtest.Now, Amount: core.Money{Amount: 15000}}
	require.NoError(t, svc.AddTransaction(ctx, tx))
	tx.Amount = core.Money{Amount: 17000}
	require.NoError(t, svc.UpdateTransaction(ctx, tx))
	require.NoError(t, svc.DeleteTransaction(ctx, "t1"))
	require.NoError(t, svc.DeleteCategory(ctx, "food"))

	assert.Equal(t, []amqp.EventKind{
		amqp.CategoryCreated, amqp.CategoryUpdated,
		amqp.TransactionCreated, amqp.TransactionUpdated, amqp.TransactionDeleted,
		amqp.CategoryDeleted,
	}, pub.kinds())

	created := pub.events[2]
	assert.Equal(t, "alice", created.Principal)
	require.NotNil(t, created.Transaction)
	assert.Equal(t, "Makan & Minum", created.Transaction.CategoryName)
	assert.Equal(t, int64(15000), created.Transaction.Amount)

	deleted := pub.events[4]
	assert.Equal(t, "t1", deleted.EntityID)
	require.NotNil(t, deleted.Transaction, "deletions carry the last known state")
	assert.Equal(t, int64(17000), deleted.Transaction.Amount)

	assert.Nil(t, pub.events[5].Category)
}

func TestLedgerServiceUpdateCarriesPreviousDate(t *testing.T) {
	svc, pub, ctx := setup(t)

	require.NoError(t, svc.AddCategory(ctx, core.Category{ID: "food", Name: "Makan", Type: core.Expense, Color: "#f59e0b"}))
	tx := core.Transaction{ID: "t1", CategoryID: "food", Type: core.Expense, Date: backendtest.Now, Amount: core.Money{Amount: 15000}}
	require.NoError(t, svc.AddTransaction(ctx, tx))
	assert.Zero(t, pub.events[1].PreviousDate)

	moved := tx
	moved.Date = core.NewDate(2025, time.December, 30)
	require.NoError(t, svc.UpdateTransaction(ctx, moved))

	updated := pub.events[2]
	require.Equal(t, amqp.TransactionUpdated, updated.Kind)
	assert.True(t, core.FromNanos(updated.PreviousDate).Equal(tx.Date))
	assert.True(t, updated.MovedAcrossYears())
}

func TestLedgerServiceSkipsFailedMutations(t *testing.T) {
	svc, pub, ctx := setup(t)

	err := svc.AddTransaction(ctx, core.Transaction{ID: "t1", CategoryID: "ghost", Type: core.Expense, Date: backendtest.Now, Amount: core.Money{Amount: 1}})
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, svc.DeleteCategory(ctx, "ghost"), core.ErrNotFound)
	assert.Empty(t, pub.kinds())
}

func TestLedgerServiceToleratesPublishFailure(t *testing.T) {
	svc, pub, ctx := setup(t)
	pub.err = errors.New("broker down")

	require.NoError(t, svc.AddCategory(ctx, core.Category{ID: "food", Name: "Makan", Type: core.Expense, Color: "#f59e0b"}))

	got, err := svc.GetCategory(ctx, "food")
	require.NoError(t, err)
	assert.NotNil(t, got, "the mutation must stick even though publishing failed")
}

func TestLedgerServiceWithoutPublisher(t *testing.T) {
	svc := NewLedgerService(memory.New(), nil, nil)
	ctx := auth.WithPrincipal(context.Background(), "alice")
	require.NoError(t, svc.SaveCallerUserProfile(ctx, core.UserProfile{Name: "Alice"}))
	require.NoError(t, svc.AddCategory(ctx, core.Category{ID: "food", Name: "Makan", Type: core.Expense, Color: "#f59e0b"}))
	require.NoError(t, svc.Close())
}

func TestLedgerServiceClose(t *testing.T) {
	svc, pub, _ := setup(t)
	require.NoError(t, svc.Close())
	assert.True(t, pub.closed)
	require.NoError(t, svc.Ping(context.Background()))
}
