package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"finex/internal/auth"
	"finex/internal/backend/backendtest"
	"finex/internal/core"
	"finex/internal/ports"
)

func TestStoreContract(t *testing.T) {
	backendtest.Run(t, func(t *testing.T, seed bool) ports.Backend {
		return New(WithSeedCategories(seed), WithClock(func() time.Time { return backendtest.Now }))
	})
}

func TestStoreReturnsCopies(t *testing.T) {
	s := New()
	ctx := auth.WithPrincipal(context.Background(), "alice")
	if err := s.SaveCallerUserProfile(ctx, core.UserProfile{Name: "Alice"}); err != nil {
		t.Fatal(err)
	}
	data := []byte("\x89PNG\r\n\x1a\n0000")
	if err := s.UploadReceipt(ctx, "r", data); err != nil {
		t.Fatal(err)
	}
	data[0] = 'X'
	got, _ := s.GetReceipt(ctx, "r")
	if got[0] != 0x89 {
		t.Fatalf("stored receipt was aliased to caller buffer")
	}
	got[1] = 'X'
	again, _ := s.GetReceipt(ctx, "r")
	if again[1] != 'P' {
		t.Fatalf("returned receipt was aliased to store")
	}
}

func TestStoreConcurrentWrites(t *testing.T) {
	s := New()
	ctx := auth.WithPrincipal(context.Background(), "alice")
	if err := s.SaveCallerUserProfile(ctx, core.UserProfile{Name: "Alice"}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddCategory(ctx, core.Category{ID: "c", Name: "Makan", Type: core.Expense, Color: "#000000"}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.AddTransaction(ctx, core.Transaction{
				ID: core.NewTransactionID(), CategoryID: "c", Type: core.Expense,
				Date: backendtest.Now, Amount: core.Money{Amount: 1},
			})
			_, _ = s.GetCashflowInsights(ctx)
		}()
	}
	wg.Wait()

	page, err := s.GetTransactions(ctx, 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 50 {
		t.Fatalf("expected 50 transactions, got %d", page.Total)
	}
}
