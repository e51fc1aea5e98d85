package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finex/internal/auth"
	"finex/internal/core"
	"finex/internal/memory"
)

func TestWriteLedgerCSV(t *testing.T) {
	cats := []core.Category{
		{ID: "cat-gaji", Name: "Gaji", Type: core.Income, Color: "#10b981"},
	}
	txs := []core.Transaction{
		{ID: "tx-1", CategoryID: "cat-gaji", Type: core.Income, Date: core.NewDate(2026, time.October, 1), Amount: core.Money{Amount: 5000000}, Note: "gaji, Oktober"},
		{ID: "tx-2", CategoryID: "cat-gone", Type: core.Expense, Date: core.NewDate(2026, time.October, 2), Amount: core.Money{Amount: 25000}},
	}

	var buf bytes.Buffer
	require.NoError(t, writeLedgerCSV(&buf, txs, cats))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, ledgerHeader, records[0])
	assert.Equal(t, []string{"tx-1", "2026-10-01", "income", "Gaji", "gaji, Oktober", "5000000"}, records[1])
	assert.Equal(t, []string{"tx-2", "2026-10-02", "expense", core.UnknownCategoryName, "", "25000"}, records[2])
}

func TestWriteLedgerCSVEscapesFormulas(t *testing.T) {
	cats := []core.Category{{ID: "cat-x", Name: "=Jajan", Type: core.Expense, Color: "#ef4444"}}
	txs := []core.Transaction{
		{ID: "tx-1", CategoryID: "cat-x", Type: core.Expense, Date: core.NewDate(2026, time.October, 1), Amount: core.Money{Amount: 1000}, Note: `=HYPERLINK("https://x")`},
		{ID: "tx-2", CategoryID: "cat-x", Type: core.Expense, Date: core.NewDate(2026, time.October, 1), Amount: core.Money{Amount: 2000}, Note: "-5 kembalian"},
	}

	var buf bytes.Buffer
	require.NoError(t, writeLedgerCSV(&buf, txs, cats))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "'=Jajan", records[1][3])
	assert.Equal(t, `'=HYPERLINK("https://x")`, records[1][4])
	assert.Equal(t, "'-5 kembalian", records[2][4])
	assert.Equal(t, "2000", records[2][5])
}

func TestLoadLedgerPagesThroughEverything(t *testing.T) {
	store := memory.New(memory.WithSeedCategories(true))
	ctx := auth.WithPrincipal(context.Background(), "alice")
	require.NoError(t, store.SaveCallerUserProfile(ctx, core.UserProfile{Name: "Alice"}))

	total := core.MaxPageSize + 5
	day := core.NewDate(2026, time.January, 1)
	for i := 0; i < total; i++ {
		require.NoError(t, store.AddTransaction(ctx, core.Transaction{
			ID:         core.NewTransactionID(),
			CategoryID: "cat-makan",
			Type:       core.Expense,
			Date:       day.AddDate(0, 0, i%200),
			Amount:     core.Money{Amount: int64(1000 + i)},
		}))
	}

	txs, cats, err := loadLedger(ctx, store)
	require.NoError(t, err)
	assert.Len(t, txs, total)
	assert.NotEmpty(t, cats)
	for i := 1; i < len(txs); i++ {
		assert.False(t, txs[i].Date.After(txs[i-1].Date), "not newest first at %d", i)
	}
}

func TestLoadLedgerRequiresProfile(t *testing.T) {
	store := memory.New()
	ctx := auth.WithPrincipal(context.Background(), "stranger")

	_, _, err := loadLedger(ctx, store)
	assert.Error(t, err)
}

func TestWriteCategoryTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeCategoryTable(&buf, []core.Category{
		{ID: "cat-gaji", Name: "Gaji", Type: core.Income, Color: "#10b981", Icon: "💰"},
	}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[2], "cat-gaji")
	assert.Contains(t, lines[2], "#10b981")
}

func TestActingAsRequiresPrincipal(t *testing.T) {
	_, err := actingAs(context.Background(), "")
	assert.Error(t, err)

	ctx, err := actingAs(context.Background(), "alice")
	require.NoError(t, err)
	p, ok := auth.PrincipalFrom(ctx)
	assert.True(t, ok)
	assert.Equal(t, core.Principal("alice"), p)
}
