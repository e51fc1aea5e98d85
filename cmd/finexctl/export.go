package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"finex/internal/core"
	"finex/internal/ports"
	"finex/internal/sheets"
)

var ledgerHeader = []string{"id", "date", "type", "category", "note", "amount"}

func exportCmd() *cobra.Command {
	var principal, out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a user's ledger as CSV",
		Long:  `Write every transaction of a user, newest first, as CSV to stdout or --out.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := actingAs(cmd.Context(), principal)
			if err != nil {
				return err
			}
			res, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer res.Close()

			txs, cats, err := loadLedger(ctx, res.Backend)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}
			if err := writeLedgerCSV(w, txs, cats); err != nil {
				return err
			}
			if out != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d transactions to %s\n", len(txs), out)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&principal, "principal", "", "user whose ledger to export")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: stdout)")
	return cmd
}

// loadLedger pages through every transaction of the caller.
func loadLedger(ctx context.Context, b ports.Backend) ([]core.Transaction, []core.Category, error) {
	cats, err := b.GetCategoriesByType(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get categories: %w", err)
	}

	var txs []core.Transaction
	for page := 0; ; page++ {
		p, err := b.GetTransactions(ctx, page, core.MaxPageSize)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get transactions page %d: %w", page, err)
		}
		txs = append(txs, p.Items...)
		if len(p.Items) == 0 || len(txs) >= p.Total {
			break
		}
	}
	core.SortTransactions(txs)
	return txs, cats, nil
}

// writeLedgerCSV writes txs with category names resolved against cats.
// Amounts are whole rupiah without grouping so spreadsheets read them as
// numbers. Free text is escaped against formula evaluation.
func writeLedgerCSV(w io.Writer, txs []core.Transaction, cats []core.Category) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ledgerHeader); err != nil {
		return err
	}
	for _, t := range txs {
		name, ok := core.CategoryName(cats, t.CategoryID)
		if !ok {
			name = core.UnknownCategoryName
		}
		record := []string{
			t.ID,
			t.Date.UTC().Format("2006-01-02"),
			string(t.Type),
			sheets.TextCell(name),
			sheets.TextCell(t.Note),
			strconv.FormatInt(t.Amount.Amount, 10),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
