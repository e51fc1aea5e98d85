package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"finex/internal/core"
)

const transactionColumns = `id, category_id, type, date_ns, note, receipt_id, amount`

func scanTransaction(row interface{ Scan(...any) error }) (core.Transaction, error) {
	var t core.Transaction
	var typ string
	var dateNs int64
	if err := row.Scan(&t.ID, &t.CategoryID, &typ, &dateNs, &t.Note, &t.ReceiptID, &t.Amount.Amount); err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.CategoryType(typ)
	t.Date = core.FromNanos(dateNs)
	return t, nil
}

func checkCategory(ctx context.Context, tx *sql.Tx, p core.Principal, t core.Transaction) error {
	cat, err := getCategory(ctx, tx, p, t.CategoryID)
	if err != nil {
		return err
	}
	if err := core.CheckTransactionCategory(t, cat); err != nil {
		return fmt.Errorf("category %s: %w", t.CategoryID, err)
	}
	return nil
}

func (r *SQLiteRepository) AddTransaction(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	p, err := r.member(ctx)
	if err != nil {
		return err
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM transactions WHERE principal = ? AND id = ?)`,
			string(p), t.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check transaction: %w", err)
		}
		if exists {
			return fmt.Errorf("transaction %s: %w", t.ID, core.ErrConflict)
		}
		if err := checkCategory(ctx, tx, p, t); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO transactions (principal, `+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			string(p), t.ID, t.CategoryID, string(t.Type), core.ToNanos(t.Date), t.Note, t.ReceiptID, t.Amount.Amount)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	p, err := r.member(ctx)
	if err != nil {
		return err
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM transactions WHERE principal = ? AND id = ?)`,
			string(p), t.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check transaction: %w", err)
		}
		if !exists {
			return fmt.Errorf("transaction %s: %w", t.ID, core.ErrNotFound)
		}
		if err := checkCategory(ctx, tx, p, t); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE transactions
			SET category_id = ?, type = ?, date_ns = ?, note = ?, receipt_id = ?, amount = ?, updated_at = CURRENT_TIMESTAMP
			WHERE principal = ? AND id = ?`,
			t.CategoryID, string(t.Type), core.ToNanos(t.Date), t.Note, t.ReceiptID, t.Amount.Amount, string(p), t.ID)
		if err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	p, err := r.member(ctx)
	if err != nil {
		return err
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var receiptID string
		err := tx.QueryRowContext(ctx,
			`SELECT receipt_id FROM transactions WHERE principal = ? AND id = ?`, string(p), id).Scan(&receiptID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM transactions WHERE principal = ? AND id = ?`, string(p), id); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		if receiptID != "" {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM receipts WHERE principal = ? AND id = ?`, string(p), receiptID); err != nil {
				return fmt.Errorf("delete receipt: %w", err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (*core.Transaction, error) {
	p, err := r.member(ctx)
	if err != nil {
		return nil, err
	}
	t, err := scanTransaction(r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE principal = ? AND id = ?`, string(p), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return &t, nil
}

// listTransactions returns p's transactions in listing order. where is an
// optional extra predicate with its arguments; limit 0 means no limit.
func (r *SQLiteRepository) listTransactions(ctx context.Context, p core.Principal, where string, args []any, limit, offset int) ([]core.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE principal = ?`
	if where != "" {
		query += ` AND ` + where
	}
	query += ` ORDER BY date_ns DESC, id`
	qargs := append([]any{string(p)}, args...)
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		qargs = append(qargs, limit, offset)
	}

	rows, err := r.db.QueryContext(ctx, query, qargs...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) pageTransactions(ctx context.Context, where string, args []any, page, size int) (core.Page[core.Transaction], error) {
	page, size = core.NormalizePage(page, size)
	p, err := r.member(ctx)
	if err != nil {
		return core.Page[core.Transaction]{}, err
	}

	countQuery := `SELECT COUNT(*) FROM transactions WHERE principal = ?`
	if where != "" {
		countQuery += ` AND ` + where
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, append([]any{string(p)}, args...)...).Scan(&total); err != nil {
		return core.Page[core.Transaction]{}, fmt.Errorf("count transactions: %w", err)
	}

	if !core.PageInRange(page, size, total) {
		return core.Page[core.Transaction]{Items: []core.Transaction{}, Total: total, Page: page, PageSize: size}, nil
	}
	txs, err := r.listTransactions(ctx, p, where, args, size, page*size)
	if err != nil {
		return core.Page[core.Transaction]{}, err
	}
	return core.Page[core.Transaction]{Items: txs, Total: total, Page: page, PageSize: size}, nil
}

func (r *SQLiteRepository) GetTransactions(ctx context.Context, page, size int) (core.Page[core.Transaction], error) {
	return r.pageTransactions(ctx, "", nil, page, size)
}

func (r *SQLiteRepository) GetTransactionsByCategory(ctx context.Context, categoryID string, page, size int) (core.Page[core.Transaction], error) {
	return r.pageTransactions(ctx, "category_id = ?", []any{categoryID}, page, size)
}

func (r *SQLiteRepository) GetTransactionsByType(ctx context.Context, typ core.CategoryType, page, size int) (core.Page[core.Transaction], error) {
	if !typ.Valid() {
		return core.Page[core.Transaction]{}, core.ErrInvalidCategoryType
	}
	return r.pageTransactions(ctx, "type = ?", []any{string(typ)}, page, size)
}

// SearchTransactions filters in Go so matching follows core.MatchesSearch
// exactly, including non-ASCII case folding.
func (r *SQLiteRepository) SearchTransactions(ctx context.Context, term string, page, size int) (core.Page[core.Transaction], error) {
	p, err := r.member(ctx)
	if err != nil {
		return core.Page[core.Transaction]{}, err
	}
	all, err := r.listTransactions(ctx, p, "", nil, 0, 0)
	if err != nil {
		return core.Page[core.Transaction]{}, err
	}
	matched := make([]core.Transaction, 0, len(all))
	for _, t := range all {
		if core.MatchesSearch(t, term) {
			matched = append(matched, t)
		}
	}
	return core.Paginate(matched, page, size), nil
}
