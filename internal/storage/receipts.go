package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"finex/internal/core"
)

func (r *SQLiteRepository) UploadReceipt(ctx context.Context, id string, data []byte) error {
	if strings.TrimSpace(id) == "" {
		return core.ErrEmptyID
	}
	contentType, err := core.ValidateReceipt(data)
	if err != nil {
		return err
	}
	p, err := r.member(ctx)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO receipts (principal, id, content_type, data) VALUES (?, ?, ?, ?)
		ON CONFLICT(principal, id) DO UPDATE SET content_type = excluded.content_type, data = excluded.data`,
		string(p), id, contentType, data)
	if err != nil {
		return fmt.Errorf("store receipt: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetReceipt(ctx context.Context, id string) ([]byte, error) {
	p, err := r.member(ctx)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = r.db.QueryRowContext(ctx,
		`SELECT data FROM receipts WHERE principal = ? AND id = ?`, string(p), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	return data, nil
}

func (r *SQLiteRepository) DeleteReceipt(ctx context.Context, id string) error {
	p, err := r.member(ctx)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM receipts WHERE principal = ? AND id = ?`, string(p), id); err != nil {
		return fmt.Errorf("delete receipt: %w", err)
	}
	return nil
}
