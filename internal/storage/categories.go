package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"finex/internal/core"
)

const categoryColumns = `id, name, type, color, icon`

func scanCategory(row interface{ Scan(...any) error }) (core.Category, error) {
	var c core.Category
	var typ string
	if err := row.Scan(&c.ID, &c.Name, &typ, &c.Color, &c.Icon); err != nil {
		return core.Category{}, err
	}
	c.Type = core.CategoryType(typ)
	return c, nil
}

func insertCategory(ctx context.Context, q querier, p core.Principal, c core.Category) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO categories (principal, id, name, type, color, icon) VALUES (?, ?, ?, ?, ?, ?)`,
		string(p), c.ID, strings.TrimSpace(c.Name), string(c.Type), c.Color, c.Icon)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("category %s: %w", c.ID, core.ErrConflict)
		}
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func getCategory(ctx context.Context, q querier, p core.Principal, id string) (*core.Category, error) {
	c, err := scanCategory(q.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE principal = ? AND id = ?`, string(p), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}

func (r *SQLiteRepository) AddCategory(ctx context.Context, c core.Category) error {
	if err := c.Validate(); err != nil {
		return err
	}
	p, err := r.member(ctx)
	if err != nil {
		return err
	}
	return insertCategory(ctx, r.db, p, c)
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) error {
	if err := c.Validate(); err != nil {
		return err
	}
	p, err := r.member(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, type = ?, color = ?, icon = ? WHERE principal = ? AND id = ?`,
		strings.TrimSpace(c.Name), string(c.Type), c.Color, c.Icon, string(p), c.ID)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	return requireAffected(res, "category", c.ID)
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id string) error {
	p, err := r.member(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM categories WHERE principal = ? AND id = ?`, string(p), id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return requireAffected(res, "category", id)
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, id string) (*core.Category, error) {
	p, err := r.member(ctx)
	if err != nil {
		return nil, err
	}
	return getCategory(ctx, r.db, p, id)
}

func (r *SQLiteRepository) listCategories(ctx context.Context, orderBy string, limit, offset int) ([]core.Category, error) {
	p, err := r.member(ctx)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + categoryColumns + ` FROM categories WHERE principal = ? ORDER BY ` + orderBy
	args := []any{string(p)}
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := []core.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetCategories(ctx context.Context, page, size int) (core.Page[core.Category], error) {
	page, size = core.NormalizePage(page, size)
	p, err := r.member(ctx)
	if err != nil {
		return core.Page[core.Category]{}, err
	}
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories WHERE principal = ?`, string(p)).Scan(&total); err != nil {
		return core.Page[core.Category]{}, fmt.Errorf("count categories: %w", err)
	}
	if !core.PageInRange(page, size, total) {
		return core.Page[core.Category]{Items: []core.Category{}, Total: total, Page: page, PageSize: size}, nil
	}
	items, err := r.listCategories(ctx, `name, id`, size, page*size)
	if err != nil {
		return core.Page[core.Category]{}, err
	}
	return core.Page[core.Category]{Items: items, Total: total, Page: page, PageSize: size}, nil
}

func (r *SQLiteRepository) GetCategoriesByType(ctx context.Context) ([]core.Category, error) {
	return r.listCategories(ctx, `CASE type WHEN 'income' THEN 0 ELSE 1 END, name, id`, 0, 0)
}

func (r *SQLiteRepository) GetCategoriesSortedByColor(ctx context.Context) ([]core.Category, error) {
	return r.listCategories(ctx, `lower(color), name, id`, 0, 0)
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, core.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
