package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/core"
)

func (r *SQLiteRepository) ListCategories(ctx context.Context, userID int64) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, name, icon, color, budget, created_at
		FROM categories
		WHERE user_id = ?
		ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Icon, &c.Color, &c.Budget, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}

	return categories, nil
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, userID, id int64) (*core.Category, error) {
	c := &core.Category{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, icon, color, budget, created_at
		FROM categories
		WHERE id = ? AND user_id = ?`,
		id, userID,
	).Scan(&c.ID, &c.UserID, &c.Name, &c.Icon, &c.Color, &c.Budget, &c.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}

	return c, nil
}

// GetCategoryByName returns the user's category with the exact given name.
func (r *SQLiteRepository) GetCategoryByName(ctx context.Context, userID int64, name string) (*core.Category, error) {
	c := &core.Category{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, icon, color, budget, created_at
		FROM categories
		WHERE user_id = ? AND name = ?
		ORDER BY id
		LIMIT 1`,
		userID, name,
	).Scan(&c.ID, &c.UserID, &c.Name, &c.Icon, &c.Color, &c.Budget, &c.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get category by name: %w", err)
	}

	return c, nil
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c *core.Category) error {
	c.CreatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (user_id, name, icon, color, budget, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.UserID, c.Name, c.Icon, c.Color, c.Budget, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create category id: %w", err)
	}
	c.ID = id

	return nil
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c *core.Category) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE categories
		SET name = ?, icon = ?, color = ?, budget = ?
		WHERE id = ? AND user_id = ?`,
		c.Name, c.Icon, c.Color, c.Budget, c.ID, c.UserID,
	)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update category rows: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}

	return nil
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM categories
		WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete category rows: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}

	return nil
}
