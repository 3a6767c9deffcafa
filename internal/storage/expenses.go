package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/core"
)

const (
	defaultListLimit = 1000
	maxListLimit     = 5000
)

// listLimit applies the list defaults: 1000 when unset, capped at 5000.
func listLimit(f core.ExpenseFilter) int {
	switch {
	case f.Limit <= 0:
		return defaultListLimit
	case f.Limit > maxListLimit:
		return maxListLimit
	default:
		return f.Limit
	}
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID int64, f core.ExpenseFilter) ([]core.Expense, error) {
	query := `
		SELECT id, user_id, category_id, amount, currency, description, date, created_at
		FROM expenses
		WHERE user_id = ?`
	args := []any{userID}

	if f.CategoryID != nil {
		query += " AND category_id = ?"
		args = append(args, *f.CategoryID)
	}
	if f.DateFrom != "" {
		query += " AND date >= ?"
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		query += " AND date <= ?"
		args = append(args, f.DateTo)
	}
	if f.Search != "" {
		query += ` AND description LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(f.Search)+"%")
	}

	query += " ORDER BY date DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, listLimit(f), f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		var e core.Expense
		if err := rows.Scan(&e.ID, &e.UserID, &e.CategoryID, &e.Amount, &e.Currency, &e.Description, &e.Date, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}

	return expenses, nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, userID, id int64) (*core.Expense, error) {
	e := &core.Expense{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, category_id, amount, currency, description, date, created_at
		FROM expenses
		WHERE id = ? AND user_id = ?`,
		id, userID,
	).Scan(&e.ID, &e.UserID, &e.CategoryID, &e.Amount, &e.Currency, &e.Description, &e.Date, &e.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}

	return e, nil
}

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e *core.Expense) error {
	e.CreatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO expenses (user_id, category_id, amount, currency, description, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.CategoryID, e.Amount, e.Currency, e.Description, e.Date, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create expense: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create expense id: %w", err)
	}
	e.ID = id

	return nil
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e *core.Expense) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE expenses
		SET category_id = ?, amount = ?, currency = ?, description = ?, date = ?
		WHERE id = ? AND user_id = ?`,
		e.CategoryID, e.Amount, e.Currency, e.Description, e.Date, e.ID, e.UserID,
	)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update expense rows: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}

	return nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM expenses
		WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete expense rows: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}

	return nil
}

// SumExpenses returns the raw total and row count for a user over an
// inclusive date range, optionally narrowed to one category.
func (r *SQLiteRepository) SumExpenses(ctx context.Context, userID int64, dateFrom, dateTo string, categoryID *int64) (float64, int64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0), COUNT(*)
		FROM expenses
		WHERE user_id = ? AND date >= ? AND date <= ?`
	args := []any{userID, dateFrom, dateTo}

	if categoryID != nil {
		query += " AND category_id = ?"
		args = append(args, *categoryID)
	}

	var total float64
	var count int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total, &count); err != nil {
		return 0, 0, fmt.Errorf("sum expenses: %w", err)
	}

	return total, count, nil
}

// TopCategories returns per-category totals for a user over an inclusive
// date range, biggest first. Uncategorized expenses are excluded, so the
// limit applies to categorized groups only.
func (r *SQLiteRepository) TopCategories(ctx context.Context, userID int64, dateFrom, dateTo string, limit int) ([]core.CategoryTotal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.category_id, c.name, SUM(e.amount), COUNT(*)
		FROM expenses e
		INNER JOIN categories c ON c.id = e.category_id
		WHERE e.user_id = ? AND e.date >= ? AND e.date <= ?
		GROUP BY e.category_id
		ORDER BY SUM(e.amount) DESC
		LIMIT ?`,
		userID, dateFrom, dateTo, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("top categories: %w", err)
	}
	defer rows.Close()

	var totals []core.CategoryTotal
	for rows.Next() {
		var t core.CategoryTotal
		if err := rows.Scan(&t.CategoryID, &t.Name, &t.Total, &t.Count); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category totals: %w", err)
	}

	return totals, nil
}

// GetPendingSyncExpenses returns expenses not yet mirrored downstream.
func (r *SQLiteRepository) GetPendingSyncExpenses(ctx context.Context, limit int) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, category_id, amount, currency, description, date, created_at
		FROM expenses
		WHERE synced = 0 AND sync_error = 0
		ORDER BY id
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get pending sync expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		var e core.Expense
		if err := rows.Scan(&e.ID, &e.UserID, &e.CategoryID, &e.Amount, &e.Currency, &e.Description, &e.Date, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending expenses: %w", err)
	}

	return expenses, nil
}

// MarkExpenseSynced marks an expense as successfully mirrored.
func (r *SQLiteRepository) MarkExpenseSynced(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE expenses SET synced = 1, sync_error = 0 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark expense synced: %w", err)
	}
	return nil
}

// MarkExpenseSyncError flags an expense so the periodic resync stops
// retrying it.
func (r *SQLiteRepository) MarkExpenseSyncError(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE expenses SET sync_error = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("mark expense sync error: %w", err)
	}
	return nil
}

func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
