package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fintrack/internal/core"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// Single connection: serializes writes and keeps :memory: databases
	// on one backing store.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Ping reports whether the database connection is still usable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateUser inserts a new user and fills in its ID and creation time.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u *core.User) error {
	u.CreatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (email, username, password_hash, created_at)
		VALUES (?, ?, ?, ?)`,
		u.Email, u.Username, u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create user id: %w", err)
	}
	u.ID = id

	return nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	return r.getUser(ctx, "email = ?", email)
}

func (r *SQLiteRepository) GetUserByUsername(ctx context.Context, username string) (*core.User, error) {
	return r.getUser(ctx, "username = ?", username)
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id int64) (*core.User, error) {
	return r.getUser(ctx, "id = ?", id)
}

func (r *SQLiteRepository) getUser(ctx context.Context, where string, arg any) (*core.User, error) {
	u := &core.User{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, username, password_hash, created_at
		FROM users
		WHERE `+where,
		arg,
	).Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	return u, nil
}

func (r *SQLiteRepository) GetSettings(ctx context.Context, userID int64) (*core.Settings, error) {
	s := &core.Settings{}
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, currency, lang, theme
		FROM settings
		WHERE user_id = ?`,
		userID,
	).Scan(&s.UserID, &s.Currency, &s.Lang, &s.Theme)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}

	return s, nil
}

// UpsertSettings writes the full settings row for a user.
func (r *SQLiteRepository) UpsertSettings(ctx context.Context, s *core.Settings) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (user_id, currency, lang, theme)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			currency = excluded.currency,
			lang = excluded.lang,
			theme = excluded.theme`,
		s.UserID, s.Currency, s.Lang, s.Theme,
	)
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}

// GetOrCreateSettings returns the user's settings, creating the default row
// on first access.
func (r *SQLiteRepository) GetOrCreateSettings(ctx context.Context, userID int64) (*core.Settings, error) {
	s, err := r.GetSettings(ctx, userID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}

	defaults := core.DefaultSettings(userID)
	if err := r.UpsertSettings(ctx, &defaults); err != nil {
		return nil, err
	}
	return &defaults, nil
}
