package core

import (
	"errors"
	"strings"
	"time"
)

// DateLayout is the calendar-date form used everywhere in the API and the
// database. Expense dates carry no time component.
const DateLayout = "2006-01-02"

// Defaults applied when the client omits a value.
const (
	DefaultIcon     = "📦"
	DefaultColor    = "#6366f1"
	DefaultCurrency = "UAH"
	DefaultLang     = "uk"
	DefaultTheme    = "light"

	// FallbackCurrency is used for assistant-created expenses when the user
	// has no settings row at all.
	FallbackCurrency = "USD"
)

type (
	// User is the identity owning all financial data.
	User struct {
		ID           int64
		Email        string
		Username     string
		PasswordHash string
		CreatedAt    time.Time
	}

	// Category groups expenses. Budget is a monthly ceiling and may be nil.
	// Names are not unique; functional matching is case-insensitive substring.
	Category struct {
		ID        int64
		UserID    int64
		Name      string
		Icon      string
		Color     string
		Budget    *float64
		CreatedAt time.Time
	}

	// Expense is a single transaction. CategoryID is nil for uncategorized
	// expenses. Date is a YYYY-MM-DD string.
	Expense struct {
		ID          int64
		UserID      int64
		CategoryID  *int64
		Amount      float64
		Currency    string
		Description string
		Date        string
		CreatedAt   time.Time
	}

	// Settings is the one-per-user preferences record.
	Settings struct {
		UserID   int64
		Currency string
		Lang     string
		Theme    string
	}
)

var (
	ErrNotFound         = errors.New("not found")
	ErrEmptyDescription = errors.New("empty description")
	ErrInvalidDate      = errors.New("invalid date, expected YYYY-MM-DD")
	ErrEmptyName        = errors.New("empty name")
)

// DefaultSettings returns the settings row created for a new user.
func DefaultSettings(userID int64) Settings {
	return Settings{
		UserID:   userID,
		Currency: DefaultCurrency,
		Lang:     DefaultLang,
		Theme:    DefaultTheme,
	}
}

// ParseDate validates a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 100 {
		return errors.New("name too long (max 100 characters)")
	}
	return nil
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.Description) == "" {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if _, err := ParseDate(e.Date); err != nil {
		return err
	}
	return nil
}
