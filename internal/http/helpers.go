package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"fintrack/internal/core"
)

// detailResponse is the error body shape used by the whole API.
type detailResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, detailResponse{Detail: detail})
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

// pathID parses the {id} path segment.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// API output shapes. Field names track the original REST contract, so the
// domain types stay free of serialization concerns.

type userOut struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

type tokenOut struct {
	AccessToken string  `json:"access_token"`
	TokenType   string  `json:"token_type"`
	User        userOut `json:"user"`
}

type categoryOut struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon"`
	Color     string    `json:"color"`
	Budget    *float64  `json:"budget"`
	CreatedAt time.Time `json:"created_at"`
}

type expenseOut struct {
	ID          int64        `json:"id"`
	UserID      int64        `json:"user_id"`
	CategoryID  *int64       `json:"category_id"`
	Amount      float64      `json:"amount"`
	Currency    string       `json:"currency"`
	Description string       `json:"description"`
	Date        string       `json:"date"`
	CreatedAt   time.Time    `json:"created_at"`
	Category    *categoryOut `json:"category"`
}

type settingsOut struct {
	Currency string `json:"currency"`
	Lang     string `json:"lang"`
	Theme    string `json:"theme"`
}

func toUserOut(u *core.User) userOut {
	return userOut{ID: u.ID, Email: u.Email, Username: u.Username, CreatedAt: u.CreatedAt}
}

func toCategoryOut(c *core.Category) categoryOut {
	return categoryOut{
		ID:        c.ID,
		UserID:    c.UserID,
		Name:      c.Name,
		Icon:      c.Icon,
		Color:     c.Color,
		Budget:    c.Budget,
		CreatedAt: c.CreatedAt,
	}
}

// toExpenseOut renders an expense; categories maps id to the owning user's
// categories for the nested category field.
func toExpenseOut(e *core.Expense, categories map[int64]*core.Category) expenseOut {
	out := expenseOut{
		ID:          e.ID,
		UserID:      e.UserID,
		CategoryID:  e.CategoryID,
		Amount:      e.Amount,
		Currency:    e.Currency,
		Description: e.Description,
		Date:        e.Date,
		CreatedAt:   e.CreatedAt,
	}
	if e.CategoryID != nil {
		if cat, ok := categories[*e.CategoryID]; ok {
			co := toCategoryOut(cat)
			out.Category = &co
		}
	}
	return out
}

func toSettingsOut(s *core.Settings) settingsOut {
	return settingsOut{Currency: s.Currency, Lang: s.Lang, Theme: s.Theme}
}
