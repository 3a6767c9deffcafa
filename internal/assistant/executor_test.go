package assistant

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// fakeStore is an in-memory Store with the same scoping and ordering
// semantics as the sqlite repository.
type fakeStore struct {
	categories []core.Category
	expenses   []core.Expense
	settings   map[int64]core.Settings
	nextID     int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{settings: make(map[int64]core.Settings)}
}

func (s *fakeStore) addCategory(userID int64, name string) core.Category {
	s.nextID++
	c := core.Category{ID: s.nextID, UserID: userID, Name: name, Icon: core.DefaultIcon, Color: core.DefaultColor}
	s.categories = append(s.categories, c)
	return c
}

func (s *fakeStore) addExpense(userID int64, categoryID *int64, amount float64, description, date string) core.Expense {
	s.nextID++
	e := core.Expense{ID: s.nextID, UserID: userID, CategoryID: categoryID, Amount: amount, Currency: "USD", Description: description, Date: date}
	s.expenses = append(s.expenses, e)
	return e
}

func (s *fakeStore) ListCategories(_ context.Context, userID int64) ([]core.Category, error) {
	var out []core.Category
	for _, c := range s.categories {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) ListExpenses(_ context.Context, userID int64, f core.ExpenseFilter) ([]core.Expense, error) {
	var out []core.Expense
	for _, e := range s.expenses {
		if e.UserID != userID {
			continue
		}
		if f.CategoryID != nil && (e.CategoryID == nil || *e.CategoryID != *f.CategoryID) {
			continue
		}
		if f.DateFrom != "" && e.Date < f.DateFrom {
			continue
		}
		if f.DateTo != "" && e.Date > f.DateTo {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].ID > out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *fakeStore) CreateExpense(_ context.Context, e *core.Expense) error {
	s.nextID++
	e.ID = s.nextID
	e.CreatedAt = time.Now()
	s.expenses = append(s.expenses, *e)
	return nil
}

func (s *fakeStore) SumExpenses(_ context.Context, userID int64, dateFrom, dateTo string, categoryID *int64) (float64, int64, error) {
	var total float64
	var count int64
	for _, e := range s.expenses {
		if e.UserID != userID || e.Date < dateFrom || e.Date > dateTo {
			continue
		}
		if categoryID != nil && (e.CategoryID == nil || *e.CategoryID != *categoryID) {
			continue
		}
		total += e.Amount
		count++
	}
	return total, count, nil
}

func (s *fakeStore) TopCategories(_ context.Context, userID int64, dateFrom, dateTo string, limit int) ([]core.CategoryTotal, error) {
	byID := make(map[int64]*core.CategoryTotal)
	for _, e := range s.expenses {
		// Uncategorized expenses never form a group.
		if e.UserID != userID || e.Date < dateFrom || e.Date > dateTo || e.CategoryID == nil {
			continue
		}
		t, ok := byID[*e.CategoryID]
		if !ok {
			id := *e.CategoryID
			t = &core.CategoryTotal{CategoryID: &id}
			for _, c := range s.categories {
				if c.ID == id {
					t.Name = c.Name
				}
			}
			byID[id] = t
		}
		t.Total += e.Amount
		t.Count++
	}

	var out []core.CategoryTotal
	for _, t := range byID {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) GetSettings(_ context.Context, userID int64) (*core.Settings, error) {
	if st, ok := s.settings[userID]; ok {
		return &st, nil
	}
	return nil, core.ErrNotFound
}

func testLogger() *log.Logger {
	return log.New(log.DefaultConfig())
}

// refDate is the fixed "today" every executor test runs against.
var refDate = time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)

func newTestExecutor(store Store) *Executor {
	e := NewExecutor(store, testLogger())
	e.now = func() time.Time { return refDate }
	return e
}

func call(name, args string) ToolCall {
	return ToolCall{ID: "call-1", Name: name, Args: json.RawMessage(args)}
}

func TestExecutorUnknownTool(t *testing.T) {
	exec := newTestExecutor(newFakeStore())

	result := exec.Execute(context.Background(), 1, call("delete_everything", `{}`))
	assert.JSONEq(t, `{"error":"Unknown tool: delete_everything"}`, result)
}

func TestExecutorMalformedArgs(t *testing.T) {
	exec := newTestExecutor(newFakeStore())

	result := exec.Execute(context.Background(), 1, call("add_expense", `{"amount": "not json`))

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(result), &payload))
	assert.Contains(t, payload["error"], "Invalid arguments for add_expense")
}

func TestListCategories(t *testing.T) {
	store := newFakeStore()
	exec := newTestExecutor(store)

	food := store.addCategory(1, "Food")
	store.addCategory(1, "Transport")
	otherCat := store.addCategory(2, "Other user cat")

	store.addExpense(1, &food.ID, 10.004, "lunch", "2025-03-10")
	store.addExpense(1, &food.ID, 5, "snack", "2025-03-14")
	store.addExpense(1, &food.ID, 99, "old dinner", "2025-02-20") // previous month
	store.addExpense(2, &otherCat.ID, 500, "not mine", "2025-03-10")

	result := exec.Execute(context.Background(), 1, call("list_categories", `{}`))

	var got []struct {
		Name           string   `json:"name"`
		Icon           string   `json:"icon"`
		Budget         *float64 `json:"budget"`
		SpentThisMonth float64  `json:"spent_this_month"`
	}
	require.NoError(t, json.Unmarshal([]byte(result), &got))
	require.Len(t, got, 2)

	assert.Equal(t, "Food", got[0].Name)
	assert.Equal(t, 15.0, got[0].SpentThisMonth)
	assert.Equal(t, "Transport", got[1].Name)
	assert.Equal(t, 0.0, got[1].SpentThisMonth)
}

func TestGetSpendingSummary(t *testing.T) {
	store := newFakeStore()
	exec := newTestExecutor(store)

	store.addExpense(1, nil, 12.344, "a", "2025-03-15")
	store.addExpense(1, nil, 7.90, "b", "2025-03-14")
	store.addExpense(1, nil, 100, "january", "2025-01-05")
	store.addExpense(2, nil, 55, "not mine", "2025-03-15")

	t.Run("week", func(t *testing.T) {
		result := exec.Execute(context.Background(), 1, call("get_spending_summary", `{"period":"week"}`))
		assert.JSONEq(t, `{"period":"week","total":20.24,"transactions":2}`, result)
	})

	t.Run("defaults to month", func(t *testing.T) {
		result := exec.Execute(context.Background(), 1, call("get_spending_summary", `{}`))
		assert.JSONEq(t, `{"period":"month","total":20.24,"transactions":2}`, result)
	})

	t.Run("empty range is zero not error", func(t *testing.T) {
		result := exec.Execute(context.Background(), 3, call("get_spending_summary", `{"period":"year"}`))
		assert.JSONEq(t, `{"period":"year","total":0,"transactions":0}`, result)
	})
}

func TestListExpenses(t *testing.T) {
	store := newFakeStore()
	exec := newTestExecutor(store)

	food := store.addCategory(1, "Food & Drinks")
	store.addExpense(1, &food.ID, 10, "lunch", "2025-03-14")
	store.addExpense(1, nil, 25, "cinema", "2025-03-15")
	store.addExpense(1, &food.ID, 8, "coffee", "2025-03-15")
	store.addExpense(2, nil, 99, "not mine", "2025-03-15")

	decode := func(result string) []map[string]any {
		var got []map[string]any
		require.NoError(t, json.Unmarshal([]byte(result), &got))
		return got
	}

	t.Run("ordered newest first with category names", func(t *testing.T) {
		got := decode(exec.Execute(context.Background(), 1, call("list_expenses", `{}`)))
		require.Len(t, got, 3)
		assert.Equal(t, "coffee", got[0]["description"])
		assert.Equal(t, "Food & Drinks", got[0]["category"])
		assert.Equal(t, "cinema", got[1]["description"])
		assert.Nil(t, got[1]["category"])
	})

	t.Run("category filter is case-insensitive substring", func(t *testing.T) {
		got := decode(exec.Execute(context.Background(), 1, call("list_expenses", `{"category_name":"food"}`)))
		require.Len(t, got, 2)
		assert.Equal(t, "coffee", got[0]["description"])
		assert.Equal(t, "lunch", got[1]["description"])
	})

	t.Run("unmatched category filter silently dropped", func(t *testing.T) {
		got := decode(exec.Execute(context.Background(), 1, call("list_expenses", `{"category_name":"no such thing"}`)))
		assert.Len(t, got, 3)
	})

	t.Run("limit clamped to 20", func(t *testing.T) {
		for i := 0; i < 25; i++ {
			store.addExpense(1, nil, 1, "bulk", "2025-03-13")
		}
		got := decode(exec.Execute(context.Background(), 1, call("list_expenses", `{"limit":100}`)))
		assert.Len(t, got, 20)
	})

	t.Run("period filter", func(t *testing.T) {
		got := decode(exec.Execute(context.Background(), 1, call("list_expenses", `{"period":"today","limit":20}`)))
		require.Len(t, got, 2)
		for _, e := range got {
			assert.Equal(t, "2025-03-15", e["date"])
		}
	})
}

func TestAddExpense(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults and settings currency", func(t *testing.T) {
		store := newFakeStore()
		store.settings[1] = core.Settings{UserID: 1, Currency: "EUR", Lang: "en", Theme: "light"}
		exec := newTestExecutor(store)

		result := exec.Execute(ctx, 1, call("add_expense", `{"amount":25,"description":"coffee"}`))
		assert.JSONEq(t, `{"success":true,"id":1,"amount":25,"description":"coffee","date":"2025-03-15","category":null}`, result)

		require.Len(t, store.expenses, 1)
		assert.Equal(t, "EUR", store.expenses[0].Currency)
		assert.EqualValues(t, 1, store.expenses[0].UserID)
	})

	t.Run("fallback currency without settings row", func(t *testing.T) {
		store := newFakeStore()
		exec := newTestExecutor(store)

		exec.Execute(ctx, 1, call("add_expense", `{"amount":5,"description":"gum"}`))
		require.Len(t, store.expenses, 1)
		assert.Equal(t, core.FallbackCurrency, store.expenses[0].Currency)
	})

	t.Run("category substring match", func(t *testing.T) {
		store := newFakeStore()
		cat := store.addCategory(1, "Groceries")
		exec := newTestExecutor(store)

		result := exec.Execute(ctx, 1, call("add_expense", `{"amount":12,"description":"milk","category_name":"groc"}`))

		var got map[string]any
		require.NoError(t, json.Unmarshal([]byte(result), &got))
		assert.Equal(t, "Groceries", got["category"])
		require.Len(t, store.expenses, 1)
		require.NotNil(t, store.expenses[0].CategoryID)
		assert.Equal(t, cat.ID, *store.expenses[0].CategoryID)
	})

	t.Run("unmatched category leaves expense uncategorized", func(t *testing.T) {
		store := newFakeStore()
		store.addCategory(1, "Groceries")
		exec := newTestExecutor(store)

		exec.Execute(ctx, 1, call("add_expense", `{"amount":12,"description":"milk","category_name":"travel"}`))
		require.Len(t, store.expenses, 1)
		assert.Nil(t, store.expenses[0].CategoryID)
	})

	t.Run("explicit date kept", func(t *testing.T) {
		store := newFakeStore()
		exec := newTestExecutor(store)

		exec.Execute(ctx, 1, call("add_expense", `{"amount":9,"description":"book","date":"2025-02-01"}`))
		require.Len(t, store.expenses, 1)
		assert.Equal(t, "2025-02-01", store.expenses[0].Date)
	})

	// The schema documents a positive amount, but any numeric value is
	// accepted; refunds come in as negative amounts.
	t.Run("non-positive amount accepted", func(t *testing.T) {
		store := newFakeStore()
		exec := newTestExecutor(store)

		result := exec.Execute(ctx, 1, call("add_expense", `{"amount":-3,"description":"refund"}`))

		var got map[string]any
		require.NoError(t, json.Unmarshal([]byte(result), &got))
		assert.Equal(t, true, got["success"])
		require.Len(t, store.expenses, 1)
		assert.Equal(t, -3.0, store.expenses[0].Amount)
	})

	t.Run("missing required fields rejected with payload", func(t *testing.T) {
		store := newFakeStore()
		exec := newTestExecutor(store)

		result := exec.Execute(ctx, 1, call("add_expense", `{"description":"no amount"}`))
		assert.True(t, strings.HasPrefix(result, `{"error":`))
		assert.Empty(t, store.expenses)
	})
}

func TestGetTopCategories(t *testing.T) {
	store := newFakeStore()
	exec := newTestExecutor(store)

	food := store.addCategory(1, "Food")
	transport := store.addCategory(1, "Transport")
	store.addCategory(1, "Unused")

	store.addExpense(1, &food.ID, 120, "restaurants", "2025-03-05")
	store.addExpense(1, &food.ID, 30, "more food", "2025-03-10")
	store.addExpense(1, &transport.ID, 40, "fuel", "2025-03-07")
	store.addExpense(1, nil, 999, "uncategorized", "2025-03-08")

	t.Run("ordered descending, inner-join semantics", func(t *testing.T) {
		result := exec.Execute(context.Background(), 1, call("get_top_categories", `{"period":"month","limit":3}`))
		assert.JSONEq(t, `[{"category":"Food","total":150},{"category":"Transport","total":40}]`, result)
	})

	t.Run("uncategorized spending does not consume a limit slot", func(t *testing.T) {
		// Uncategorized 999 outranks every category; with limit 2 both
		// categorized groups must still come back.
		result := exec.Execute(context.Background(), 1, call("get_top_categories", `{"period":"month","limit":2}`))
		assert.JSONEq(t, `[{"category":"Food","total":150},{"category":"Transport","total":40}]`, result)
	})

	t.Run("limit clamped to 10", func(t *testing.T) {
		result := exec.Execute(context.Background(), 1, call("get_top_categories", `{"period":"month","limit":50}`))

		var got []map[string]any
		require.NoError(t, json.Unmarshal([]byte(result), &got))
		assert.LessOrEqual(t, len(got), 10)
	})
}

func TestCrossUserIsolation(t *testing.T) {
	store := newFakeStore()
	exec := newTestExecutor(store)

	mine := store.addCategory(1, "Mine")
	theirs := store.addCategory(2, "Theirs")
	store.addExpense(1, &mine.ID, 10, "my lunch", "2025-03-15")
	store.addExpense(2, &theirs.ID, 999, "their lunch", "2025-03-15")

	for name, args := range map[string]string{
		"list_categories":      `{}`,
		"get_spending_summary": `{"period":"month"}`,
		"list_expenses":        `{}`,
		"get_top_categories":   `{"period":"month"}`,
	} {
		result := exec.Execute(context.Background(), 1, call(name, args))
		assert.NotContains(t, result, "Theirs", "tool %s leaked another user's category", name)
		assert.NotContains(t, result, "999", "tool %s leaked another user's amounts", name)
	}
}
