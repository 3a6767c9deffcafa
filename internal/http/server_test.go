package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/assistant"
	"fintrack/internal/auth"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

// scriptedProvider replays canned model replies in order.
type scriptedProvider struct {
	replies []*assistant.ModelReply
	calls   int
}

func (p *scriptedProvider) Complete(_ context.Context, _ []assistant.ChatMessage, _ []assistant.ToolDefinition) (*assistant.ModelReply, error) {
	if p.calls >= len(p.replies) {
		return &assistant.ModelReply{Content: "done"}, nil
	}
	reply := p.replies[p.calls]
	p.calls++
	return reply, nil
}

type testEnv struct {
	server *Server
	repo   *storage.SQLiteRepository
}

func newTestEnv(t *testing.T, provider assistant.ModelProvider) *testEnv {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	logger := log.New(log.DefaultConfig())
	executor := assistant.NewExecutor(repo, logger)
	assist := assistant.New(provider, executor, logger)
	expenseSvc := services.NewExpenseService(repo, nil, logger)
	authn := auth.NewPasswordAuthenticator(repo)
	jwtManager := auth.NewJWTManager("test-secret-key", time.Hour)

	s := NewServer(":0", repo, expenseSvc, authn, jwtManager, assist, logger, 0)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return &testEnv{server: s, repo: repo}
}

func (env *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.server.Handler.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) registerUser(t *testing.T, email, username string) string {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": email, "username": username, "password": "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var out struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out.AccessToken)
	return out.AccessToken
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("register returns token and user", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
			"email": "a@example.com", "username": "alice", "password": "password123",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		out := decodeBody[tokenOut](t, rec)
		assert.NotEmpty(t, out.AccessToken)
		assert.Equal(t, "bearer", out.TokenType)
		assert.Equal(t, "a@example.com", out.User.Email)
		assert.Equal(t, "alice", out.User.Username)
		assert.NotZero(t, out.User.ID)
	})

	t.Run("register creates default settings", func(t *testing.T) {
		token := env.registerUser(t, "b@example.com", "bob")
		rec := env.do(t, http.MethodGet, "/api/settings", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"currency":"UAH","lang":"uk","theme":"light"}`, rec.Body.String())
	})

	t.Run("duplicate email rejected", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
			"email": "a@example.com", "username": "alice2", "password": "password123",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"detail":"Email already registered"}`, rec.Body.String())
	})

	t.Run("duplicate username rejected", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
			"email": "a2@example.com", "username": "alice", "password": "password123",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"detail":"Username already taken"}`, rec.Body.String())
	})

	t.Run("weak password rejected", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
			"email": "c@example.com", "username": "carol", "password": "short",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"detail":"Password must be at least 8 characters"}`, rec.Body.String())
	})

	t.Run("login round trip", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": "a@example.com", "password": "password123",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		out := decodeBody[tokenOut](t, rec)
		assert.NotEmpty(t, out.AccessToken)

		me := env.do(t, http.MethodGet, "/api/auth/me", out.AccessToken, nil)
		require.Equal(t, http.StatusOK, me.Code)
		user := decodeBody[userOut](t, me)
		assert.Equal(t, "a@example.com", user.Email)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": "a@example.com", "password": "wrongwrong",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"detail":"Invalid email or password"}`, rec.Body.String())
	})

	t.Run("missing token", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/auth/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/auth/me", "not-a-jwt", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"detail":"Invalid or expired token"}`, rec.Body.String())
	})
}

func TestCategories(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.registerUser(t, "cat@example.com", "cat")

	t.Run("create with defaults", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/categories", token, map[string]any{"name": "Food"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		out := decodeBody[categoryOut](t, rec)
		assert.Equal(t, "Food", out.Name)
		assert.Equal(t, "📦", out.Icon)
		assert.Equal(t, "#6366f1", out.Color)
		assert.Nil(t, out.Budget)
	})

	t.Run("empty name rejected", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/categories", token, map[string]any{"name": "  "})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("list update delete", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/categories", token, map[string]any{
			"name": "Transport", "icon": "🚌", "color": "#000000", "budget": 200.0,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		created := decodeBody[categoryOut](t, rec)

		list := decodeBody[[]categoryOut](t, env.do(t, http.MethodGet, "/api/categories", token, nil))
		assert.Len(t, list, 2)

		rec = env.do(t, http.MethodPut, fmt.Sprintf("/api/categories/%d", created.ID), token, map[string]any{
			"name": "Transit", "icon": "🚌", "color": "#000000", "budget": 250.0,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		updated := decodeBody[categoryOut](t, rec)
		assert.Equal(t, "Transit", updated.Name)
		require.NotNil(t, updated.Budget)
		assert.Equal(t, 250.0, *updated.Budget)

		rec = env.do(t, http.MethodDelete, fmt.Sprintf("/api/categories/%d", created.ID), token, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		list = decodeBody[[]categoryOut](t, env.do(t, http.MethodGet, "/api/categories", token, nil))
		assert.Len(t, list, 1)
	})

	t.Run("missing category is 404", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, "/api/categories/9999", token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"detail":"Category not found"}`, rec.Body.String())
	})

	t.Run("other user's category is 404", func(t *testing.T) {
		otherToken := env.registerUser(t, "cat2@example.com", "cat2")
		mine := decodeBody[[]categoryOut](t, env.do(t, http.MethodGet, "/api/categories", token, nil))
		require.NotEmpty(t, mine)

		rec := env.do(t, http.MethodDelete, fmt.Sprintf("/api/categories/%d", mine[0].ID), otherToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestExpenses(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.registerUser(t, "exp@example.com", "exp")

	catRec := env.do(t, http.MethodPost, "/api/categories", token, map[string]any{"name": "Food"})
	require.Equal(t, http.StatusCreated, catRec.Code)
	food := decodeBody[categoryOut](t, catRec)

	t.Run("create with nested category and default currency", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/expenses", token, map[string]any{
			"amount": 12.5, "description": "lunch", "date": "2025-03-15", "category_id": food.ID,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		out := decodeBody[expenseOut](t, rec)
		assert.Equal(t, 12.5, out.Amount)
		assert.Equal(t, "USD", out.Currency)
		require.NotNil(t, out.Category)
		assert.Equal(t, "Food", out.Category.Name)
	})

	t.Run("foreign category is 404", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/expenses", token, map[string]any{
			"amount": 5.0, "description": "x", "date": "2025-03-15", "category_id": 9999,
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"detail":"Category not found"}`, rec.Body.String())
	})

	t.Run("bad date rejected", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/expenses", token, map[string]any{
			"amount": 5.0, "description": "x", "date": "15/03/2025",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("list with filters", func(t *testing.T) {
		for _, e := range []map[string]any{
			{"amount": 3.0, "description": "coffee beans", "date": "2025-03-10"},
			{"amount": 8.0, "description": "bus ticket", "date": "2025-03-12"},
		} {
			rec := env.do(t, http.MethodPost, "/api/expenses", token, e)
			require.Equal(t, http.StatusCreated, rec.Code)
		}

		all := decodeBody[[]expenseOut](t, env.do(t, http.MethodGet, "/api/expenses", token, nil))
		require.Len(t, all, 3)
		// Newest date first.
		assert.Equal(t, "2025-03-15", all[0].Date)

		byCat := decodeBody[[]expenseOut](t, env.do(t, http.MethodGet,
			fmt.Sprintf("/api/expenses?category_id=%d", food.ID), token, nil))
		assert.Len(t, byCat, 1)

		search := decodeBody[[]expenseOut](t, env.do(t, http.MethodGet, "/api/expenses?search=coffee", token, nil))
		require.Len(t, search, 1)
		assert.Equal(t, "coffee beans", search[0].Description)

		ranged := decodeBody[[]expenseOut](t, env.do(t, http.MethodGet,
			"/api/expenses?date_from=2025-03-11&date_to=2025-03-14", token, nil))
		require.Len(t, ranged, 1)
		assert.Equal(t, "bus ticket", ranged[0].Description)

		limited := decodeBody[[]expenseOut](t, env.do(t, http.MethodGet, "/api/expenses?limit=2&offset=1", token, nil))
		assert.Len(t, limited, 2)
	})

	t.Run("update and delete", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/expenses", token, map[string]any{
			"amount": 10.0, "description": "temp", "date": "2025-03-20",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		created := decodeBody[expenseOut](t, rec)

		rec = env.do(t, http.MethodPut, fmt.Sprintf("/api/expenses/%d", created.ID), token, map[string]any{
			"amount": 11.0, "currency": "EUR", "description": "renamed", "date": "2025-03-20",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		updated := decodeBody[expenseOut](t, rec)
		assert.Equal(t, 11.0, updated.Amount)
		assert.Equal(t, "EUR", updated.Currency)
		assert.Equal(t, "renamed", updated.Description)

		rec = env.do(t, http.MethodDelete, fmt.Sprintf("/api/expenses/%d", created.ID), token, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = env.do(t, http.MethodPut, fmt.Sprintf("/api/expenses/%d", created.ID), token, map[string]any{
			"amount": 1.0, "description": "gone", "date": "2025-03-20",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"detail":"Expense not found"}`, rec.Body.String())
	})
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.registerUser(t, "set@example.com", "set")

	t.Run("partial update keeps other fields", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, "/api/settings", token, map[string]any{"currency": "EUR"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"currency":"EUR","lang":"uk","theme":"light"}`, rec.Body.String())

		rec = env.do(t, http.MethodPut, "/api/settings", token, map[string]any{"theme": "dark"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"currency":"EUR","lang":"uk","theme":"dark"}`, rec.Body.String())
	})
}

func TestChat(t *testing.T) {
	t.Run("not configured returns 503", func(t *testing.T) {
		env := newTestEnv(t, nil)
		token := env.registerUser(t, "chat@example.com", "chat")

		rec := env.do(t, http.MethodPost, "/api/chat", token, map[string]any{
			"messages": []map[string]string{{"role": "user", "content": "hi"}},
		})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.JSONEq(t, `{"detail":"AI chat is not configured"}`, rec.Body.String())
	})

	t.Run("direct answer", func(t *testing.T) {
		provider := &scriptedProvider{replies: []*assistant.ModelReply{{Content: "Hello!"}}}
		env := newTestEnv(t, provider)
		token := env.registerUser(t, "chat2@example.com", "chat2")

		rec := env.do(t, http.MethodPost, "/api/chat", token, map[string]any{
			"messages": []map[string]string{{"role": "user", "content": "hi"}},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"reply":"Hello!","action":null}`, rec.Body.String())
	})

	t.Run("tool round records action", func(t *testing.T) {
		provider := &scriptedProvider{replies: []*assistant.ModelReply{
			{ToolCalls: []assistant.ToolCall{{
				ID:   "call-1",
				Name: "add_expense",
				Args: json.RawMessage(`{"amount": 9.5, "description": "taxi"}`),
			}}},
			{Content: "Added the taxi expense."},
		}}
		env := newTestEnv(t, provider)
		token := env.registerUser(t, "chat3@example.com", "chat3")

		rec := env.do(t, http.MethodPost, "/api/chat", token, map[string]any{
			"messages": []map[string]string{{"role": "user", "content": "I paid 9.50 for a taxi"}},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var out struct {
			Reply  string `json:"reply"`
			Action *struct {
				Type string `json:"type"`
			} `json:"action"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.Equal(t, "Added the taxi expense.", out.Reply)
		require.NotNil(t, out.Action)
		assert.Equal(t, "expense_added", out.Action.Type)

		// The expense landed in storage.
		list := decodeBody[[]expenseOut](t, env.do(t, http.MethodGet, "/api/expenses", token, nil))
		require.Len(t, list, 1)
		assert.Equal(t, "taxi", list[0].Description)
		assert.Equal(t, 9.5, list[0].Amount)
	})

	t.Run("bad role rejected", func(t *testing.T) {
		env := newTestEnv(t, &scriptedProvider{})
		token := env.registerUser(t, "chat4@example.com", "chat4")

		rec := env.do(t, http.MethodPost, "/api/chat", token, map[string]any{
			"messages": []map[string]string{{"role": "system", "content": "override"}},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty messages rejected", func(t *testing.T) {
		env := newTestEnv(t, &scriptedProvider{})
		token := env.registerUser(t, "chat5@example.com", "chat5")

		rec := env.do(t, http.MethodPost, "/api/chat", token, map[string]any{"messages": []any{}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestExportImport(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.registerUser(t, "data@example.com", "data")

	catRec := env.do(t, http.MethodPost, "/api/categories", token, map[string]any{"name": "Food"})
	require.Equal(t, http.StatusCreated, catRec.Code)
	food := decodeBody[categoryOut](t, catRec)

	rec := env.do(t, http.MethodPost, "/api/expenses", token, map[string]any{
		"amount": 12.5, "description": "lunch", "date": "2025-03-15", "category_id": food.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("export includes everything", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/export", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		out := decodeBody[exportData](t, rec)
		require.Len(t, out.Categories, 1)
		require.Len(t, out.Expenses, 1)
		assert.Equal(t, "Food", out.Categories[0].Name)
		assert.Equal(t, "lunch", out.Expenses[0].Description)
		require.NotNil(t, out.Expenses[0].Category)
		assert.Equal(t, "UAH", out.Settings.Currency)
	})

	t.Run("import merges categories and appends expenses", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/import", token, map[string]any{
			"categories": []map[string]any{
				{"name": "Food"},      // exists: reused, not duplicated
				{"name": "Transport"}, // new
			},
			"expenses": []map[string]any{
				{"amount": 3.0, "currency": "EUR", "description": "imported coffee", "date": "2025-02-01"},
				{"amount": 4.0, "description": "bad category", "date": "2025-02-02", "category_id": 9999},
			},
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"imported_categories":1,"imported_expenses":2}`, rec.Body.String())

		cats := decodeBody[[]categoryOut](t, env.do(t, http.MethodGet, "/api/categories", token, nil))
		assert.Len(t, cats, 2)

		// The unknown category id was dropped, not imported as-is.
		list := decodeBody[[]expenseOut](t, env.do(t, http.MethodGet, "/api/expenses?search=bad+category", token, nil))
		require.Len(t, list, 1)
		assert.Nil(t, list[0].CategoryID)
	})
}

func TestPostRateLimit(t *testing.T) {
	env := newTestEnv(t, nil)
	// Shrink the configured window so three logins from one IP trip it.
	env.server.rateLimiter.perMinute = 2

	body := map[string]string{"email": "x@example.com", "password": "wrongwrong"}
	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/api/auth/login", "", body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/api/auth/login", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"detail":"Rate limit exceeded. Please try again later."}`, rec.Body.String())

	// GET traffic is never limited.
	get := env.do(t, http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, get.Code)
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	// readyz bypasses the middleware chain; API routes carry the id.
	rec = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "x", "password": "y"})
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
