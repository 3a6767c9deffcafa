package http

import (
	"context"
	"net/http"

	"fintrack/internal/assistant"
	"fintrack/internal/auth"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

// Server is the JSON API surface: auth, categories, expenses, settings,
// chat, and export/import, all user-scoped behind bearer tokens.
type Server struct {
	http.Server

	repo       *storage.SQLiteRepository
	expenses   *services.ExpenseService
	authn      *auth.PasswordAuthenticator
	jwt        *auth.JWTManager
	assistant  *assistant.Assistant
	logger     *log.Logger
	structured *log.StructuredLogger

	rateLimiter *writeLimiter
	metrics     *securityMetrics
}

// NewServer wires routes and middleware, returning a ready-to-run server.
// writePerMinute is the per-IP POST rate limit; non-positive means default.
func NewServer(
	addr string,
	repo *storage.SQLiteRepository,
	expenses *services.ExpenseService,
	authn *auth.PasswordAuthenticator,
	jwtManager *auth.JWTManager,
	assist *assistant.Assistant,
	logger *log.Logger,
	writePerMinute int,
) *Server {
	mux := http.NewServeMux()

	httpLogger := logger.WithComponent(log.ComponentHTTP)
	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		repo:        repo,
		expenses:    expenses,
		authn:       authn,
		jwt:         jwtManager,
		assistant:   assist,
		logger:      httpLogger,
		structured:  log.NewStructuredLogger(httpLogger),
		rateLimiter: newWriteLimiter(writePerMinute),
		metrics:     &securityMetrics{},
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/auth/register", s.withCommon(s.handleRegister))
	mux.HandleFunc("POST /api/auth/login", s.withCommon(s.handleLogin))
	mux.HandleFunc("GET /api/auth/me", s.requireAuth(s.handleMe))

	mux.HandleFunc("GET /api/categories", s.requireAuth(s.handleListCategories))
	mux.HandleFunc("POST /api/categories", s.requireAuth(s.handleCreateCategory))
	mux.HandleFunc("PUT /api/categories/{id}", s.requireAuth(s.handleUpdateCategory))
	mux.HandleFunc("DELETE /api/categories/{id}", s.requireAuth(s.handleDeleteCategory))

	mux.HandleFunc("GET /api/expenses", s.requireAuth(s.handleListExpenses))
	mux.HandleFunc("POST /api/expenses", s.requireAuth(s.handleCreateExpense))
	mux.HandleFunc("PUT /api/expenses/{id}", s.requireAuth(s.handleUpdateExpense))
	mux.HandleFunc("DELETE /api/expenses/{id}", s.requireAuth(s.handleDeleteExpense))

	mux.HandleFunc("GET /api/settings", s.requireAuth(s.handleGetSettings))
	mux.HandleFunc("PUT /api/settings", s.requireAuth(s.handleUpdateSettings))

	mux.HandleFunc("POST /api/chat", s.requireAuth(s.handleChat))

	mux.HandleFunc("GET /api/export", s.requireAuth(s.handleExport))
	mux.HandleFunc("POST /api/import", s.requireAuth(s.handleImport))

	return s
}

// Shutdown stops the HTTP server and the rate limiter cleanup goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.stop()
	}
	return s.Server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
