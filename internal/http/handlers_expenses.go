package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
)

type expenseRequest struct {
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
	CategoryID  *int64  `json:"category_id"`
}

func (req *expenseRequest) toExpense(userID int64) core.Expense {
	e := core.Expense{
		UserID:      userID,
		CategoryID:  req.CategoryID,
		Amount:      req.Amount,
		Currency:    strings.TrimSpace(req.Currency),
		Description: strings.TrimSpace(req.Description),
		Date:        strings.TrimSpace(req.Date),
	}
	if e.Currency == "" {
		e.Currency = core.FallbackCurrency
	}
	return e
}

// parseExpenseFilter reads the list query parameters. Out-of-range limit
// and offset values are clamped rather than rejected.
func parseExpenseFilter(r *http.Request) core.ExpenseFilter {
	q := r.URL.Query()
	f := core.ExpenseFilter{
		DateFrom: strings.TrimSpace(q.Get("date_from")),
		DateTo:   strings.TrimSpace(q.Get("date_to")),
		Search:   strings.TrimSpace(q.Get("search")),
	}
	if v := q.Get("category_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.CategoryID = &id
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			f.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			f.Offset = n
		}
	}
	return f
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)

	items, err := s.repo.ListExpenses(r.Context(), uid, parseExpenseFilter(r))
	if err != nil {
		s.logger.ErrorContext(r.Context(), "list expenses failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	categories, err := s.categoryIndex(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	out := make([]expenseOut, 0, len(items))
	for i := range items {
		out = append(out, toExpenseOut(&items[i], categories))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	e := req.toExpense(userID(r))
	if err := e.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.expenses.CreateExpense(r.Context(), &e, amqp.SourceAPI); err != nil {
		s.writeExpenseError(w, r, err, "create expense failed")
		return
	}

	categories, err := s.categoryIndex(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseOut(&e, categories))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Expense not found")
		return
	}

	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if _, err := s.repo.GetExpense(r.Context(), userID(r), id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Expense not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	e := req.toExpense(userID(r))
	e.ID = id
	if err := e.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.expenses.UpdateExpense(r.Context(), &e); err != nil {
		s.writeExpenseError(w, r, err, "update expense failed")
		return
	}

	updated, err := s.repo.GetExpense(r.Context(), userID(r), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	categories, err := s.categoryIndex(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, toExpenseOut(updated, categories))
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Expense not found")
		return
	}

	if err := s.expenses.DeleteExpense(r.Context(), userID(r), id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Expense not found")
			return
		}
		s.logger.ErrorContext(r.Context(), "delete expense failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// categoryIndex loads the user's categories keyed by id for nested output.
func (s *Server) categoryIndex(r *http.Request) (map[int64]*core.Category, error) {
	cats, err := s.repo.ListCategories(r.Context(), userID(r))
	if err != nil {
		s.logger.ErrorContext(r.Context(), "load categories failed", log.FieldError, err)
		return nil, err
	}
	index := make(map[int64]*core.Category, len(cats))
	for i := range cats {
		index[cats[i].ID] = &cats[i]
	}
	return index, nil
}

// writeExpenseError maps service errors for the create/update paths. A
// not-found here means the referenced category is missing or foreign.
func (s *Server) writeExpenseError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "Category not found")
	case errors.Is(err, core.ErrEmptyDescription), errors.Is(err, core.ErrInvalidDate):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.ErrorContext(r.Context(), msg, log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
