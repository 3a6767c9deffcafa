package http

import (
	"errors"
	"net/http"
	"strings"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/log"
)

type exportData struct {
	Categories []categoryOut `json:"categories"`
	Expenses   []expenseOut  `json:"expenses"`
	Settings   settingsOut   `json:"settings"`
}

type importData struct {
	Categories []categoryRequest `json:"categories"`
	Expenses   []expenseRequest  `json:"expenses"`
}

type importResult struct {
	ImportedCategories int `json:"imported_categories"`
	ImportedExpenses   int `json:"imported_expenses"`
}

// handleExport dumps all of the user's data as one JSON document.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	ctx := r.Context()

	cats, err := s.repo.ListCategories(ctx, uid)
	if err != nil {
		s.logger.ErrorContext(ctx, "export categories failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	items, err := s.repo.ListExpenses(ctx, uid, core.ExpenseFilter{})
	if err != nil {
		s.logger.ErrorContext(ctx, "export expenses failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	settings, err := s.repo.GetOrCreateSettings(ctx, uid)
	if err != nil {
		s.logger.ErrorContext(ctx, "export settings failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	index := make(map[int64]*core.Category, len(cats))
	out := exportData{
		Categories: make([]categoryOut, 0, len(cats)),
		Expenses:   make([]expenseOut, 0, len(items)),
		Settings:   toSettingsOut(settings),
	}
	for i := range cats {
		index[cats[i].ID] = &cats[i]
		out.Categories = append(out.Categories, toCategoryOut(&cats[i]))
	}
	for i := range items {
		out.Expenses = append(out.Expenses, toExpenseOut(&items[i], index))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleImport merges categories by exact name and appends expenses.
// Existing data is never deleted. Incoming category ids that do not match
// one of the user's categories are dropped; the expense imports
// uncategorized instead of failing the whole batch.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var data importData
	if err := decodeJSON(r, &data); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	uid := userID(r)
	ctx := r.Context()
	result := importResult{}

	for i := range data.Categories {
		name := strings.TrimSpace(data.Categories[i].Name)
		if name == "" {
			continue
		}
		_, err := s.repo.GetCategoryByName(ctx, uid, name)
		if err == nil {
			continue // reuse the existing category
		}
		if !errors.Is(err, core.ErrNotFound) {
			s.logger.ErrorContext(ctx, "import category lookup failed", log.FieldError, err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		cat := data.Categories[i].toCategory(uid)
		if err := cat.Validate(); err != nil {
			continue
		}
		if err := s.repo.CreateCategory(ctx, &cat); err != nil {
			s.logger.ErrorContext(ctx, "import category failed", log.FieldError, err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		result.ImportedCategories++
	}

	for i := range data.Expenses {
		e := data.Expenses[i].toExpense(uid)
		if err := e.Validate(); err != nil {
			continue
		}
		if e.CategoryID != nil {
			if _, err := s.repo.GetCategory(ctx, uid, *e.CategoryID); err != nil {
				e.CategoryID = nil
			}
		}
		if err := s.expenses.CreateExpense(ctx, &e, amqp.SourceAPI); err != nil {
			s.logger.ErrorContext(ctx, "import expense failed", log.FieldError, err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		result.ImportedExpenses++
	}

	writeJSON(w, http.StatusOK, result)
}
