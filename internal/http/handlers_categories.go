package http

import (
	"errors"
	"net/http"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

type categoryRequest struct {
	Name   string   `json:"name"`
	Icon   string   `json:"icon"`
	Color  string   `json:"color"`
	Budget *float64 `json:"budget"`
}

func (req *categoryRequest) toCategory(userID int64) core.Category {
	cat := core.Category{
		UserID: userID,
		Name:   strings.TrimSpace(req.Name),
		Icon:   req.Icon,
		Color:  req.Color,
		Budget: req.Budget,
	}
	if cat.Icon == "" {
		cat.Icon = core.DefaultIcon
	}
	if cat.Color == "" {
		cat.Color = core.DefaultColor
	}
	return cat
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.repo.ListCategories(r.Context(), userID(r))
	if err != nil {
		s.logger.ErrorContext(r.Context(), "list categories failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	out := make([]categoryOut, 0, len(cats))
	for i := range cats {
		out = append(out, toCategoryOut(&cats[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	cat := req.toCategory(userID(r))
	if err := cat.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.repo.CreateCategory(r.Context(), &cat); err != nil {
		s.logger.ErrorContext(r.Context(), "create category failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, toCategoryOut(&cat))
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Category not found")
		return
	}

	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	cat := req.toCategory(userID(r))
	cat.ID = id
	if err := cat.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.repo.UpdateCategory(r.Context(), &cat); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Category not found")
			return
		}
		s.logger.ErrorContext(r.Context(), "update category failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	updated, err := s.repo.GetCategory(r.Context(), userID(r), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, toCategoryOut(updated))
}

// handleDeleteCategory removes a category; its expenses become
// uncategorized, not deleted.
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, "Category not found")
		return
	}

	if err := s.repo.DeleteCategory(r.Context(), userID(r), id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Category not found")
			return
		}
		s.logger.ErrorContext(r.Context(), "delete category failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
