package http

import (
	"net/http"
	"strings"

	"fintrack/internal/log"
)

type settingsRequest struct {
	Currency *string `json:"currency"`
	Lang     *string `json:"lang"`
	Theme    *string `json:"theme"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.repo.GetOrCreateSettings(r.Context(), userID(r))
	if err != nil {
		s.logger.ErrorContext(r.Context(), "get settings failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, toSettingsOut(settings))
}

// handleUpdateSettings applies a partial update: only provided fields
// change.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	settings, err := s.repo.GetOrCreateSettings(r.Context(), userID(r))
	if err != nil {
		s.logger.ErrorContext(r.Context(), "get settings failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if req.Currency != nil && strings.TrimSpace(*req.Currency) != "" {
		settings.Currency = strings.TrimSpace(*req.Currency)
	}
	if req.Lang != nil && strings.TrimSpace(*req.Lang) != "" {
		settings.Lang = strings.TrimSpace(*req.Lang)
	}
	if req.Theme != nil && strings.TrimSpace(*req.Theme) != "" {
		settings.Theme = strings.TrimSpace(*req.Theme)
	}

	if err := s.repo.UpsertSettings(r.Context(), settings); err != nil {
		s.logger.ErrorContext(r.Context(), "update settings failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, toSettingsOut(settings))
}
