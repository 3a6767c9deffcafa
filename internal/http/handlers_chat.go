package http

import (
	"errors"
	"net/http"

	"fintrack/internal/assistant"
	"fintrack/internal/log"
)

type chatRequest struct {
	Messages []chatMessage `json:"messages"`
	Lang     string        `json:"lang"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// handleChat runs one assistant turn over the submitted conversation and
// publishes any recorded actions afterwards.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "Messages are required")
		return
	}

	history := make([]assistant.ChatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role != assistant.RoleUser && m.Role != assistant.RoleAssistant {
			writeError(w, http.StatusBadRequest, "Message role must be user or assistant")
			return
		}
		history = append(history, assistant.ChatMessage{Role: m.Role, Content: m.Content})
	}

	uid := userID(r)
	outcome, err := s.assistant.RunTurn(r.Context(), uid, history)
	if err != nil {
		if errors.Is(err, assistant.ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, "AI chat is not configured")
			return
		}
		s.logger.ErrorContext(r.Context(), "chat turn failed",
			log.FieldUserID, uid, log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.expenses.PublishTurnActions(r.Context(), uid, outcome.Actions)

	writeJSON(w, http.StatusOK, outcome)
}
