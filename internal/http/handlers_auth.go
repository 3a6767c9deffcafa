package http

import (
	"errors"
	"net/http"
	"strings"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/log"
)

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleRegister creates the account plus its default settings row and
// returns a fresh token.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	if req.Email == "" || req.Username == "" {
		writeError(w, http.StatusBadRequest, "Email and username are required")
		return
	}

	user, err := s.authn.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmailExists):
			writeError(w, http.StatusBadRequest, "Email already registered")
		case errors.Is(err, auth.ErrUsernameExists):
			writeError(w, http.StatusBadRequest, "Username already taken")
		case errors.Is(err, auth.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		default:
			s.logger.ErrorContext(r.Context(), "register failed", log.FieldError, err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	settings := core.DefaultSettings(user.ID)
	if err := s.repo.UpsertSettings(r.Context(), &settings); err != nil {
		s.logger.ErrorContext(r.Context(), "failed to create default settings",
			log.FieldUserID, user.ID, log.FieldError, err)
	}

	s.writeToken(w, r, user, http.StatusCreated)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.authn.Authenticate(r.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		s.logger.ErrorContext(r.Context(), "login failed", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.writeToken(w, r, user, http.StatusOK)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.repo.GetUserByID(r.Context(), userID(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, toUserOut(user))
}

func (s *Server) writeToken(w http.ResponseWriter, r *http.Request, user *core.User, status int) {
	token, err := s.jwt.Generate(user)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "token generation failed",
			log.FieldUserID, user.ID, log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, status, tokenOut{
		AccessToken: token,
		TokenType:   "bearer",
		User:        toUserOut(user),
	})
}
