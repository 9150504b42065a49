package devserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/florianilch/storefront/internal/session"
)

type registerRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(ctx, w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := s.store.createUser(strings.TrimSpace(req.Name), strings.TrimSpace(req.Email), req.Password, "USER")
	if errors.Is(err, errEmailTaken) {
		writeError(ctx, w, "Email already registered", http.StatusConflict)
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to create user", "error", err)
		writeError(ctx, w, "Registration failed", http.StatusInternalServerError)
		return
	}

	slog.InfoContext(ctx, "user registered", "user_id", user.ID)
	s.writeTokens(w, r, user, http.StatusCreated)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(ctx, w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := s.store.authenticate(strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		writeError(ctx, w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	s.writeTokens(w, r, user, http.StatusOK)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req refreshRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(ctx, w, err.Error(), http.StatusBadRequest)
		return
	}

	userID, err := s.tokens.redeem(req.RefreshToken)
	if err != nil {
		writeError(ctx, w, "Invalid refresh token", http.StatusUnauthorized)
		return
	}
	user, ok := s.store.user(userID)
	if !ok {
		writeError(ctx, w, "Invalid refresh token", http.StatusUnauthorized)
		return
	}

	slog.DebugContext(ctx, "refresh token rotated", "user_id", user.ID)
	s.writeTokens(w, r, user, http.StatusOK)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := s.store.user(claimsFrom(r.Context()).Subject)
	if !ok {
		writeError(r.Context(), w, "User not found", http.StatusNotFound)
		return
	}
	writeData(r.Context(), w, user, http.StatusOK)
}

func (s *Server) writeTokens(w http.ResponseWriter, r *http.Request, user session.User, status int) {
	pair, err := s.tokens.issue(user)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to issue tokens", "error", err)
		writeError(r.Context(), w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeData(r.Context(), w, pair, status)
}
