package httpapi

import (
	"errors"
	"net/http"

	"github.com/officeshinyujun/sien/internal/auth"
	"github.com/officeshinyujun/sien/internal/logging"
	"github.com/officeshinyujun/sien/internal/store"
)

type credentialsRequest struct {
	Nickname string `json:"nickname"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Nickname == "" || req.Password == "" {
		s.respondError(w, http.StatusBadRequest, "nickname and password are required")
		return
	}

	if _, err := s.store.UserByNickname(r.Context(), req.Nickname); err == nil {
		s.respondError(w, http.StatusBadRequest, "Nickname already registered")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		s.logger.Error("signup lookup failed", "nickname", req.Nickname, "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("password hash failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	image, err := s.avatars.Generate()
	if err != nil {
		s.logger.Error("avatar generation failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user, err := s.store.CreateUser(r.Context(), req.Nickname, hash, image)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			s.respondError(w, http.StatusBadRequest, "Nickname already registered")
			return
		}
		s.logger.Error("user creation failed", "nickname", req.Nickname, "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.respondJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.store.UserByNickname(r.Context(), req.Nickname)
	if err != nil || !auth.VerifyPassword(req.Password, user.PasswordHash) {
		s.respondError(w, http.StatusUnauthorized, "Incorrect nickname or password")
		return
	}

	token, err := s.auth.IssueToken(r.Context(), user)
	if err != nil {
		s.logger.Error("token issue failed", "user_id", user.ID, "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.respondJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, currentUser(r))
}

// handleLogout revokes the presented token so it stops resolving immediately
// instead of waiting out its TTL.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.RevokeToken(r.Context(), bearerToken(r)); err != nil {
		logging.FromContext(r.Context()).Error("token revoke failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
