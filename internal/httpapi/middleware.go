package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/officeshinyujun/sien/internal/domain"
	"github.com/officeshinyujun/sien/internal/logging"
)

type contextKey string

const userKey contextKey = "user"

// requireUser resolves the bearer token and stores the user in the request
// context, along with a logger carrying the user id. Missing or invalid
// credentials end the request with 401.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		user, err := s.auth.UserFromToken(r.Context(), token)
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		ctx = logging.WithLogger(ctx, s.logger.WithFields(map[string]any{"user_id": user.ID}))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func currentUser(r *http.Request) domain.User {
	user, _ := r.Context().Value(userKey).(domain.User)
	return user
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}
