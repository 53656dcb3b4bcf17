// Package httpapi is the request/response surface of the backend: auth, room,
// and session CRUD plus the realtime channel entry point. Domain errors are
// raised before any broadcast message is constructed, so a rejected mutation
// never produces a phantom realtime event.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/officeshinyujun/sien/internal/domain"
	"github.com/officeshinyujun/sien/internal/logging"
	"github.com/officeshinyujun/sien/internal/store"
)

// AuthService is the credential collaborator consumed by the handlers.
type AuthService interface {
	IssueToken(ctx context.Context, user domain.User) (string, error)
	UserFromToken(ctx context.Context, token string) (domain.User, error)
	RevokeToken(ctx context.Context, token string) error
}

// AvatarGenerator produces a public URL path for a fresh profile image.
type AvatarGenerator interface {
	Generate() (string, error)
}

// Notifier bridges persisted mutations onto the realtime channel.
type Notifier interface {
	ShotSaved(roomID int64, shot domain.Shot, actorID int64)
	SessionEnded(roomID int64, session domain.GameSession, actorID int64)
}

// Server bundles the handler dependencies.
type Server struct {
	store    store.Store
	auth     AuthService
	avatars  AvatarGenerator
	notifier Notifier
	logger   *logging.Logger
}

// NewServer creates the HTTP API server.
func NewServer(st store.Store, auth AuthService, avatars AvatarGenerator, notifier Notifier, logger *logging.Logger) *Server {
	return &Server{
		store:    st,
		auth:     auth,
		avatars:  avatars,
		notifier: notifier,
		logger:   logger,
	}
}

// Router assembles the route tree. The realtime websocket handler and the
// static file directory are passed in by the caller; ws and static may be nil
// or empty in tests that only exercise the JSON surface. corsOrigins lists the
// browser origins allowed to call the API with credentials.
func (s *Server) Router(ws http.HandlerFunc, staticDir string, corsOrigins []string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", s.handleSignup)
		r.Post("/login", s.handleLogin)
		r.With(s.requireUser).Get("/me", s.handleMe)
		r.With(s.requireUser).Post("/logout", s.handleLogout)
	})

	r.Route("/rooms", func(r chi.Router) {
		r.Get("/", s.handleListRooms)
		r.With(s.requireUser).Post("/", s.handleCreateRoom)
		r.Get("/{roomID}/users", s.handleActiveUsers)
		r.Get("/{roomID}/shots/latest", s.handleLatestShot)
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Use(s.requireUser)
		r.Post("/", s.handleCreateSession)
		r.Post("/{sessionID}/shots", s.handleCreateShot)
		r.Patch("/{sessionID}/end", s.handleEndSession)
	})

	if ws != nil {
		r.Get("/ws/{roomID}", ws)
	}

	if staticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir)))
		r.Get("/static/*", fs.ServeHTTP)
	}

	return r
}
