// Package store is the persistence boundary of the backend. The realtime core
// never touches it directly; the HTTP layer consumes it through the Store
// interface so handler tests can run against an in-memory fake.
package store

import (
	"context"
	"errors"

	"github.com/officeshinyujun/sien/internal/domain"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrAlreadyExists is returned on unique constraint violations.
	ErrAlreadyExists = errors.New("store: already exists")
)

// RoomSpec carries the caller-supplied fields of a new room.
type RoomSpec struct {
	Name        string
	Description string
	MaxPlayers  int
	Point       int
	Restitution float64
	Friction    float64
	Image       string
}

// Store exposes every persistence operation the API surface needs.
type Store interface {
	CreateUser(ctx context.Context, nickname, passwordHash, profileImage string) (domain.User, error)
	UserByNickname(ctx context.Context, nickname string) (domain.User, error)
	UserByID(ctx context.Context, id int64) (domain.User, error)

	Rooms(ctx context.Context, offset, limit int) ([]domain.Room, error)
	CreateRoom(ctx context.Context, spec RoomSpec, ownerID int64) (domain.Room, error)
	ActiveUsers(ctx context.Context, roomID int64) ([]domain.User, error)
	LatestShot(ctx context.Context, roomID int64) (domain.Shot, error)

	CreateSession(ctx context.Context, roomID, userID int64) (domain.GameSession, error)
	SessionByID(ctx context.Context, id int64) (domain.GameSession, error)
	EndSession(ctx context.Context, id int64) (domain.GameSession, error)

	CreateShot(ctx context.Context, sessionID int64, positions []domain.BallState, shotType domain.ShotType) (domain.Shot, error)
}
