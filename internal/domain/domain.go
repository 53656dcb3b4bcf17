package domain

import (
	"time"
)

// User is a registered player. PasswordHash never leaves the store layer;
// JSON serialization mirrors the public API shape.
type User struct {
	ID           int64  `json:"id"`
	Nickname     string `json:"nickname"`
	PasswordHash string `json:"-"`
	ProfileImage string `json:"profile_image,omitempty"`
}

// Room is a billiards table players gather around. PlayerCount is derived
// from active sessions, not stored.
type Room struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	MaxPlayers  int     `json:"max_players"`
	Point       int     `json:"point"`
	Restitution float64 `json:"restitution"`
	Friction    float64 `json:"friction"`
	Image       string  `json:"image"`
	PlayerCount int     `json:"player_count"`
	OwnerID     int64   `json:"owner_id"`
}

// GameSession is one player's seat at a room's table.
type GameSession struct {
	ID       int64 `json:"id"`
	RoomID   int64 `json:"room_id"`
	UserID   int64 `json:"user_id"`
	IsActive bool  `json:"is_active"`
}

// ShotType is the kind of table interaction a shot records.
type ShotType string

const (
	ShotTypeLaunch ShotType = "LAUNCH"
	ShotTypeStop   ShotType = "STOP"
)

// Vector3 is a position or rotation in table space.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// BallState is the pose of a single ball. ID 0 is the cue ball.
type BallState struct {
	ID       int     `json:"id"`
	Position Vector3 `json:"position"`
	Rotation Vector3 `json:"rotation"`
}

// Shot is a persisted table state snapshot within a session.
type Shot struct {
	ID            int64       `json:"id"`
	SessionID     int64       `json:"session_id"`
	BallPositions []BallState `json:"ball_positions"`
	Type          ShotType    `json:"type"`
	CreatedAt     time.Time   `json:"created_at"`
}
