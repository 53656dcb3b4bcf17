package domain

import "context"

// Conn is a live realtime connection into a room.
//
// ID is unique per accepted connection, never per user: the registry uses it
// to decide whether an unregister call still refers to the connection it
// holds, so a late disconnect from a replaced connection cannot evict the
// replacement.
type Conn interface {
	// ID returns the connection's unique token.
	ID() string

	// UserID returns the user behind the connection.
	UserID() int64

	// RoomID returns the room the connection was opened into.
	RoomID() int64

	// Send delivers one outbound message. It must not block past ctx.
	Send(ctx context.Context, message []byte) error

	// Close releases the underlying transport.
	Close() error
}
