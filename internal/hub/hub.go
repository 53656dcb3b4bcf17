// Package hub tracks which users are live-connected to which rooms and fans
// out messages to everyone present in a room.
//
// The hub is the only shared mutable state of the realtime layer. Entries are
// created and destroyed exclusively through Register and Unregister, rooms are
// partitioned under their own locks so traffic in one room never serializes
// another, and membership reads for delivery always go through a snapshot.
package hub

import (
	"context"
	"sync"
	"time"

	"github.com/officeshinyujun/sien/internal/domain"
	"github.com/officeshinyujun/sien/internal/logging"
)

const defaultSendTimeout = 5 * time.Second

// room holds the members of a single room under its own lock.
type room struct {
	mu      sync.RWMutex
	members map[int64]domain.Conn

	// removed is set while holding both the hub lock and the room lock when
	// the last member leaves. A Register that raced the removal re-resolves
	// the room instead of inserting into the orphaned map.
	removed bool
}

func (r *room) snapshot() map[int64]domain.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make(map[int64]domain.Conn, len(r.members))
	for userID, conn := range r.members {
		members[userID] = conn
	}
	return members
}

// Hub is the process-wide connection registry and per-room broadcaster.
type Hub struct {
	mu    sync.RWMutex
	rooms map[int64]*room

	sendTimeout time.Duration
	logger      *logging.Logger
}

// Options configures a Hub.
type Options struct {
	// SendTimeout bounds a single delivery attempt to one recipient. A send
	// that does not complete in time counts as a delivery failure for that
	// recipient only.
	SendTimeout time.Duration
}

// New creates a hub with no rooms.
func New(logger *logging.Logger, opts ...Options) *Hub {
	h := &Hub{
		rooms:       make(map[int64]*room),
		sendTimeout: defaultSendTimeout,
		logger:      logger,
	}

	if len(opts) > 0 && opts[0].SendTimeout > 0 {
		h.sendTimeout = opts[0].SendTimeout
	}

	return h
}

// Register inserts conn as the connection for (roomID, userID), replacing any
// previously registered connection for the pair. The replaced connection is
// not closed here; its own read loop notices the dead transport and cleans up,
// at which point the ID check in Unregister keeps it from evicting conn.
func (h *Hub) Register(roomID, userID int64, conn domain.Conn) {
	for {
		r := h.getOrCreateRoom(roomID)

		r.mu.Lock()
		if r.removed {
			r.mu.Unlock()
			continue
		}

		prev := r.members[userID]
		r.members[userID] = conn
		count := len(r.members)
		r.mu.Unlock()

		if prev != nil && prev.ID() != conn.ID() {
			h.logger.Info("connection replaced",
				"room_id", roomID,
				"user_id", userID,
				"old_conn_id", prev.ID(),
				"conn_id", conn.ID(),
			)
		} else {
			h.logger.Info("connection registered",
				"room_id", roomID,
				"user_id", userID,
				"conn_id", conn.ID(),
				"room_members", count,
			)
		}
		return
	}
}

// Unregister removes the entry for (roomID, userID) only if conn is still the
// registered connection for the pair. A stale unregister from an already
// replaced connection is a silent no-op. When the last member leaves, the
// room entry itself is removed.
func (h *Hub) Unregister(roomID, userID int64, conn domain.Conn) {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()

	if !ok {
		return
	}

	r.mu.Lock()
	current, ok := r.members[userID]
	if !ok || current.ID() != conn.ID() {
		r.mu.Unlock()
		return
	}
	delete(r.members, userID)
	count := len(r.members)
	r.mu.Unlock()

	h.logger.Info("connection unregistered",
		"room_id", roomID,
		"user_id", userID,
		"conn_id", conn.ID(),
		"room_members", count,
	)

	if count == 0 {
		h.removeRoomIfEmpty(roomID, r)
	}
}

// Members returns a copy of the (user -> connection) mapping for the room.
// An unknown room yields an empty map.
func (h *Hub) Members(roomID int64) map[int64]domain.Conn {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()

	if !ok {
		return map[int64]domain.Conn{}
	}
	return r.snapshot()
}

// Broadcast delivers message to every current member of the room. Delivery is
// best-effort and isolated per recipient: a failed or timed-out send is logged
// and the remaining members still receive the message. A failed send never
// unregisters the recipient; that is the connection's own lifecycle to drive.
func (h *Hub) Broadcast(ctx context.Context, roomID int64, message []byte) {
	members := h.Members(roomID)
	if len(members) == 0 {
		return
	}

	var delivered, failed int
	for userID, conn := range members {
		sendCtx, cancel := context.WithTimeout(ctx, h.sendTimeout)
		err := conn.Send(sendCtx, message)
		cancel()

		if err != nil {
			failed++
			h.logger.Error("failed to send to member",
				"room_id", roomID,
				"user_id", userID,
				"conn_id", conn.ID(),
				"error", err,
			)
			continue
		}
		delivered++
	}

	h.logger.Debug("broadcast complete",
		"room_id", roomID,
		"delivered", delivered,
		"failed", failed,
	)
}

// Stats returns the current number of rooms and connections.
func (h *Hub) Stats() (rooms, conns int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms = len(h.rooms)
	for _, r := range h.rooms {
		r.mu.RLock()
		conns += len(r.members)
		r.mu.RUnlock()
	}
	return rooms, conns
}

func (h *Hub) getOrCreateRoom(roomID int64) *room {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if ok {
		return r
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[roomID]; ok {
		return r
	}
	r = &room{members: make(map[int64]domain.Conn)}
	h.rooms[roomID] = r
	return r
}

// removeRoomIfEmpty drops the room entry unless someone registered since the
// caller observed it empty. Lock order is hub before room on both paths.
func (h *Hub) removeRoomIfEmpty(roomID int64, r *room) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[roomID] != r {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.members) > 0 {
		return
	}
	r.removed = true
	delete(h.rooms, roomID)

	h.logger.Info("room removed", "room_id", roomID)
}
