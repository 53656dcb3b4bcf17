package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/officeshinyujun/sien/internal/domain"
	"github.com/officeshinyujun/sien/internal/logging"
)

type mockConn struct {
	id       string
	userID   int64
	roomID   int64
	mu       sync.Mutex
	received [][]byte
	sendErr  error
	closed   bool
}

func newMockConn(id string, roomID, userID int64) *mockConn {
	return &mockConn{id: id, roomID: roomID, userID: userID}
}

func (m *mockConn) ID() string    { return m.id }
func (m *mockConn) UserID() int64 { return m.userID }
func (m *mockConn) RoomID() int64 { return m.roomID }

func (m *mockConn) Send(_ context.Context, message []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, message)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) getReceived() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.received...)
}

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: "error", Format: "text"})
}

func TestHub_RegisterReplacesExistingConnection(t *testing.T) {
	h := New(testLogger())

	first := newMockConn("conn-1", 7, 1)
	second := newMockConn("conn-2", 7, 1)

	h.Register(7, 1, first)
	h.Register(7, 1, second)

	members := h.Members(7)
	require.Len(t, members, 1)
	assert.Equal(t, "conn-2", members[1].ID())

	// The replaced connection is left to terminate on its own.
	assert.False(t, first.closed)
}

func TestHub_UnregisterIgnoresStaleConnection(t *testing.T) {
	h := New(testLogger())

	first := newMockConn("conn-1", 7, 1)
	second := newMockConn("conn-2", 7, 1)

	h.Register(7, 1, first)
	h.Register(7, 1, second)

	// The first connection's disconnect arrives after it was replaced.
	h.Unregister(7, 1, first)

	members := h.Members(7)
	require.Len(t, members, 1)
	assert.Equal(t, "conn-2", members[1].ID())
}

func TestHub_LastMemberOutRemovesRoom(t *testing.T) {
	h := New(testLogger())

	a := newMockConn("conn-a", 7, 1)
	b := newMockConn("conn-b", 7, 2)

	h.Register(7, 1, a)
	h.Register(7, 2, b)

	h.Unregister(7, 1, a)
	rooms, conns := h.Stats()
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 1, conns)

	h.Unregister(7, 2, b)
	rooms, conns = h.Stats()
	assert.Equal(t, 0, rooms)
	assert.Equal(t, 0, conns)

	assert.Empty(t, h.Members(7))
}

func TestHub_UnregisterUnknownEntryIsNoop(t *testing.T) {
	h := New(testLogger())

	h.Unregister(7, 1, newMockConn("conn-1", 7, 1))

	a := newMockConn("conn-a", 7, 1)
	h.Register(7, 1, a)
	h.Unregister(7, 2, newMockConn("conn-x", 7, 2))

	require.Len(t, h.Members(7), 1)
}

func TestHub_BroadcastDeliversToAllMembers(t *testing.T) {
	h := New(testLogger())

	a := newMockConn("conn-a", 7, 1)
	b := newMockConn("conn-b", 7, 2)
	other := newMockConn("conn-c", 8, 3)

	h.Register(7, 1, a)
	h.Register(7, 2, b)
	h.Register(8, 3, other)

	h.Broadcast(context.Background(), 7, []byte(`{"type":"SHOT_SAVED"}`))

	require.Len(t, a.getReceived(), 1)
	require.Len(t, b.getReceived(), 1)
	assert.Equal(t, []byte(`{"type":"SHOT_SAVED"}`), a.getReceived()[0])
	assert.Equal(t, a.getReceived()[0], b.getReceived()[0])

	// No cross-room delivery.
	assert.Empty(t, other.getReceived())
}

func TestHub_BroadcastSurvivesFailedRecipient(t *testing.T) {
	h := New(testLogger())

	broken := newMockConn("conn-broken", 7, 1)
	broken.sendErr = errors.New("write: broken pipe")
	ok1 := newMockConn("conn-ok1", 7, 2)
	ok2 := newMockConn("conn-ok2", 7, 3)

	h.Register(7, 1, broken)
	h.Register(7, 2, ok1)
	h.Register(7, 3, ok2)

	h.Broadcast(context.Background(), 7, []byte("payload"))

	assert.Len(t, ok1.getReceived(), 1)
	assert.Len(t, ok2.getReceived(), 1)

	// A failed send does not evict the member; cleanup belongs to the
	// connection's own lifecycle.
	require.Len(t, h.Members(7), 3)
}

func TestHub_BroadcastToEmptyRoomIsNoop(t *testing.T) {
	h := New(testLogger())

	assert.NotPanics(t, func() {
		h.Broadcast(context.Background(), 42, []byte("nobody home"))
	})
}

func TestHub_BroadcastOrderPerSender(t *testing.T) {
	h := New(testLogger())

	a := newMockConn("conn-a", 7, 1)
	h.Register(7, 1, a)

	for i := 0; i < 10; i++ {
		h.Broadcast(context.Background(), 7, []byte{byte(i)})
	}

	received := a.getReceived()
	require.Len(t, received, 10)
	for i, msg := range received {
		assert.Equal(t, []byte{byte(i)}, msg)
	}
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	h := New(testLogger())

	const (
		rooms        = 8
		usersPerRoom = 16
		rounds       = 25
	)

	var wg sync.WaitGroup
	for roomID := int64(0); roomID < rooms; roomID++ {
		for userID := int64(0); userID < usersPerRoom; userID++ {
			wg.Add(1)
			go func(roomID, userID int64) {
				defer wg.Done()
				for i := 0; i < rounds; i++ {
					conn := newMockConn(fmt.Sprintf("conn-%d-%d-%d", roomID, userID, i), roomID, userID)
					h.Register(roomID, userID, conn)
					h.Broadcast(context.Background(), roomID, []byte("tick"))
					h.Unregister(roomID, userID, conn)
				}
			}(roomID, userID)
		}
	}
	wg.Wait()

	gotRooms, gotConns := h.Stats()
	assert.Equal(t, 0, gotRooms, "all rooms should be reclaimed")
	assert.Equal(t, 0, gotConns)
}

func TestHub_ConcurrentReconnectKeepsSingleEntry(t *testing.T) {
	h := New(testLogger())

	const attempts = 50

	var wg sync.WaitGroup
	conns := make([]*mockConn, attempts)
	for i := 0; i < attempts; i++ {
		conns[i] = newMockConn(fmt.Sprintf("conn-%d", i), 7, 1)
	}

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(conn *mockConn) {
			defer wg.Done()
			h.Register(7, 1, conn)
		}(conns[i])
	}
	wg.Wait()

	members := h.Members(7)
	require.Len(t, members, 1)

	// Whichever connection won, every loser's late unregister must not
	// remove it.
	winner := members[1]
	for _, conn := range conns {
		if conn.ID() != winner.ID() {
			h.Unregister(7, 1, conn)
		}
	}
	require.Len(t, h.Members(7), 1)
	assert.Equal(t, winner.ID(), h.Members(7)[1].ID())
}

var _ domain.Conn = (*mockConn)(nil)
