package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/officeshinyujun/sien/internal/domain"
	"github.com/officeshinyujun/sien/internal/eventbus"
	"github.com/officeshinyujun/sien/internal/hub"
	"github.com/officeshinyujun/sien/internal/logging"
)

type fakeVerifier struct {
	users map[string]domain.User
}

func (f fakeVerifier) UserFromToken(_ context.Context, token string) (domain.User, error) {
	if u, ok := f.users[token]; ok {
		return u, nil
	}
	return domain.User{}, errors.New("invalid token")
}

type testEnv struct {
	hub      *hub.Hub
	notifier *Notifier
	wsBase   string
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	logger := logging.New(logging.Config{Level: "error", Format: "text"})

	bus := eventbus.NewInMemoryBus(64, logger)
	bus.Start(context.Background())
	t.Cleanup(bus.Stop)

	roomHub := hub.New(logger)

	dispatcher := NewDispatcher(roomHub, logger)
	dispatcher.Attach(bus)
	t.Cleanup(dispatcher.Detach)

	verifier := fakeVerifier{users: map[string]domain.User{
		"token-a": {ID: 1, Nickname: "alice"},
		"token-b": {ID: 2, Nickname: "bob"},
	}}

	handler := NewHandler(roomHub, verifier, bus, logger, 64)

	r := chi.NewRouter()
	r.Get("/ws/{roomID}", handler.ServeWS)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &testEnv{
		hub:      roomHub,
		notifier: NewNotifier(bus, logger),
		wsBase:   "ws" + strings.TrimPrefix(server.URL, "http"),
	}
}

func (e *testEnv) dial(t *testing.T, roomID, token string) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(e.wsBase+"/ws/"+roomID+"?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	return msg
}

func waitForMembers(t *testing.T, h *hub.Hub, roomID int64, want int) {
	t.Helper()

	require.Eventually(t, func() bool {
		return len(h.Members(roomID)) == want
	}, 2*time.Second, 5*time.Millisecond)
}

func TestServeWS_BroadcastReachesEveryRoomMember(t *testing.T) {
	env := setup(t)

	alice := env.dial(t, "7", "token-a")
	bob := env.dial(t, "7", "token-b")
	waitForMembers(t, env.hub, 7, 2)

	shot := domain.Shot{
		ID:        10,
		SessionID: 3,
		BallPositions: []domain.BallState{
			{ID: 0, Position: domain.Vector3{X: 1, Y: 2}},
		},
		Type: domain.ShotTypeLaunch,
	}
	env.notifier.ShotSaved(7, shot, 1)

	gotAlice := readMessage(t, alice)
	gotBob := readMessage(t, bob)
	assert.JSONEq(t, string(gotAlice), string(gotBob))

	var msg ShotSavedMessage
	require.NoError(t, json.Unmarshal(gotAlice, &msg))
	assert.Equal(t, MessageTypeShotSaved, msg.Type)
	assert.Equal(t, int64(10), msg.Shot.ID)
	assert.Equal(t, int64(3), msg.Shot.SessionID)
	assert.Equal(t, domain.ShotTypeLaunch, msg.Shot.Type)
	assert.Equal(t, int64(1), msg.UserID)
	require.Len(t, msg.Shot.BallPositions, 1)
	assert.Equal(t, 1.0, msg.Shot.BallPositions[0].Position.X)
	assert.Equal(t, 2.0, msg.Shot.BallPositions[0].Position.Y)
}

func TestServeWS_SessionEndedBroadcast(t *testing.T) {
	env := setup(t)

	alice := env.dial(t, "7", "token-a")
	waitForMembers(t, env.hub, 7, 1)

	env.notifier.SessionEnded(7, domain.GameSession{ID: 3, RoomID: 7, IsActive: false}, 2)

	var msg SessionEndedMessage
	require.NoError(t, json.Unmarshal(readMessage(t, alice), &msg))
	assert.Equal(t, MessageTypeSessionEnded, msg.Type)
	assert.Equal(t, int64(3), msg.Session.ID)
	assert.False(t, msg.Session.IsActive)
	assert.Equal(t, int64(2), msg.UserID)
}

func TestServeWS_RejectsInvalidToken(t *testing.T) {
	env := setup(t)

	_, resp, err := websocket.DefaultDialer.Dial(env.wsBase+"/ws/7?token=wrong", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)

	rooms, _ := env.hub.Stats()
	assert.Equal(t, 0, rooms)
}

func TestServeWS_RejectsInvalidRoomID(t *testing.T) {
	env := setup(t)

	_, resp, err := websocket.DefaultDialer.Dial(env.wsBase+"/ws/not-a-number?token=token-a", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestServeWS_DisconnectUnregisters(t *testing.T) {
	env := setup(t)

	alice := env.dial(t, "7", "token-a")
	waitForMembers(t, env.hub, 7, 1)

	alice.Close()

	require.Eventually(t, func() bool {
		rooms, conns := env.hub.Stats()
		return rooms == 0 && conns == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestServeWS_ReconnectReplacesAndSurvivesStaleClose(t *testing.T) {
	env := setup(t)

	first := env.dial(t, "7", "token-a")
	waitForMembers(t, env.hub, 7, 1)
	firstID := env.hub.Members(7)[1].ID()

	second := env.dial(t, "7", "token-a")
	require.Eventually(t, func() bool {
		members := env.hub.Members(7)
		return len(members) == 1 && members[1].ID() != firstID
	}, 2*time.Second, 5*time.Millisecond)

	// Closing the replaced connection triggers its deferred unregister,
	// which the hub absorbs because the handle no longer matches.
	first.Close()
	time.Sleep(50 * time.Millisecond)

	members := env.hub.Members(7)
	require.Len(t, members, 1)
	assert.NotEqual(t, firstID, members[1].ID())

	env.notifier.ShotSaved(7, domain.Shot{ID: 1, SessionID: 1, Type: domain.ShotTypeStop}, 1)

	var msg ShotSavedMessage
	require.NoError(t, json.Unmarshal(readMessage(t, second), &msg))
	assert.Equal(t, MessageTypeShotSaved, msg.Type)
}
