package realtime

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/officeshinyujun/sien/internal/domain"
	"github.com/officeshinyujun/sien/internal/eventbus"
	"github.com/officeshinyujun/sien/internal/hub"
	"github.com/officeshinyujun/sien/internal/logging"
)

// TokenVerifier resolves a credential token to the user behind it.
type TokenVerifier interface {
	UserFromToken(ctx context.Context, token string) (domain.User, error)
}

// Handler is the realtime channel entry point. It accepts a websocket into a
// room, registers it in the hub for the connection's lifetime, and guarantees
// unregistration on every exit path.
type Handler struct {
	hub        *hub.Hub
	auth       TokenVerifier
	bus        eventbus.Bus
	logger     *logging.Logger
	sendBuffer int
	upgrader   websocket.Upgrader
}

// NewHandler creates a realtime handler.
func NewHandler(h *hub.Hub, auth TokenVerifier, bus eventbus.Bus, logger *logging.Logger, sendBuffer int) *Handler {
	return &Handler{
		hub:        h,
		auth:       auth,
		bus:        bus,
		logger:     logger,
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeWS handles GET /ws/{roomID}?token=…. The token travels as a query
// parameter because browsers cannot set headers on a websocket open.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID, err := strconv.ParseInt(chi.URLParam(r, "roomID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid room id", http.StatusBadRequest)
		return
	}

	user, err := h.auth.UserFromToken(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error. Nothing was registered.
		h.logger.Warn("websocket upgrade failed", "room_id", roomID, "user_id", user.ID, "error", err)
		return
	}

	conn := NewConn(ws, roomID, user.ID, h.sendBuffer)
	logger := h.logger.WithFields(map[string]any{
		"room_id": roomID,
		"user_id": user.ID,
		"conn_id": conn.ID(),
	})

	h.hub.Register(roomID, user.ID, conn)
	defer func() {
		h.hub.Unregister(roomID, user.ID, conn)
		conn.Close()
		h.bus.PublishAsync(eventbus.NewEvent(eventbus.EventClientDisconnected, "realtime", RoomPresence{
			RoomID: roomID,
			UserID: user.ID,
		}))
	}()

	h.bus.PublishAsync(eventbus.NewEvent(eventbus.EventClientConnected, "realtime", RoomPresence{
		RoomID: roomID,
		UserID: user.ID,
	}))

	go conn.writePump()

	if err := conn.readLoop(); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
			logger.Warn("read loop ended", "error", err)
		}
	}
}

// RoomPresence describes a connect or disconnect observed by the handler.
type RoomPresence struct {
	RoomID int64 `json:"room_id"`
	UserID int64 `json:"user_id"`
}
