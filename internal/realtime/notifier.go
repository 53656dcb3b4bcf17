package realtime

import (
	"encoding/json"

	"github.com/officeshinyujun/sien/internal/domain"
	"github.com/officeshinyujun/sien/internal/eventbus"
	"github.com/officeshinyujun/sien/internal/logging"
)

// Message type values on the realtime channel.
const (
	MessageTypeShotSaved    = "SHOT_SAVED"
	MessageTypeSessionEnded = "SESSION_ENDED"
)

// ShotSavedMessage is broadcast to a room after a shot is persisted.
type ShotSavedMessage struct {
	Type   string      `json:"type"`
	Shot   ShotPayload `json:"shot"`
	UserID int64       `json:"user_id"`
}

// ShotPayload carries the externally visible fields of a persisted shot.
type ShotPayload struct {
	ID            int64              `json:"id"`
	SessionID     int64              `json:"session_id"`
	BallPositions []domain.BallState `json:"ball_positions"`
	Type          domain.ShotType    `json:"type"`
}

// SessionEndedMessage is broadcast to a room after a session is ended.
type SessionEndedMessage struct {
	Type    string         `json:"type"`
	Session SessionPayload `json:"session"`
	UserID  int64          `json:"user_id"`
}

// SessionPayload carries the externally visible fields of a session.
type SessionPayload struct {
	ID       int64 `json:"id"`
	RoomID   int64 `json:"room_id"`
	IsActive bool  `json:"is_active"`
}

// RoomMessage is a fully serialized payload bound for one room.
type RoomMessage struct {
	RoomID  int64
	Payload []byte
}

// Notifier is the bridge between domain mutations and the realtime channel.
// It is invoked after a mutation is durably persisted, builds the message
// once, and publishes it asynchronously so the HTTP response path never waits
// on websocket writes.
type Notifier struct {
	bus    eventbus.Bus
	logger *logging.Logger
}

// NewNotifier creates a notifier publishing on bus.
func NewNotifier(bus eventbus.Bus, logger *logging.Logger) *Notifier {
	return &Notifier{
		bus:    bus,
		logger: logger,
	}
}

// ShotSaved announces a persisted shot to the room it belongs to.
func (n *Notifier) ShotSaved(roomID int64, shot domain.Shot, actorID int64) {
	n.publish(eventbus.EventShotSaved, roomID, ShotSavedMessage{
		Type: MessageTypeShotSaved,
		Shot: ShotPayload{
			ID:            shot.ID,
			SessionID:     shot.SessionID,
			BallPositions: shot.BallPositions,
			Type:          shot.Type,
		},
		UserID: actorID,
	})
}

// SessionEnded announces an ended session to its room.
func (n *Notifier) SessionEnded(roomID int64, session domain.GameSession, actorID int64) {
	n.publish(eventbus.EventSessionEnded, roomID, SessionEndedMessage{
		Type: MessageTypeSessionEnded,
		Session: SessionPayload{
			ID:       session.ID,
			RoomID:   session.RoomID,
			IsActive: session.IsActive,
		},
		UserID: actorID,
	})
}

func (n *Notifier) publish(eventType eventbus.EventType, roomID int64, message any) {
	payload, err := json.Marshal(message)
	if err != nil {
		n.logger.Error("failed to marshal realtime message",
			"event_type", eventType,
			"room_id", roomID,
			"error", err,
		)
		return
	}

	n.bus.PublishAsync(eventbus.NewEvent(eventType, "notifier", RoomMessage{
		RoomID:  roomID,
		Payload: payload,
	}))
}
