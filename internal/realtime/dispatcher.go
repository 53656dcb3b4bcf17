package realtime

import (
	"context"

	"github.com/officeshinyujun/sien/internal/eventbus"
	"github.com/officeshinyujun/sien/internal/hub"
	"github.com/officeshinyujun/sien/internal/logging"
)

// Dispatcher subscribes to room-bound events on the bus and fans them out
// through the hub.
type Dispatcher struct {
	hub    *hub.Hub
	logger *logging.Logger

	subscriptions []string
	bus           eventbus.Bus
}

// NewDispatcher creates a dispatcher, not yet attached to a bus.
func NewDispatcher(h *hub.Hub, logger *logging.Logger) *Dispatcher {
	return &Dispatcher{
		hub:    h,
		logger: logger,
	}
}

// Attach subscribes the dispatcher to every room-bound event type.
func (d *Dispatcher) Attach(bus eventbus.Bus) {
	d.bus = bus
	for _, eventType := range []eventbus.EventType{
		eventbus.EventShotSaved,
		eventbus.EventSessionEnded,
	} {
		d.subscriptions = append(d.subscriptions, bus.Subscribe(eventType, d.handle))
	}
}

// Detach removes the dispatcher's subscriptions.
func (d *Dispatcher) Detach() {
	if d.bus == nil {
		return
	}
	for _, id := range d.subscriptions {
		d.bus.Unsubscribe(id)
	}
	d.subscriptions = nil
}

func (d *Dispatcher) handle(event *eventbus.Event) {
	msg, ok := event.Data.(RoomMessage)
	if !ok {
		d.logger.Warn("unexpected event payload", "event_type", event.Type, "event_id", event.ID)
		return
	}

	d.hub.Broadcast(context.Background(), msg.RoomID, msg.Payload)
}
