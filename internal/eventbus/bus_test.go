package eventbus

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/officeshinyujun/sien/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: "error", Format: "text"})
}

func TestBus_PublishReachesSubscribers(t *testing.T) {
	bus := NewInMemoryBus(16, testLogger())

	var got []*Event
	bus.Subscribe(EventShotSaved, func(event *Event) {
		got = append(got, event)
	})

	bus.Publish(NewEvent(EventShotSaved, "test", "payload"))
	bus.Publish(NewEvent(EventSessionEnded, "test", "other type, no subscriber"))

	require.Len(t, got, 1)
	assert.Equal(t, EventShotSaved, got[0].Type)
	assert.Equal(t, "payload", got[0].Data)
	assert.NotEmpty(t, got[0].ID)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryBus(16, testLogger())

	calls := 0
	id := bus.Subscribe(EventShotSaved, func(*Event) { calls++ })

	bus.Publish(NewEvent(EventShotSaved, "test", nil))
	bus.Unsubscribe(id)
	bus.Publish(NewEvent(EventShotSaved, "test", nil))

	assert.Equal(t, 1, calls)
}

func TestBus_PublishAsync(t *testing.T) {
	bus := NewInMemoryBus(16, testLogger())
	bus.Start(context.Background())
	defer bus.Stop()

	var mu sync.Mutex
	got := 0
	bus.Subscribe(EventSessionEnded, func(*Event) {
		mu.Lock()
		got++
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		bus.PublishAsync(NewEvent(EventSessionEnded, "test", i))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got == 5
	}, time.Second, 5*time.Millisecond)
}

func TestBus_PublishAsyncFullChannelDropsWithLog(t *testing.T) {
	var buf bytes.Buffer
	logger := &logging.Logger{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	// Not started, so nothing drains the channel.
	bus := NewInMemoryBus(1, logger)

	bus.PublishAsync(NewEvent(EventShotSaved, "test", "fits"))
	bus.PublishAsync(NewEvent(EventShotSaved, "test", "dropped"))

	assert.Contains(t, buf.String(), "dropping event")
	assert.Contains(t, buf.String(), string(EventShotSaved))
}
