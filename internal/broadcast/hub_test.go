package broadcast

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHub_FanOut(t *testing.T) {
	hub := New(discardLogger(), nil, time.Hour, 4)

	a, cancelA := hub.Subscribe()
	b, cancelB := hub.Subscribe()
	defer cancelA()
	defer cancelB()

	hub.Emit("recording_started", map[string]string{"camera_id": "cam-1"})

	for _, ch := range []<-chan Event{a, b} {
		select {
		case ev := <-ch:
			assert.Equal(t, "recording_started", ev.Event)
			assert.False(t, ev.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestHub_SlowSubscriberDropsEvents(t *testing.T) {
	hub := New(discardLogger(), nil, time.Hour, 1)

	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Emit("first", nil)
	hub.Emit("second", nil) // dropped, buffer is full

	ev := <-ch
	assert.Equal(t, "first", ev.Event)

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %q", ev.Event)
	default:
	}
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	hub := New(discardLogger(), nil, time.Hour, 4)

	ch, cancel := hub.Subscribe()
	require.Equal(t, 1, hub.Subscribers())

	cancel()
	cancel() // idempotent

	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, hub.Subscribers())

	// emitting to nobody must not panic
	hub.Emit("recording_started", nil)
}

func TestHub_PeriodicSnapshot(t *testing.T) {
	snapshot := func() any { return map[string]int{"slots": 2} }
	hub := New(discardLogger(), snapshot, 10*time.Millisecond, 4)

	ch, cancel := hub.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	go hub.Run(ctx)

	select {
	case ev := <-ch:
		assert.Equal(t, "status_update", ev.Event)
		assert.NotNil(t, ev.Payload)
	case <-time.After(time.Second):
		t.Fatal("no snapshot arrived")
	}
}
