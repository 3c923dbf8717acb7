package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Event is one message pushed to dashboard viewers. Discrete events are
// low-latency hints; the periodic status_update snapshot is authoritative.
type Event struct {
	Event     string    `json:"event"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// SnapshotFunc produces the full-state document for the periodic
// status_update heartbeat.
type SnapshotFunc func() any

// Hub fans events out to all subscribers. Slow subscribers lose events
// rather than block the producers; the next snapshot resynchronizes them.
type Hub struct {
	log      *slog.Logger
	interval time.Duration
	buffer   int
	snapshot SnapshotFunc

	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func New(log *slog.Logger, snapshot SnapshotFunc, interval time.Duration, buffer int) *Hub {
	if interval <= 0 {
		interval = time.Second
	}
	if buffer <= 0 {
		buffer = 16
	}

	return &Hub{
		log:      log,
		interval: interval,
		buffer:   buffer,
		snapshot: snapshot,
		subs:     make(map[chan Event]struct{}),
	}
}

// Subscribe registers a new viewer. The returned cancel func must be
// called when the viewer disconnects; it closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

// Emit delivers an event to every subscriber without blocking. A full
// subscriber buffer drops the event for that subscriber only.
func (h *Hub) Emit(event string, payload any) {
	ev := Event{
		Event:     event,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.log.Debug("subscriber buffer full, event dropped", slog.String("event", event))
		}
	}
}

// Run pushes the periodic full-state snapshot until the context is done.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Emit("status_update", h.snapshot())
		}
	}
}

// Subscribers reports the current viewer count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subs)
}
