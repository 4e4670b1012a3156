package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Handler consumes one event. Handlers run on their own goroutine; a panic is
// recovered and logged and never reaches the publisher.
type Handler func(ctx context.Context, ev Event)

// Bus fans events out to subscribers by kind. The zero value is unusable;
// use NewBus.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Kind][]Handler
	all    []Handler
	logger *slog.Logger
}

// NewBus creates an event bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[Kind][]Handler),
		logger: logger,
	}
}

// Subscribe registers a handler for one event kind.
func (b *Bus) Subscribe(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[kind] = append(b.subs[kind], h)
}

// SubscribeAll registers a handler for every event kind.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish dispatches the event to all matching subscribers, each on its own
// goroutine. Publish never blocks on subscriber work.
func (b *Bus) Publish(ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[ev.Kind])+len(b.all))
	handlers = append(handlers, b.subs[ev.Kind]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for _, h := range handlers {
		go func(h Handler) {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked", "kind", ev.Kind, "panic", r)
				}
			}()
			h(context.Background(), ev)
		}(h)
	}
}
