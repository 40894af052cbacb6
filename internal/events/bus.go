// Package events implements the in-process publish/subscribe bus that
// decouples edit sessions, list views and refresh triggers.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/postdesk/internal/models"
)

// Event names a message on the bus.
type Event string

// The fixed set of events.
const (
	PostCreated   Event = "post:created"
	PostUpdated   Event = "post:updated"
	PostPublished Event = "post:published"
	PostsRefresh  Event = "posts:refresh"
)

// Message is delivered to handlers. Post is nil for PostsRefresh.
type Message struct {
	Event Event
	Post  *models.Post
}

// Handler consumes a message. A returned error is logged and does not stop
// delivery to later handlers.
type Handler func(ctx context.Context, msg Message) error

// Bus maps each event to its subscribers in registration order.
//
// Publish is synchronous: it returns after every handler has run. There is
// no unsubscribe; subscribers live as long as the bus.
type Bus struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[Event][]Handler
}

// New creates an empty bus. A nil logger discards handler failures.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bus{
		logger:   logger,
		handlers: make(map[Event][]Handler),
	}
}

// Subscribe appends h to the handlers of ev.
func (b *Bus) Subscribe(ev Event, h Handler) {
	b.mu.Lock()
	b.handlers[ev] = append(b.handlers[ev], h)
	b.mu.Unlock()
}

// Publish delivers a message to every handler of ev in order.
func (b *Bus) Publish(ctx context.Context, ev Event, post *models.Post) {
	b.mu.RLock()
	hs := make([]Handler, len(b.handlers[ev]))
	copy(hs, b.handlers[ev])
	b.mu.RUnlock()

	msg := Message{Event: ev, Post: post}
	for i, h := range hs {
		if err := b.invoke(ctx, h, msg); err != nil {
			b.logger.Error("event handler failed",
				slog.String("event", string(ev)),
				slog.Int("handler", i),
				slog.String("error", err.Error()))
		}
	}
}

// invoke runs h, turning a panic into an error.
func (b *Bus) invoke(ctx context.Context, h Handler, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, msg)
}

// Count returns the number of handlers subscribed to ev.
func (b *Bus) Count(ev Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[ev])
}
