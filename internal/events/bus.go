package events

import (
	"context"
	"sync"

	"github.com/washpoint/carwash/pkg/logger"
)

// Publisher is the side the auth core depends on
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Handler consumes a single event
type Handler func(ctx context.Context, event Event)

// Bus is an in-process publish/subscribe registry. Dispatch is synchronous;
// a panicking subscriber is recovered and logged so it cannot abort the
// operation that emitted the event.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewBus() *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for the named event
func (b *Bus) Subscribe(eventName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

// Publish dispatches the event to every subscriber of its name
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := b.handlers[event.Name()]
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(ctx, event, h)
	}
}

func (b *Bus) dispatch(ctx context.Context, event Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			logger.GetLogger().Error("Event handler panicked")
			logger.LogPanic(r)
		}
	}()
	h(ctx, event)
}

// NopPublisher discards every event. Useful default when no subscribers are
// wired, and in tests.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event Event) {}
