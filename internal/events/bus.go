package events

import (
	"sync"

	"go.uber.org/zap"
)

// Event is implemented by every payload published on the bus
type Event interface {
	Name() string
}

// Handler receives published events
type Handler func(Event)

// Bus delivers typed events to subscribers synchronously, in publish order per publisher
type Bus struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	nextID   int
	logger   *zap.Logger
}

// NewBus creates an empty Bus
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		handlers: make(map[int]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler and returns a function that removes it
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// Publish delivers e to every subscriber. A panicking handler is logged and skipped.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(h, e)
	}
}

func (b *Bus) deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panic recovered",
				zap.String("event", e.Name()),
				zap.Any("panic", r))
		}
	}()
	h(e)
}
