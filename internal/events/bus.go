package events

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultCapacity is each subscriber's buffer depth.
const DefaultCapacity = 256

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full loses the event, with a warning, so producers on the
// hot path are never held up by a slow consumer.
type Bus struct {
	log *logrus.Entry

	mu     sync.RWMutex
	subs   []chan Event
	closed bool
}

// NewBus creates an event bus.
func NewBus(log *logrus.Logger) *Bus {
	return &Bus{log: log.WithField("component", "events")}
}

// Subscribe registers a consumer and returns its channel. The channel is
// closed by Close.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, DefaultCapacity)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers the event to every subscriber without blocking.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.log.WithField("type", e.Type).Warn("subscriber buffer full, event dropped")
		}
	}
}

// Emit wraps a payload and publishes it.
func (b *Bus) Emit(eventType string, data interface{}) {
	b.Publish(New(eventType, data))
}

// Close shuts the bus; subscriber channels are closed and later publishes
// are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
