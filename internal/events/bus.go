// Package events provides the in-process domain event bus.
//
// The core publishes events (stage changes, suppressions, campaign
// lifecycle); delivery-channel fan-out is the external notification
// collaborator's concern. Subscribers get buffered channels and a slow
// subscriber drops events rather than blocking a publisher.
package events

import (
	"sync"
	"time"

	"github.com/ignite/repguard/internal/domain"
)

const subscriberBuffer = 100

// Bus fans domain events out to named subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan domain.Event
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string]chan domain.Event)}
}

// Subscribe registers a named subscriber and returns its channel.
// Subscribing twice with the same id replaces the previous channel.
func (b *Bus) Subscribe(id string) <-chan domain.Event {
	ch := make(chan domain.Event, subscriberBuffer)
	b.mu.Lock()
	if old, ok := b.subscribers[id]; ok {
		close(old)
	}
	b.subscribers[id] = ch
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

// Publish delivers an event to every subscriber. Non-blocking: a full
// subscriber channel drops the event.
func (b *Bus) Publish(e domain.Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}
