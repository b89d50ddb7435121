// ABOUTME: Event feed for conversation state changes
// ABOUTME: Multi-listener fan-out keyed by event type, callbacks run on the emitting goroutine

package conversation

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// EventType names a state-change notification.
type EventType string

const (
	EventMessage             EventType = "message"
	EventConversationCreated EventType = "conversation_created"
	EventModelSwitched       EventType = "model_switched"
	EventError               EventType = "error"
	EventQuotaUpdated        EventType = "quota_updated"
)

// Event is one state-change notification. SessionID is empty for events
// not scoped to a session (quota updates, initialization errors).
type Event struct {
	Type      EventType
	SessionID string
	Data      any
}

// eventBus fans events out to every listener registered for a type.
// Registering a second listener for the same type does not replace the
// first; both receive events.
type eventBus struct {
	mu        sync.RWMutex
	listeners map[EventType]map[string]func(Event)
	logger    *slog.Logger
}

func newEventBus(logger *slog.Logger) *eventBus {
	return &eventBus{
		listeners: make(map[EventType]map[string]func(Event)),
		logger:    logger.With("component", "events"),
	}
}

// subscribe registers fn for events of type t and returns an unsubscribe
// function. Unsubscribing twice is a no-op.
func (b *eventBus) subscribe(t EventType, fn func(Event)) func() {
	id := uuid.New().String()

	b.mu.Lock()
	if _, ok := b.listeners[t]; !ok {
		b.listeners[t] = make(map[string]func(Event))
	}
	b.listeners[t][id] = fn
	b.mu.Unlock()

	b.logger.Debug("listener added", "event_type", string(t), "listener_id", id)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.listeners[t]; ok {
			delete(subs, id)
			if len(subs) == 0 {
				delete(b.listeners, t)
			}
		}
	}
}

// emit invokes every listener registered for ev.Type. Listeners are copied
// under the read lock so a callback may subscribe or unsubscribe without
// deadlocking.
func (b *eventBus) emit(ev Event) {
	b.mu.RLock()
	subs := b.listeners[ev.Type]
	targets := make([]func(Event), 0, len(subs))
	for _, fn := range subs {
		targets = append(targets, fn)
	}
	b.mu.RUnlock()

	for _, fn := range targets {
		fn(ev)
	}
}
