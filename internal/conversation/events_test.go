// ABOUTME: Tests for the event bus
// ABOUTME: Verifies fan-out to multiple listeners and unsubscribe semantics

package conversation

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBus_FanOut(t *testing.T) {
	bus := newEventBus(slog.Default())

	var a, b int
	bus.subscribe(EventMessage, func(Event) { a++ })
	bus.subscribe(EventMessage, func(Event) { b++ })

	bus.emit(Event{Type: EventMessage})

	// A second subscription does not replace the first.
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}

func TestEventBus_TypeScoping(t *testing.T) {
	bus := newEventBus(slog.Default())

	var got []EventType
	bus.subscribe(EventError, func(ev Event) { got = append(got, ev.Type) })

	bus.emit(Event{Type: EventMessage})
	bus.emit(Event{Type: EventError})
	bus.emit(Event{Type: EventQuotaUpdated})

	assert.Equal(t, []EventType{EventError}, got)
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := newEventBus(slog.Default())

	count := 0
	off := bus.subscribe(EventMessage, func(Event) { count++ })

	bus.emit(Event{Type: EventMessage})
	off()
	bus.emit(Event{Type: EventMessage})
	off() // second call is a no-op

	assert.Equal(t, 1, count)
}

func TestEventBus_UnsubscribeInsideCallback(t *testing.T) {
	bus := newEventBus(slog.Default())

	count := 0
	var off func()
	off = bus.subscribe(EventMessage, func(Event) {
		count++
		off()
	})

	bus.emit(Event{Type: EventMessage})
	bus.emit(Event{Type: EventMessage})

	assert.Equal(t, 1, count, "listener may unsubscribe itself without deadlocking")
}
