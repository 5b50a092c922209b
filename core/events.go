package core

import (
	"sync"
	"time"
)

// Event names emitted by the attendance core.
const (
	EventSessionFinalized   = "session.finalized"
	EventSessionCancelled   = "session.cancelled"
	EventRecordMarkedAbsent = "attendance.marked_absent"
)

type (
	// Event is a side-effect-free fact emitted by the core; collaborators
	// (notification dispatch, audit) subscribe to it, the core never calls
	// them directly.
	Event struct {
		Name    string
		At      time.Time
		Payload map[string]interface{}
	}

	EventHandler func(Event)

	// Publisher is any sink the core can emit events to.
	Publisher interface {
		Publish(Event)
	}
)

// EventBus is an in-process Publisher fanning events out to subscribers.
// Publish never blocks the caller; handlers run on their own goroutine.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
}

var _ Publisher = (*EventBus)(nil)

func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for the named event. An empty name
// subscribes to all events.
func (bus *EventBus) Subscribe(name string, h EventHandler) {
	bus.mu.Lock()
	bus.handlers[name] = append(bus.handlers[name], h)
	bus.mu.Unlock()
}

func (bus *EventBus) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	bus.mu.RLock()
	handlers := append(bus.handlers[evt.Name][:len(bus.handlers[evt.Name]):len(bus.handlers[evt.Name])], bus.handlers[""]...)
	bus.mu.RUnlock()

	for _, h := range handlers {
		h := h
		go h(evt)
	}
}

// NopPublisher drops all events; used where no collaborator is wired.
type NopPublisher struct{}

var _ Publisher = (*NopPublisher)(nil)

func (NopPublisher) Publish(Event) {}
