package events

import "stakegov/core/types"

// Event is a typed ledger, stake or governance state change.
type Event interface {
	EventType() string
}

// Renderable is implemented by events that have a broadcastable form.
type Renderable interface {
	Event() *types.Event
}

// Emitter receives events as the runtime commits them.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Multi forwards each event to every emitter in order.
type Multi []Emitter

// Emit implements the Emitter interface.
func (m Multi) Emit(evt Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}
