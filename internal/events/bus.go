package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers
// Usage: bus.Publish(StateChangedEvent{...})
func (b *Bus) Publish(ev Event) {
	// The generic Publish needs the concrete type.
	switch e := ev.(type) {
	case StateChangedEvent:
		event.Publish(b.dispatcher, e)
	case RecordingFinishedEvent:
		event.Publish(b.dispatcher, e)
	case PhotoCapturedEvent:
		event.Publish(b.dispatcher, e)
	case UserErrorEvent:
		event.Publish(b.dispatcher, e)
	case ShaderChangedEvent:
		event.Publish(b.dispatcher, e)
	case PipelineMetricsEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler type determines which events it receives.
// Returns an unsubscribe function; unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e StateChangedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(StateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(RecordingFinishedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PhotoCapturedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(UserErrorEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ShaderChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(PipelineMetricsEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
