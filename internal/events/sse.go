package events

import "github.com/kelindar/event"

// SubscribeToChannel forwards every T published on bus into ch, which the
// SSE handlers select on. Several subscriptions may share one channel. When
// ch is full the event is dropped for this subscriber only and publishing
// never blocks.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		trySend(ch, e)
	})
}

func trySend(ch chan<- any, v any) bool {
	select {
	case ch <- v:
		return true
	default:
		return false
	}
}
