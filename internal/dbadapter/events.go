package dbadapter

import "time"

// EventBus is a small best-effort, non-blocking fan-out of adapter events.
// It is embedded by each engine adapter so event emission never blocks the
// query path.
type EventBus struct {
	ch chan Event
}

// NewEventBus creates a bus with a modest internal buffer; once full, new
// events are dropped rather than blocking the caller.
func NewEventBus() *EventBus {
	return &EventBus{ch: make(chan Event, 64)}
}

// Emit publishes an event, dropping it silently if the channel is full.
func (b *EventBus) Emit(adapterID string, kind EventKind, detail map[string]any) {
	if b == nil {
		return
	}
	ev := Event{
		Kind:      kind,
		AdapterID: adapterID,
		Timestamp: time.Now(),
		Detail:    detail,
	}
	select {
	case b.ch <- ev:
	default:
	}
}

// Events exposes the receive-only side of the bus.
func (b *EventBus) Events() <-chan Event {
	return b.ch
}
