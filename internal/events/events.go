// Package events is an in-process pub/sub bus for scheduling changes.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Event types published by the event service.
const (
	SeriesCreated = "series.created"
	EventUpdated  = "event.updated"
	StatusChanged = "event.status_changed"
	EventDeleted  = "event.deleted"
	SeriesDeleted = "series.deleted"
)

// Event represents a lightweight domain event with a JSON payload.
type Event struct {
	Type      string
	Payload   json.RawMessage
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	now         func() time.Time
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler), now: time.Now}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers one handler for several event types.
func (b *EventBus) SubscribeAll(handler EventHandler, eventTypes ...string) {
	for _, t := range eventTypes {
		b.Subscribe(t, handler)
	}
}

// PublishJSON encodes payload and notifies subscribers of the event type synchronously.
// Every handler runs; their errors are joined.
func (b *EventBus) PublishJSON(eventType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}

	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[eventType]...)
	b.mu.RUnlock()

	event := Event{Type: eventType, Payload: raw, CreatedAt: b.now()}

	var errs []error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, fmt.Errorf("%s handler: %w", eventType, err))
		}
	}
	return errors.Join(errs...)
}
