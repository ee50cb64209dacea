// Package bus provides the event-bus abstraction the orchestrator uses to
// publish lifecycle and chat events, backed by NATS (nats-io/nats.go).
// The teacher's cmd/agent-manager/main.go wires an identical bus.EventBus
// but its implementation package was not present in the snapshot; this
// fills that gap in the same idiom (interface + concrete NATS client).
package bus

import (
	"context"
	"encoding/json"
	"time"
)

// Event is one published occurrence, addressed by subject and carrying a
// JSON payload (§4.9).
type Event struct {
	Subject   string          `json:"subject"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent marshals payload into an Event, stamping the current time.
func NewEvent(subject string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Subject: subject, Payload: data, Timestamp: time.Now()}, nil
}

// Subscription is a live subscription handle.
type Subscription interface {
	Unsubscribe() error
}

// Handler receives delivered events.
type Handler func(Event)

// EventBus publishes and subscribes to subjects. Subjects use NATS's
// dot-separated hierarchy, e.g. "sandbox.started", "chat.message".
type EventBus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, subjectPattern string, handler Handler) (Subscription, error)
	Close() error
}
