package bus

import (
	"context"

	"github.com/nats-io/nats.go"

	apperrors "github.com/agentpod/agentpod/internal/common/errors"
)

// NATSEventBus is the production EventBus, a thin wrapper over a nats.Conn.
type NATSEventBus struct {
	conn *nats.Conn
}

// NewNATSEventBus connects to url (see config.NATSConfig) and returns a
// ready-to-use EventBus.
func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url, nats.RetryOnFailedConnect(true), nats.MaxReconnects(-1))
	if err != nil {
		return nil, apperrors.Network("failed to connect to NATS", err)
	}
	return &NATSEventBus{conn: conn}, nil
}

func (b *NATSEventBus) Publish(ctx context.Context, event Event) error {
	data, err := encode(event)
	if err != nil {
		return apperrors.Runtime("failed to encode event", err)
	}
	if err := b.conn.Publish(event.Subject, data); err != nil {
		return apperrors.Network("failed to publish event", err)
	}
	return nil
}

func (b *NATSEventBus) Subscribe(ctx context.Context, subjectPattern string, handler Handler) (Subscription, error) {
	sub, err := b.conn.Subscribe(subjectPattern, func(msg *nats.Msg) {
		event, err := decode(msg.Subject, msg.Data)
		if err != nil {
			return
		}
		handler(event)
	})
	if err != nil {
		return nil, apperrors.Network("failed to subscribe", err)
	}
	return &natsSubscription{sub: sub}, nil
}

func (b *NATSEventBus) Close() error {
	b.conn.Drain()
	return nil
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}

func encode(event Event) ([]byte, error) {
	return event.Payload, nil
}

func decode(subject string, data []byte) (Event, error) {
	return Event{Subject: subject, Payload: data}, nil
}
