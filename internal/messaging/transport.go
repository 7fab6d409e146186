package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/k1networth/workforce-events/internal/shared/events"
)

// Header names carried by every published message.
const (
	HeaderRoutingKey  = "routing-key"
	HeaderMessageID   = "message-id"
	HeaderPublishedAt = "published-at"
)

// ErrNoRequeue marks a handler error as a negative acknowledgement without
// requeue: the transport settles the message instead of redelivering it.
var ErrNoRequeue = errors.New("nack without requeue")

// Message is what a transport puts on the exchange.
type Message struct {
	ID          string
	RoutingKey  string
	PublishedAt time.Time
	Payload     map[string]any
}

func (m Message) Envelope() events.Envelope {
	return events.Envelope{
		MessageID:   m.ID,
		RoutingKey:  m.RoutingKey,
		PublishedAt: m.PublishedAt,
		Payload:     m.Payload,
	}
}

// Subscription is a named queue bound to the exchange by routing-key patterns.
type Subscription struct {
	Queue    string
	Bindings []string
}

func (s Subscription) Matches(routingKey string) bool {
	for _, b := range s.Bindings {
		if MatchRoutingKey(b, routingKey) {
			return true
		}
	}
	return false
}

type Handler func(ctx context.Context, env events.Envelope) error

// Transport is a topic exchange. Subscribe blocks until ctx is done.
type Transport interface {
	Publish(ctx context.Context, msg Message) error
	Subscribe(ctx context.Context, sub Subscription, h Handler) error
	Close() error
}
