package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/k1networth/workforce-events/internal/shared/events"
)

// Publisher puts payloads on the exchange. It never retries; failures go back
// to the caller.
type Publisher struct {
	t             Transport
	deadLetterKey string
	log           *slog.Logger
	metrics       *Metrics
	now           func() time.Time
}

func NewPublisher(t Transport, deadLetterKey string, log *slog.Logger, metrics *Metrics) *Publisher {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Publisher{
		t:             t,
		deadLetterKey: deadLetterKey,
		log:           log,
		metrics:       metrics,
		now:           time.Now,
	}
}

func (p *Publisher) Publish(ctx context.Context, routingKey string, payload map[string]any) error {
	if routingKey == "" {
		return errors.New("routing key is empty")
	}
	if payload == nil {
		payload = map[string]any{}
	}

	msg := Message{
		ID:          uuid.NewString(),
		RoutingKey:  routingKey,
		PublishedAt: p.now().UTC(),
		Payload:     payload,
	}
	if err := p.t.Publish(ctx, msg); err != nil {
		p.metrics.publishFailed(routingKey)
		p.log.Error("publish_failed",
			slog.String("routing_key", routingKey),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	p.metrics.published(routingKey)
	p.log.Debug("published", slog.String("routing_key", routingKey), slog.String("message_id", msg.ID))
	return nil
}

// PublishToDeadLetter publishes {routingKey, payload, time} under the
// dead-letter routing key.
func (p *Publisher) PublishToDeadLetter(ctx context.Context, originalRoutingKey string, payload map[string]any) error {
	rec := events.DeadLetter{
		RoutingKey: originalRoutingKey,
		Payload:    payload,
		Time:       p.now().UnixMilli(),
	}
	if err := p.Publish(ctx, p.deadLetterKey, rec.AsPayload()); err != nil {
		return err
	}

	p.metrics.deadLettered(originalRoutingKey)
	p.log.Warn("dead_letter_published",
		slog.String("routing_key", originalRoutingKey),
		slog.String("dead_letter_key", p.deadLetterKey),
	)
	return nil
}

func (p *Publisher) DeadLetterKey() string { return p.deadLetterKey }
