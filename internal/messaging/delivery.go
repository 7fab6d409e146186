package messaging

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/k1networth/workforce-events/internal/shared/requestid"
)

// DeliveryPolicy is how a transport treats handler errors that are not
// ErrNoRequeue: the message is redelivered in place up to Redeliveries times,
// Backoff apart, and then settled as dropped. Prefetch bounds the deliveries a
// reader keeps in flight at once, so a handler waiting out a retry backoff
// does not hold up the rest of its queue.
type DeliveryPolicy struct {
	Redeliveries int
	Backoff      time.Duration
	Prefetch     int
}

func (p DeliveryPolicy) inFlight() int {
	if p.Prefetch <= 0 {
		return 1
	}
	return p.Prefetch
}

// deliver runs h until the message can be settled. It returns false only when
// ctx ended first; the message must then stay unacknowledged.
func deliver(ctx context.Context, log *slog.Logger, m *Metrics, policy DeliveryPolicy, queue string, msg Message, h Handler) bool {
	ctx = requestid.With(ctx, msg.ID)

	for try := 0; ; try++ {
		err := h(ctx, msg.Envelope())
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		if errors.Is(err, ErrNoRequeue) {
			log.Warn("delivery_rejected",
				slog.String("queue", queue),
				slog.String("routing_key", msg.RoutingKey),
				slog.String("message_id", msg.ID),
				slog.String("err", err.Error()),
			)
			return true
		}
		if try >= policy.Redeliveries {
			m.dropped(queue)
			log.Error("delivery_dropped",
				slog.String("queue", queue),
				slog.String("routing_key", msg.RoutingKey),
				slog.String("message_id", msg.ID),
				slog.Int("redeliveries", try),
				slog.String("err", err.Error()),
			)
			return true
		}

		log.Warn("delivery_failed_redeliver",
			slog.String("queue", queue),
			slog.String("routing_key", msg.RoutingKey),
			slog.String("message_id", msg.ID),
			slog.Int("redelivery", try+1),
			slog.String("err", err.Error()),
		)
		if policy.Backoff > 0 {
			t := time.NewTimer(policy.Backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return false
			case <-t.C:
			}
		}
	}
}
