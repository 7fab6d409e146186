package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/k1networth/workforce-events/internal/idempotency"
	"github.com/k1networth/workforce-events/internal/messaging"
	"github.com/k1networth/workforce-events/internal/retry"
	"github.com/k1networth/workforce-events/internal/shared/events"
	"github.com/k1networth/workforce-events/internal/shared/requestid"
)

// Job is the business part of a consumer.
type Job interface {
	// Name labels logs and metrics.
	Name() string
	// RoutingKey is the key the consumer is bound to; retries are republished on it.
	RoutingKey() string
	// IdempotencyKey returns ErrMalformedEnvelope when the id field is missing.
	IdempotencyKey(env events.Envelope) (string, error)
	Process(ctx context.Context, env events.Envelope) error
}

// DeadLetterPublisher is the part of messaging.Publisher a consumer needs.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, routingKey string, payload map[string]any) error
	PublishToDeadLetter(ctx context.Context, originalRoutingKey string, payload map[string]any) error
}

type Options struct {
	MaxAttempts    int
	IdempotencyTTL time.Duration
}

// Consumer drives a Job through idempotency check, processing, retry and
// dead-lettering.
type Consumer struct {
	job         Job
	opts        Options
	store       idempotency.Store
	coordinator *retry.Coordinator
	pub         DeadLetterPublisher
	log         *slog.Logger
	metrics     *Metrics
}

func New(job Job, opts Options, store idempotency.Store, coordinator *retry.Coordinator, pub DeadLetterPublisher, log *slog.Logger, metrics *Metrics) *Consumer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Consumer{
		job:         job,
		opts:        opts,
		store:       store,
		coordinator: coordinator,
		pub:         pub,
		log:         log.With(slog.String("consumer", job.Name())),
		metrics:     metrics,
	}
}

func (c *Consumer) Subscription(queue string) messaging.Subscription {
	return messaging.Subscription{Queue: queue, Bindings: []string{c.job.RoutingKey()}}
}

// Handle is a messaging.Handler. A nil return acknowledges the delivery; a
// *DeadLetteredError means the message is already in the dead-letter queue;
// any other error is a transient failure the transport may redeliver.
func (c *Consumer) Handle(ctx context.Context, env events.Envelope) error {
	start := time.Now()
	outcome, err := c.handle(ctx, env)
	if c.metrics != nil {
		c.metrics.MessagesTotal.WithLabelValues(c.job.Name(), string(outcome)).Inc()
		c.metrics.ProcessingDuration.WithLabelValues(c.job.Name()).Observe(time.Since(start).Seconds())
	}
	return err
}

func (c *Consumer) handle(ctx context.Context, env events.Envelope) (Outcome, error) {
	log := c.log.With(
		slog.String("message_id", requestid.Get(ctx)),
		slog.String("routing_key", env.RoutingKey),
	)

	key, err := c.job.IdempotencyKey(env)
	if err != nil {
		log.Error("consumer_malformed_envelope", slog.String("err", err.Error()))
		return c.deadLetter(ctx, log, env, err)
	}
	log = log.With(slog.String("idempotency_key", key))

	acquired, err := c.store.TryAcquire(ctx, key, c.opts.IdempotencyTTL)
	if err != nil {
		log.Error("idempotency_check_failed", slog.String("err", err.Error()))
		return OutcomeFailed, fmt.Errorf("idempotency check: %w", err)
	}
	if !acquired {
		log.Info("consumer_skip_duplicate")
		return OutcomeSkipped, nil
	}

	procErr := c.job.Process(ctx, env)
	if procErr == nil {
		log.Info("consumer_done", slog.Int("attempts", env.Attempts()))
		return OutcomeDone, nil
	}

	log.Warn("consumer_process_failed",
		slog.Int("attempts", env.Attempts()),
		slog.String("err", procErr.Error()),
	)

	if err := c.store.Release(ctx, key); err != nil {
		log.Error("idempotency_release_failed", slog.String("err", err.Error()))
	}

	attempts := env.Attempts()
	if attempts < c.opts.MaxAttempts {
		payload := env.Clone().Payload
		routingKey := c.job.RoutingKey()
		publish := func(ctx context.Context, p map[string]any) error {
			return c.pub.Publish(ctx, routingKey, p)
		}

		scheduled, err := c.coordinator.ScheduleRetry(ctx, attempts, c.opts.MaxAttempts, publish, payload)
		if err != nil {
			log.Error("retry_schedule_failed", slog.String("err", err.Error()))
			return OutcomeFailed, fmt.Errorf("schedule retry: %w", errors.Join(err, procErr))
		}
		if scheduled {
			return OutcomeRetryScheduled, nil
		}
	}

	return c.deadLetter(ctx, log, env, procErr)
}

func (c *Consumer) deadLetter(ctx context.Context, log *slog.Logger, env events.Envelope, cause error) (Outcome, error) {
	dead := env.Clone()
	if dead.RoutingKey == "" {
		dead.RoutingKey = c.job.RoutingKey()
	}
	routingKey := dead.RoutingKey
	payload := dead.Payload
	payload["error"] = cause.Error()

	if err := c.pub.PublishToDeadLetter(ctx, routingKey, payload); err != nil {
		log.Error("dead_letter_failed", slog.String("err", err.Error()))
		return OutcomeFailed, fmt.Errorf("publish dead letter: %w", errors.Join(err, cause))
	}

	log.Error("consumer_dead_lettered",
		slog.Int("attempts", env.Attempts()),
		slog.String("err", cause.Error()),
	)
	return OutcomeDeadLettered, &DeadLetteredError{RoutingKey: routingKey, Err: cause}
}
