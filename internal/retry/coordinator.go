package retry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/k1networth/workforce-events/internal/shared/events"
)

// ErrRetryAborted is returned when the backoff wait ends because the
// coordinator was stopped or the context was cancelled.
var ErrRetryAborted = errors.New("retry aborted")

// PublishFunc republishes a payload. The coordinator does not know the routing key.
type PublishFunc func(ctx context.Context, payload map[string]any) error

type Coordinator struct {
	strategy Strategy
	log      *slog.Logger
	metrics  *Metrics

	stopOnce sync.Once
	stop     chan struct{}
}

// NewCoordinator accepts a nil metrics.
func NewCoordinator(strategy Strategy, log *slog.Logger, metrics *Metrics) *Coordinator {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{
		strategy: strategy,
		log:      log,
		metrics:  metrics,
		stop:     make(chan struct{}),
	}
}

// ScheduleRetry returns false without publishing when attempt >= maxAttempts.
// Otherwise it waits Delay(attempt+1), sets payload["attempts"] to attempt+1,
// publishes and returns true. The payload map is modified in place.
func (c *Coordinator) ScheduleRetry(ctx context.Context, attempt, maxAttempts int, publish PublishFunc, payload map[string]any) (bool, error) {
	if attempt >= maxAttempts {
		return false, nil
	}

	next := attempt + 1
	delay := c.strategy.Delay(next)

	select {
	case <-c.stop:
		c.aborted(next, nil)
		return false, ErrRetryAborted
	default:
	}

	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			c.aborted(next, ctx.Err())
			return false, errors.Join(ErrRetryAborted, ctx.Err())
		case <-c.stop:
			t.Stop()
			c.aborted(next, nil)
			return false, ErrRetryAborted
		}
	}

	payload[events.AttemptsField] = next
	if err := publish(ctx, payload); err != nil {
		return false, err
	}

	if c.metrics != nil {
		c.metrics.ScheduledTotal.Inc()
	}
	c.log.Info("retry_scheduled",
		slog.Int("attempt", next),
		slog.Int("max_attempts", maxAttempts),
		slog.Int64("delay_ms", delay.Milliseconds()),
	)
	return true, nil
}

// Stop aborts all pending and future waits. Safe to call more than once.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Coordinator) aborted(attempt int, cause error) {
	if c.metrics != nil {
		c.metrics.AbortedTotal.Inc()
	}
	attrs := []any{slog.Int("attempt", attempt)}
	if cause != nil {
		attrs = append(attrs, slog.String("err", cause.Error()))
	}
	c.log.Warn("retry_aborted", attrs...)
}
