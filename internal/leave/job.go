package leave

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/k1networth/workforce-events/internal/consumer"
	"github.com/k1networth/workforce-events/internal/idempotency"
	"github.com/k1networth/workforce-events/internal/shared/events"
)

// Job decides and stores the status of a leave.requested message, then
// announces the decision on leave.processed. A non-positive AutoApproveMaxDays
// means DefaultAutoApproveMaxDays and a nil Log discards.
type Job struct {
	Store              Store
	Publisher          Publisher
	AutoApproveMaxDays int
	Log                *slog.Logger
	Now                func() time.Time
}

func (j *Job) Name() string       { return "leave_request" }
func (j *Job) RoutingKey() string { return RoutingKey }

func (j *Job) IdempotencyKey(env events.Envelope) (string, error) {
	id, _ := env.Payload["requestId"].(string)
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("%w: requestId is missing", consumer.ErrMalformedEnvelope)
	}
	return idempotency.Key(Domain, id), nil
}

func (j *Job) Process(ctx context.Context, env events.Envelope) error {
	var e Requested
	if err := events.Decode(env.Payload, &e); err != nil {
		return fmt.Errorf("decode leave.requested: %w", err)
	}
	start, end, err := e.Dates()
	if err != nil {
		return err
	}

	days := DaySpan(start, end)
	status := Decide(days, j.maxDays())

	updated, err := j.Store.UpdateStatus(ctx, e.RequestID, status)
	if err != nil {
		return fmt.Errorf("update leave %s status: %w", e.RequestID, err)
	}
	log := j.logger()
	if updated == nil {
		log.Warn("leave_request_not_found", slog.String("request_id", e.RequestID))
	}
	log.Info("leave_status_updated",
		slog.String("request_id", e.RequestID),
		slog.Int("days", days),
		slog.String("status", string(status)),
	)

	// The status is already committed; a lost announcement must not reprocess it.
	processed := map[string]any{
		"requestId":   e.RequestID,
		"processedAt": j.now().UTC().Format(time.RFC3339Nano),
		"status":      string(status),
	}
	if err := j.Publisher.Publish(ctx, ProcessedRoutingKey, processed); err != nil {
		log.Error("leave_processed_publish_failed",
			slog.String("request_id", e.RequestID),
			slog.String("err", err.Error()),
		)
	}
	return nil
}

func (j *Job) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

func (j *Job) maxDays() int {
	if j.AutoApproveMaxDays <= 0 {
		return DefaultAutoApproveMaxDays
	}
	return j.AutoApproveMaxDays
}

func (j *Job) logger() *slog.Logger {
	if j.Log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return j.Log
}
