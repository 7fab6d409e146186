package leave_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/k1networth/workforce-events/internal/consumer"
	"github.com/k1networth/workforce-events/internal/idempotency"
	"github.com/k1networth/workforce-events/internal/leave"
	"github.com/k1networth/workforce-events/internal/messaging"
	"github.com/k1networth/workforce-events/internal/retry"
	"github.com/k1networth/workforce-events/internal/shared/events"
)

func testLogger() *slog.Logger {
	h := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(h).With(
		slog.String("app", "test"),
		slog.String("env", "test"),
	)
}

type update struct {
	id     string
	status leave.Status
}

type recordingStore struct {
	mu      sync.Mutex
	updates []update
	err     error
}

func (s *recordingStore) UpdateStatus(_ context.Context, id string, status leave.Status) (*leave.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, update{id, status})
	if s.err != nil {
		return nil, s.err
	}
	return &leave.Request{ID: id, Status: status}, nil
}

func (s *recordingStore) snapshot() []update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]update(nil), s.updates...)
}

type pipeline struct {
	transport *messaging.MemoryTransport
	publisher *messaging.Publisher
	store     *idempotency.MemoryStore
}

var fixedNow = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func startPipeline(t *testing.T, ls leave.Store) *pipeline {
	t.Helper()
	log := testLogger()
	tr := messaging.NewMemoryTransport(messaging.DeliveryPolicy{}, 1, log, nil)
	pub := messaging.NewPublisher(tr, "leave.requests.dlq", log, nil)
	store := idempotency.NewMemoryStore()
	coord := retry.NewCoordinator(retry.Exponential{Base: time.Millisecond, Cap: 4 * time.Millisecond}, log, nil)

	job := &leave.Job{
		Store:              ls,
		Publisher:          pub,
		AutoApproveMaxDays: leave.DefaultAutoApproveMaxDays,
		Log:                log,
		Now:                func() time.Time { return fixedNow },
	}
	c := consumer.New(job, consumer.Options{MaxAttempts: 5, IdempotencyTTL: time.Hour}, store, coord, pub, log, nil)

	sub := c.Subscription("leave.requests")
	tr.Declare(sub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tr.Subscribe(ctx, sub, c.Handle)
	}()
	t.Cleanup(func() {
		cancel()
		coord.Stop()
		<-done
	})

	return &pipeline{transport: tr, publisher: pub, store: store}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func request(id, start, end string) leave.Requested {
	return leave.Requested{RequestID: id, EmployeeID: "e1", StartDate: start, EndDate: end}
}

func TestLeaveThreeDaysPendingApproval(t *testing.T) {
	ls := &recordingStore{}
	p := startPipeline(t, ls)

	if err := leave.PublishLeaveRequested(context.Background(), p.publisher, request("r1", "2023-01-01", "2023-01-03")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, func() bool { return len(p.transport.Published(leave.ProcessedRoutingKey)) == 1 })

	ups := ls.snapshot()
	if len(ups) != 1 || ups[0].id != "r1" || ups[0].status != leave.StatusPendingApproval {
		t.Fatalf("unexpected updates %+v", ups)
	}

	derived := p.transport.Published(leave.ProcessedRoutingKey)[0].Payload
	if derived["requestId"] != "r1" || derived["status"] != string(leave.StatusPendingApproval) {
		t.Fatalf("unexpected derived event %v", derived)
	}
	if derived["processedAt"] != fixedNow.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected processedAt %v", derived["processedAt"])
	}
	if n := len(p.transport.Published(leave.RoutingKey)); n != 1 {
		t.Fatalf("expected the derived event not to loop back, got %d leave.requested publishes", n)
	}
}

func TestLeaveTwoDaysApproved(t *testing.T) {
	ls := &recordingStore{}
	p := startPipeline(t, ls)

	if err := leave.PublishLeaveRequested(context.Background(), p.publisher, request("r2", "2023-01-01", "2023-01-02")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, func() bool { return len(p.transport.Published(leave.ProcessedRoutingKey)) == 1 })

	if ups := ls.snapshot(); ups[0].status != leave.StatusApproved {
		t.Fatalf("expected %s, got %s", leave.StatusApproved, ups[0].status)
	}
}

func TestLeaveDuplicateHasNoSideEffects(t *testing.T) {
	ls := &recordingStore{}
	p := startPipeline(t, ls)
	ctx := context.Background()

	if ok, _ := p.store.TryAcquire(ctx, "leave:processed:r1", time.Hour); !ok {
		t.Fatalf("expected pre-acquire to succeed")
	}
	if err := leave.PublishLeaveRequested(ctx, p.publisher, request("r1", "2023-01-01", "2023-01-03")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, func() bool { return p.transport.Pending("leave.requests") == 0 })
	time.Sleep(20 * time.Millisecond)

	if n := len(ls.snapshot()); n != 0 {
		t.Fatalf("expected no status update, got %d", n)
	}
	if n := len(p.transport.Published("")); n != 1 {
		t.Fatalf("expected no publishes beyond the original, got %d", n)
	}
}

func TestLeaveFailureRetriesFiveTimesThenDeadLetters(t *testing.T) {
	ls := &recordingStore{err: errors.New("db down")}
	p := startPipeline(t, ls)

	if err := leave.PublishLeaveRequested(context.Background(), p.publisher, request("r1", "2023-01-01", "2023-01-03")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, func() bool { return len(p.transport.Published("leave.requests.dlq")) == 1 })
	time.Sleep(20 * time.Millisecond)

	requested := p.transport.Published(leave.RoutingKey)
	if retries := len(requested) - 1; retries != 5 {
		t.Fatalf("expected 5 scheduled retries, got %d", retries)
	}
	if n := len(ls.snapshot()); n != 6 {
		t.Fatalf("expected 6 update attempts, got %d", n)
	}
	if n := len(p.transport.Published(leave.ProcessedRoutingKey)); n != 0 {
		t.Fatalf("expected no derived event, got %d", n)
	}

	dead := p.transport.Published("leave.requests.dlq")
	if len(dead) != 1 {
		t.Fatalf("expected exactly 1 dead letter, got %d", len(dead))
	}
	if dead[0].Payload["routingKey"] != leave.RoutingKey {
		t.Fatalf("expected original routing key embedded, got %v", dead[0].Payload["routingKey"])
	}
	inner := dead[0].Payload["payload"].(map[string]any)
	if inner["requestId"] != "r1" || inner["employeeId"] != "e1" {
		t.Fatalf("expected original fields preserved, got %v", inner)
	}
	if got := inner["attempts"]; got != float64(5) {
		t.Fatalf("expected attempts 5 in dead letter, got %v", got)
	}
}

func TestLeaveNotFoundStillCompletes(t *testing.T) {
	ms := leave.NewMemoryStore()
	p := startPipeline(t, ms)

	if err := leave.PublishLeaveRequested(context.Background(), p.publisher, request("missing", "2023-01-01", "2023-01-01")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, func() bool { return len(p.transport.Published(leave.ProcessedRoutingKey)) == 1 })

	if _, ok := ms.Get("missing"); ok {
		t.Fatalf("expected unknown request not to be created")
	}
	if !p.store.Held("leave:processed:missing") {
		t.Fatalf("expected idempotency key to be held")
	}
}

func TestLeaveDerivedPublishFailureIsNotRetried(t *testing.T) {
	ls := &recordingStore{}
	log := testLogger()
	tr := messaging.NewMemoryTransport(messaging.DeliveryPolicy{}, 1, log, nil)
	pub := messaging.NewPublisher(tr, "dlq", log, nil)

	job := &leave.Job{Store: ls, Publisher: pub, AutoApproveMaxDays: 2, Log: log}
	env := messaging.Message{
		ID:         "m1",
		RoutingKey: leave.RoutingKey,
		Payload:    map[string]any{"requestId": "r1", "startDate": "2023-01-01", "endDate": "2023-01-01"},
	}.Envelope()

	tr.FailNextPublish(errors.New("channel closed"))
	if err := job.Process(context.Background(), env); err != nil {
		t.Fatalf("expected derived publish failure to be swallowed, got %v", err)
	}
	if n := len(ls.snapshot()); n != 1 {
		t.Fatalf("expected 1 status update, got %d", n)
	}
}

func TestLeaveInvalidDateFails(t *testing.T) {
	job := &leave.Job{Store: &recordingStore{}, Publisher: nil, AutoApproveMaxDays: 2, Log: testLogger()}
	env := messaging.Message{
		RoutingKey: leave.RoutingKey,
		Payload:    map[string]any{"requestId": "r1", "startDate": "yesterday", "endDate": "2023-01-01"},
	}.Envelope()

	if err := job.Process(context.Background(), env); err == nil {
		t.Fatalf("expected invalid date to fail processing")
	}
}

type publishFunc func(ctx context.Context, routingKey string, payload map[string]any) error

func (f publishFunc) Publish(ctx context.Context, routingKey string, payload map[string]any) error {
	return f(ctx, routingKey, payload)
}

func TestLeaveJobZeroValueDefaults(t *testing.T) {
	ls := &recordingStore{}
	var keys []string
	job := &leave.Job{
		Store: ls,
		Publisher: publishFunc(func(_ context.Context, key string, _ map[string]any) error {
			keys = append(keys, key)
			return errors.New("broker gone")
		}),
	}
	env := events.Envelope{
		RoutingKey: leave.RoutingKey,
		Payload:    map[string]any{"requestId": "r1", "employeeId": "e1", "startDate": "2023-01-01", "endDate": "2023-01-02"},
	}

	if err := job.Process(context.Background(), env); err != nil {
		t.Fatalf("process: %v", err)
	}
	got := ls.snapshot()
	if len(got) != 1 || got[0].status != leave.StatusApproved {
		t.Fatalf("expected two days to auto-approve under the default limit, got %+v", got)
	}
	if len(keys) != 1 || keys[0] != leave.ProcessedRoutingKey {
		t.Fatalf("expected one leave.processed publish, got %v", keys)
	}
}
