package messaging_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/k1networth/workforce-events/internal/messaging"
	"github.com/k1networth/workforce-events/internal/shared/events"
	"github.com/k1networth/workforce-events/internal/shared/requestid"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func subscribe(t *testing.T, tr *messaging.MemoryTransport, sub messaging.Subscription, h messaging.Handler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tr.Subscribe(ctx, sub, h)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestMemoryTransportRoutesByBinding(t *testing.T) {
	tr := messaging.NewMemoryTransport(messaging.DeliveryPolicy{}, 1, testLogger(), nil)

	var mu sync.Mutex
	var got []string
	sub := messaging.Subscription{Queue: "email.welcome", Bindings: []string{"user.registered"}}
	tr.Declare(sub)
	subscribe(t, tr, sub, func(ctx context.Context, env events.Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, env.RoutingKey)
		if requestid.Get(ctx) != env.MessageID {
			return fmt.Errorf("message id not in context")
		}
		return nil
	})

	ctx := context.Background()
	for _, key := range []string{"user.registered", "leave.requested", "user.registered"} {
		msg := messaging.Message{ID: key + "-id", RoutingKey: key, Payload: map[string]any{}}
		if err := tr.Publish(ctx, msg); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, k := range got {
		if k != "user.registered" {
			t.Fatalf("unexpected routing key delivered: %q", k)
		}
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
}

func TestMemoryTransportRedeliversThenDrops(t *testing.T) {
	m := messaging.NewMetrics(prometheus.NewRegistry())
	tr := messaging.NewMemoryTransport(messaging.DeliveryPolicy{Redeliveries: 2, Backoff: time.Millisecond}, 1, testLogger(), m)

	var calls atomic.Int32
	sub := messaging.Subscription{Queue: "q", Bindings: []string{"#"}}
	tr.Declare(sub)
	subscribe(t, tr, sub, func(context.Context, events.Envelope) error {
		calls.Add(1)
		return errors.New("redis down")
	})

	if err := tr.Publish(context.Background(), messaging.Message{ID: "m1", RoutingKey: "a.b", Payload: map[string]any{}}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, func() bool { return testutil.ToFloat64(m.DroppedTotal.WithLabelValues("q")) == 1 })
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 handler calls, got %d", got)
	}
}

func TestMemoryTransportNoRequeue(t *testing.T) {
	m := messaging.NewMetrics(prometheus.NewRegistry())
	tr := messaging.NewMemoryTransport(messaging.DeliveryPolicy{Redeliveries: 5}, 1, testLogger(), m)

	var calls atomic.Int32
	sub := messaging.Subscription{Queue: "q", Bindings: []string{"#"}}
	tr.Declare(sub)
	subscribe(t, tr, sub, func(context.Context, events.Envelope) error {
		calls.Add(1)
		return fmt.Errorf("dead-lettered: %w", messaging.ErrNoRequeue)
	})

	if err := tr.Publish(context.Background(), messaging.Message{ID: "m1", RoutingKey: "a", Payload: map[string]any{}}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, func() bool { return calls.Load() == 1 && tr.Pending("q") == 0 })
	time.Sleep(20 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected exactly 1 delivery, got %d", got)
	}
	if v := testutil.ToFloat64(m.DroppedTotal.WithLabelValues("q")); v != 0 {
		t.Fatalf("expected no drops, got %v", v)
	}
}

func TestMemoryTransportPayloadRoundTrip(t *testing.T) {
	tr := messaging.NewMemoryTransport(messaging.DeliveryPolicy{}, 1, testLogger(), nil)

	src := map[string]any{"attempts": 3, "extra": "kept"}
	if err := tr.Publish(context.Background(), messaging.Message{ID: "m1", RoutingKey: "k", Payload: src}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	src["extra"] = "mutated"

	got := tr.Published("k")[0]
	if got.Payload["extra"] != "kept" {
		t.Fatalf("expected published payload to be isolated, got %v", got.Payload["extra"])
	}
	if n := got.Envelope().Attempts(); n != 3 {
		t.Fatalf("expected attempts 3, got %d", n)
	}
}

func TestMemoryTransportClosed(t *testing.T) {
	tr := messaging.NewMemoryTransport(messaging.DeliveryPolicy{}, 1, testLogger(), nil)
	_ = tr.Close()

	err := tr.Publish(context.Background(), messaging.Message{ID: "m1", RoutingKey: "k"})
	if !errors.Is(err, messaging.ErrTransportClosed) {
		t.Fatalf("expected ErrTransportClosed, got %v", err)
	}
}

func TestMemoryTransportSlowMessageDoesNotBlockQueue(t *testing.T) {
	tr := messaging.NewMemoryTransport(messaging.DeliveryPolicy{Prefetch: 2}, 1, testLogger(), nil)

	release := make(chan struct{})
	fastDone := make(chan struct{})
	sub := messaging.Subscription{Queue: "email.welcome", Bindings: []string{"user.registered"}}
	tr.Declare(sub)
	subscribe(t, tr, sub, func(ctx context.Context, env events.Envelope) error {
		switch env.MessageID {
		case "slow":
			select {
			case <-release:
			case <-ctx.Done():
			}
		case "fast":
			close(fastDone)
		}
		return nil
	})
	t.Cleanup(func() { close(release) })

	ctx := context.Background()
	for _, id := range []string{"slow", "fast"} {
		if err := tr.Publish(ctx, messaging.Message{ID: id, RoutingKey: "user.registered", Payload: map[string]any{}}); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}

	select {
	case <-fastDone:
	case <-time.After(time.Second):
		t.Fatalf("fast message waited behind the slow one")
	}
}
