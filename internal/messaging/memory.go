package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/k1networth/workforce-events/internal/shared/events"
)

var ErrTransportClosed = errors.New("transport closed")

// MemoryTransport is an in-process topic exchange. Queues are created on
// Declare or Subscribe; messages published before a queue exists are not
// routed to it. Each subscription runs workers dispatchers with up to
// DeliveryPolicy.Prefetch handlers each. Payloads go through a JSON round
// trip so consumers see the same types they would see off the wire.
type MemoryTransport struct {
	log     *slog.Logger
	metrics *Metrics
	policy  DeliveryPolicy
	workers int

	mu        sync.Mutex
	closed    bool
	queues    map[string]*memQueue
	published []Message
	failNext  error
}

func NewMemoryTransport(policy DeliveryPolicy, workers int, log *slog.Logger, metrics *Metrics) *MemoryTransport {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if workers <= 0 {
		workers = 1
	}
	return &MemoryTransport{
		log:     log,
		metrics: metrics,
		policy:  policy,
		workers: workers,
		queues:  map[string]*memQueue{},
	}
}

// Declare creates the queue and its bindings if they do not exist yet.
func (t *MemoryTransport) Declare(sub Subscription) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.declareLocked(sub)
}

func (t *MemoryTransport) declareLocked(sub Subscription) *memQueue {
	q, ok := t.queues[sub.Queue]
	if !ok {
		q = &memQueue{notify: make(chan struct{}, 1)}
		t.queues[sub.Queue] = q
	}
	q.sub = sub
	return q
}

func (t *MemoryTransport) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := events.Encode(msg.Payload)
	if err != nil {
		return err
	}
	if payload == nil {
		payload = map[string]any{}
	}
	msg.Payload = payload

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}
	if t.failNext != nil {
		err := t.failNext
		t.failNext = nil
		return err
	}

	t.published = append(t.published, msg)
	for _, q := range t.queues {
		if q.sub.Matches(msg.RoutingKey) {
			q.push(msg)
		}
	}
	return nil
}

func (t *MemoryTransport) Subscribe(ctx context.Context, sub Subscription, h Handler) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	q := t.declareLocked(sub)
	t.mu.Unlock()

	log := t.log.With(slog.String("queue", sub.Queue))
	log.Info("consumer_start", slog.Any("bindings", sub.Bindings), slog.Int("workers", t.workers), slog.Int("prefetch", t.policy.inFlight()))

	var wg sync.WaitGroup
	for i := 0; i < t.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			t.dispatch(ctx, log, q, sub, h)
		}()
	}
	wg.Wait()
	log.Info("consumer_shutdown")
	return nil
}

// dispatch pops messages and runs up to Prefetch handlers at once. A message
// whose handler ran out of context goes back to the head of the queue.
func (t *MemoryTransport) dispatch(ctx context.Context, log *slog.Logger, q *memQueue, sub Subscription, h Handler) {
	sem := semaphore.NewWeighted(int64(t.policy.inFlight()))
	var inflight sync.WaitGroup
	defer inflight.Wait()

	for {
		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}

		msg, ok := q.pop()
		if !ok {
			sem.Release(1)
			select {
			case <-ctx.Done():
				return
			case <-q.notify:
				continue
			}
		}

		inflight.Add(1)
		go func() {
			defer inflight.Done()
			defer sem.Release(1)
			if !deliver(ctx, log, t.metrics, t.policy, sub.Queue, msg, h) {
				q.pushFront(msg)
			}
		}()
	}
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// FailNextPublish makes the next Publish return err.
func (t *MemoryTransport) FailNextPublish(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failNext = err
}

// Published returns the messages published with routingKey, or all of them
// when routingKey is empty.
func (t *MemoryTransport) Published(routingKey string) []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Message
	for _, m := range t.published {
		if routingKey == "" || m.RoutingKey == routingKey {
			out = append(out, m)
		}
	}
	return out
}

// Pending returns the number of messages waiting in the queue.
func (t *MemoryTransport) Pending(queue string) int {
	t.mu.Lock()
	q, ok := t.queues[queue]
	t.mu.Unlock()
	if !ok {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

type memQueue struct {
	sub    Subscription
	notify chan struct{}

	mu    sync.Mutex
	items []Message
}

func (q *memQueue) push(m Message) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
	q.wake()
}

func (q *memQueue) pushFront(m Message) {
	q.mu.Lock()
	q.items = append([]Message{m}, q.items...)
	q.mu.Unlock()
	q.wake()
}

func (q *memQueue) pop() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Message{}, false
	}
	m := q.items[0]
	q.items = q.items[1:]
	return m, true
}

func (q *memQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
