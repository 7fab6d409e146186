package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/semaphore"

	"github.com/k1networth/workforce-events/internal/shared/kafkax"
)

type KafkaConfig struct {
	Brokers      []string
	Exchange     string
	ClientID     string
	StartOffset  string
	Durable      bool
	Workers      int
	WriteTimeout time.Duration
	Policy       DeliveryPolicy
}

// KafkaTransport maps the topic exchange onto one Kafka topic. The routing
// key travels in a header and every queue is a consumer group on that topic.
type KafkaTransport struct {
	cfg      KafkaConfig
	producer *kafkax.Producer
	log      *slog.Logger
	metrics  *Metrics

	mu        sync.Mutex
	consumers []*kafkax.Consumer
}

func NewKafkaTransport(cfg KafkaConfig, log *slog.Logger, metrics *Metrics) *KafkaTransport {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &KafkaTransport{
		cfg: cfg,
		producer: kafkax.NewProducer(kafkax.ProducerConfig{
			Brokers:      cfg.Brokers,
			Topic:        cfg.Exchange,
			ClientID:     cfg.ClientID,
			WriteTimeout: cfg.WriteTimeout,
			Durable:      cfg.Durable,
		}),
		log:     log,
		metrics: metrics,
	}
}

func (t *KafkaTransport) Publish(ctx context.Context, msg Message) error {
	km, err := toKafka(msg)
	if err != nil {
		return err
	}
	return t.producer.Produce(ctx, km, 0)
}

func (t *KafkaTransport) Subscribe(ctx context.Context, sub Subscription, h Handler) error {
	var wg sync.WaitGroup
	for i := 0; i < t.cfg.Workers; i++ {
		c := kafkax.NewConsumer(kafkax.ConsumerConfig{
			Brokers:     t.cfg.Brokers,
			Topic:       t.cfg.Exchange,
			GroupID:     sub.Queue,
			StartOffset: t.cfg.StartOffset,
		})
		t.track(c)

		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			t.run(ctx, c, worker, sub, h)
		}(i)
	}

	t.log.Info("consumer_start",
		slog.String("topic", t.cfg.Exchange),
		slog.String("group_id", sub.Queue),
		slog.Any("bindings", sub.Bindings),
		slog.Int("workers", t.cfg.Workers),
		slog.Int("prefetch", t.cfg.Policy.inFlight()),
	)
	wg.Wait()
	return nil
}

// run fetches in order and keeps up to Policy.Prefetch handlers in flight.
// Offsets are committed through an offsetTracker so a slow message holds back
// only its own partition's commit, never the fetching of later messages.
func (t *KafkaTransport) run(ctx context.Context, c *kafkax.Consumer, worker int, sub Subscription, h Handler) {
	log := t.log.With(slog.String("queue", sub.Queue), slog.Int("worker", worker))

	sem := semaphore.NewWeighted(int64(t.cfg.Policy.inFlight()))
	offsets := newOffsetTracker()
	var inflight sync.WaitGroup
	defer inflight.Wait()

	commit := func(km kafka.Message) error { return c.CommitMessages(ctx, km) }

	for {
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Info("consumer_shutdown")
			return
		}

		km, err := c.FetchMessage(ctx)
		if err != nil {
			sem.Release(1)
			if ctx.Err() != nil {
				log.Info("consumer_shutdown")
				return
			}
			log.Error("kafka_fetch_failed", slog.String("err", err.Error()))
			if kafkax.ShouldReset(err) {
				// Offsets of the old reader's generation are meaningless to the new one.
				inflight.Wait()
				offsets.reset()
				c.Reopen()
			}
			if !sleep(ctx, 300*time.Millisecond) {
				return
			}
			continue
		}
		offsets.fetched(km)

		inflight.Add(1)
		go func() {
			defer inflight.Done()
			defer sem.Release(1)

			if !t.handle(ctx, log, sub, km, h) {
				return
			}
			if err := offsets.settle(km, commit); err != nil && ctx.Err() == nil {
				log.Error("kafka_commit_failed", slog.String("err", err.Error()))
			}
		}()
	}
}

// handle reports whether km may be committed.
func (t *KafkaTransport) handle(ctx context.Context, log *slog.Logger, sub Subscription, km kafka.Message, h Handler) bool {
	msg, err := fromKafka(km)
	switch {
	case err != nil:
		t.metrics.dropped(sub.Queue)
		log.Error("message_decode_failed",
			slog.Int64("offset", km.Offset),
			slog.String("err", err.Error()),
		)
		return true
	case !sub.Matches(msg.RoutingKey):
		// another queue's routing key
		return true
	default:
		return deliver(ctx, log, t.metrics, t.cfg.Policy, sub.Queue, msg, h)
	}
}

func (t *KafkaTransport) track(c *kafkax.Consumer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.consumers = append(t.consumers, c)
}

func (t *KafkaTransport) Close() error {
	t.mu.Lock()
	cs := t.consumers
	t.consumers = nil
	t.mu.Unlock()

	for _, c := range cs {
		_ = c.Close()
	}
	return t.producer.Close()
}

func toKafka(msg Message) (kafka.Message, error) {
	body, err := json.Marshal(msg.Payload)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode payload: %w", err)
	}
	return kafka.Message{
		Key:   []byte(msg.ID),
		Value: body,
		Headers: kafkax.Headers(map[string]string{
			HeaderRoutingKey:  msg.RoutingKey,
			HeaderMessageID:   msg.ID,
			HeaderPublishedAt: msg.PublishedAt.Format(time.RFC3339Nano),
		}),
	}, nil
}

func fromKafka(km kafka.Message) (Message, error) {
	msg := Message{
		ID:         kafkax.Header(km, HeaderMessageID),
		RoutingKey: kafkax.Header(km, HeaderRoutingKey),
	}
	if msg.RoutingKey == "" {
		return Message{}, fmt.Errorf("missing %s header", HeaderRoutingKey)
	}
	if msg.ID == "" {
		msg.ID = string(km.Key)
	}
	if ts := kafkax.Header(km, HeaderPublishedAt); ts != "" {
		if at, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			msg.PublishedAt = at
		}
	}
	if err := json.Unmarshal(km.Value, &msg.Payload); err != nil {
		return Message{}, fmt.Errorf("decode payload: %w", err)
	}
	if msg.Payload == nil {
		msg.Payload = map[string]any{}
	}
	return msg, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
