package kafkax

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

type Producer struct {
	mu        sync.Mutex
	w         *kafka.Writer
	cfg       ProducerConfig
	lastReset time.Time
}

type ProducerConfig struct {
	Brokers      []string
	Topic        string
	ClientID     string
	WriteTimeout time.Duration
	// Durable producers wait for all in-sync replicas.
	Durable bool
}

func NewProducer(cfg ProducerConfig) *Producer {
	p := &Producer{cfg: cfg}
	p.w = newWriter(cfg)
	return p
}

func newWriter(cfg ProducerConfig) *kafka.Writer {
	// kafka-go caches broker metadata; when broker addresses change (e.g. after fixing
	// advertised.listeners), a long metadata TTL may keep clients stuck until restart.
	tr := &kafka.Transport{
		ClientID:    cfg.ClientID,
		MetadataTTL: 10 * time.Second,
	}

	acks := kafka.RequireOne
	if cfg.Durable {
		acks = kafka.RequireAll
	}

	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           acks,
		MaxAttempts:            1,
		Async:                  false,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
		Transport:              tr,
	}
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.w == nil {
		return nil
	}
	err := p.w.Close()
	p.w = nil
	return err
}

// Produce writes one message synchronously and makes exactly one attempt. On a
// network or metadata error the writer is recreated for the next call and the
// error is returned.
func (p *Producer) Produce(ctx context.Context, msg kafka.Message, timeout time.Duration) error {
	if timeout <= 0 {
		if p.cfg.WriteTimeout > 0 {
			timeout = p.cfg.WriteTimeout
		} else {
			timeout = 5 * time.Second
		}
	}

	p.mu.Lock()
	w := p.w
	p.mu.Unlock()
	if w == nil {
		return context.Canceled
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := w.WriteMessages(cctx, msg); err != nil {
		if shouldReset(err) {
			p.resetOnce()
		}
		return err
	}
	return nil
}

// ShouldReset reports whether err looks like stale metadata or a dead connection.
func ShouldReset(err error) bool { return shouldReset(err) }

func shouldReset(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	suspects := []string{
		"dial tcp",
		"connection refused",
		"i/o timeout",
		"eof",
		"broken pipe",
		"transport is closing",
		"not leader",
		"unknown broker",
		"failed to dial",
	}
	for _, sub := range suspects {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func (p *Producer) resetOnce() {
	p.mu.Lock()
	defer p.mu.Unlock()
	// Rate-limit resets to avoid tight loops.
	if time.Since(p.lastReset) < 2*time.Second {
		return
	}
	if p.w != nil {
		_ = p.w.Close()
	}
	p.w = newWriter(p.cfg)
	p.lastReset = time.Now()
}
