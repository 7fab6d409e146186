package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/k1networth/workforce-events/internal/email"
	"github.com/k1networth/workforce-events/internal/idempotency"
	"github.com/k1networth/workforce-events/internal/leave"
	"github.com/k1networth/workforce-events/internal/messaging"
	"github.com/k1networth/workforce-events/internal/shared/config"
	"github.com/k1networth/workforce-events/internal/shared/db"
)

const healthCheckKey = "health.check"

type pingStore interface {
	idempotency.Store
	Ping(ctx context.Context) error
}

func newTransport(cfg config.Config, log *slog.Logger, m *messaging.Metrics) messaging.Transport {
	policy := messaging.DeliveryPolicy{
		Redeliveries: cfg.Messaging.Redeliveries,
		Backoff:      cfg.Messaging.RedeliveryBackoff,
		Prefetch:     cfg.Messaging.Prefetch,
	}
	if strings.EqualFold(cfg.Messaging.Transport, "memory") {
		log.Warn("memory_transport_enabled")
		return messaging.NewMemoryTransport(policy, cfg.Messaging.Workers, log, m)
	}

	clientID := cfg.Kafka.ClientID
	if clientID == "" {
		clientID = cfg.App.Name
	}
	return messaging.NewKafkaTransport(messaging.KafkaConfig{
		Brokers:      cfg.Kafka.Brokers,
		Exchange:     cfg.Messaging.Exchange,
		ClientID:     clientID,
		StartOffset:  cfg.Kafka.StartOffset,
		Durable:      cfg.Messaging.Durable,
		Workers:      cfg.Messaging.Workers,
		WriteTimeout: 5 * time.Second,
		Policy:       policy,
	}, log, m)
}

// newIdempotencyStore uses Redis, except with the memory transport where
// everything stays in process.
func newIdempotencyStore(ctx context.Context, cfg config.Config) (pingStore, func(), error) {
	if strings.EqualFold(cfg.Messaging.Transport, "memory") {
		return idempotency.NewMemoryStore(), func() {}, nil
	}

	rdb, err := idempotency.NewRedisClient(ctx, idempotency.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, nil, err
	}
	return idempotency.NewRedisStore(rdb), func() { _ = rdb.Close() }, nil
}

func newLeaveStore(ctx context.Context, cfg config.Config, log *slog.Logger) (leave.Store, func(), error) {
	if cfg.Postgres.DatabaseURL == "" {
		log.Warn("leave_store_in_memory", slog.String("reason", "DATABASE_URL is empty"))
		s := leave.NewMemoryStore()
		s.AutoCreate = true
		s.Log = log
		return s, func() {}, nil
	}

	pg, err := db.OpenPostgres(ctx, db.PostgresConfig{DatabaseURL: cfg.Postgres.DatabaseURL, ApplicationName: cfg.App.Name})
	if err != nil {
		return nil, nil, err
	}
	return leave.NewPostgresStore(pg), func() { _ = pg.Close() }, nil
}

func newSender(cfg config.Config, log *slog.Logger) email.Sender {
	if cfg.SMTP.Host == "" {
		log.Warn("smtp_disabled", slog.String("reason", "SMTP_HOST is empty"))
		return email.LogSender{Log: log}
	}
	return email.NewSMTPSender(email.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
}
