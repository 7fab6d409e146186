package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/k1networth/workforce-events/internal/consumer"
	"github.com/k1networth/workforce-events/internal/leave"
	"github.com/k1networth/workforce-events/internal/messaging"
	"github.com/k1networth/workforce-events/internal/retry"
	"github.com/k1networth/workforce-events/internal/shared/config"
	"github.com/k1networth/workforce-events/internal/shared/httpx"
	"github.com/k1networth/workforce-events/internal/shared/logger"
	"github.com/k1networth/workforce-events/internal/welcome"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		slog.Error("config_error", slog.String("err", err.Error()))
		os.Exit(2)
	}
	log := logger.New(cfg.App.Name, cfg.App.Env, cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	msgMetrics := messaging.NewMetrics(reg)
	transport := newTransport(cfg, log, msgMetrics)
	defer func() { _ = transport.Close() }()

	store, closeStore, err := newIdempotencyStore(ctx, cfg)
	if err != nil {
		log.Error("redis_connect_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer closeStore()

	leaveStore, closeDB, err := newLeaveStore(ctx, cfg, log)
	if err != nil {
		log.Error("db_open_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer closeDB()

	pub := messaging.NewPublisher(transport, cfg.Messaging.DeadLetterKey, log, msgMetrics)
	coord := retry.NewCoordinator(retry.NewStrategy(retry.Config{
		Strategy:   cfg.Retry.Strategy,
		FixedDelay: time.Duration(cfg.Retry.FixedDelayMS) * time.Millisecond,
		Base:       time.Duration(cfg.Retry.BaseMS) * time.Millisecond,
		Cap:        time.Duration(cfg.Retry.CapMS) * time.Millisecond,
	}), log, retry.NewMetrics(reg))
	consumerMetrics := consumer.NewMetrics(reg)

	welcomeConsumer := consumer.New(
		&welcome.Job{Sender: newSender(cfg, log), AppName: cfg.App.Name, Log: log},
		consumer.Options{MaxAttempts: cfg.Welcome.MaxAttempts, IdempotencyTTL: cfg.Welcome.IdempotencyTTL},
		store, coord, pub, log, consumerMetrics,
	)
	leaveConsumer := consumer.New(
		&leave.Job{Store: leaveStore, Publisher: pub, AutoApproveMaxDays: cfg.Leave.AutoApproveMaxDays, Log: log},
		consumer.Options{MaxAttempts: cfg.Leave.MaxAttempts, IdempotencyTTL: cfg.Leave.IdempotencyTTL},
		store, coord, pub, log, consumerMetrics,
	)

	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httpx.NewRouter(log, httpx.RouterConfig{
			Probes: []httpx.Probe{
				{Name: "redis", Check: store.Ping},
				{Name: "broker", Check: func(ctx context.Context) error {
					return pub.Publish(ctx, healthCheckKey, map[string]any{"ts": time.Now().UnixMilli()})
				}},
			},
			Gatherer: reg,
			Metrics:  httpx.NewMetrics(reg),
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http_listen", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown_start")
		// Pending backoffs end with ErrRetryAborted; their messages stay uncommitted.
		coord.Stop()
		httpx.Shutdown(gctx, log, srv, 10*time.Second)
		return nil
	})
	for _, c := range []struct {
		consumer *consumer.Consumer
		queue    string
	}{
		{welcomeConsumer, cfg.Welcome.Queue},
		{leaveConsumer, cfg.Leave.Queue},
	} {
		g.Go(func() error {
			return transport.Subscribe(gctx, c.consumer.Subscription(c.queue), c.consumer.Handle)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("worker_failed", slog.String("err", err.Error()))
	}
	log.Info("shutdown_done")
}
