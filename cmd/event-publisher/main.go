// Command event-publisher publishes the business events the workers consume:
//
//	event-publisher user-registered -email a@b.com -name A [-user-id ID]
//	event-publisher leave-requested -start 2024-05-01 -end 2024-05-03 [-request-id ID] [-employee-id ID]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/k1networth/workforce-events/internal/leave"
	"github.com/k1networth/workforce-events/internal/messaging"
	"github.com/k1networth/workforce-events/internal/shared/config"
	"github.com/k1networth/workforce-events/internal/shared/logger"
	"github.com/k1networth/workforce-events/internal/welcome"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		slog.Error("config_error", slog.String("err", err.Error()))
		os.Exit(2)
	}
	if strings.EqualFold(cfg.Messaging.Transport, "memory") {
		slog.Error("config_error", slog.String("err", "the memory transport does not reach other processes"))
		os.Exit(2)
	}
	log := logger.New(cfg.App.Name+"-publisher", cfg.App.Env, cfg.Log.Level)

	transport := messaging.NewKafkaTransport(messaging.KafkaConfig{
		Brokers:      cfg.Kafka.Brokers,
		Exchange:     cfg.Messaging.Exchange,
		ClientID:     cfg.App.Name + "-publisher",
		Durable:      cfg.Messaging.Durable,
		WriteTimeout: 10 * time.Second,
	}, log, nil)
	defer func() { _ = transport.Close() }()

	pub := messaging.NewPublisher(transport, cfg.Messaging.DeadLetterKey, log, messaging.NewMetrics(prometheus.NewRegistry()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := run(ctx, pub, os.Args[1], os.Args[2:]); err != nil {
		log.Error("publish_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, pub *messaging.Publisher, cmd string, args []string) error {
	switch cmd {
	case "user-registered":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		userID := fs.String("user-id", uuid.NewString(), "user id")
		mail := fs.String("email", "", "recipient email (required)")
		name := fs.String("name", "", "display name")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if err := welcome.PublishUserRegistered(ctx, pub, *userID, *mail, *name); err != nil {
			return err
		}
		fmt.Printf("published %s userId=%s\n", welcome.RoutingKey, *userID)
		return nil

	case "leave-requested":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		requestID := fs.String("request-id", uuid.NewString(), "leave request id")
		employeeID := fs.String("employee-id", "", "employee id")
		start := fs.String("start", "", "start date, YYYY-MM-DD (required)")
		end := fs.String("end", "", "end date, YYYY-MM-DD (required)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		req := leave.Requested{RequestID: *requestID, EmployeeID: *employeeID, StartDate: *start, EndDate: *end}
		if err := leave.PublishLeaveRequested(ctx, pub, req); err != nil {
			return err
		}
		fmt.Printf("published %s requestId=%s\n", leave.RoutingKey, *requestID)
		return nil

	default:
		usage()
		return errors.New("unknown command " + cmd)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: event-publisher user-registered|leave-requested [flags]")
}
