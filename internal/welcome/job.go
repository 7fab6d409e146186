package welcome

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/k1networth/workforce-events/internal/consumer"
	"github.com/k1networth/workforce-events/internal/email"
	"github.com/k1networth/workforce-events/internal/idempotency"
	"github.com/k1networth/workforce-events/internal/shared/events"
)

// Job sends the welcome email for a user.registered message. A nil Log discards.
type Job struct {
	Sender  email.Sender
	AppName string
	Log     *slog.Logger
}

func (j *Job) Name() string       { return "welcome_email" }
func (j *Job) RoutingKey() string { return RoutingKey }

func (j *Job) IdempotencyKey(env events.Envelope) (string, error) {
	id, _ := env.Payload["userId"].(string)
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("%w: userId is missing", consumer.ErrMalformedEnvelope)
	}
	return idempotency.Key(Domain, id), nil
}

func (j *Job) Process(ctx context.Context, env events.Envelope) error {
	var e UserRegistered
	if err := events.Decode(env.Payload, &e); err != nil {
		return fmt.Errorf("decode user.registered: %w", err)
	}

	m := Message(j.AppName, e)
	if err := j.Sender.Send(ctx, m); err != nil {
		return fmt.Errorf("send welcome email to %s: %w", e.Email, err)
	}

	j.logger().Info("welcome_email_sent",
		slog.String("user_id", e.UserID),
		slog.String("to", e.Email),
	)
	return nil
}

func (j *Job) logger() *slog.Logger {
	if j.Log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return j.Log
}

func Message(appName string, e UserRegistered) email.Message {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		name = "there"
	}
	return email.Message{
		To:      e.Email,
		Subject: fmt.Sprintf("Welcome to %s!", appName),
		Body:    fmt.Sprintf("Hi %s,\n\nWelcome to %s. Your account is ready.\n", name, appName),
	}
}
