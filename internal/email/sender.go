package email

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return errors.New("recipient is empty")
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.New("subject is empty")
	}
	return nil
}

type Sender interface {
	Send(ctx context.Context, m Message) error
}

// LogSender only logs. Used when no SMTP host is configured.
type LogSender struct {
	Log *slog.Logger
}

func (s LogSender) Send(_ context.Context, m Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.Log.Info("email_logged",
		slog.String("to", m.To),
		slog.String("subject", m.Subject),
	)
	return nil
}
