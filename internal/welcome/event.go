package welcome

import (
	"context"
	"errors"
	"strings"
)

const (
	RoutingKey = "user.registered"
	Domain     = "welcome"
)

// UserRegistered is the payload published when a user signs up. The retry
// counter rides along in the same payload and is read with Envelope.Attempts.
type UserRegistered struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

func (e UserRegistered) Validate() error {
	var errs []error
	if strings.TrimSpace(e.UserID) == "" {
		errs = append(errs, errors.New("userId is required"))
	}
	if strings.TrimSpace(e.Email) == "" {
		errs = append(errs, errors.New("email is required"))
	}
	return errors.Join(errs...)
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload map[string]any) error
}

// PublishUserRegistered announces a new user with attempts set to 0.
func PublishUserRegistered(ctx context.Context, p Publisher, userID, email, name string) error {
	e := UserRegistered{UserID: userID, Email: email, Name: name}
	if err := e.Validate(); err != nil {
		return err
	}
	return p.Publish(ctx, RoutingKey, map[string]any{
		"userId":   e.UserID,
		"email":    e.Email,
		"name":     e.Name,
		"attempts": 0,
	})
}
