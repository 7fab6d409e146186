package consumer

import (
	"errors"
	"fmt"

	"github.com/k1networth/workforce-events/internal/messaging"
)

// ErrMalformedEnvelope means the message lacks the field its idempotency key
// is built from. Such messages go straight to the dead-letter routing key.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// DeadLetteredError is returned after a failed message was published to the
// dead-letter routing key. It unwraps to the processing error and matches
// messaging.ErrNoRequeue so transports settle the delivery instead of
// redelivering it.
type DeadLetteredError struct {
	RoutingKey string
	Err        error
}

func (e *DeadLetteredError) Error() string {
	return fmt.Sprintf("dead-lettered %s: %v", e.RoutingKey, e.Err)
}

func (e *DeadLetteredError) Unwrap() error { return e.Err }

func (e *DeadLetteredError) Is(target error) bool {
	return target == messaging.ErrNoRequeue
}
