package idempotency

import (
	"context"
	"strings"
	"time"
)

// Store is a set-if-absent key store with expiry. TryAcquire reports true only
// for the caller that created the key; Release deletes it so a later delivery
// can acquire it again. Releasing a missing key is not an error.
type Store interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Key builds "<domain>:processed:<id>".
func Key(domain, id string) string {
	return strings.TrimSpace(domain) + ":processed:" + strings.TrimSpace(id)
}
