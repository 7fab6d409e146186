package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps keys in process memory. Used by tests and by the memory
// transport for local runs.
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: map[string]time.Time{}, now: time.Now}
}

// NewMemoryStoreWithClock lets tests control expiry.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{keys: map[string]time.Time{}, now: now}
}

func (s *MemoryStore) TryAcquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, errors.New("idempotency key is empty")
	}
	if ttl <= 0 {
		return false, fmt.Errorf("idempotency ttl must be positive, got %s", ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.keys[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.keys[key] = now.Add(ttl)
	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// Held reports whether key is currently set and unexpired.
func (s *MemoryStore) Held(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.keys[key]
	return ok && s.now().Before(exp)
}
