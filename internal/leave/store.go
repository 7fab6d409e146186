package leave

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"
)

type Request struct {
	ID        string
	Status    Status
	UpdatedAt time.Time
}

// Store persists leave request status. UpdateStatus returns (nil, nil) when
// the request does not exist.
type Store interface {
	UpdateStatus(ctx context.Context, id string, status Status) (*Request, error)
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status Status) (*Request, error) {
	const q = `
UPDATE leave_requests
SET status=$2, updated_at=now()
WHERE id=$1
RETURNING id, status, updated_at;
`
	var r Request
	err := s.db.QueryRowContext(ctx, q, id, string(status)).Scan(&r.ID, &r.Status, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// MemoryStore is used when no database is configured and in tests.
type MemoryStore struct {
	mu   sync.Mutex
	reqs map[string]Request
	Log  *slog.Logger
	// AutoCreate records unknown ids instead of reporting them missing.
	AutoCreate bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reqs: map[string]Request{}}
}

func (s *MemoryStore) Put(id string, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs[id] = Request{ID: id, Status: status, UpdatedAt: time.Now()}
}

func (s *MemoryStore) Get(id string) (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reqs[id]
	return r, ok
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, status Status) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reqs[id]
	if !ok && !s.AutoCreate {
		return nil, nil
	}
	r.ID = id
	r.Status = status
	r.UpdatedAt = time.Now()
	s.reqs[id] = r

	if s.Log != nil {
		s.Log.Info("leave_status_stored", slog.String("request_id", id), slog.String("status", string(status)))
	}
	return &r, nil
}
