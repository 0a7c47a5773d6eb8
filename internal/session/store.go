package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a session record is absent or expired
var ErrNotFound = errors.New("session not found")

// Record is the server-side state a session key maps to
type Record struct {
	UserID    uuid.UUID
	CreatedAt time.Time
}

// Store is a key-value store with per-key TTL. The backing implementation
// (Redis, in-memory) is swappable; the manager never depends on a concrete
// backend.
type Store interface {
	Set(ctx context.Context, key string, rec Record, ttl time.Duration) error
	// Get returns ErrNotFound for absent or expired keys
	Get(ctx context.Context, key string) (*Record, error)
	Delete(ctx context.Context, key string) error
	// Refresh extends the TTL of an existing key
	Refresh(ctx context.Context, key string, ttl time.Duration) error
}
