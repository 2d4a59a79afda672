package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers request keys so that a retried request is not
// executed twice while the first attempt is in flight or after it completed.
type IdempotencyStore interface {
	// MarkProcessed claims a key with a TTL.
	// Returns true if the key was newly claimed, false if it was already held.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a key is currently held
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Release drops a key so the same request can be retried
	Release(ctx context.Context, key string) error

	Close() error
}
