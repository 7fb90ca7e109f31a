package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers delivery keys so repeated deliveries can be
// short-circuited before any work is done.
type IdempotencyStore interface {
	// Claim records key for ttl. It reports false when the key is already held.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release forgets key so a delivery that failed transiently can be retried
	Release(ctx context.Context, key string) error

	Close() error
}
