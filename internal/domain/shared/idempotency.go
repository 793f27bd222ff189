package shared

import (
	"context"
	"time"
)

// IdempotencyStore stores processed push submission keys to prevent the same
// offline edit from being applied twice when a client retries after a
// network failure.
type IdempotencyStore interface {
	// MarkProcessed marks a submission as processed with a TTL.
	// Returns true if the key was newly marked, false if it was already processed.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a submission has already been processed
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for push deduplication
type IdempotencyConfig struct {
	// TTL is the time-to-live for processed submission keys.
	// After this duration, the same key can be processed again.
	// Default: 24 hours
	TTL time.Duration

	// Enabled determines whether idempotency checking is enabled
	// Default: true
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
