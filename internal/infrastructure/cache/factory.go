package cache

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/pos/backend/internal/domain/shared"
	"github.com/pos/backend/internal/infrastructure/config"
)

// IdempotencyStoreFactory creates the push deduplication store from
// configuration. Multi-instance deployments need Redis so every instance sees
// the same submission keys; a single instance can run on the in-memory store.
type IdempotencyStoreFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// IdempotencyStoreFactoryOption configures the factory
type IdempotencyStoreFactoryOption func(*IdempotencyStoreFactory)

// WithFactoryLogger sets the factory logger
func WithFactoryLogger(logger *zap.Logger) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to the
// in-memory store. Default is true.
func WithInMemoryFallback(allow bool) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewIdempotencyStoreFactory creates a new factory
func NewIdempotencyStoreFactory(cfg config.RedisConfig, opts ...IdempotencyStoreFactoryOption) *IdempotencyStoreFactory {
	f := &IdempotencyStoreFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateStore creates the configured idempotency store. Redis is used when
// enabled and reachable; otherwise the in-memory store, unless fallback is
// disallowed.
func (f *IdempotencyStoreFactory) CreateStore() (shared.IdempotencyStore, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("Using in-memory push idempotency store")
		return NewInMemoryIdempotencyStore(), nil
	}

	store, err := NewRedisIdempotencyStore(f.redisConfig)
	if err == nil {
		f.logger.Info("Using Redis push idempotency store",
			zap.String("addr", f.redisConfig.Addr()),
		)
		return store, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for push idempotency but unavailable: %w", err)
	}

	// In-memory keys are per process: a duplicate push retried against
	// another instance will be re-checked against row history instead of
	// being short-circuited here.
	f.logger.Warn("Redis unavailable, falling back to in-memory push idempotency store",
		zap.Error(err),
	)
	return NewInMemoryIdempotencyStore(), nil
}
