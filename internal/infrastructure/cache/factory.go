package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/feedsync/backend/internal/domain/shared"
	"github.com/feedsync/backend/internal/infrastructure/config"
)

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
	BackendNone   = "none"
)

// NewIdempotencyStore builds the webhook delivery dedupe store selected by
// webhook.dedupe_backend. It returns nil for "none". An unreachable Redis
// falls back to the in-memory store with a warning.
func NewIdempotencyStore(ctx context.Context, backend string, rc config.RedisConfig, log *zap.Logger) (shared.IdempotencyStore, error) {
	switch backend {
	case BackendNone:
		return nil, nil
	case BackendMemory, "":
		return NewInMemoryIdempotencyStore(5 * time.Minute), nil
	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     rc.Addr(),
			Password: rc.Password,
			DB:       rc.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			log.Warn("redis unavailable, deduplicating deliveries in memory",
				zap.String("addr", rc.Addr()), zap.Error(err))
			return NewInMemoryIdempotencyStore(5 * time.Minute), nil
		}
		return NewRedisIdempotencyStore(client, ""), nil
	default:
		return nil, fmt.Errorf("unknown dedupe backend %q", backend)
	}
}
