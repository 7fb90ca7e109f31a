//go:build integration

package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/feedsync/backend/internal/infrastructure/cache"
	"github.com/feedsync/backend/internal/infrastructure/config"
)

// startRedis runs a throwaway Redis and returns its connection settings
func startRedis(t *testing.T) config.RedisConfig {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start Redis container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)
	return config.RedisConfig{Host: host, Port: port.Int()}
}

func TestRedisIdempotencyStore(t *testing.T) {
	rc := startRedis(t)
	ctx := context.Background()

	store, err := cache.NewIdempotencyStore(ctx, cache.BackendRedis, rc, zap.NewNop())
	require.NoError(t, err)
	rs, ok := store.(*cache.RedisIdempotencyStore)
	require.True(t, ok, "a reachable redis must not fall back to memory")
	t.Cleanup(func() { _ = rs.Close() })
	require.NoError(t, rs.Ping(ctx))

	key := fmt.Sprintf("segment:%d", time.Now().UnixNano())

	t.Run("claim once", func(t *testing.T) {
		first, err := rs.Claim(ctx, key, time.Minute)
		require.NoError(t, err)
		second, err := rs.Claim(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.True(t, first)
		assert.False(t, second)
	})

	t.Run("release frees the key", func(t *testing.T) {
		require.NoError(t, rs.Release(ctx, key))
		again, err := rs.Claim(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.True(t, again)
	})

	t.Run("keys expire", func(t *testing.T) {
		short := key + ":short"
		ok, err := rs.Claim(ctx, short, time.Second)
		require.NoError(t, err)
		require.True(t, ok)

		assert.Eventually(t, func() bool {
			ok, err := rs.Claim(ctx, short, time.Second)
			return err == nil && ok
		}, 5*time.Second, 100*time.Millisecond)
	})

	t.Run("keys are namespaced", func(t *testing.T) {
		client := redis.NewClient(&redis.Options{Addr: rc.Addr()})
		defer client.Close()
		n, err := client.Exists(ctx, "feedsync:delivery:"+key).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func TestIdempotencyStore_UnreachableRedisFallsBack(t *testing.T) {
	store, err := cache.NewIdempotencyStore(context.Background(), cache.BackendRedis,
		config.RedisConfig{Host: "127.0.0.1", Port: 1}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		if c, ok := store.(*cache.InMemoryIdempotencyStore); ok {
			_ = c.Close()
		}
	})

	assert.IsType(t, &cache.InMemoryIdempotencyStore{}, store)
}
