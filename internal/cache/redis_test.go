package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedis_GenerationGuard(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	prefix := "test-" + time.Now().Format("150405.000000")
	store := NewRedis(client, prefix, time.Minute)

	_, gen, ok, err := store.Get(ctx, "orders", "1")
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := store.Put(ctx, "orders", "1", []byte(`"v1"`), gen)
	require.NoError(t, err)
	assert.True(t, stored)

	val, _, ok, err := store.Get(ctx, "orders", "1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `"v1"`, string(val))

	require.NoError(t, store.Purge(ctx, "orders"))

	// A writer holding the pre-purge generation must be rejected.
	stored, err = store.Put(ctx, "orders", "1", []byte(`"stale"`), gen)
	require.NoError(t, err)
	assert.False(t, stored)

	_, newGen, ok, err := store.Get(ctx, "orders", "1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, gen+1, newGen)
}
