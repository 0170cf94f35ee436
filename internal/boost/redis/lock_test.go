package redis

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ms-boost/internal/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a Redis client backed by miniredis
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		mr.Close()
		t.Fatalf("Failed to connect to miniredis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func newTestRedis(client *redis.Client, ttl time.Duration) *Redis {
	return NewRedis(client, ttl, logger.NewWithWriter(io.Discard, "debug"))
}

func TestLockListing_Exclusive(t *testing.T) {
	client, _ := setupTestRedis(t)
	r := newTestRedis(client, time.Minute)
	ctx := context.Background()

	token, ok, err := r.LockListing(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = r.LockListing(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok, "second caller must not get the lock")

	_, ok, err = r.LockListing(ctx, 43)
	require.NoError(t, err)
	assert.True(t, ok, "locks are per listing")

	require.NoError(t, r.UnlockListing(ctx, 42, token))

	_, ok, err = r.LockListing(ctx, 42)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUnlockListing_IgnoresForeignToken(t *testing.T) {
	client, _ := setupTestRedis(t)
	r := newTestRedis(client, time.Minute)
	ctx := context.Background()

	_, ok, err := r.LockListing(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, r.UnlockListing(ctx, 7, "someone-else"))

	held, err := client.Exists(ctx, lockKey(7)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), held, "a foreign token must not release the lock")
}

func TestLockListing_ExpiresAfterTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	r := newTestRedis(client, 5*time.Second)
	ctx := context.Background()

	token, ok, err := r.LockListing(ctx, 9)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(6 * time.Second)

	held, err := client.Exists(ctx, lockKey(9)).Result()
	require.NoError(t, err)
	assert.Zero(t, held)

	// Releasing a lapsed lock is harmless.
	assert.NoError(t, r.UnlockListing(ctx, 9, token))
}

func TestLockListing_ConcurrentCallers(t *testing.T) {
	client, _ := setupTestRedis(t)
	r := newTestRedis(client, time.Minute)
	ctx := context.Background()

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, err := r.LockListing(ctx, 100); err == nil && ok {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners)
}
