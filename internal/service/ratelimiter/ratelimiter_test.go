package ratelimiter

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestFixedWindow_LimitsPerKey(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewFixedWindow(rdb, "otp:req:", 3, 10*time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, _, err := l.Allow(ctx, "ana@example.com")
		require.NoError(t, err)
		assert.True(t, ok, "hit %d", i+1)
	}

	ok, retry, err := l.Allow(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.InDelta(t, (10 * time.Minute).Seconds(), retry.Seconds(), 1)

	ok, _, err = l.Allow(ctx, "bob@example.com")
	require.NoError(t, err)
	assert.True(t, ok, "other keys are independent")

	mr.FastForward(10*time.Minute + time.Second)
	ok, _, err = l.Allow(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.True(t, ok, "window resets")
}

func TestFixedWindow_Disabled(t *testing.T) {
	t.Parallel()

	var nilLimiter *FixedWindow
	ok, retry, err := nilLimiter.Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, retry)

	ok, _, err = NewFixedWindow(nil, "p:", 0, time.Minute).Allow(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFixedWindow_FailsOpenOnRedisError(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewFixedWindow(rdb, "otp:req:", 1, time.Minute)
	mr.Close()

	ok, _, err := l.Allow(context.Background(), "k")
	assert.Error(t, err)
	assert.True(t, ok)
}

func TestTokenBucket_RefillsOverTime(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := NewTokenBucket(rdb, "ai:user:", NewBucketConfigFromPerMinute(2))
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := l.Allow(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, retry, err := l.Allow(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.InDelta(t, 30, retry.Seconds(), 0.5)

	now = now.Add(31 * time.Second)
	ok, _, err = l.Allow(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewBucketConfigFromPerMinute(t *testing.T) {
	t.Parallel()

	assert.Equal(t, BucketConfig{}, NewBucketConfigFromPerMinute(0))
	cfg := NewBucketConfigFromPerMinute(6)
	assert.Equal(t, int64(6), cfg.Capacity)
	assert.InDelta(t, 0.1, cfg.RefillRate, 1e-9)
}
