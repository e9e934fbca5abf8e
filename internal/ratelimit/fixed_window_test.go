package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestFixedWindowLimiter(t *testing.T) {
	_, client := newTestClient(t)
	limiter, err := NewFixedWindowLimiter(client, "test:ratelimit", 2, time.Minute)
	assert.NoError(t, err)

	ctx := context.Background()
	assert.True(t, limiter.Allow(ctx, "user-1:room"), "first vibe should pass")
	assert.True(t, limiter.Allow(ctx, "user-1:room"), "second vibe should pass")
	assert.False(t, limiter.Allow(ctx, "user-1:room"), "third vibe should be blocked")
	assert.True(t, limiter.Allow(ctx, "user-2:room"), "other keys have their own quota")
}

func TestFixedWindowLimiter_FailClosed(t *testing.T) {
	mr, client := newTestClient(t)
	limiter, err := NewFixedWindowLimiter(client, "", 1, time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, defaultPrefix, limiter.prefix, "expected default prefix")

	mr.Close()
	assert.False(t, limiter.Allow(context.Background(), "user-1"), "limiter should fail closed on redis errors")
}

func TestNewFixedWindowLimiter_Invalid(t *testing.T) {
	_, client := newTestClient(t)

	_, err := NewFixedWindowLimiter(client, "p", 0, time.Second)
	assert.Error(t, err, "expected error for zero limit")

	_, err = NewFixedWindowLimiter(client, "p", 1, 0)
	assert.Error(t, err, "expected error for zero window")

	_, err = NewFixedWindowLimiter(nil, "p", 1, time.Second)
	assert.Error(t, err, "expected error for nil client")
}

func TestFixedWindowLimiter_Nil(t *testing.T) {
	var limiter *FixedWindowLimiter
	assert.False(t, limiter.Allow(context.Background(), "key"))
}
