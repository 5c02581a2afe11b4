package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckRateLimit(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := CheckRateLimit(ctx, rdb, "send_message", "user-1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should pass", i+1)
	}

	allowed, err := CheckRateLimit(ctx, rdb, "send_message", "user-1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	// Another caller has an independent budget.
	allowed, err = CheckRateLimit(ctx, rdb, "send_message", "user-2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)

	// The window resets the count.
	mr.FastForward(time.Minute + time.Second)
	allowed, err = CheckRateLimit(ctx, rdb, "send_message", "user-1", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCheckRateLimit_BypassedOutsideProduction(t *testing.T) {
	t.Setenv("APP_ENV", "test")

	allowed, err := CheckRateLimit(context.Background(), nil, "send_message", "user-1", 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestCheckRateLimit_NilClientErrors(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	_, err := CheckRateLimit(context.Background(), nil, "send_message", "user-1", 1, time.Minute)
	assert.Error(t, err)
}
