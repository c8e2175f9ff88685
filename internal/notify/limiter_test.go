package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, rate, capacity float64) *TelegramLimiter {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewTelegramLimiter(client, rate, capacity)
}

func TestTelegramLimiter_AllowsUpToCapacity(t *testing.T) {
	limiter := newTestLimiter(t, 1, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx)
		require.NoError(t, err)
		require.True(t, ok, "expected token %d to be available", i)
	}

	ok, err := limiter.Allow(ctx)
	require.NoError(t, err)
	require.False(t, ok, "bucket should be exhausted after capacity draws")
}

func TestTelegramLimiter_Wait_UnblocksOnContextCancel(t *testing.T) {
	limiter := newTestLimiter(t, 0.001, 1)
	ctx := context.Background()

	ok, err := limiter.Allow(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	waitCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err = limiter.Wait(waitCtx)
	require.Error(t, err)
}
