package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_WindowLimit(t *testing.T) {
	_, client := redisClient(t)
	rl := NewRateLimiter(client, 3)
	require.NotNil(t, rl)

	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "ses")
		require.NoError(t, err)
		assert.True(t, ok, "call %d", i)
	}
	ok, err := rl.Allow(ctx, "ses")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _ = rl.Allow(ctx, "other")
	assert.True(t, ok, "providers have separate windows")

	now = now.Add(time.Second)
	ok, _ = rl.Allow(ctx, "ses")
	assert.True(t, ok, "next window")
}

func TestRateLimiter_WaitHonoursContext(t *testing.T) {
	_, client := redisClient(t)
	rl := NewRateLimiter(client, 1)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	rl.poll = time.Millisecond

	require.NoError(t, rl.Wait(context.Background(), "ses"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rl.Wait(ctx, "ses"), context.DeadlineExceeded)
}

func TestRateLimiter_DisabledWithoutLimit(t *testing.T) {
	_, client := redisClient(t)
	assert.Nil(t, NewRateLimiter(client, 0))
	assert.Nil(t, NewRateLimiter(nil, 10))
}
