package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitsWithin(l Limiter, d time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return l.Wait(ctx) == nil
}

func TestTokenBucketBurst(t *testing.T) {
	tb := NewTokenBucket(time.Hour, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, waitsWithin(tb, 10*time.Millisecond), "token %d", i+1)
	}
	assert.False(t, waitsWithin(tb, 10*time.Millisecond), "bucket should be exhausted")
}

func TestTokenBucketRefills(t *testing.T) {
	tb := NewTokenBucket(20*time.Millisecond, 1)
	require.NoError(t, tb.Wait(context.Background()))

	start := time.Now()
	require.NoError(t, tb.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestWaitRespectsContext(t *testing.T) {
	tb := NewTokenBucket(time.Hour, 1)
	assert.NoError(t, tb.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, tb.Wait(ctx))
}

func TestPerMinute(t *testing.T) {
	_, ok := PerMinute(0, 5).(Unlimited)
	assert.True(t, ok)

	l := PerMinute(60, 2)
	assert.True(t, waitsWithin(l, 10*time.Millisecond))
	assert.True(t, waitsWithin(l, 10*time.Millisecond))
	assert.False(t, waitsWithin(l, 10*time.Millisecond))

	assert.NoError(t, Unlimited{}.Wait(context.Background()))
}
