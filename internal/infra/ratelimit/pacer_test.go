package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacer_WaitSpacesCalls(t *testing.T) {
	p := NewPacer(50*time.Millisecond, 0)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, p.Wait(ctx))
	require.NoError(t, p.Wait(ctx))
	require.NoError(t, p.Wait(ctx))

	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestPacer_FirstWaitIsImmediate(t *testing.T) {
	p := NewPacer(time.Hour, 0)

	start := time.Now()
	require.NoError(t, p.Wait(context.Background()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestPacer_WaitHonoursCancellation(t *testing.T) {
	p := NewPacer(time.Hour, 0)
	require.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, p.Wait(ctx))
}

func TestPacer_BackoffIsLinear(t *testing.T) {
	p := NewPacer(0, 20*time.Millisecond)

	start := time.Now()
	require.NoError(t, p.Backoff(context.Background(), 3))
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestPacer_BackoffCancelled(t *testing.T) {
	p := NewPacer(0, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.Backoff(ctx, 1), context.Canceled)
}

func TestNoDelay(t *testing.T) {
	p := NoDelay()
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Wait(ctx))
		require.NoError(t, p.Backoff(ctx, i))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
