package upload

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff_InitialInterval(t *testing.T) {
	b := newBackoff()

	assert.Equal(t, 1*time.Second, b.interval)
	assert.Equal(t, 60*time.Second, b.max)
}

func TestBackoff_NextWithinBounds(t *testing.T) {
	b := newBackoff()

	for i := 0; i < 100; i++ {
		current := b.interval
		next := b.next()

		lo := 2 * current
		hi := 2*current + time.Second

		if lo > b.max {
			lo = b.max
		}

		if hi > b.max {
			hi = b.max
		}

		assert.GreaterOrEqual(t, next, lo)
		assert.LessOrEqual(t, next, hi)

		b.interval = next
	}
}

func TestBackoff_SequenceGrowsAndCaps(t *testing.T) {
	b := newBackoff()
	b.sleepFunc = func(_ context.Context, _ time.Duration) error { return nil }

	var delays []time.Duration
	for i := 0; i < 10; i++ {
		delays = append(delays, b.interval)
		require.NoError(t, b.wait(context.Background()))
	}

	// First delay is exactly the initial interval; ignoring jitter the
	// sequence is 1s, 2s+j, 4s+j, ... capped at 60s.
	assert.Equal(t, 1*time.Second, delays[0])

	for i := 1; i < len(delays); i++ {
		if delays[i] == 60*time.Second {
			continue
		}

		assert.GreaterOrEqual(t, delays[i], 2*delays[i-1])
		assert.LessOrEqual(t, delays[i], 2*delays[i-1]+time.Second)
	}

	// Seven doublings of 1s exceed 60s even without jitter.
	assert.Equal(t, 60*time.Second, delays[7])
	assert.Equal(t, 60*time.Second, delays[9])
}

func TestBackoff_NeverResets(t *testing.T) {
	b := newBackoff()
	b.sleepFunc = func(_ context.Context, _ time.Duration) error { return nil }

	require.NoError(t, b.wait(context.Background()))
	require.NoError(t, b.wait(context.Background()))

	// After two waits the interval has advanced twice and stays there.
	assert.GreaterOrEqual(t, b.interval, 4*time.Second)
}

func TestBackoff_WaitUsesCurrentInterval(t *testing.T) {
	b := newBackoff()

	var slept []time.Duration

	b.sleepFunc = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	require.NoError(t, b.wait(context.Background()))
	require.NoError(t, b.wait(context.Background()))

	require.Len(t, slept, 2)
	assert.Equal(t, 1*time.Second, slept[0])
	assert.GreaterOrEqual(t, slept[1], 2*time.Second)
	assert.LessOrEqual(t, slept[1], 3*time.Second)
}

func TestBackoff_WaitHonorsCancellation(t *testing.T) {
	b := newBackoff()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
