package upload

import (
	"context"
	"math/rand"
	"time"
)

// Backoff constants. The interval doubles (plus jitter) on every retry and
// is capped at maxInterval. It is never reset within a session — a transfer
// that keeps hitting transient errors keeps backing off further, even when
// the errors are unrelated.
const (
	initialInterval = 1 * time.Second
	maxInterval     = 60 * time.Second
	jitterRangeMS   = 1000
)

// backoff schedules retries with exponentially growing, jittered delays.
// It knows nothing about what it retries: the session decides which step
// to re-invoke after each wait. One backoff belongs to exactly one session
// and is never shared.
type backoff struct {
	interval time.Duration
	max      time.Duration

	// sleepFunc waits for the given duration or until the context is
	// canceled. Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

func newBackoff() *backoff {
	return &backoff{
		interval:  initialInterval,
		max:       maxInterval,
		sleepFunc: sleepContext,
	}
}

// wait blocks for the current interval, growing the interval for the next
// retry before sleeping. Returns the context error if canceled mid-wait.
func (b *backoff) wait(ctx context.Context) error {
	d := b.interval
	b.interval = b.next()

	return b.sleepFunc(ctx, d)
}

// next computes min(max, 2*interval + jitter) where jitter is a uniform
// integer number of milliseconds in [0, 1000]. The randomness desynchronizes
// clients that would otherwise retry in lockstep after a shared outage.
func (b *backoff) next() time.Duration {
	jitter := time.Duration(rand.Intn(jitterRangeMS+1)) * time.Millisecond //nolint:gosec // jitter does not need crypto rand

	n := b.interval*2 + jitter
	if n > b.max {
		n = b.max
	}

	return n
}

// sleepContext waits for the given duration or until the context is canceled.
// It is the default sleepFunc for backoff.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
