// Package retry provides the exponential backoff used while opening
// startup dependencies. First boot can race the mount that holds the
// message log, so the bridge retries the open instead of exiting.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Config bounds the retry schedule
type Config struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxAttempts  int
	Jitter       bool
}

// DefaultConfig matches the bridge's database startup defaults
func DefaultConfig() Config {
	return Config{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     time.Minute,
		Multiplier:   2.0,
		MaxAttempts:  3,
		Jitter:       true,
	}
}

// Backoff runs an operation under the configured retry schedule
type Backoff struct {
	cfg Config
}

// New creates a backoff with the given schedule
func New(cfg Config) *Backoff {
	return &Backoff{cfg: cfg}
}

// Retry runs op until it succeeds, the attempt budget is spent, or ctx
// is cancelled. It returns the last operation error when the budget
// runs out, and ctx.Err() on cancellation.
func (b *Backoff) Retry(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if lastErr = op(); lastErr == nil {
			return nil
		}

		if attempt >= b.cfg.MaxAttempts {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Delay(attempt)):
		}
	}
}

// Delay is the pause scheduled after the given 1-based attempt: the
// initial delay grown by the multiplier, capped at the maximum, with
// ±25% jitter when enabled so restarting replicas do not retry in
// lockstep.
func (b *Backoff) Delay(attempt int) time.Duration {
	d := float64(b.cfg.InitialDelay) * math.Pow(b.cfg.Multiplier, float64(attempt-1))
	if d > float64(b.cfg.MaxDelay) {
		d = float64(b.cfg.MaxDelay)
	}

	if b.cfg.Jitter {
		d *= 0.75 + rand.Float64()/2
		if d > float64(b.cfg.MaxDelay) {
			d = float64(b.cfg.MaxDelay)
		}
	}

	return time.Duration(d)
}
