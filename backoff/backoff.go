// Package backoff provides delay strategies for reconnecting workers and
// clients to the broker. Strategies are stateless and safe for concurrent
// use; the caller tracks the attempt number.
package backoff

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before reconnect attempt n (1-indexed).
type Strategy interface {
	Delay(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always waits the same interval.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt, capped at Max.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	return capped(e.Initial, e.Max, attempt)
}

// ──────────────────────────────────────────────────
// ExponentialWithJitter (equal jitter)
// ──────────────────────────────────────────────────

// ExponentialWithJitter waits at least half the exponential delay plus a
// random share of the other half, so a fleet of workers restarting after
// a broker outage spreads out without ever reconnecting immediately.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential strategy with equal jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a duration in [base/2, base] where base is the capped
// exponential delay.
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	base := capped(e.Initial, e.Max, attempt)
	half := base / 2
	return half + time.Duration(rand.Float64()*float64(base-half)) //nolint:gosec // jitter intentionally uses non-crypto rand
}

func capped(initial, maxDelay time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(initial) * math.Pow(2, float64(attempt-1))
	if maxDelay > 0 && d > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(d)
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// DefaultStrategy returns the reconnect policy used by workers and clients:
// ExponentialWithJitter from 200ms up to 10s.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(200*time.Millisecond, 10*time.Second)
}

// Wait sleeps for s.Delay(attempt) or until ctx is done.
func Wait(ctx context.Context, s Strategy, attempt int) error {
	t := time.NewTimer(s.Delay(attempt))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
