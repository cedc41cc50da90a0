// Package retry drives the authenticator through a bounded login loop with
// capped exponential backoff.
package retry

import (
	"math"
	"time"
)

// Policy defines how many login attempts are made and how long to wait
// between them.
type Policy struct {
	// MaxAttempts is the total number of login attempts, including the first.
	MaxAttempts int
	// BaseDelay is the wait after the first failed attempt.
	BaseDelay time.Duration
	// BackoffFactor multiplies the delay after each failed attempt.
	BackoffFactor float64
	// Cap is the largest delay ever returned.
	Cap time.Duration
}

// DefaultPolicy waits 5s, 10s, 20s, 40s between five attempts.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   5,
		BaseDelay:     5 * time.Second,
		BackoffFactor: 2,
		Cap:           60 * time.Second,
	}
}

// Delay returns the wait after failed attempt (1-indexed):
// min(BaseDelay * BackoffFactor^(attempt-1), Cap). No delay follows the
// final attempt, so attempts outside 1..MaxAttempts-1 return 0.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 || attempt >= p.MaxAttempts {
		return 0
	}

	delay := float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(attempt-1))
	if p.Cap > 0 && (delay > float64(p.Cap) || math.IsInf(delay, 1)) {
		return p.Cap
	}
	return time.Duration(delay)
}
