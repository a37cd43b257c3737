package watch

import (
	"math"
	"math/rand"
	"time"
)

// BackoffPolicy computes retry delays and decides when repeated transient
// failures escalate from "retry" to "switch strategy" to "fail".
type BackoffPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Jitter is the fraction of the computed delay randomized away to avoid
	// thundering-herd retries against shared public endpoints. 0.2 means the
	// delay lands in [0.8d, d].
	Jitter float64

	// EscalateAfter is the attempt count past which the orchestrator should
	// switch transport strategy instead of retrying the current one.
	EscalateAfter int

	// FailAfter is the attempt count past which the monitor gives up
	// entirely. Must be >= EscalateAfter.
	FailAfter int
}

// DefaultBackoff matches the retry defaults used for public RPC endpoints.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		InitialDelay:  1 * time.Second,
		MaxDelay:      60 * time.Second,
		Multiplier:    2.0,
		Jitter:        0.2,
		EscalateAfter: 3,
		FailAfter:     10,
	}
}

// NextDelay returns the delay before retry number attempt (1-based).
func (p BackoffPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		delay -= delay * p.Jitter * rand.Float64()
	}
	return time.Duration(delay)
}

// ShouldEscalate reports whether the attempt count has exhausted the current
// transport strategy.
func (p BackoffPolicy) ShouldEscalate(attempt int) bool {
	return attempt > p.EscalateAfter
}

// ShouldFail reports whether the attempt count has exhausted the session.
func (p BackoffPolicy) ShouldFail(attempt int) bool {
	return attempt > p.FailAfter
}
