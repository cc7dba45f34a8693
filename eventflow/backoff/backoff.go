// Package backoff provides retry delay helpers with exponential growth and
// full jitter, plus a context-aware wait.
package backoff

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// maxShift bounds the exponent so the multiplier cannot overflow int64.
const maxShift = 62

// Exponential returns base * 2^attempt with overflow protection. Negative
// attempts are treated as zero.
func Exponential(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}

	if attempt < 0 {
		attempt = 0
	} else if attempt > maxShift {
		attempt = maxShift
	}

	multiplier := int64(1) << attempt
	if int64(base) > math.MaxInt64/multiplier {
		return time.Duration(math.MaxInt64)
	}

	return base * time.Duration(multiplier)
}

// FullJitter returns a uniformly random duration in [0, delay).
func FullJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}

	return time.Duration(rand.Int64N(int64(delay)))
}

// ExponentialWithJitter combines Exponential and FullJitter, implementing the
// full-jitter strategy: a random duration in [0, base * 2^attempt).
func ExponentialWithJitter(base time.Duration, attempt int) time.Duration {
	return FullJitter(Exponential(base, attempt))
}

// Linear returns base * attempts, flooring attempts at one. It matches the
// backoff gate used for outbox retry eligibility.
func Linear(base time.Duration, attempts int) time.Duration {
	if base <= 0 {
		return 0
	}

	if attempts < 1 {
		attempts = 1
	}

	if int64(base) > math.MaxInt64/int64(attempts) {
		return time.Duration(math.MaxInt64)
	}

	return base * time.Duration(attempts)
}

// WaitContext sleeps for duration unless the context finishes first. Zero and
// negative durations return immediately.
func WaitContext(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context done: %w", ctx.Err())
	}
}
