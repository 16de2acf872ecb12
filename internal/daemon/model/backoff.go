package model

import (
	"math"
	"math/rand"
	"time"
)

// ComputeBackoff implements spec.md §4.4's retry policy:
// backoff = base × factor^attempt + uniform(0, jitter).
// Adapted from the teacher's calculateDelay in internal/engine/retry.go.
func ComputeBackoff(base, factor, jitter float64, attempt int) time.Duration {
	delay := base * math.Pow(factor, float64(attempt))
	if jitter > 0 {
		delay += rand.Float64() * jitter
	}
	return time.Duration(delay * float64(time.Second))
}

// DecideRetry inspects an action row's retry bookkeeping after a failed
// attempt and returns the RetryFields the Queue Backend should persist.
// It never advances RetryCurrentAttempt on its own for the WorkerLost path
// — that case does not go through DecideRetry at all (spec.md §7's Open
// Question decision, see SPEC_FULL.md §6).
func DecideRetry(a *DaemonAction) RetryFields {
	return DecideRetryFromCounts(a.RetryCurrentAttempt, a.RetryMaxAttempts, a.RetryBackoffSeconds, a.RetryBackoffFactor, a.RetryJitterSeconds)
}

// DecideRetryFromCounts is DecideRetry without requiring a loaded
// DaemonAction row, for callers (the action worker) that only hydrated the
// retry bookkeeping fields via dispatch.ClaimedAction.
func DecideRetryFromCounts(currentAttempt, maxAttempts int, backoffSeconds, backoffFactor, jitterSeconds float64) RetryFields {
	next := currentAttempt + 1
	if next >= maxAttempts {
		return RetryFields{AttemptsRemain: false, NextAttempt: next}
	}
	backoff := ComputeBackoff(backoffSeconds, backoffFactor, jitterSeconds, next)
	return RetryFields{AttemptsRemain: true, NextAttempt: next, Backoff: backoff}
}
