package model

import "time"

// RetryFields carries the outcome of the retry decision made after a
// failed action attempt, consumed by the Queue Backend's AppendResult.
type RetryFields struct {
	AttemptsRemain bool
	NextAttempt    int
	Backoff        time.Duration
}
