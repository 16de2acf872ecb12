package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeBackoffNoJitter(t *testing.T) {
	tests := []struct {
		name    string
		base    float64
		factor  float64
		attempt int
		want    time.Duration
	}{
		{"attempt zero", 1, 2, 0, 1 * time.Second},
		{"attempt one", 1, 2, 1, 2 * time.Second},
		{"attempt three", 1, 2, 3, 8 * time.Second},
		{"fractional base", 0.5, 2, 2, 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeBackoff(tt.base, tt.factor, 0, tt.attempt)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeBackoffJitterIsAdditiveAndBounded(t *testing.T) {
	for i := 0; i < 50; i++ {
		got := ComputeBackoff(1, 2, 1, 0)
		assert.GreaterOrEqual(t, got, 1*time.Second)
		assert.LessOrEqual(t, got, 2*time.Second)
	}
}

func TestDecideRetryFromCountsExhausted(t *testing.T) {
	f := DecideRetryFromCounts(2, 3, 1, 2, 0)
	assert.False(t, f.AttemptsRemain)
	assert.Equal(t, 3, f.NextAttempt)
	assert.Zero(t, f.Backoff)
}

func TestDecideRetryFromCountsRemaining(t *testing.T) {
	f := DecideRetryFromCounts(0, 3, 1, 2, 0)
	assert.True(t, f.AttemptsRemain)
	assert.Equal(t, 1, f.NextAttempt)
	assert.Equal(t, 2*time.Second, f.Backoff)
}

func TestDecideRetrySingleAttempt(t *testing.T) {
	// max_attempts=1 means no retries at all: next==max immediately.
	f := DecideRetryFromCounts(0, 1, 1, 2, 0)
	assert.False(t, f.AttemptsRemain)
	assert.Equal(t, 1, f.NextAttempt)
}

func TestDecideRetryUsesActionFields(t *testing.T) {
	a := &DaemonAction{
		RetryCurrentAttempt: 0,
		RetryMaxAttempts:    5,
		RetryBackoffSeconds: 1,
		RetryBackoffFactor:  2,
		RetryJitterSeconds:  0,
	}
	f := DecideRetry(a)
	assert.True(t, f.AttemptsRemain)
	assert.Equal(t, 1, f.NextAttempt)
	assert.Equal(t, 2*time.Second, f.Backoff)
}
