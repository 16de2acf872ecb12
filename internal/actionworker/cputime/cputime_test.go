package cputime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadReturnsNonNegativeDuration(t *testing.T) {
	d, err := Thread()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, d, time.Duration(0))
}

func TestTrackerElapsedIsNonNegative(t *testing.T) {
	tr := NewTracker()
	require.True(t, tr.Available())

	burnCPU()

	elapsed := tr.Elapsed()
	assert.GreaterOrEqual(t, elapsed, time.Duration(0))
}

func TestTrackerUnavailableElapsedIsZero(t *testing.T) {
	tr := &Tracker{ok: false}
	assert.False(t, tr.Available())
	assert.Zero(t, tr.Elapsed())
}

func burnCPU() {
	sum := 0
	for i := 0; i < 10_000_000; i++ {
		sum += i
	}
	_ = sum
}
