package actionworker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daemonflow/daemonflow/internal/actionworker/cputime"
	"github.com/daemonflow/daemonflow/internal/daemon/dispatch"
	"github.com/daemonflow/daemonflow/internal/platform/logger"
)

// noopLogger satisfies logger.Logger without writing anything, since
// checkTimeouts logs on both the soft and hard paths.
type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{})                {}
func (noopLogger) Info(string, ...interface{})                 {}
func (noopLogger) Warn(string, ...interface{})                 {}
func (noopLogger) Error(string, ...interface{})                {}
func (noopLogger) Fatal(string, ...interface{})                {}
func (l noopLogger) WithFields(map[string]interface{}) logger.Logger { return l }
func (l noopLogger) WithContext(context.Context) logger.Logger       { return l }

func TestCheckTimeoutsCancelsOnSoftTimeout(t *testing.T) {
	w := &Worker{log: noopLogger{}, inFlight: make(map[int64]*runningTask)}

	var cancelled bool
	rt := &runningTask{
		task:      dispatch.ClaimedAction{ID: 1},
		startWall: time.Now().Add(-time.Hour),
		cpu:       cputime.NewTracker(),
		cancel:    func() { cancelled = true },
		softWall:  time.Millisecond,
	}
	w.inFlight[1] = rt

	w.checkTimeouts()

	require.True(t, cancelled)
	assert.Equal(t, stateCancelling, rt.state)
}

func TestCheckTimeoutsLeavesUntimedOutTasksRunning(t *testing.T) {
	w := &Worker{log: noopLogger{}, inFlight: make(map[int64]*runningTask)}

	rt := &runningTask{
		task:      dispatch.ClaimedAction{ID: 2},
		startWall: time.Now(),
		cpu:       cputime.NewTracker(),
		cancel:    func() {},
		softWall:  time.Hour,
	}
	w.inFlight[2] = rt

	w.checkTimeouts()

	assert.Equal(t, stateRunning, rt.state)
}

func TestCheckTimeoutsIgnoresDisabledTimeouts(t *testing.T) {
	w := &Worker{log: noopLogger{}, inFlight: make(map[int64]*runningTask)}

	rt := &runningTask{
		task:      dispatch.ClaimedAction{ID: 3},
		startWall: time.Now().Add(-time.Hour),
		cpu:       cputime.NewTracker(),
		cancel:    func() { t.Fatal("should not cancel when no timeout is configured") },
	}
	w.inFlight[3] = rt

	w.checkTimeouts()

	assert.Equal(t, stateRunning, rt.state)
}
