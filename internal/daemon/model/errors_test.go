package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransientDBErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &TransientDBError{Op: "claim", Cause: cause}

	assert.Contains(t, err.Error(), "claim")
	assert.Contains(t, err.Error(), "connection reset")
	assert.Same(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}

func TestWorkflowFatalUnwrap(t *testing.T) {
	cause := errors.New("nil pointer in workflow body")
	err := &WorkflowFatal{InstanceID: 7, Cause: cause}

	assert.Contains(t, err.Error(), "7")
	assert.True(t, errors.Is(err, cause))
}

func TestTaskTimeoutMessages(t *testing.T) {
	soft := &TaskSoftTimeout{ActionID: 1}
	hard := &TaskHardTimeout{ActionID: 2}

	assert.Contains(t, soft.Error(), "soft-timed out")
	assert.Contains(t, hard.Error(), "hard-timed out")
}

func TestWorkerLostDoesNotImplementUnwrap(t *testing.T) {
	err := &WorkerLost{WorkerStatusID: 4, RowID: 99}
	assert.Contains(t, err.Error(), "4")
	assert.Contains(t, err.Error(), "99")

	var u interface{ Unwrap() error }
	assert.False(t, errors.As(err, &u))
}

func TestConfigError(t *testing.T) {
	err := &ConfigError{Reason: "unknown registry id"}
	assert.Equal(t, "config error: unknown registry id", err.Error())
}
