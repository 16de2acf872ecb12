package actionworker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daemonflow/daemonflow/internal/daemon/dispatch"
	"github.com/daemonflow/daemonflow/internal/daemon/registry"
)

func TestInvokeReturnsActionResult(t *testing.T) {
	w := &Worker{}
	action := &registry.Action{
		Name: "echo",
		Fn: func(ctx context.Context, input []byte) ([]byte, error) {
			return append([]byte("echo:"), input...), nil
		},
	}

	out, err := w.invoke(context.Background(), action, []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", string(out))
}

func TestInvokePropagatesActionError(t *testing.T) {
	w := &Worker{}
	wantErr := errors.New("boom")
	action := &registry.Action{
		Fn: func(ctx context.Context, input []byte) ([]byte, error) {
			return nil, wantErr
		},
	}

	out, err := w.invoke(context.Background(), action, nil)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, wantErr)
}

func TestInvokeRecoversFromPanic(t *testing.T) {
	w := &Worker{}
	action := &registry.Action{
		Fn: func(ctx context.Context, input []byte) ([]byte, error) {
			panic("action exploded")
		},
	}

	out, err := w.invoke(context.Background(), action, nil)
	assert.Nil(t, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: action exploded")
}

func TestRetryForTaskUsesClaimedActionRetryFields(t *testing.T) {
	w := &Worker{}
	task := dispatch.ClaimedAction{ID: 1}
	task.Retry.CurrentAttempt = 0
	task.Retry.MaxAttempts = 3
	task.Retry.BackoffSeconds = 1
	task.Retry.BackoffFactor = 2

	retry := w.retryForTask(task)
	assert.True(t, retry.AttemptsRemain)
	assert.Equal(t, 1, retry.NextAttempt)
	assert.Greater(t, retry.Backoff.Seconds(), 0.0)
}

func TestRetryForTaskExhausted(t *testing.T) {
	w := &Worker{}
	task := dispatch.ClaimedAction{ID: 2}
	task.Retry.CurrentAttempt = 3
	task.Retry.MaxAttempts = 3

	retry := w.retryForTask(task)
	assert.False(t, retry.AttemptsRemain)
}
