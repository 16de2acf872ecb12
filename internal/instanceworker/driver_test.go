package instanceworker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daemonflow/daemonflow/internal/daemon/dispatch"
	"github.com/daemonflow/daemonflow/internal/daemon/notify"
	"github.com/daemonflow/daemonflow/internal/daemon/registry"
	"github.com/daemonflow/daemonflow/internal/platform/logger"
)

type stubRunner struct {
	run func(ctx context.Context, h registry.InstanceHandle, input []byte) ([]byte, error)
}

func (s stubRunner) Run(ctx context.Context, h registry.InstanceHandle, input []byte) ([]byte, error) {
	return s.run(ctx, h, input)
}

func TestInvokeWorkflowReturnsOutput(t *testing.T) {
	runner := stubRunner{run: func(ctx context.Context, h registry.InstanceHandle, input []byte) ([]byte, error) {
		return append([]byte("out:"), input...), nil
	}}

	out, err := invokeWorkflow(context.Background(), runner, nil, []byte("in"))
	require.NoError(t, err)
	assert.Equal(t, "out:in", string(out))
}

func TestInvokeWorkflowPropagatesError(t *testing.T) {
	wantErr := errors.New("fatal")
	runner := stubRunner{run: func(ctx context.Context, h registry.InstanceHandle, input []byte) ([]byte, error) {
		return nil, wantErr
	}}

	out, err := invokeWorkflow(context.Background(), runner, nil, nil)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, wantErr)
}

func TestInvokeWorkflowRecoversFromPanic(t *testing.T) {
	runner := stubRunner{run: func(ctx context.Context, h registry.InstanceHandle, input []byte) ([]byte, error) {
		panic("workflow exploded")
	}}

	out, err := invokeWorkflow(context.Background(), runner, nil, nil)
	assert.Nil(t, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: workflow exploded")
}

type fakePublisher struct {
	published []notify.ResultEvent
}

func (f *fakePublisher) Publish(ctx context.Context, ev notify.ResultEvent) error {
	f.published = append(f.published, ev)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func TestPublishResultSendsEventWhenNotifierPresent(t *testing.T) {
	pub := &fakePublisher{}
	c := dispatch.ClaimedInstance{ID: 9, WorkflowName: "onboarding", RegistryID: "reg-1"}

	publishResult(noopLog{}, pub, c, true, "")

	require.Len(t, pub.published, 1)
	assert.Equal(t, int64(9), pub.published[0].InstanceID)
	assert.True(t, pub.published[0].Succeeded)
}

func TestPublishResultIsNoOpWithoutNotifier(t *testing.T) {
	c := dispatch.ClaimedInstance{ID: 1}
	assert.NotPanics(t, func() {
		publishResult(noopLog{}, nil, c, false, "boom")
	})
}

type noopLog struct{}

func (noopLog) Debug(string, ...interface{})                     {}
func (noopLog) Info(string, ...interface{})                      {}
func (noopLog) Warn(string, ...interface{})                      {}
func (noopLog) Error(string, ...interface{})                     {}
func (noopLog) Fatal(string, ...interface{})                     {}
func (l noopLog) WithFields(map[string]interface{}) logger.Logger { return l }
func (l noopLog) WithContext(context.Context) logger.Logger       { return l }
