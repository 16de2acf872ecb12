package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopAction(ctx context.Context, input []byte) ([]byte, error) { return input, nil }

func TestRegistryIDIsDeterministic(t *testing.T) {
	a := registryID("github.com/daemonflow/actions.SendEmail", "v1")
	b := registryID("github.com/daemonflow/actions.SendEmail", "v1")
	assert.Equal(t, a, b)

	c := registryID("github.com/daemonflow/actions.SendEmail", "v2")
	assert.NotEqual(t, a, c)

	d := registryID("github.com/daemonflow/actions.SendSMS", "v1")
	assert.NotEqual(t, a, d)
}

func TestActionIDForPathMatchesRegisterAction(t *testing.T) {
	r := New()
	id := r.RegisterAction("SendEmail", "github.com/daemonflow/actions.SendEmail", "v1", nil, noopAction)
	want := ActionIDForPath("github.com/daemonflow/actions.SendEmail", "v1")
	assert.Equal(t, want, id)
}

func TestRegisterAndGetAction(t *testing.T) {
	r := New()
	id := r.RegisterAction("SendEmail", "github.com/daemonflow/actions.SendEmail", "v1", nil, noopAction)

	got, err := r.GetAction(id)
	require.NoError(t, err)
	assert.Equal(t, "SendEmail", got.Name)
}

func TestGetActionUnknownID(t *testing.T) {
	r := New()
	_, err := r.GetAction("does-not-exist")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action registry_id")
}

func TestGetWorkflowUnknownID(t *testing.T) {
	r := New()
	_, err := r.GetWorkflow("does-not-exist")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown workflow registry_id")
}

func TestRegisterActionPanicsAfterFreeze(t *testing.T) {
	r := New()
	r.Freeze()

	assert.Panics(t, func() {
		r.RegisterAction("SendEmail", "github.com/daemonflow/actions.SendEmail", "v1", nil, noopAction)
	})
}

func TestRegisterWorkflowPanicsAfterFreeze(t *testing.T) {
	r := New()
	r.Freeze()

	assert.Panics(t, func() {
		r.RegisterWorkflow("Onboarding", "github.com/daemonflow/workflows.Onboarding", "v1", nil, nil, nil)
	})
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 1.0, p.BaseSeconds)
	assert.Equal(t, 2.0, p.Factor)
	assert.Equal(t, 0.1, p.JitterSeconds)
}
