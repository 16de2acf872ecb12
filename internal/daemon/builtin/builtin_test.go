package builtin

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daemonflow/daemonflow/internal/daemon/registry"
)

func TestEcho(t *testing.T) {
	in, err := json.Marshal(echoInput{Message: "hello"})
	require.NoError(t, err)

	out, err := Echo(context.Background(), in)
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "hello", got["message"])
}

func TestEchoInvalidInput(t *testing.T) {
	_, err := Echo(context.Background(), []byte("not json"))
	assert.Error(t, err)
}

func TestUppercase(t *testing.T) {
	in, err := json.Marshal(textInput{Text: "hello, World!"})
	require.NoError(t, err)

	out, err := Uppercase(context.Background(), in)
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "HELLO, WORLD!", got["text"])
}

func TestRegisterWiresBuiltinsIntoRegistry(t *testing.T) {
	reg := registry.New()
	Register(reg)
	reg.Freeze()

	echoID := registry.ActionIDForPath("github.com/daemonflow/daemonflow/internal/daemon/builtin.Echo", fingerprintEcho)
	a, err := reg.GetAction(echoID)
	require.NoError(t, err)
	assert.Equal(t, "echo", a.Name)

	upperID := registry.ActionIDForPath("github.com/daemonflow/daemonflow/internal/daemon/builtin.Uppercase", fingerprintUppercase)
	_, err = reg.GetAction(upperID)
	require.NoError(t, err)

	wfID := registry.ActionIDForPath("github.com/daemonflow/daemonflow/internal/daemon/builtin.SequentialDemo", fingerprintSequentialDemo)
	w, err := reg.GetWorkflow(wfID)
	require.NoError(t, err)
	assert.Equal(t, "sequential_demo", w.Name)
}

type fakeHandle struct {
	calls []string
}

func (f *fakeHandle) RunAction(ctx context.Context, stepKey, registryID string, input []byte, policy registry.RetryPolicy) ([]byte, error) {
	f.calls = append(f.calls, stepKey)
	var in textInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, err
	}
	return Uppercase(ctx, input)
}

func TestSequentialDemoRunsOneActionPerStep(t *testing.T) {
	wf := SequentialDemo{}
	h := &fakeHandle{}

	in, err := json.Marshal(sequentialDemoInput{Steps: []string{"a", "b", "c"}})
	require.NoError(t, err)

	out, err := wf.Run(context.Background(), h, in)
	require.NoError(t, err)

	var got sequentialDemoOutput
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, []string{"A", "B", "C"}, got.Results)
	assert.Equal(t, []string{"step-0", "step-1", "step-2"}, h.calls)
}

func TestSequentialDemoInvalidInput(t *testing.T) {
	wf := SequentialDemo{}
	_, err := wf.Run(context.Background(), &fakeHandle{}, []byte("not json"))
	assert.Error(t, err)
}

func TestFingerprintedActionIDPanicsOnUnknownName(t *testing.T) {
	assert.Panics(t, func() {
		fingerprintedActionID("bogus")
	})
}
