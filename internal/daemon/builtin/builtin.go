// Package builtin registers the handful of actions and workflows every
// daemonflow binary ships with. A real deployment registers its own
// application-specific actions/workflows the same way, by calling
// registry.Registry.RegisterAction/RegisterWorkflow before Freeze — this
// package exists so the three binaries have something real to run and so
// the replay contract (spec.md §4.5) has a concrete workflow to exercise in
// tests.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/daemonflow/daemonflow/internal/daemon/registry"
)

// Register wires the built-in actions and workflows into reg. Call once
// per process, before reg.Freeze().
func Register(reg *registry.Registry) {
	reg.RegisterAction("echo", "github.com/daemonflow/daemonflow/internal/daemon/builtin.Echo", fingerprintEcho, echoInput{}, Echo)
	reg.RegisterAction("uppercase", "github.com/daemonflow/daemonflow/internal/daemon/builtin.Uppercase", fingerprintUppercase, textInput{}, Uppercase)

	reg.RegisterWorkflow("sequential_demo", "github.com/daemonflow/daemonflow/internal/daemon/builtin.SequentialDemo", fingerprintSequentialDemo, sequentialDemoInput{}, sequentialDemoOutput{}, func() registry.WorkflowRunner {
		return &SequentialDemo{}
	})
}

// These fingerprints stand in for a real content hash of each symbol's
// compiled body (spec.md §4.1, Design Note §9); bumping one forces every
// process sharing this registry to agree on a new registry_id after a
// deploy that changes the symbol's behavior.
const (
	fingerprintEcho           = "v1"
	fingerprintUppercase      = "v1"
	fingerprintSequentialDemo = "v1"
)

type echoInput struct {
	Message string `json:"message"`
}

// Echo returns its input message unchanged, wrapped in a result envelope.
// Useful as the minimal action for exercising the claim/append_result path.
func Echo(ctx context.Context, input []byte) ([]byte, error) {
	var in echoInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("echo: invalid input: %w", err)
	}
	return json.Marshal(map[string]string{"message": in.Message})
}

type textInput struct {
	Text string `json:"text"`
}

// Uppercase is a trivial CPU-bound action with no I/O, suitable for
// exercising soft/hard timeout behavior in tests.
func Uppercase(ctx context.Context, input []byte) ([]byte, error) {
	var in textInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("uppercase: invalid input: %w", err)
	}
	out := make([]byte, len(in.Text))
	for i := 0; i < len(in.Text); i++ {
		c := in.Text[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return json.Marshal(map[string]string{"text": string(out)})
}

type sequentialDemoInput struct {
	Steps []string `json:"steps"`
}

type sequentialDemoOutput struct {
	Results []string `json:"results"`
}

// SequentialDemo issues one run_action call per input step, in order —
// the shape test scenario 6 (spec.md §8) describes: "performs five
// sequential run_action calls". Each call uses an explicit step_key
// derived from its position, per the resolved Open Question in
// SPEC_FULL.md §6.
type SequentialDemo struct{}

func (SequentialDemo) Run(ctx context.Context, h registry.InstanceHandle, input []byte) ([]byte, error) {
	var in sequentialDemoInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("sequential_demo: invalid input: %w", err)
	}

	results := make([]string, 0, len(in.Steps))
	for i, step := range in.Steps {
		stepKey := fmt.Sprintf("step-%d", i)
		actionInput, err := json.Marshal(textInput{Text: step})
		if err != nil {
			return nil, err
		}
		out, err := h.RunAction(ctx, stepKey, fingerprintedActionID("uppercase"), actionInput, registry.DefaultRetryPolicy())
		if err != nil {
			return nil, fmt.Errorf("sequential_demo: step %d: %w", i, err)
		}
		var res textInput
		if err := json.Unmarshal(out, &res); err != nil {
			return nil, err
		}
		results = append(results, res.Text)
	}

	return json.Marshal(sequentialDemoOutput{Results: results})
}

// fingerprintedActionID resolves a built-in action's name to its
// registry_id without needing a live Registry handle, mirroring
// registry.ActionIDForPath's role in the submission API.
func fingerprintedActionID(name string) string {
	switch name {
	case "echo":
		return registry.ActionIDForPath("github.com/daemonflow/daemonflow/internal/daemon/builtin.Echo", fingerprintEcho)
	case "uppercase":
		return registry.ActionIDForPath("github.com/daemonflow/daemonflow/internal/daemon/builtin.Uppercase", fingerprintUppercase)
	default:
		panic("builtin: unknown action " + name)
	}
}
