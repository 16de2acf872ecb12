// Package registry is the process-local, name→callable mapping described
// in spec.md §4.1. It is populated once per process during initialization
// and frozen; no registration happens after Freeze is called.
package registry

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// Action is a registered, retryable unit of work.
type Action struct {
	Name       string
	ImportPath string
	InputType  interface{} // zero value of the declared input type, for schema validation
	Fn         func(ctx context.Context, input []byte) ([]byte, error)
	fingerprint string
}

// Workflow is a registered, replayable driver program.
type Workflow struct {
	Name        string
	ImportPath  string
	InputType   interface{}
	OutputType  interface{}
	New         func() WorkflowRunner
	fingerprint string
}

// WorkflowRunner is implemented by every registered workflow type. Run must
// be a deterministic function of input and the results of its RunAction
// calls — no direct I/O, no clocks, no randomness (spec.md §4.5).
type WorkflowRunner interface {
	Run(ctx context.Context, handle InstanceHandle, input []byte) ([]byte, error)
}

// InstanceHandle is the only way a workflow may perform effects.
type InstanceHandle interface {
	RunAction(ctx context.Context, stepKey string, registryID string, input []byte, policy RetryPolicy) ([]byte, error)
}

// RetryPolicy mirrors the DaemonAction retry fields.
type RetryPolicy struct {
	MaxAttempts    int
	BaseSeconds    float64
	Factor         float64
	JitterSeconds  float64
}

// DefaultRetryPolicy matches the teacher's DefaultRetryConfig shape,
// adapted to the action-retry semantics of spec.md §4.4.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseSeconds: 1, Factor: 2, JitterSeconds: 0.1}
}

// Registry holds all registered actions and workflows for one process.
// Safe for concurrent Get after Freeze; Register must only be called
// during process init, single-threaded, before Freeze.
type Registry struct {
	mu        sync.RWMutex
	actions   map[string]*Action   // registry_id -> Action
	workflows map[string]*Workflow // registry_id -> Workflow
	frozen    bool
}

// New creates an empty, unfrozen registry.
func New() *Registry {
	return &Registry{
		actions:   make(map[string]*Action),
		workflows: make(map[string]*Workflow),
	}
}

// RegisterAction computes a stable registry_id for fn and adds it. Returns
// the assigned registry_id. Panics if called after Freeze — a frozen
// registry is an immutable table per Design Note §9.
func (r *Registry) RegisterAction(name, importPath, contentFingerprint string, inputType interface{}, fn func(ctx context.Context, input []byte) ([]byte, error)) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic("registry: RegisterAction called after Freeze")
	}
	id := registryID(importPath, contentFingerprint)
	r.actions[id] = &Action{Name: name, ImportPath: importPath, InputType: inputType, Fn: fn, fingerprint: contentFingerprint}
	return id
}

// RegisterWorkflow computes a stable registry_id for a workflow type and
// adds it.
func (r *Registry) RegisterWorkflow(name, importPath, contentFingerprint string, inputType, outputType interface{}, newFn func() WorkflowRunner) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic("registry: RegisterWorkflow called after Freeze")
	}
	id := registryID(importPath, contentFingerprint)
	r.workflows[id] = &Workflow{Name: name, ImportPath: importPath, InputType: inputType, OutputType: outputType, New: newFn, fingerprint: contentFingerprint}
	return id
}

// Freeze closes the registry to further registration. Call once, after
// all init-time Register* calls, before any worker starts pulling tasks.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// GetAction looks up a registered action by registry_id.
func (r *Registry) GetAction(registryID string) (*Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[registryID]
	if !ok {
		return nil, fmt.Errorf("registry: unknown action registry_id %q", registryID)
	}
	return a, nil
}

// GetWorkflow looks up a registered workflow by registry_id.
func (r *Registry) GetWorkflow(registryID string) (*Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workflows[registryID]
	if !ok {
		return nil, fmt.Errorf("registry: unknown workflow registry_id %q", registryID)
	}
	return w, nil
}

// ActionIDForPath returns the registry_id that would be assigned to the
// given (importPath, fingerprint) pair without requiring registration —
// used by builtin to compute its actions' and workflow's registry_ids.
func ActionIDForPath(importPath, contentFingerprint string) string {
	return registryID(importPath, contentFingerprint)
}

// registryID derives a deterministic identifier from a fully-qualified
// symbol's import path plus a content fingerprint, so that the parent
// process and every forked child agree on the same id without coordination
// (spec.md §4.1, Design Note §9).
func registryID(importPath, contentFingerprint string) string {
	sum := blake2b.Sum256([]byte(importPath + "\x00" + contentFingerprint))
	return hex.EncodeToString(sum[:20])
}
