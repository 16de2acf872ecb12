package model

import "fmt"

// TransientDBError wraps a connection or serialization failure that the
// call site should retry with bounded backoff.
type TransientDBError struct {
	Op    string
	Cause error
}

func (e *TransientDBError) Error() string {
	return fmt.Sprintf("transient db error during %s: %v", e.Op, e.Cause)
}

func (e *TransientDBError) Unwrap() error { return e.Cause }

// TaskSoftTimeout marks an action result row produced by cooperative
// cancellation after a soft deadline crossed.
type TaskSoftTimeout struct {
	ActionID int64
}

func (e *TaskSoftTimeout) Error() string {
	return fmt.Sprintf("action %d: task soft-timed out", e.ActionID)
}

// TaskHardTimeout marks an action result row produced when a hard deadline
// forced the owning worker process into drain.
type TaskHardTimeout struct {
	ActionID int64
}

func (e *TaskHardTimeout) Error() string {
	return fmt.Sprintf("action %d: task hard-timed out", e.ActionID)
}

// TaskException wraps a panic or returned error from user action code.
type TaskException struct {
	ActionID int64
	Message  string
	Stack    string
}

func (e *TaskException) Error() string {
	return fmt.Sprintf("action %d: %s", e.ActionID, e.Message)
}

// WorkerLost is raised internally when the reclaim loop finds a row
// assigned to a worker whose ping has aged out. It does not advance
// RetryCurrentAttempt — spec.md §7: "the attempt was not the user's fault".
type WorkerLost struct {
	WorkerStatusID int64
	RowID          int64
}

func (e *WorkerLost) Error() string {
	return fmt.Sprintf("worker %d lost, row %d reclaimed", e.WorkerStatusID, e.RowID)
}

// WorkflowFatal marks an uncaught error from a workflow's run() method.
// Terminal: never retried, since replay on another worker hits the same
// deterministic bug.
type WorkflowFatal struct {
	InstanceID int64
	Cause      error
}

func (e *WorkflowFatal) Error() string {
	return fmt.Sprintf("instance %d: workflow fatal: %v", e.InstanceID, e.Cause)
}

func (e *WorkflowFatal) Unwrap() error { return e.Cause }

// ConfigError aborts process startup: unknown registry id, bad schema,
// malformed configuration.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("config error: %s", e.Reason) }
