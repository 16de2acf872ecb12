// Package model holds the persisted row types shared by the queue backend,
// the orchestrator, and both worker processes.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Status is the closed lifecycle enum shared by daemon_action and
// daemon_workflow_instance.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

// WorkerStatus is the liveness record for one worker process (action or
// instance). A row is created once at process startup and updated by the
// ping thread every PingInterval.
type WorkerStatus struct {
	ID                 int64     `gorm:"primaryKey" json:"id"`
	InternalProcessID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"internal_process_id"`
	IsActionWorker     bool      `gorm:"not null" json:"is_action_worker"`
	LaunchTime         time.Time `gorm:"not null" json:"launch_time"`
	LastPing           time.Time `gorm:"not null;index" json:"last_ping"`
	IsDraining         bool      `gorm:"not null;default:false" json:"is_draining"`
	CleanedUp          bool      `gorm:"not null;default:false;index" json:"cleaned_up"`
}

func (WorkerStatus) TableName() string { return "worker_status" }

// DaemonWorkflowInstance is one invocation of a registered workflow.
type DaemonWorkflowInstance struct {
	ID                     int64      `gorm:"primaryKey" json:"id"`
	WorkflowName           string     `gorm:"not null;index" json:"workflow_name"`
	RegistryID             string     `gorm:"not null" json:"registry_id"`
	InputBody              []byte     `gorm:"type:jsonb;not null" json:"input_body"`
	OutputBody             []byte     `gorm:"type:jsonb" json:"output_body,omitempty"`
	Status                 Status     `gorm:"not null;index;default:queued" json:"status"`
	LaunchTime             time.Time  `gorm:"not null" json:"launch_time"`
	EndTime                *time.Time `json:"end_time,omitempty"`
	Error                  *string    `json:"error,omitempty"`
	AssignedWorkerStatusID *int64     `gorm:"index" json:"assigned_worker_status_id,omitempty"`
	ScheduleAfter          *time.Time `gorm:"index" json:"schedule_after,omitempty"`
}

func (DaemonWorkflowInstance) TableName() string { return "daemon_workflow_instance" }

// TimeoutSpec is one entry of an action's timeout declaration; multiple
// may apply simultaneously per spec.md §4.4.
type TimeoutSpec struct {
	Measurement string  `json:"measurement"` // "wall" | "cpu"
	Kind        string  `json:"kind"`        // "soft" | "hard"
	Seconds     float64 `json:"seconds"`
}

// DaemonAction is one invocation of an action inside a workflow instance.
type DaemonAction struct {
	ID                     int64      `gorm:"primaryKey" json:"id"`
	InstanceID             int64      `gorm:"not null;index;index:idx_action_instance_step,unique" json:"instance_id"`
	StepKey                string     `gorm:"not null;index:idx_action_instance_step,unique" json:"step_key"`
	RegistryID             string     `gorm:"not null" json:"registry_id"`
	InputBody              []byte     `gorm:"type:jsonb;not null" json:"input_body"`
	Status                 Status     `gorm:"not null;index;default:queued" json:"status"`
	RetryCurrentAttempt    int        `gorm:"not null;default:0" json:"retry_current_attempt"`
	RetryMaxAttempts       int        `gorm:"not null;default:1" json:"retry_max_attempts"`
	RetryBackoffSeconds    float64    `gorm:"not null;default:1" json:"retry_backoff_seconds"`
	RetryBackoffFactor     float64    `gorm:"not null;default:2" json:"retry_backoff_factor"`
	RetryJitterSeconds     float64    `gorm:"not null;default:0" json:"retry_jitter_seconds"`
	Timeouts               []byte     `gorm:"type:jsonb" json:"timeouts,omitempty"` // []TimeoutSpec, json-encoded
	ScheduleAfter          *time.Time `gorm:"index" json:"schedule_after,omitempty"`
	AssignedWorkerStatusID *int64     `gorm:"index" json:"assigned_worker_status_id,omitempty"`
	FinalResultID          *int64     `json:"final_result_id,omitempty"`
}

func (DaemonAction) TableName() string { return "daemon_action" }

// DaemonActionResult is the outcome of one attempt of an action. Rows are
// append-only; no code path updates a result row after insert.
type DaemonActionResult struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	ActionID       int64     `gorm:"not null;index" json:"action_id"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
	ResultBody     []byte    `gorm:"type:jsonb" json:"result_body,omitempty"`
	Exception      *string   `json:"exception,omitempty"`
	ExceptionStack *string   `json:"exception_stack,omitempty"`
}

func (DaemonActionResult) TableName() string { return "daemon_action_result" }

// ReadyNotification is the payload carried by both the cursor-scan and the
// LISTEN/NOTIFY phase of stream_ready (spec.md §4.2).
type ReadyNotification struct {
	ID     int64  `json:"id"`
	Name   string `json:"workflow_name"`
	Status string `json:"status"`
}
