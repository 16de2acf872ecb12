package queue

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/daemonflow/daemonflow/internal/daemon/model"
)

// ActionRow is the subset of a daemon_action row the instance worker needs
// to implement run_action's replay lookup (spec.md §4.5-3).
type ActionRow struct {
	ID            int64
	Status        model.Status
	FinalResultID *int64
}

// GetActionByStepKey looks up a DaemonAction by its (instance_id, step_key)
// unique key. Returns sql.ErrNoRows if none exists yet — the caller must
// then insert one, which is exactly the replay contract from spec.md §4.5:
// "look up an existing DaemonAction for this (instance_id, step_key)".
func (b *Backend) GetActionByStepKey(ctx context.Context, instanceID int64, stepKey string) (ActionRow, error) {
	var row ActionRow
	q := `SELECT id, status, final_result_id FROM daemon_action WHERE instance_id = $1 AND step_key = $2`
	err := b.db.QueryRowContext(ctx, q, instanceID, stepKey).Scan(&row.ID, &row.Status, &row.FinalResultID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return row, sql.ErrNoRows
		}
		return row, &model.TransientDBError{Op: "get_action_by_step_key", Cause: err}
	}
	return row, nil
}

// GetFinalResult fetches the result row an action's final_result_id points
// at. Only meaningful once the action's status is done.
func (b *Backend) GetFinalResult(ctx context.Context, resultID int64) (*model.DaemonActionResult, error) {
	var r model.DaemonActionResult
	q := `SELECT id, action_id, created_at, result_body, exception, exception_stack FROM daemon_action_result WHERE id = $1`
	err := b.db.QueryRowContext(ctx, q, resultID).Scan(&r.ID, &r.ActionID, &r.CreatedAt, &r.ResultBody, &r.Exception, &r.ExceptionStack)
	if err != nil {
		return nil, &model.TransientDBError{Op: "get_final_result", Cause: err}
	}
	return &r, nil
}

// EnqueueAction inserts a new daemon_action row for a run_action call,
// status=queued so the action-dispatch loop picks it up immediately.
func (b *Backend) EnqueueAction(ctx context.Context, instanceID int64, stepKey, registryID string, input []byte, timeouts []model.TimeoutSpec, maxAttempts int, base, factor, jitter float64) (int64, error) {
	row := map[string]any{
		"instance_id":           instanceID,
		"step_key":              stepKey,
		"registry_id":           registryID,
		"input_body":            input,
		"retry_max_attempts":    maxAttempts,
		"retry_backoff_seconds": base,
		"retry_backoff_factor":  factor,
		"retry_jitter_seconds":  jitter,
		"timeouts":              MarshalTimeouts(timeouts),
	}
	return b.Enqueue(ctx, TableAction, row)
}

// CompleteInstance writes the terminal state of a workflow instance: either
// a success (outputBody set, error nil) or a WorkflowFatal (error set,
// outputBody nil). Both are terminal and set status=done (spec.md §4.5).
func (b *Backend) CompleteInstance(ctx context.Context, instanceID int64, outputBody []byte, errMsg *string) error {
	q := `UPDATE daemon_workflow_instance SET status = $1, output_body = $2, error = $3, end_time = $4 WHERE id = $5`
	_, err := b.db.ExecContext(ctx, q, string(model.StatusDone), nullBytes(outputBody), errMsg, time.Now(), instanceID)
	if err != nil {
		return &model.TransientDBError{Op: "complete_instance", Cause: err}
	}
	return nil
}
