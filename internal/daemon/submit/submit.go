// Package submit implements the client-facing submission interface
// described in spec.md §4.6: enqueue_workflow, returning an instance
// handle that can await_result with an optional timeout. This is the
// only supported entry point external callers use to start a workflow —
// they never write to daemon_workflow_instance directly.
package submit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/daemonflow/daemonflow/internal/daemon/model"
	"github.com/daemonflow/daemonflow/internal/daemon/queue"
	"github.com/daemonflow/daemonflow/internal/platform/validation"
)

const pollInterval = 200 * time.Millisecond

// Handle is returned by EnqueueWorkflow; it identifies the submitted
// instance and knows how to poll for completion.
type Handle struct {
	InstanceID int64
	queue      *queue.Backend
}

// EnqueueWorkflow inserts a new daemon_workflow_instance row with
// status=queued (or scheduled, if after is non-nil and in the future) and
// returns a Handle for polling its result.
func EnqueueWorkflow(ctx context.Context, q *queue.Backend, workflowName, registryID string, input []byte, after *time.Time) (*Handle, error) {
	v := validation.New().Required(workflowName, "workflow_name").Required(registryID, "registry_id")
	if v.HasErrors() {
		return nil, fmt.Errorf("submit: %s", v.Error())
	}

	row := map[string]any{
		"workflow_name": workflowName,
		"registry_id":   registryID,
		"input_body":    input,
		"launch_time":   time.Now(),
	}
	if after != nil {
		row["schedule_after"] = *after
	}

	id, err := q.Enqueue(ctx, queue.TableInstance, row)
	if err != nil {
		return nil, err
	}
	return &Handle{InstanceID: id, queue: q}, nil
}

// AwaitResult blocks until the instance reaches status=done, or ctx is
// cancelled, or timeout elapses (if timeout > 0). Mirrors
// instanceworker/handle.go's suspend-by-polling strategy (spec.md §4.5
// suspension point (ii): awaiting a database round trip) so a caller
// outside any workflow can use the identical mechanism a workflow uses to
// await a sub-action.
func (h *Handle) AwaitResult(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		row, err := h.fetch(ctx)
		if err != nil {
			return nil, err
		}
		if row.Status == model.StatusDone {
			if row.Error != nil {
				return nil, fmt.Errorf("%s", *row.Error)
			}
			return row.OutputBody, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (h *Handle) fetch(ctx context.Context) (model.DaemonWorkflowInstance, error) {
	var row model.DaemonWorkflowInstance
	err := h.queue.Fetch(ctx, queue.TableInstance, h.InstanceID, func(rows *sql.Rows) error {
		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		vals := make(map[string]any, len(cols))
		ptrs := make([]any, len(cols))
		raw := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		for i, c := range cols {
			vals[c] = raw[i]
		}

		row.ID = h.InstanceID
		if v, ok := vals["status"].(string); ok {
			row.Status = model.Status(v)
		}
		if v, ok := vals["output_body"].([]byte); ok {
			row.OutputBody = v
		}
		if v, ok := vals["error"].(string); ok {
			row.Error = &v
		}
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return row, fmt.Errorf("submit: instance %d not found", h.InstanceID)
	}
	return row, err
}
