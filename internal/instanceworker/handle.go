// Package instanceworker implements the Instance (Workflow) Worker (spec.md
// §4.5): a child process driving many concurrent workflow instances with a
// cooperative scheduler. Each instance is one goroutine; Go's own scheduler
// plays the role the teacher's asyncio event loop plays in the original —
// many logical tasks multiplexed onto a small number of OS threads, never
// blocking one on another.
package instanceworker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/daemonflow/daemonflow/internal/daemon/model"
	"github.com/daemonflow/daemonflow/internal/daemon/payload"
	"github.com/daemonflow/daemonflow/internal/daemon/queue"
	"github.com/daemonflow/daemonflow/internal/daemon/registry"
	"github.com/daemonflow/daemonflow/internal/platform/logger"
)

// pollInterval is how often run_action re-checks a pending action's status
// while suspended — one of the three suspension points spec.md §4.5
// allows ("awaiting a database round trip").
const pollInterval = 200 * time.Millisecond

// handle is the InstanceHandle given to a workflow's Run method. It is
// valid only for the lifetime of one instance's driver goroutine.
type handle struct {
	instanceID int64
	queue      *queue.Backend
	payload    *payload.Store
	log        logger.Logger
}

var _ registry.InstanceHandle = (*handle)(nil)

// RunAction implements spec.md §4.5-3: find-or-create the DaemonAction row
// for (instanceID, stepKey), then suspend until it reaches status=done,
// then return its cached result. Replay-safe: a second call with the same
// stepKey after a crash finds the existing row instead of inserting a
// duplicate.
func (h *handle) RunAction(ctx context.Context, stepKey string, registryID string, input []byte, policy registry.RetryPolicy) ([]byte, error) {
	row, err := h.queue.GetActionByStepKey(ctx, h.instanceID, stepKey)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		maxAttempts := policy.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = 1
		}
		id, insertErr := h.queue.EnqueueAction(ctx, h.instanceID, stepKey, registryID, input, nil, maxAttempts, policy.BaseSeconds, policy.Factor, policy.JitterSeconds)
		if insertErr != nil {
			return nil, insertErr
		}
		row = queue.ActionRow{ID: id, Status: model.StatusQueued}
	case err != nil:
		return nil, err
	}

	return h.awaitResult(ctx, row)
}

// awaitResult polls until the action reaches status=done, then returns its
// result or an error derived from the stored exception marker.
func (h *handle) awaitResult(ctx context.Context, row queue.ActionRow) ([]byte, error) {
	if row.Status == model.StatusDone && row.FinalResultID != nil {
		return h.resolveResult(ctx, *row.FinalResultID)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		fresh, err := h.fetchByID(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		if fresh.Status == model.StatusDone && fresh.FinalResultID != nil {
			return h.resolveResult(ctx, *fresh.FinalResultID)
		}
	}
}

func (h *handle) fetchByID(ctx context.Context, id int64) (queue.ActionRow, error) {
	var row queue.ActionRow
	err := h.queue.Fetch(ctx, queue.TableAction, id, func(rows *sql.Rows) error {
		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		m := map[string]any{}
		for i, c := range cols {
			m[c] = values[i]
		}
		row.ID = id
		if s, ok := m["status"].(string); ok {
			row.Status = model.Status(s)
		}
		if v, ok := m["final_result_id"].(int64); ok {
			row.FinalResultID = &v
		}
		return nil
	})
	return row, err
}

// resolveResult dereferences an offloaded result body the same way the
// action worker's runOne dereferences a claimed action's input (task.go's
// payload.Resolve call) — the action worker is the only writer of an
// offload reference (appendSuccess's payload.Offload), so run_action's
// cached-result read must mirror it to avoid handing the raw
// "__daemonflow_offload__" marker back to a workflow as if it were data.
func (h *handle) resolveResult(ctx context.Context, resultID int64) ([]byte, error) {
	r, err := h.queue.GetFinalResult(ctx, resultID)
	if err != nil {
		return nil, err
	}
	if r.Exception != nil {
		return nil, fmt.Errorf("%s", *r.Exception)
	}
	return h.payload.Resolve(ctx, r.ResultBody)
}
