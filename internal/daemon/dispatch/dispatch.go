// Package dispatch implements the claim side of the dispatch loops
// described in spec.md §4.3: stream ready rows, attempt claim_exclusive on
// each one, and hand the full row to the caller. The claim loops of the
// standalone actionworker and instanceworker binaries call into this
// package; the orchestrator itself does not claim rows.
package dispatch

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/daemonflow/daemonflow/internal/daemon/model"
	"github.com/daemonflow/daemonflow/internal/daemon/queue"
	"github.com/daemonflow/daemonflow/internal/platform/logger"
)

// ClaimedAction is a fully hydrated daemon_action row that this process has
// exclusively claimed.
type ClaimedAction struct {
	ID         int64
	RegistryID string
	InputBody  []byte
	Timeouts   []model.TimeoutSpec
	Retry      struct {
		CurrentAttempt int
		MaxAttempts    int
		BackoffSeconds float64
		BackoffFactor  float64
		JitterSeconds  float64
	}
}

// ClaimedInstance is a fully hydrated daemon_workflow_instance row that this
// process has exclusively claimed.
type ClaimedInstance struct {
	ID           int64
	WorkflowName string
	RegistryID   string
	InputBody    []byte
}

// Actions streams claimed daemon_action rows until ctx is cancelled. Every
// failed claim (lost the race to another worker) is silently skipped, as
// spec.md §4.2 requires for claim_exclusive.
func Actions(ctx context.Context, q *queue.Backend, workerStatusID int64, queues []string, log logger.Logger) (<-chan ClaimedAction, <-chan error) {
	out := make(chan ClaimedAction, 32)
	errs := make(chan error, 1)
	ready, readyErrs := q.StreamReady(ctx, queue.TableAction, queues)

	go func() {
		defer close(out)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-readyErrs:
				if ok && err != nil {
					select {
					case errs <- err:
					default:
					}
				}
			case n, ok := <-ready:
				if !ok {
					return
				}
				ok2, err := q.ClaimExclusive(ctx, queue.TableAction, n.ID, workerStatusID)
				if err != nil {
					log.Warn("dispatch: claim action failed", "action_id", n.ID, "error", err)
					continue
				}
				if !ok2 {
					continue
				}
				row, err := hydrateAction(ctx, q, n.ID)
				if err != nil {
					log.Warn("dispatch: hydrate action failed", "action_id", n.ID, "error", err)
					continue
				}
				select {
				case out <- row:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, errs
}

// Instances streams claimed daemon_workflow_instance rows until ctx is
// cancelled.
func Instances(ctx context.Context, q *queue.Backend, workerStatusID int64, queues []string, log logger.Logger) (<-chan ClaimedInstance, <-chan error) {
	out := make(chan ClaimedInstance, 32)
	errs := make(chan error, 1)
	ready, readyErrs := q.StreamReady(ctx, queue.TableInstance, queues)

	go func() {
		defer close(out)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-readyErrs:
				if ok && err != nil {
					select {
					case errs <- err:
					default:
					}
				}
			case n, ok := <-ready:
				if !ok {
					return
				}
				ok2, err := q.ClaimExclusive(ctx, queue.TableInstance, n.ID, workerStatusID)
				if err != nil {
					log.Warn("dispatch: claim instance failed", "instance_id", n.ID, "error", err)
					continue
				}
				if !ok2 {
					continue
				}
				row, err := hydrateInstance(ctx, q, n.ID)
				if err != nil {
					log.Warn("dispatch: hydrate instance failed", "instance_id", n.ID, "error", err)
					continue
				}
				select {
				case out <- row:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, errs
}

func hydrateAction(ctx context.Context, q *queue.Backend, id int64) (ClaimedAction, error) {
	var c ClaimedAction
	var timeoutsRaw []byte
	err := q.Fetch(ctx, queue.TableAction, id, func(rows *sql.Rows) error {
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
		for i, col := range cols {
			m[col] = values[i]
		}
		c.ID = id
		c.RegistryID, _ = m["registry_id"].(string)
		if ib, ok := m["input_body"].([]byte); ok {
			c.InputBody = ib
		}
		if tb, ok := m["timeouts"].([]byte); ok {
			timeoutsRaw = tb
		}
		if v, ok := m["retry_current_attempt"].(int64); ok {
			c.Retry.CurrentAttempt = int(v)
		}
		if v, ok := m["retry_max_attempts"].(int64); ok {
			c.Retry.MaxAttempts = int(v)
		}
		if v, ok := m["retry_backoff_seconds"].(float64); ok {
			c.Retry.BackoffSeconds = v
		}
		if v, ok := m["retry_backoff_factor"].(float64); ok {
			c.Retry.BackoffFactor = v
		}
		if v, ok := m["retry_jitter_seconds"].(float64); ok {
			c.Retry.JitterSeconds = v
		}
		return nil
	})
	if err != nil {
		return c, err
	}
	if len(timeoutsRaw) > 0 {
		_ = json.Unmarshal(timeoutsRaw, &c.Timeouts)
	}
	return c, nil
}

func hydrateInstance(ctx context.Context, q *queue.Backend, id int64) (ClaimedInstance, error) {
	var c ClaimedInstance
	err := q.Fetch(ctx, queue.TableInstance, id, func(rows *sql.Rows) error {
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
		for i, col := range cols {
			m[col] = values[i]
		}
		c.ID = id
		c.RegistryID, _ = m["registry_id"].(string)
		c.WorkflowName, _ = m["workflow_name"].(string)
		if ib, ok := m["input_body"].([]byte); ok {
			c.InputBody = ib
		}
		return nil
	})
	return c, err
}
