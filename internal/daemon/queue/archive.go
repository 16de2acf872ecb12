package queue

import (
	"context"

	"github.com/daemonflow/daemonflow/internal/daemon/model"
)

// ListDoneInstancesSince returns completed workflow instances with id >
// afterID, ordered by id, for the archive loop to hand off to the
// execution-log store. Limit bounds one batch.
func (b *Backend) ListDoneInstancesSince(ctx context.Context, afterID int64, limit int) ([]model.DaemonWorkflowInstance, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, workflow_name, registry_id, input_body, output_body, status, launch_time, end_time, error
		FROM daemon_workflow_instance
		WHERE id > $1 AND status = $2
		ORDER BY id ASC
		LIMIT $3`, afterID, string(model.StatusDone), limit)
	if err != nil {
		return nil, &model.TransientDBError{Op: "list_done_instances", Cause: err}
	}
	defer rows.Close()

	var out []model.DaemonWorkflowInstance
	for rows.Next() {
		var inst model.DaemonWorkflowInstance
		if err := rows.Scan(&inst.ID, &inst.WorkflowName, &inst.RegistryID, &inst.InputBody, &inst.OutputBody, &inst.Status, &inst.LaunchTime, &inst.EndTime, &inst.Error); err != nil {
			return nil, &model.TransientDBError{Op: "list_done_instances.scan", Cause: err}
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}
