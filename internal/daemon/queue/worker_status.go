package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/daemonflow/daemonflow/internal/daemon/model"
)

// RegisterWorker inserts a new worker_status row and returns its id. Every
// process that claims rows — the standalone action/instance worker
// binaries — registers one row so
// ReclaimTimedOutWorkers has something to watch (spec.md §4.4).
func (b *Backend) RegisterWorker(ctx context.Context, isActionWorker bool) (int64, error) {
	now := time.Now()
	var id int64
	q := `INSERT INTO worker_status (internal_process_id, is_action_worker, launch_time, last_ping, is_draining, cleaned_up)
		VALUES ($1, $2, $3, $3, false, false) RETURNING id`
	if err := b.db.QueryRowContext(ctx, q, uuid.New(), isActionWorker, now).Scan(&id); err != nil {
		return 0, &model.TransientDBError{Op: "register_worker", Cause: err}
	}
	return id, nil
}

// Ping refreshes last_ping for id. Called on PingInterval by the owning
// process while it is alive.
func (b *Backend) Ping(ctx context.Context, id int64) error {
	if _, err := b.db.ExecContext(ctx, `UPDATE worker_status SET last_ping = $1 WHERE id = $2`, time.Now(), id); err != nil {
		return &model.TransientDBError{Op: "ping_worker", Cause: err}
	}
	return nil
}

// SetDraining marks id as draining: it stops accepting new claims but is
// not yet considered lost.
func (b *Backend) SetDraining(ctx context.Context, id int64) error {
	if _, err := b.db.ExecContext(ctx, `UPDATE worker_status SET is_draining = true WHERE id = $1`, id); err != nil {
		return &model.TransientDBError{Op: "set_draining", Cause: err}
	}
	return nil
}

// MarkCleanedUp marks id as fully shut down, so the reclaim loop leaves it
// alone even once last_ping ages out.
func (b *Backend) MarkCleanedUp(ctx context.Context, id int64) error {
	if _, err := b.db.ExecContext(ctx, `UPDATE worker_status SET cleaned_up = true WHERE id = $1`, id); err != nil {
		return &model.TransientDBError{Op: "mark_cleaned_up", Cause: err}
	}
	return nil
}
