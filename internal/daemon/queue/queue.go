// Package queue implements the Queue Backend described in spec.md §4.2:
// the only durable store, backed by PostgreSQL, exposing enqueue,
// stream_ready, claim_exclusive, append_result, and fetch.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/daemonflow/daemonflow/internal/daemon/model"
	"github.com/daemonflow/daemonflow/internal/platform/logger"
)

// Table names, matching the bit-exact schema in spec.md §6.
const (
	TableAction   = "daemon_action"
	TableInstance = "daemon_workflow_instance"
)

// Backend is a PostgreSQL-backed Queue Backend. One Backend is shared by
// every loop in a daemonflow process; it owns the *sql.DB connection
// pool and, lazily, one pq.Listener connection per open LISTEN stream.
type Backend struct {
	db     *sql.DB
	connStr string
	log    logger.Logger
}

// New wraps an existing *sql.DB (opened with the lib/pq driver) as a Queue
// Backend. connStr is kept so pq.NewListener can open its own dedicated
// connections, since LISTEN/NOTIFY needs a connection held open for the
// lifetime of the subscription, separate from the pool used for
// transactional work.
func New(db *sql.DB, connStr string, log logger.Logger) *Backend {
	return &Backend{db: db, connStr: connStr, log: log}
}

// Enqueue inserts a new row with status=queued, or status=scheduled if
// ScheduleAfter is in the future. Commits in its own transaction.
func (b *Backend) Enqueue(ctx context.Context, table string, row map[string]any) (int64, error) {
	status := string(model.StatusQueued)
	if sa, ok := row["schedule_after"]; ok && sa != nil {
		if t, ok := sa.(time.Time); ok && t.After(time.Now()) {
			status = string(model.StatusScheduled)
		}
	}
	row["status"] = status

	cols := make([]string, 0, len(row))
	vals := make([]any, 0, len(row))
	placeholders := make([]string, 0, len(row))
	i := 1
	for c, v := range row {
		cols = append(cols, c)
		vals = append(vals, v)
		placeholders = append(placeholders, fmt.Sprintf("$%d", i))
		i++
	}

	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id", table, join(cols, ","), join(placeholders, ","))

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &model.TransientDBError{Op: "enqueue.begin", Cause: err}
	}
	defer tx.Rollback()

	var id int64
	if err := tx.QueryRowContext(ctx, q, vals...).Scan(&id); err != nil {
		return 0, &model.TransientDBError{Op: "enqueue.insert", Cause: err}
	}
	if err := tx.Commit(); err != nil {
		return 0, &model.TransientDBError{Op: "enqueue.commit", Cause: err}
	}
	return id, nil
}

// ClaimExclusive attempts to atomically move a queued row into in_progress,
// assigning it to workerStatusID. Returns false (no error) on lock
// conflict — the caller should move on to the next candidate row, never
// block waiting for the lock, matching SELECT ... FOR UPDATE NOWAIT.
func (b *Backend) ClaimExclusive(ctx context.Context, table string, id int64, workerStatusID int64) (bool, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return false, &model.TransientDBError{Op: "claim.begin", Cause: err}
	}
	defer tx.Rollback()

	var status string
	q := fmt.Sprintf("SELECT status FROM %s WHERE id = $1 FOR UPDATE NOWAIT", table)
	err = tx.QueryRowContext(ctx, q, id).Scan(&status)
	if err != nil {
		if isLockNotAvailable(err) {
			return false, nil
		}
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, &model.TransientDBError{Op: "claim.select", Cause: err}
	}

	if status != string(model.StatusQueued) {
		// Another claimer beat us to it between the cursor read and here.
		return false, nil
	}

	upd := fmt.Sprintf("UPDATE %s SET status = $1, assigned_worker_status_id = $2 WHERE id = $3", table)
	if _, err := tx.ExecContext(ctx, upd, string(model.StatusInProgress), workerStatusID, id); err != nil {
		return false, &model.TransientDBError{Op: "claim.update", Cause: err}
	}

	if err := tx.Commit(); err != nil {
		return false, &model.TransientDBError{Op: "claim.commit", Cause: err}
	}
	return true, nil
}

// AppendResult inserts a DaemonActionResult row and updates the owning
// action row's final_result_id, status, and (on failure) retry bookkeeping,
// all in one transaction (spec.md §4.2).
func (b *Backend) AppendResult(ctx context.Context, actionID int64, resultBody []byte, exception, exceptionStack *string, retry model.RetryFields) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return &model.TransientDBError{Op: "append_result.begin", Cause: err}
	}
	defer tx.Rollback()

	var resultID int64
	insert := `INSERT INTO daemon_action_result (action_id, created_at, result_body, exception, exception_stack)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err := tx.QueryRowContext(ctx, insert, actionID, time.Now(), nullBytes(resultBody), exception, exceptionStack).Scan(&resultID); err != nil {
		return &model.TransientDBError{Op: "append_result.insert", Cause: err}
	}

	if exception == nil {
		upd := `UPDATE daemon_action SET final_result_id = $1, status = $2 WHERE id = $3`
		if _, err := tx.ExecContext(ctx, upd, resultID, string(model.StatusDone), actionID); err != nil {
			return &model.TransientDBError{Op: "append_result.success_update", Cause: err}
		}
	} else if retry.AttemptsRemain {
		nextAfter := time.Now().Add(retry.Backoff)
		upd := `UPDATE daemon_action SET status = $1, schedule_after = $2, retry_current_attempt = $3 WHERE id = $4`
		if _, err := tx.ExecContext(ctx, upd, string(model.StatusScheduled), nextAfter, retry.NextAttempt, actionID); err != nil {
			return &model.TransientDBError{Op: "append_result.retry_update", Cause: err}
		}
	} else {
		upd := `UPDATE daemon_action SET final_result_id = $1, status = $2, retry_current_attempt = $3 WHERE id = $4`
		if _, err := tx.ExecContext(ctx, upd, resultID, string(model.StatusDone), retry.NextAttempt, actionID); err != nil {
			return &model.TransientDBError{Op: "append_result.terminal_update", Cause: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &model.TransientDBError{Op: "append_result.commit", Cause: err}
	}
	return nil
}

// Fetch performs a simple lookup of one row by id.
func (b *Backend) Fetch(ctx context.Context, table string, id int64, dest func(*sql.Rows) error) error {
	q := fmt.Sprintf("SELECT * FROM %s WHERE id = $1", table)
	rows, err := b.db.QueryContext(ctx, q, id)
	if err != nil {
		return &model.TransientDBError{Op: "fetch", Cause: err}
	}
	defer rows.Close()
	if !rows.Next() {
		return sql.ErrNoRows
	}
	if err := dest(rows); err != nil {
		return err
	}
	return rows.Err()
}

// PromoteScheduled runs the promote-scheduled housekeeping statement
// (spec.md §4.3-3) against one table.
func (b *Backend) PromoteScheduled(ctx context.Context, table string) (int64, error) {
	q := fmt.Sprintf(`UPDATE %s SET status = $1 WHERE status = $2 AND schedule_after < now()`, table)
	res, err := b.db.ExecContext(ctx, q, string(model.StatusQueued), string(model.StatusScheduled))
	if err != nil {
		return 0, &model.TransientDBError{Op: "promote_scheduled", Cause: err}
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ReclaimTimedOutWorkers implements spec.md §4.3-4: find WorkerStatus rows
// whose last ping aged out, requeue their in-progress rows without
// incrementing retry_current_attempt, and mark them cleaned_up. Idempotent.
func (b *Backend) ReclaimTimedOutWorkers(ctx context.Context, workerTimeout time.Duration) (int, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &model.TransientDBError{Op: "reclaim.begin", Cause: err}
	}
	defer tx.Rollback()

	cutoff := time.Now().Add(-workerTimeout)
	rows, err := tx.QueryContext(ctx, `SELECT id FROM worker_status WHERE last_ping < $1 AND cleaned_up = false FOR UPDATE SKIP LOCKED`, cutoff)
	if err != nil {
		return 0, &model.TransientDBError{Op: "reclaim.select_workers", Cause: err}
	}
	var workerIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, &model.TransientDBError{Op: "reclaim.scan_worker", Cause: err}
		}
		workerIDs = append(workerIDs, id)
	}
	rows.Close()

	reclaimed := 0
	for _, wid := range workerIDs {
		for _, table := range []string{TableAction, TableInstance} {
			q := fmt.Sprintf(`UPDATE %s SET status = $1, assigned_worker_status_id = NULL WHERE assigned_worker_status_id = $2 AND status = $3`, table)
			res, err := tx.ExecContext(ctx, q, string(model.StatusQueued), wid, string(model.StatusInProgress))
			if err != nil {
				return reclaimed, &model.TransientDBError{Op: "reclaim.requeue", Cause: err}
			}
			n, _ := res.RowsAffected()
			reclaimed += int(n)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE worker_status SET cleaned_up = true WHERE id = $1`, wid); err != nil {
			return reclaimed, &model.TransientDBError{Op: "reclaim.mark_cleaned", Cause: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return reclaimed, &model.TransientDBError{Op: "reclaim.commit", Cause: err}
	}
	return reclaimed, nil
}

func isLockNotAvailable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 55P03 = lock_not_available, raised by FOR UPDATE NOWAIT.
		return pqErr.Code == "55P03"
	}
	return false
}

func nullBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}

func join(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}

// MarshalTimeouts is a convenience used by callers building DaemonAction
// rows to enqueue.
func MarshalTimeouts(specs []model.TimeoutSpec) []byte {
	b, err := json.Marshal(specs)
	if err != nil {
		return nil
	}
	return b
}
