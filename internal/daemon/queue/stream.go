package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/daemonflow/daemonflow/internal/daemon/model"
)

// StreamReady implements the two-phase iterator from spec.md §4.2: Phase A
// scans already-queued rows via a server-side cursor, Phase B installs the
// notify trigger (idempotently) and LISTENs for new ones. Results are sent
// on the returned channel until ctx is cancelled, at which point the
// channel is closed and the dedicated listener connection released.
//
// Grounded directly in original_source's filzl_daemons/db.py
// (PostgresBackend.iter_ready_objects / get_ready_instances /
// get_instances_notification).
func (b *Backend) StreamReady(ctx context.Context, table string, queues []string) (<-chan model.ReadyNotification, <-chan error) {
	out := make(chan model.ReadyNotification, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		if err := b.scanQueued(ctx, table, queues, out); err != nil {
			select {
			case errs <- err:
			default:
			}
			return
		}

		if err := b.listenForReady(ctx, table, queues, out); err != nil {
			select {
			case errs <- err:
			default:
			}
		}
	}()

	return out, errs
}

func (b *Backend) scanQueued(ctx context.Context, table string, queues []string, out chan<- model.ReadyNotification) error {
	conn, err := b.db.Conn(ctx)
	if err != nil {
		return &model.TransientDBError{Op: "stream.scan.conn", Cause: err}
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return &model.TransientDBError{Op: "stream.scan.begin", Cause: err}
	}
	defer tx.Rollback()

	filter := "TRUE"
	var args []any
	if len(queues) > 0 {
		filter = "workflow_name = ANY($1)"
		args = append(args, pq.Array(queues))
	}

	declare := fmt.Sprintf(`DECLARE ready_cursor CURSOR FOR
		SELECT id, workflow_name, status FROM %s WHERE %s AND status = 'queued'`, table, filter)
	if _, err := tx.ExecContext(ctx, declare, args...); err != nil {
		return &model.TransientDBError{Op: "stream.scan.declare", Cause: err}
	}

	for {
		rows, err := tx.QueryContext(ctx, "FETCH NEXT FROM ready_cursor")
		if err != nil {
			return &model.TransientDBError{Op: "stream.scan.fetch", Cause: err}
		}
		hasRow := rows.Next()
		if !hasRow {
			rows.Close()
			break
		}
		var n model.ReadyNotification
		if err := rows.Scan(&n.ID, &n.Name, &n.Status); err != nil {
			rows.Close()
			return &model.TransientDBError{Op: "stream.scan.row", Cause: err}
		}
		rows.Close()

		select {
		case out <- n:
		case <-ctx.Done():
			return nil
		}
	}

	return tx.Commit()
}

func (b *Backend) listenForReady(ctx context.Context, table string, queues []string, out chan<- model.ReadyNotification) error {
	if err := b.ensureNotifyTrigger(ctx, table, queues); err != nil {
		return err
	}

	channel := notifyChannel(table)
	listener := pq.NewListener(b.connStr, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			b.log.Warn("queue: listener event error", "error", err, "channel", channel)
		}
	})
	defer listener.Close()

	if err := listener.Listen(channel); err != nil {
		return &model.TransientDBError{Op: "stream.listen", Cause: err}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			if n == nil {
				continue // reconnect event, nothing to deliver
			}
			var payload model.ReadyNotification
			if err := json.Unmarshal([]byte(n.Extra), &payload); err != nil {
				b.log.Warn("queue: malformed notify payload", "error", err, "payload", n.Extra)
				continue
			}
			select {
			case out <- payload:
			case <-ctx.Done():
				return nil
			}
		case <-time.After(90 * time.Second):
			// Defend against a silently dropped connection; pq.Listener
			// reconnects on its own, this just keeps the loop alive.
			_ = listener.Ping()
		}
	}
}

// ensureNotifyTrigger installs notify_<table>_change() and its
// <table>_update_trigger on table, filtering NEW.workflow_name by queues so one Postgres can host
// multiple independent deployments (spec.md §6). Idempotent via CREATE OR
// REPLACE FUNCTION / DROP TRIGGER IF EXISTS.
func (b *Backend) ensureNotifyTrigger(ctx context.Context, table string, queues []string) error {
	channel := notifyChannel(table)
	funcName := fmt.Sprintf("notify_%s_change", table)
	triggerName := fmt.Sprintf("%s_update_trigger", table)

	queueFilter := "TRUE"
	if len(queues) > 0 {
		quoted := make([]string, len(queues))
		for i, q := range queues {
			quoted[i] = fmt.Sprintf("NEW.workflow_name = '%s'", strings.ReplaceAll(q, "'", "''"))
		}
		queueFilter = "(" + strings.Join(quoted, " OR ") + ")"
	}

	createFn := fmt.Sprintf(`
		CREATE OR REPLACE FUNCTION %s() RETURNS TRIGGER AS $$
		BEGIN
			IF (%s AND NEW.status = 'queued') THEN
				PERFORM pg_notify('%s', json_build_object(
					'id', NEW.id, 'workflow_name', NEW.workflow_name, 'status', NEW.status
				)::text);
			END IF;
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql;`, funcName, queueFilter, channel)

	if _, err := b.db.ExecContext(ctx, createFn); err != nil {
		return &model.TransientDBError{Op: "stream.ensure_trigger.function", Cause: err}
	}

	dropTrigger := fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON %s`, triggerName, table)
	if _, err := b.db.ExecContext(ctx, dropTrigger); err != nil {
		return &model.TransientDBError{Op: "stream.ensure_trigger.drop", Cause: err}
	}

	createTrigger := fmt.Sprintf(`
		CREATE TRIGGER %s AFTER INSERT OR UPDATE ON %s
		FOR EACH ROW EXECUTE FUNCTION %s();`, triggerName, table, funcName)
	if _, err := b.db.ExecContext(ctx, createTrigger); err != nil {
		return &model.TransientDBError{Op: "stream.ensure_trigger.create", Cause: err}
	}

	return nil
}

func notifyChannel(table string) string {
	if table == TableInstance {
		return "instance_updates"
	}
	return "action_updates"
}
