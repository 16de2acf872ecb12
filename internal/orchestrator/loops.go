package orchestrator

import (
	"context"
	"time"

	"github.com/daemonflow/daemonflow/internal/daemon/queue"
)

// promoteScheduledLoop implements spec.md §4.3-3: on a fixed tick, move
// scheduled rows whose schedule_after has passed back to queued, for both
// tables.
func (o *Orchestrator) promoteScheduledLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.UpdateScheduledRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, table := range []string{queue.TableAction, queue.TableInstance} {
				n, err := o.queue.PromoteScheduled(ctx, table)
				if err != nil {
					o.log.Warn("promote-scheduled: failed", "table", table, "error", err)
					continue
				}
				if n > 0 {
					o.log.Debug("promote-scheduled: promoted rows", "table", table, "count", n)
					if o.mtr != nil {
						o.mtr.PromotedScheduled.WithLabelValues(table).Add(float64(n))
					}
				}
			}
		}
	}
}

// reclaimLoop implements spec.md §4.3-4: on a fixed tick, find workers whose
// last_ping aged past WorkerTimeout and requeue their in-progress rows
// without incrementing retry_current_attempt (resolved Open Question,
// SPEC_FULL.md §6).
func (o *Orchestrator) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.UpdateTimedOutWorkersRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := o.queue.ReclaimTimedOutWorkers(ctx, o.cfg.WorkerTimeout)
			if err != nil {
				o.log.Warn("reclaim: failed", "error", err)
				continue
			}
			if n > 0 {
				o.log.Info("reclaim: requeued rows from lost workers", "count", n)
				if o.mtr != nil {
					o.mtr.ReclaimedRows.Add(float64(n))
				}
			}
		}
	}
}
