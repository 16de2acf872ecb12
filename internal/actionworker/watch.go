package actionworker

import (
	"context"
	"time"

	"github.com/daemonflow/daemonflow/internal/daemon/dispatch"
)

// watchLoop implements the Watcher thread (spec.md §4.4): every ~1 s, scan
// the in-flight tasks and compare wall/CPU elapsed against each one's
// timeout definitions, following the state table exactly:
//
//	running                -> soft crossed -> cancelling (cooperative cancel)
//	running or cancelling  -> hard crossed -> process-draining (exit)
func (w *Worker) watchLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.checkTimeouts()
		}
	}
}

func (w *Worker) checkTimeouts() {
	var hardHit *dispatch.ClaimedAction

	w.mu.Lock()
	for id, rt := range w.inFlight {
		wallElapsed := time.Since(rt.startWall)
		cpuElapsed := rt.cpu.Elapsed()

		hardCrossed := (rt.hardWall > 0 && wallElapsed >= rt.hardWall) ||
			(rt.hardCPU > 0 && rt.cpu.Available() && cpuElapsed >= rt.hardCPU)
		softCrossed := (rt.softWall > 0 && wallElapsed >= rt.softWall) ||
			(rt.softCPU > 0 && rt.cpu.Available() && cpuElapsed >= rt.softCPU)

		if hardCrossed {
			task := rt.task
			hardHit = &task
			w.log.Error("actionworker: hard timeout", "action_id", id, "wall_elapsed", wallElapsed, "cpu_elapsed", cpuElapsed)
			break // one hard timeout is enough to drain the whole process
		}
		if softCrossed && rt.state == stateRunning {
			rt.state = stateCancelling
			rt.cancel()
			w.log.Warn("actionworker: soft timeout, cancelling", "action_id", id, "wall_elapsed", wallElapsed, "cpu_elapsed", cpuElapsed)
		}
	}
	w.mu.Unlock()

	if hardHit != nil {
		w.appendException(*hardHit, "Task hard-timed out.")
		w.exitOnHardTimeout(hardHit.ID)
	}
}
