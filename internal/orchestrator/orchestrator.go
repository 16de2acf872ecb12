// Package orchestrator implements the Daemon Runner (spec.md §4.3): the
// parent process that supervises action-worker and instance-worker child
// processes and runs the housekeeping loops.
//
// spec.md §6 describes a parent→child in-memory task channel for handing
// claimed rows to worker processes. Since action and instance workers are
// separate OS processes (possibly on separate hosts), that channel would
// need a bespoke IPC transport layered on top of a claim mechanism that is
// already race-free in Postgres. This implementation has each worker claim
// directly from the Queue Backend instead (see
// internal/actionworker.claimLoop, internal/instanceworker.claimLoop, both
// built on internal/daemon/dispatch) and keeps the orchestrator to the
// three loops that only it can run: promote-scheduled,
// reclaim-timed-out-workers, and health-check/supervision. Recorded as a
// deliberate deviation in DESIGN.md.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/daemonflow/daemonflow/internal/daemon/queue"
	"github.com/daemonflow/daemonflow/internal/platform/config"
	"github.com/daemonflow/daemonflow/internal/platform/logger"
	"github.com/daemonflow/daemonflow/internal/platform/metrics"
)

// Orchestrator runs the three housekeeping loops described in spec.md
// §4.3-3/4/5 and supervises the worker child processes. Each loop is
// restartable in isolation and logs-and-continues on any error.
type Orchestrator struct {
	cfg   config.DaemonConfig
	queue *queue.Backend
	log   logger.Logger
	mtr   *metrics.Metrics

	supervisor *Supervisor
	extraLoops []func(context.Context)

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// AddLoop registers an additional long-running function to start alongside
// the three built-in loops and stop when ctx is cancelled — used by
// cmd/orchestrator to fold the admin HTTP server, scheduler, and archiver
// into the same lifecycle without this package needing to import any of
// their concrete types.
func (o *Orchestrator) AddLoop(fn func(context.Context)) {
	o.extraLoops = append(o.extraLoops, fn)
}

// New builds an Orchestrator. mtr may be nil — metrics export is optional.
func New(cfg config.DaemonConfig, q *queue.Backend, sup *Supervisor, log logger.Logger, mtr *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		queue:      q,
		log:        log,
		mtr:        mtr,
		supervisor: sup,
	}
}

// Run starts all three loops and blocks until ctx is cancelled, at which
// point it signals every supervised worker to drain, waits up to
// DrainGracePeriod, then returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	loops := []struct {
		name string
		fn   func(context.Context)
	}{
		{"promote-scheduled", o.promoteScheduledLoop},
		{"reclaim-timed-out-workers", o.reclaimLoop},
		{"health-check", o.healthCheckLoop},
	}

	for _, l := range loops {
		o.wg.Add(1)
		go o.runRestartable(ctx, l.name, l.fn)
	}

	for _, extra := range o.extraLoops {
		o.wg.Add(1)
		fn := extra
		go func() {
			defer o.wg.Done()
			fn(ctx)
		}()
	}

	<-ctx.Done()
	o.log.Info("orchestrator: shutdown signal received, draining workers")
	o.supervisor.DrainAll(o.cfg.DrainGracePeriod)
	o.wg.Wait()
	return nil
}

// Shutdown cancels the context passed to Run.
func (o *Orchestrator) Shutdown() {
	if o.cancel != nil {
		o.cancel()
	}
}

// runRestartable wraps a loop body so a panic logs-and-continues instead of
// taking down the whole orchestrator (spec.md §4.3: "restartable in
// isolation... logs-and-continues on any exception").
func (o *Orchestrator) runRestartable(ctx context.Context, name string, fn func(context.Context)) {
	defer o.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		o.runOnce(ctx, name, fn)
		if ctx.Err() != nil {
			return
		}
		time.Sleep(time.Second)
	}
}

func (o *Orchestrator) runOnce(ctx context.Context, name string, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("orchestrator: loop panicked, restarting", "loop", name, "panic", r)
		}
	}()
	fn(ctx)
}
