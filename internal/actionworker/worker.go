// Package actionworker implements the Action Worker process (spec.md
// §4.4): a thread pool where each thread runs one action at a time inside
// its own cooperative scheduler, subject to soft (cancellable) and hard
// (fatal) timeouts measured in wall-clock or per-OS-thread CPU time.
package actionworker

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/daemonflow/daemonflow/internal/daemon/dispatch"
	"github.com/daemonflow/daemonflow/internal/daemon/payload"
	"github.com/daemonflow/daemonflow/internal/daemon/queue"
	"github.com/daemonflow/daemonflow/internal/daemon/registry"
	"github.com/daemonflow/daemonflow/internal/platform/config"
	"github.com/daemonflow/daemonflow/internal/platform/logger"
)

// Worker owns one Postgres connection's worth of work: a fixed-size pool of
// task threads, a ping thread, and a watcher thread enforcing timeouts.
type Worker struct {
	cfg     config.DaemonConfig
	queue   *queue.Backend
	reg     *registry.Registry
	log     logger.Logger
	payload *payload.Store
	tracer  trace.Tracer

	workerStatusID int64
	draining       atomic.Bool
	completed      atomic.Int64

	taskCh chan dispatch.ClaimedAction

	mu       sync.Mutex
	inFlight map[int64]*runningTask
}

// New constructs a Worker. Call Run to start it; Run blocks until ctx is
// cancelled or a hard timeout forces the process to exit. store may be nil
// — large-payload offload (SPEC_FULL.md §5) is optional. tracer may be nil,
// in which case New substitutes a no-op tracer.
func New(cfg config.DaemonConfig, q *queue.Backend, reg *registry.Registry, log logger.Logger, store *payload.Store, tracer trace.Tracer) *Worker {
	if tracer == nil {
		tracer = trace.NewNoopTracerProvider().Tracer("actionworker")
	}
	return &Worker{
		cfg:      cfg,
		queue:    q,
		reg:      reg,
		log:      log,
		payload:  store,
		tracer:   tracer,
		taskCh:   make(chan dispatch.ClaimedAction, cfg.ThreadsPerActionWorker),
		inFlight: make(map[int64]*runningTask),
	}
}

// Run implements the lifecycle in spec.md §4.4: register, ping, claim,
// execute, watch, drain. It returns nil only after a clean drain; a hard
// timeout calls os.Exit directly, since uncooperative CPU-bound code can
// only be interrupted by killing the process (spec.md §4.4, "Draining").
func (w *Worker) Run(ctx context.Context) error {
	id, err := w.queue.RegisterWorker(ctx, true)
	if err != nil {
		return err
	}
	w.workerStatusID = id
	w.log.Info("actionworker: registered", "worker_status_id", id)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); w.pingLoop(runCtx) }()
	go func() { defer wg.Done(); w.claimLoop(runCtx) }()
	go func() { defer wg.Done(); w.watchLoop(runCtx) }()

	for i := 0; i < w.cfg.ThreadsPerActionWorker; i++ {
		wg.Add(1)
		go func() { defer wg.Done(); w.taskThread(runCtx) }()
	}

	<-ctx.Done()
	w.beginDrain(context.Background())
	wg.Wait()
	return nil
}

// claimLoop streams and claims action rows, forwarding each to taskCh.
// Once draining it stops forwarding — in-flight work still runs to
// completion or to its hard timeout (spec.md §4.4).
func (w *Worker) claimLoop(ctx context.Context) {
	claimed, errs := dispatch.Actions(ctx, w.queue, w.workerStatusID, w.cfg.Queues, w.log)
	for {
		if w.draining.Load() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if ok && err != nil {
				w.log.Warn("actionworker: claim stream error", "error", err)
			}
		case c, ok := <-claimed:
			if !ok {
				return
			}
			if w.draining.Load() {
				return
			}
			select {
			case w.taskCh <- c:
			case <-ctx.Done():
				return
			}
		}
	}
}

// pingLoop implements the Ping thread for the WorkerStatus row Run has
// already registered: refreshes last_ping on PingInterval, and writes one final ping on exit.
func (w *Worker) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.finalPing()
			return
		case <-ticker.C:
			if err := w.queue.Ping(context.Background(), w.workerStatusID); err != nil {
				w.log.Warn("actionworker: ping failed", "error", err)
			}
		}
	}
}

func (w *Worker) finalPing() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = w.queue.Ping(ctx, w.workerStatusID)
}

// beginDrain flips the draining flag, persists it, and stops accepting new
// tasks_before_recycle-triggered or shutdown-triggered work.
func (w *Worker) beginDrain(ctx context.Context) {
	if w.draining.CompareAndSwap(false, true) {
		w.log.Info("actionworker: draining", "worker_status_id", w.workerStatusID)
		if err := w.queue.SetDraining(ctx, w.workerStatusID); err != nil {
			w.log.Warn("actionworker: failed to persist draining flag", "error", err)
		}
	}
}

// maybeRecycle triggers a proactive drain once tasks_before_recycle
// completions have happened, implementing the optional rolling-restart
// policy from spec.md §4.4.
func (w *Worker) maybeRecycle(ctx context.Context) {
	if w.cfg.TasksBeforeRecycle <= 0 {
		return
	}
	if w.completed.Add(1) >= int64(w.cfg.TasksBeforeRecycle) {
		w.beginDrain(ctx)
	}
}

// exitOnHardTimeout is the only way to interrupt uncooperative CPU-bound
// code: terminate the whole process and let the reclaim loop (spec.md
// §4.3-4) requeue whatever it was assigned.
func (w *Worker) exitOnHardTimeout(actionID int64) {
	w.log.Error("actionworker: hard timeout, exiting process", "action_id", actionID, "worker_status_id", w.workerStatusID)
	w.beginDrain(context.Background())
	w.finalPing()
	time.Sleep(200 * time.Millisecond) // let the log line and ping flush
	os.Exit(1)
}
