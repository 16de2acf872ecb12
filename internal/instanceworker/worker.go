package instanceworker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/daemonflow/daemonflow/internal/daemon/dispatch"
	"github.com/daemonflow/daemonflow/internal/daemon/notify"
	"github.com/daemonflow/daemonflow/internal/daemon/payload"
	"github.com/daemonflow/daemonflow/internal/daemon/queue"
	"github.com/daemonflow/daemonflow/internal/daemon/registry"
	"github.com/daemonflow/daemonflow/internal/platform/config"
	"github.com/daemonflow/daemonflow/internal/platform/logger"
)

// Worker owns the instance-dispatch loop and a bounded pool of concurrent
// instance drivers (spec.md §4.5): "a child process that can drive many
// workflow instances concurrently using a cooperative scheduler."
type Worker struct {
	cfg      config.DaemonConfig
	queue    *queue.Backend
	reg      *registry.Registry
	log      logger.Logger
	notifier notify.Publisher
	alerter  notify.Alerter
	payload  *payload.Store
	tracer   trace.Tracer

	workerStatusID int64
	draining       atomic.Bool
	active         atomic.Int64
}

// New constructs an instance worker. notifier/alerter/store may be nil —
// wiring any of them is optional (SPEC_FULL.md §5 supplemented
// features). store, when set, must be the same large-payload offload
// store the action worker uses, since run_action's cached-result lookup
// has to dereference whatever appendSuccess offloaded. tracer may be
// nil, in which case New substitutes a no-op tracer.
func New(cfg config.DaemonConfig, q *queue.Backend, reg *registry.Registry, log logger.Logger, notifier notify.Publisher, alerter notify.Alerter, store *payload.Store, tracer trace.Tracer) *Worker {
	if tracer == nil {
		tracer = trace.NewNoopTracerProvider().Tracer("instanceworker")
	}
	return &Worker{cfg: cfg, queue: q, reg: reg, log: log, notifier: notifier, alerter: alerter, payload: store, tracer: tracer}
}

// Run registers the worker, starts the ping loop and the claim loop, and
// drives up to MaxInstancesPerWorker instances concurrently, each as its
// own goroutine. Run blocks until ctx is cancelled and every in-flight
// driver has returned.
func (w *Worker) Run(ctx context.Context) error {
	id, err := w.queue.RegisterWorker(ctx, false)
	if err != nil {
		return err
	}
	w.workerStatusID = id
	w.log.Info("instanceworker: registered", "worker_status_id", id)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); w.pingLoop(runCtx) }()

	sem := make(chan struct{}, w.cfg.MaxInstancesPerWorker)
	go func() {
		defer wg.Done()
		w.claimLoop(runCtx, sem, &wg)
	}()

	<-ctx.Done()
	w.beginDrain(context.Background())
	wg.Wait()
	return nil
}

func (w *Worker) claimLoop(ctx context.Context, sem chan struct{}, wg *sync.WaitGroup) {
	claimed, errs := dispatch.Instances(ctx, w.queue, w.workerStatusID, w.cfg.Queues, w.log)
	for {
		if w.draining.Load() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if ok && err != nil {
				w.log.Warn("instanceworker: claim stream error", "error", err)
			}
		case c, ok := <-claimed:
			if !ok {
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			wg.Add(1)
			w.active.Add(1)
			go func() {
				defer wg.Done()
				defer w.active.Add(-1)
				defer func() { <-sem }()
				// Deliberately not runCtx: once claimed, a driver runs to
				// completion even during drain, so a shutdown never
				// misreports an in-flight workflow as WorkflowFatal. If the
				// process is killed outright the reclaim loop requeues it.
				driveInstance(context.Background(), w.queue, w.reg, w.log, w.notifier, w.alerter, w.payload, w.tracer, c)
			}()
		}
	}
}

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
				w.log.Warn("instanceworker: ping failed", "error", err)
			}
		}
	}
}

func (w *Worker) finalPing() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = w.queue.Ping(ctx, w.workerStatusID)
}

// Active reports how many instance drivers are currently running, for
// health/metrics reporting.
func (w *Worker) Active() int64 { return w.active.Load() }

func (w *Worker) beginDrain(ctx context.Context) {
	if w.draining.CompareAndSwap(false, true) {
		w.log.Info("instanceworker: draining", "worker_status_id", w.workerStatusID)
		if err := w.queue.SetDraining(ctx, w.workerStatusID); err != nil {
			w.log.Warn("instanceworker: failed to persist draining flag", "error", err)
		}
	}
}
