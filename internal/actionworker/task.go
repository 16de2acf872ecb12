package actionworker

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/daemonflow/daemonflow/internal/actionworker/cputime"
	"github.com/daemonflow/daemonflow/internal/daemon/dispatch"
	"github.com/daemonflow/daemonflow/internal/daemon/model"
	"github.com/daemonflow/daemonflow/internal/daemon/registry"
)

type taskState int32

const (
	stateRunning taskState = iota
	stateCancelling
)

// runningTask is the watcher's view of one in-flight task thread: enough
// to compute wall/CPU elapsed and to request cooperative cancellation.
type runningTask struct {
	task      dispatch.ClaimedAction
	startWall time.Time
	cpu       *cputime.Tracker
	cancel    context.CancelFunc
	state     taskState

	softWall, hardWall time.Duration
	softCPU, hardCPU   time.Duration
}

// taskThread is one OS-thread-pinned worker: lock the thread so
// cputime.Thread() measures this goroutine alone, then loop pulling
// claimed actions off taskCh until the context is cancelled.
func (w *Worker) taskThread(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-w.taskCh:
			if !ok {
				return
			}
			w.runOne(ctx, t)
			w.maybeRecycle(ctx)
		}
	}
}

func (w *Worker) runOne(ctx context.Context, t dispatch.ClaimedAction) {
	ctx, span := w.tracer.Start(ctx, "action.run")
	span.SetAttributes(attribute.Int64("action.id", t.ID), attribute.String("action.registry_id", t.RegistryID))
	defer span.End()

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	rt := &runningTask{
		task:      t,
		startWall: time.Now(),
		cpu:       cputime.NewTracker(),
		cancel:    cancel,
	}
	for _, spec := range t.Timeouts {
		d := time.Duration(spec.Seconds * float64(time.Second))
		switch {
		case spec.Measurement == "wall" && spec.Kind == "soft":
			rt.softWall = d
		case spec.Measurement == "wall" && spec.Kind == "hard":
			rt.hardWall = d
		case spec.Measurement == "cpu" && spec.Kind == "soft":
			rt.softCPU = d
		case spec.Measurement == "cpu" && spec.Kind == "hard":
			rt.hardCPU = d
		}
	}

	w.mu.Lock()
	w.inFlight[t.ID] = rt
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.inFlight, t.ID)
		w.mu.Unlock()
	}()

	action, err := w.reg.GetAction(t.RegistryID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		w.appendException(t, err.Error())
		return
	}

	input, err := w.payload.Resolve(taskCtx, t.InputBody)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		w.appendException(t, err.Error())
		return
	}

	resultBody, runErr := w.invoke(taskCtx, action, input)

	w.mu.Lock()
	cancelled := rt.state == stateCancelling
	w.mu.Unlock()

	if cancelled {
		// Soft timeout won the race with a natural return: report it
		// regardless of what the action itself returned.
		span.SetStatus(codes.Error, "soft timeout")
		w.appendSoftTimeout(t)
		return
	}

	if runErr != nil {
		span.SetStatus(codes.Error, runErr.Error())
		w.appendException(t, runErr.Error())
		return
	}

	w.appendSuccess(t, resultBody)
}

// invoke calls the registered action function, converting a panic into a
// TaskException the same way the teacher's executor turns a recovered
// panic into a reported failure.
func (w *Worker) invoke(ctx context.Context, a *registry.Action, input []byte) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return a.Fn(ctx, input)
}

func (w *Worker) appendSuccess(t dispatch.ClaimedAction, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stored, err := w.payload.Offload(ctx, body)
	if err != nil {
		w.log.Warn("actionworker: payload offload failed", "action_id", t.ID, "error", err)
		stored = body
	}
	if err := w.queue.AppendResult(ctx, t.ID, stored, nil, nil, model.RetryFields{}); err != nil {
		w.log.Warn("actionworker: append_result (success) failed", "action_id", t.ID, "error", err)
	}
}

func (w *Worker) retryForTask(t dispatch.ClaimedAction) model.RetryFields {
	return model.DecideRetryFromCounts(t.Retry.CurrentAttempt, t.Retry.MaxAttempts, t.Retry.BackoffSeconds, t.Retry.BackoffFactor, t.Retry.JitterSeconds)
}

func (w *Worker) appendException(t dispatch.ClaimedAction, message string) {
	retry := w.retryForTask(t)
	stack := ""
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.queue.AppendResult(ctx, t.ID, nil, &message, &stack, retry); err != nil {
		w.log.Warn("actionworker: append_result (exception) failed", "action_id", t.ID, "error", err)
	}
}

func (w *Worker) appendSoftTimeout(t dispatch.ClaimedAction) {
	message := "Task soft-timed out."
	retry := w.retryForTask(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.queue.AppendResult(ctx, t.ID, nil, &message, nil, retry); err != nil {
		w.log.Warn("actionworker: append_result (soft timeout) failed", "action_id", t.ID, "error", err)
	}
}
