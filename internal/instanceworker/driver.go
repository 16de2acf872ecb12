package instanceworker

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/daemonflow/daemonflow/internal/daemon/dispatch"
	"github.com/daemonflow/daemonflow/internal/daemon/notify"
	"github.com/daemonflow/daemonflow/internal/daemon/payload"
	"github.com/daemonflow/daemonflow/internal/daemon/queue"
	"github.com/daemonflow/daemonflow/internal/daemon/registry"
	"github.com/daemonflow/daemonflow/internal/platform/logger"
)

// driveInstance runs one workflow instance's Run method to completion (or
// to a WorkflowFatal) and writes its terminal state. It is the "driver"
// cooperative task from spec.md §4.5 — on another worker, replaying it
// from scratch reissues the same run_action calls, each resolved instantly
// from cached results until execution catches up to where it left off.
// notifier and alerter may both be nil; neither is on the critical write
// path (CompleteInstance already committed by the time either is called).
// store may be nil — large-payload offload (SPEC_FULL.md §5) is optional.
func driveInstance(ctx context.Context, q *queue.Backend, reg *registry.Registry, log logger.Logger, notifier notify.Publisher, alerter notify.Alerter, store *payload.Store, tracer trace.Tracer, c dispatch.ClaimedInstance) {
	ctx, span := tracer.Start(ctx, "instance.drive")
	span.SetAttributes(attribute.Int64("instance.id", c.ID), attribute.String("instance.workflow_name", c.WorkflowName))
	defer span.End()

	wf, err := reg.GetWorkflow(c.RegistryID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		finishFatal(q, log, notifier, alerter, c, err.Error())
		return
	}

	input, err := store.Resolve(ctx, c.InputBody)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		finishFatal(q, log, notifier, alerter, c, err.Error())
		return
	}

	h := &handle{instanceID: c.ID, queue: q, payload: store, log: log}
	runner := wf.New()

	output, runErr := invokeWorkflow(ctx, runner, h, input)
	if runErr != nil {
		span.SetStatus(codes.Error, runErr.Error())
		finishFatal(q, log, notifier, alerter, c, runErr.Error())
		return
	}

	if err := q.CompleteInstance(ctx, c.ID, output, nil); err != nil {
		log.Warn("instanceworker: complete_instance failed", "instance_id", c.ID, "error", err)
		return
	}
	publishResult(log, notifier, c, true, "")
}

// invokeWorkflow recovers a panicking Run the same way the action worker
// recovers a panicking action — an uncaught exception in run() is a
// WorkflowFatal (spec.md §7), not a process crash.
func invokeWorkflow(ctx context.Context, runner registry.WorkflowRunner, h *handle, input []byte) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return runner.Run(ctx, h, input)
}

func finishFatal(q *queue.Backend, log logger.Logger, notifier notify.Publisher, alerter notify.Alerter, c dispatch.ClaimedInstance, message string) {
	if err := q.CompleteInstance(context.Background(), c.ID, nil, &message); err != nil {
		log.Warn("instanceworker: complete_instance (fatal) failed", "instance_id", c.ID, "error", err)
		return
	}
	publishResult(log, notifier, c, false, message)

	if alerter != nil {
		go func() {
			alertCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := alerter.SendFatal(alertCtx, c.ID, c.WorkflowName, message); err != nil {
				log.Warn("instanceworker: fatal alert send failed", "instance_id", c.ID, "error", err)
			}
		}()
	}
}

func publishResult(log logger.Logger, notifier notify.Publisher, c dispatch.ClaimedInstance, succeeded bool, errMsg string) {
	if notifier == nil {
		return
	}
	ev := notify.ResultEvent{
		InstanceID:   c.ID,
		WorkflowName: c.WorkflowName,
		RegistryID:   c.RegistryID,
		Succeeded:    succeeded,
		Error:        errMsg,
		CompletedAt:  time.Now(),
	}
	pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := notifier.Publish(pubCtx, ev); err != nil {
		log.Warn("instanceworker: result publish failed", "instance_id", c.ID, "error", err)
	}
}
