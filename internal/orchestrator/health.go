package orchestrator

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// healthCheckLoop implements spec.md §4.3-5: reap dead child processes,
// respawn to the configured counts, and log system/runtime stats at
// HealthCheckInterval. Grounded in the teacher's
// internal/monitoring/app/service/monitoring_service.go collectSystemMetrics
// loop, adapted from a standalone metrics service into a supervision tick.
func (o *Orchestrator) healthCheckLoop(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.supervisor.Reap()
			o.supervisor.EnsureCounts()
			o.logSystemStats(ctx)
		}
	}
}

func (o *Orchestrator) logSystemStats(ctx context.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	fields := []any{
		"goroutines", runtime.NumGoroutine(),
		"heap_alloc_bytes", m.HeapAlloc,
		"action_workers", o.supervisor.Count()["actionworker"],
		"instance_workers", o.supervisor.Count()["instanceworker"],
	}

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		fields = append(fields, "cpu_percent", pct[0])
		if o.mtr != nil {
			o.mtr.SystemCPUUsage.Set(pct[0])
		}
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		fields = append(fields, "mem_used_percent", vm.UsedPercent)
		if o.mtr != nil {
			o.mtr.SystemMemoryUsage.Set(vm.UsedPercent)
		}
	}

	if o.mtr != nil {
		o.mtr.SystemGoroutines.Set(float64(runtime.NumGoroutine()))
		o.mtr.ActiveActionWorkers.Set(float64(o.supervisor.Count()["actionworker"]))
		o.mtr.ActiveInstanceWorkers.Set(float64(o.supervisor.Count()["instanceworker"]))
	}

	o.log.Debug("orchestrator: health tick", fields...)
}
