package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics this module's three binaries
// export, narrowed from the teacher's HTTP/business/auth-heavy set down
// to the queue/claim/timeout/reclaim surface spec.md §4.2-§4.4 actually
// exposes observable behavior for.
type Metrics struct {
	// Queue metrics
	QueueDepth      *prometheus.GaugeVec
	ClaimAttempts   *prometheus.CounterVec
	ClaimConflicts  *prometheus.CounterVec
	ClaimLatency    *prometheus.HistogramVec

	// Action/instance outcome metrics
	ActionsCompleted   *prometheus.CounterVec
	ActionTimeouts     *prometheus.CounterVec
	InstancesCompleted *prometheus.CounterVec
	WorkflowFatals     *prometheus.CounterVec

	// Orchestrator housekeeping metrics
	PromotedScheduled *prometheus.CounterVec
	ReclaimedRows     prometheus.Counter

	// Worker pool metrics
	ActiveActionWorkers   prometheus.Gauge
	ActiveInstanceWorkers prometheus.Gauge
	InFlightTasks         prometheus.Gauge

	// System metrics (fed by internal/orchestrator's health-check loop)
	SystemCPUUsage    prometheus.Gauge
	SystemMemoryUsage prometheus.Gauge
	SystemGoroutines  prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics under namespace
// (typically "daemonflow").
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Number of rows in a given status for a given table",
			},
			[]string{"table", "status"},
		),
		ClaimAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "claim_attempts_total",
				Help:      "Total claim_exclusive attempts",
			},
			[]string{"table"},
		),
		ClaimConflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "claim_conflicts_total",
				Help:      "Total claim_exclusive attempts that lost the race (NOWAIT or status mismatch)",
			},
			[]string{"table"},
		),
		ClaimLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "claim_latency_seconds",
				Help:      "Time from a row becoming ready to being claimed",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"table"},
		),
		ActionsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_completed_total",
				Help:      "Total actions that reached a terminal append_result",
			},
			[]string{"outcome"}, // success | exception | soft_timeout | hard_timeout
		),
		ActionTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "action_timeouts_total",
				Help:      "Total soft/hard timeout events observed by the watcher",
			},
			[]string{"kind", "measurement"}, // soft|hard, wall|cpu
		),
		InstancesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "instances_completed_total",
				Help:      "Total workflow instances that reached a terminal state",
			},
			[]string{"outcome"}, // success | fatal
		),
		WorkflowFatals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_fatals_total",
				Help:      "Total WorkflowFatal terminations, by workflow name",
			},
			[]string{"workflow_name"},
		),
		PromotedScheduled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "promoted_scheduled_total",
				Help:      "Total rows moved from scheduled to queued",
			},
			[]string{"table"},
		),
		ReclaimedRows: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reclaimed_rows_total",
				Help:      "Total rows requeued from workers whose ping aged out",
			},
		),
		ActiveActionWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_action_workers",
				Help:      "Number of action worker processes currently supervised",
			},
		),
		ActiveInstanceWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_instance_workers",
				Help:      "Number of instance worker processes currently supervised",
			},
		),
		InFlightTasks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "in_flight_tasks",
				Help:      "Number of actions currently executing in this process",
			},
		),
		SystemCPUUsage: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "system_cpu_usage_percent",
				Help:      "System CPU usage percentage",
			},
		),
		SystemMemoryUsage: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "system_memory_usage_percent",
				Help:      "System memory usage percentage",
			},
		),
		SystemGoroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "system_goroutines",
				Help:      "Number of goroutines",
			},
		),
	}

	m.Register()
	return m
}

// Register registers all metrics with the default Prometheus registry.
func (m *Metrics) Register() {
	prometheus.MustRegister(
		m.QueueDepth,
		m.ClaimAttempts,
		m.ClaimConflicts,
		m.ClaimLatency,
		m.ActionsCompleted,
		m.ActionTimeouts,
		m.InstancesCompleted,
		m.WorkflowFatals,
		m.PromotedScheduled,
		m.ReclaimedRows,
		m.ActiveActionWorkers,
		m.ActiveInstanceWorkers,
		m.InFlightTasks,
		m.SystemCPUUsage,
		m.SystemMemoryUsage,
		m.SystemGoroutines,
	)
}

// Handler returns the Prometheus scrape handler, mounted at /metrics on
// the orchestrator's admin HTTP surface.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
