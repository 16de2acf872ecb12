// Command instanceworker runs one Instance (Workflow) Worker process
// (spec.md §4.5): a cooperative scheduler driving many concurrent workflow
// instances, each replaying its run_action call sequence against the
// Queue Backend.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel/trace"

	"github.com/daemonflow/daemonflow/internal/daemon/builtin"
	"github.com/daemonflow/daemonflow/internal/daemon/notify"
	"github.com/daemonflow/daemonflow/internal/daemon/payload"
	"github.com/daemonflow/daemonflow/internal/daemon/queue"
	"github.com/daemonflow/daemonflow/internal/daemon/registry"
	"github.com/daemonflow/daemonflow/internal/instanceworker"
	"github.com/daemonflow/daemonflow/internal/platform/config"
	"github.com/daemonflow/daemonflow/internal/platform/logger"
	"github.com/daemonflow/daemonflow/internal/platform/telemetry"
)

func main() {
	cfg, err := config.Load("instanceworker")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config: ", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logger)
	log.Info("instanceworker: starting", "max_instances", cfg.Daemon.MaxInstancesPerWorker)

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal("instanceworker: failed to open database", "error", err)
	}
	defer db.Close()

	reg := registry.New()
	builtin.Register(reg)
	reg.Freeze()

	q := queue.New(db, cfg.Database.DSN(), log)

	var store *payload.Store
	if cfg.S3.Enabled {
		s, err := payload.NewStore(context.Background(), cfg.S3, cfg.Daemon.LargePayloadThresholdBytes)
		if err != nil {
			log.Warn("instanceworker: payload offload disabled", "error", err)
		} else {
			store = s
		}
	}

	var notifier notify.Publisher
	if cfg.Kafka.Enabled {
		kp, err := notify.NewKafkaPublisher(cfg.Kafka, log)
		if err != nil {
			log.Warn("instanceworker: kafka publisher disabled", "error", err)
		} else {
			notifier = kp
			defer kp.Close()
		}
	}

	var alerter notify.Alerter
	if apiKey := os.Getenv("SENDGRID_API_KEY"); apiKey != "" {
		alerter = notify.NewSendGridAlerter(apiKey, os.Getenv("ALERT_FROM_EMAIL"), os.Getenv("ALERT_TO_EMAIL"))
	}

	tel, err := telemetry.New(telemetry.Config{
		ServiceName:    "daemonflow-instanceworker",
		JaegerEndpoint: cfg.Telemetry.JaegerEndpoint,
		TracingEnabled: cfg.Telemetry.TracingEnabled,
	})
	if err != nil {
		log.Warn("instanceworker: tracing disabled", "error", err)
		tel = nil
	}
	var tracer trace.Tracer
	if tel != nil {
		tracer = tel.Tracer()
		defer tel.Close()
	}

	w := instanceworker.New(cfg.Daemon, q, reg, log, notifier, alerter, store, tracer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := w.Run(ctx); err != nil {
		log.Fatal("instanceworker: exited with error", "error", err)
	}
	log.Info("instanceworker: clean shutdown")
}
