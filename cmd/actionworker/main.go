// Command actionworker runs one Action Worker process (spec.md §4.4): a
// thread pool claiming daemon_action rows and executing registered actions
// under soft/hard timeout enforcement.
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

	"github.com/daemonflow/daemonflow/internal/actionworker"
	"github.com/daemonflow/daemonflow/internal/daemon/builtin"
	"github.com/daemonflow/daemonflow/internal/daemon/payload"
	"github.com/daemonflow/daemonflow/internal/daemon/queue"
	"github.com/daemonflow/daemonflow/internal/daemon/registry"
	"github.com/daemonflow/daemonflow/internal/platform/config"
	"github.com/daemonflow/daemonflow/internal/platform/logger"
	"github.com/daemonflow/daemonflow/internal/platform/telemetry"
)

func main() {
	cfg, err := config.Load("actionworker")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config: ", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logger)
	log.Info("actionworker: starting", "threads", cfg.Daemon.ThreadsPerActionWorker)

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal("actionworker: failed to open database", "error", err)
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
			log.Warn("actionworker: payload offload disabled", "error", err)
		} else {
			store = s
		}
	}

	tel, err := telemetry.New(telemetry.Config{
		ServiceName:    "daemonflow-actionworker",
		JaegerEndpoint: cfg.Telemetry.JaegerEndpoint,
		TracingEnabled: cfg.Telemetry.TracingEnabled,
	})
	if err != nil {
		log.Warn("actionworker: tracing disabled", "error", err)
		tel = nil
	}
	var tracer trace.Tracer
	if tel != nil {
		tracer = tel.Tracer()
		defer tel.Close()
	}

	w := actionworker.New(cfg.Daemon, q, reg, log, store, tracer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := w.Run(ctx); err != nil {
		log.Fatal("actionworker: exited with error", "error", err)
	}
	log.Info("actionworker: clean shutdown")
}
