// Command orchestrator runs the Daemon Runner: the parent process that
// supervises action-worker and instance-worker child processes and drives
// the housekeeping loops described in spec.md §4.3.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/daemonflow/daemonflow/internal/daemon/archive"
	"github.com/daemonflow/daemonflow/internal/daemon/gateway"
	"github.com/daemonflow/daemonflow/internal/daemon/notify"
	"github.com/daemonflow/daemonflow/internal/daemon/queue"
	"github.com/daemonflow/daemonflow/internal/daemon/schedule"
	"github.com/daemonflow/daemonflow/internal/orchestrator"
	"github.com/daemonflow/daemonflow/internal/platform/config"
	"github.com/daemonflow/daemonflow/internal/platform/logger"
	"github.com/daemonflow/daemonflow/internal/platform/metrics"
)

func main() {
	cfg, err := config.Load("orchestrator")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config: ", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logger)
	log.Info("orchestrator: starting", "queues", cfg.Daemon.Queues)

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatal("orchestrator: failed to open database", "error", err)
	}
	defer db.Close()

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	if err != nil {
		log.Fatal("orchestrator: failed to open gorm session", "error", err)
	}
	if err := queue.AutoMigrate(gormDB); err != nil {
		log.Fatal("orchestrator: schema migration failed", "error", err)
	}
	log.Info("orchestrator: schema migrated")

	q := queue.New(db, cfg.Database.DSN(), log)

	dir, err := os.Executable()
	if err != nil {
		log.Fatal("orchestrator: could not resolve own binary path", "error", err)
	}
	siblingDir := filepath.Dir(dir)
	sup := orchestrator.NewSupervisor(cfg.Daemon, filepath.Join(siblingDir, "actionworker"), filepath.Join(siblingDir, "instanceworker"), log)

	var mtr *metrics.Metrics
	if cfg.Telemetry.MetricsEnabled {
		mtr = metrics.NewMetrics("daemonflow")
	}

	orch := orchestrator.New(cfg.Daemon, q, sup, log, mtr)

	hub := gateway.NewHub(log)
	orch.AddLoop(hub.Run)

	admin := orchestrator.NewAdminServer(cfg.Admin, mtr, hub, sup)
	orch.AddLoop(func(ctx context.Context) {
		if err := admin.Run(ctx); err != nil {
			log.Warn("orchestrator: admin server exited with error", "error", err)
		}
	})

	if cfg.Kafka.Enabled {
		resultConsumer, err := notify.NewResultConsumer(cfg.Kafka, log)
		if err != nil {
			log.Warn("orchestrator: websocket gateway will not receive results, kafka consumer disabled", "error", err)
		} else {
			orch.AddLoop(func(ctx context.Context) {
				resultConsumer.Run(ctx, hub)
				_ = resultConsumer.Close()
			})
		}
	}

	if cfg.Mongo.Enabled {
		archiveCtx, archiveCancel := context.WithTimeout(context.Background(), 10*time.Second)
		archiver, err := archive.New(archiveCtx, cfg.Mongo, q, log)
		archiveCancel()
		if err != nil {
			log.Warn("orchestrator: execution-log archive disabled", "error", err)
		} else {
			orch.AddLoop(func(ctx context.Context) {
				archiver.Run(ctx, cfg.Daemon.UpdateScheduledRefresh*10)
				_ = archiver.Close(context.Background())
			})
		}
	}

	sched := schedule.New(q, log)
	orch.AddLoop(func(ctx context.Context) {
		sched.Start(ctx)
		<-ctx.Done()
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := orch.Run(ctx); err != nil {
		log.Fatal("orchestrator: exited with error", "error", err)
	}
	log.Info("orchestrator: clean shutdown")
}
