package queue

import (
	"gorm.io/gorm"

	"github.com/daemonflow/daemonflow/internal/daemon/model"
)

// AutoMigrate creates/updates the four tables. The notify_instance_change
// trigger is not expressible through GORM and is installed separately by
// ensureNotifyTrigger / migrations/0001_init.sql (spec.md §6).
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.WorkerStatus{},
		&model.DaemonWorkflowInstance{},
		&model.DaemonAction{},
		&model.DaemonActionResult{},
	)
}
