package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daemonflow/daemonflow/internal/platform/config"
	"github.com/daemonflow/daemonflow/internal/platform/logger"
)

// testLogger is a no-op logger.Logger used across this package's tests.
type testLogger struct{}

func (testLogger) Debug(string, ...interface{}) {}
func (testLogger) Info(string, ...interface{})  {}
func (testLogger) Warn(string, ...interface{})  {}
func (testLogger) Error(string, ...interface{}) {}
func (testLogger) Fatal(string, ...interface{}) {}
func (l testLogger) WithFields(map[string]interface{}) logger.Logger { return l }
func (l testLogger) WithContext(context.Context) logger.Logger       { return l }

func TestSupervisorEnsureCountsSpawnsConfiguredNumber(t *testing.T) {
	cfg := config.DaemonConfig{NumActionWorkers: 2, MaxInstanceWorkers: 1}
	s := NewSupervisor(cfg, "/bin/sleep", "/bin/sleep", testLogger{})

	require.NotPanics(t, func() { s.EnsureCounts() })

	counts := s.Count()
	assert.Equal(t, 2, counts["actionworker"])
	assert.Equal(t, 1, counts["instanceworker"])

	s.DrainAll(2 * time.Second)
}

func TestSupervisorEnsureCountsDisabledRole(t *testing.T) {
	cfg := config.DaemonConfig{NumActionWorkers: 1, MaxInstanceWorkers: 1}
	s := NewSupervisor(cfg, "", "", testLogger{})

	s.EnsureCounts()
	counts := s.Count()
	assert.Equal(t, 0, counts["actionworker"])
	assert.Equal(t, 0, counts["instanceworker"])
}

func TestSupervisorReapRemovesFinishedProcesses(t *testing.T) {
	cfg := config.DaemonConfig{NumActionWorkers: 1, MaxInstanceWorkers: 0}
	s := NewSupervisor(cfg, "/bin/true", "", testLogger{})

	s.EnsureCounts()

	require.Eventually(t, func() bool {
		s.Reap()
		return s.Count()["actionworker"] == 0
	}, 2*time.Second, 10*time.Millisecond)
}
