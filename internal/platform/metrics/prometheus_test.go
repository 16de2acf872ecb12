package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersAndIncrements(t *testing.T) {
	m := NewMetrics("daemonflow_test_prometheus")

	m.ClaimAttempts.WithLabelValues("daemon_action").Inc()
	m.ClaimConflicts.WithLabelValues("daemon_action").Inc()
	m.ActionsCompleted.WithLabelValues("success").Inc()
	m.ReclaimedRows.Add(3)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ClaimAttempts.WithLabelValues("daemon_action")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ClaimConflicts.WithLabelValues("daemon_action")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ActionsCompleted.WithLabelValues("success")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.ReclaimedRows))
}

func TestMetricsHandlerServesScrapeFormat(t *testing.T) {
	m := NewMetrics("daemonflow_test_handler")
	m.ActiveActionWorkers.Set(4)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "daemonflow_test_handler_active_action_workers")
}
