package orchestrator

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daemonflow/daemonflow/internal/platform/config"
	"github.com/daemonflow/daemonflow/internal/platform/metrics"
)

func TestAdminServerHealthReportsWorkerCounts(t *testing.T) {
	sup := NewSupervisor(config.DaemonConfig{}, "", "", testLogger{})
	a := NewAdminServer(config.AdminConfig{Port: 0}, nil, nil, sup)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	a.srv.Handler.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "workers")
}

func TestAdminServerMetricsRouteOmittedWhenNil(t *testing.T) {
	sup := NewSupervisor(config.DaemonConfig{}, "", "", testLogger{})
	a := NewAdminServer(config.AdminConfig{Port: 0}, nil, nil, sup)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	a.srv.Handler.ServeHTTP(rec, req)

	assert.Equal(t, 404, rec.Code)
}

func TestAdminServerServesMetricsWhenWired(t *testing.T) {
	sup := NewSupervisor(config.DaemonConfig{}, "", "", testLogger{})
	m := metrics.NewMetrics("daemonflow_test_admin")
	a := NewAdminServer(config.AdminConfig{Port: 0}, m, nil, sup)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	a.srv.Handler.ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
}
