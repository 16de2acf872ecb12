package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/daemonflow/daemonflow/internal/daemon/gateway"
	"github.com/daemonflow/daemonflow/internal/platform/config"
	"github.com/daemonflow/daemonflow/internal/platform/metrics"
)

// AdminServer exposes the one HTTP surface any daemonflow binary runs:
// /health (liveness), /metrics (Prometheus scrape), and /ws (the
// results-streaming websocket gateway). Only the orchestrator runs it,
// since it's the process an operator's load balancer/monitoring stack
// expects to find steady throughout a deploy (worker processes come and
// go under Supervisor's control).
type AdminServer struct {
	srv *http.Server
}

// NewAdminServer wires /health, /metrics (if mtr != nil), and /ws (if
// hub != nil) behind gorilla/mux, matching the router library already in
// the corpus's dependency set.
func NewAdminServer(cfg config.AdminConfig, mtr *metrics.Metrics, hub *gateway.Hub, supervisor *Supervisor) *AdminServer {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"workers": supervisor.Count(),
		})
	}).Methods(http.MethodGet)

	if mtr != nil {
		r.Handle("/metrics", mtr.Handler()).Methods(http.MethodGet)
	}
	if hub != nil {
		r.HandleFunc("/ws", hub.ServeWS)
	}

	return &AdminServer{
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled, at which
// point it shuts down gracefully.
func (a *AdminServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
