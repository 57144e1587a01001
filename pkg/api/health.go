package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/cuemby/conduit/pkg/metrics"
)

// registerHealthRoutes mounts the probe and scrape endpoints. They sit
// outside /api/v1 so probes keep working if the API is versioned.
//
//	/health   200 healthy or degraded, 503 unhealthy
//	/ready    200 once reconciler, cache and api are up
//	/live     always 200 while the process runs
//	/metrics  Prometheus exposition
func registerHealthRoutes(r *mux.Router) {
	r.Handle("/health", metrics.HealthHandler()).Methods(http.MethodGet)
	r.Handle("/ready", metrics.ReadyHandler()).Methods(http.MethodGet)
	r.Handle("/live", metrics.LivenessHandler()).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
}
