package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter for document registry writes made through the HTTP API
var registryOperations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "registry_operations_total",
		Help: "Total number of document registry writes, by operation and result.",
	},
	[]string{"operation", "result"}, // create|deactivate, success|failure
)

// metricsHandler serves the default registry on the main listener: request,
// resolution, cache and token verification counters plus Go runtime metrics.
func (h *Handler) metricsHandler(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// NewMetricsHandler returns the handler for the dedicated metrics listener
// (RESOLVER_METRICS_ADDR).
func NewMetricsHandler() http.Handler {
	return promhttp.Handler()
}

// incrementRegistryOperation counts a registry write by outcome
func incrementRegistryOperation(operation string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	registryOperations.WithLabelValues(operation, result).Inc()
}
