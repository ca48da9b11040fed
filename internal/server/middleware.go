// Package server contains HTTP handlers and middleware for the resolver service.
// This file implements middleware functions for timeout handling, logging, and metrics collection.
package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP request metrics, labelled by route template
var (
	// Requests served, by method, route and status code
	requestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests served, by method, route and status code.",
		},
		[]string{"method", "route", "code"},
	)

	// Request latency, by method and route
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Time to serve an HTTP request, by method and route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// requestTimeout bounds every request, including upstream resolution calls
// made by the web method resolver.
const requestTimeout = 30 * time.Second

// timeoutMiddleware adds a timeout to requests to prevent resource exhaustion.
// The deadline propagates through the request context to method resolvers.
func (h *Handler) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Derive the deadline from the incoming context so client
		// cancellation still applies
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel() // release the timer once the handler returns
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware writes one log line per request and records the request
// count and latency.
func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Handlers that never call WriteHeader answer 200
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		duration := time.Since(start)

		h.logger.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status, // status actually written
			"duration", duration,
			"user_agent", r.UserAgent(),
			// set by wrap(); empty for routes outside the envelope
			"correlationId", w.Header().Get(headerCorrelationID),
		)

		// DIDs in the path are collapsed to their route.
		route := routeLabel(r.URL.Path)
		requestCount.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		requestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())
	})
}

// statusRecorder remembers the status code a handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code // remember before forwarding
	sr.ResponseWriter.WriteHeader(code)
}

// routeLabel collapses paths carrying a DID to their route prefix, keeping
// the metric label cardinality bounded.
func routeLabel(path string) string {
	switch {
	case path == "":
		return "/"
	case strings.HasPrefix(path, identifiersPrefix):
		return identifiersPrefix + "{did}"
	case strings.HasPrefix(path, identityPrefix):
		return identityPrefix + "{did}"
	default:
		return path
	}
}
