package resolver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// resolutionsTotal counts resolutions by method and outcome (success or
	// the resolution error code).
	resolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "did_resolutions_total",
			Help: "Total number of DID resolutions, by method and result.",
		},
		[]string{"method", "result"},
	)

	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "did_resolution_cache_total",
			Help: "Total number of resolution cache lookups, by result.",
		},
		[]string{"result"}, // hit, miss
	)
)
