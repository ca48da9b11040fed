package signature

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var verificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "token_verifications_total",
		Help: "Total token verifications by result (success or failure kind).",
	},
	[]string{"result"},
)
