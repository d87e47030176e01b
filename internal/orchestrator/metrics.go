package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "search_orchestrator_requests_total",
	Help: "Network searches issued by query orchestrators, by outcome.",
}, []string{
	"outcome", // applied, superseded, failed or fallback.
})
