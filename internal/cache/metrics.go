package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookupsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "search_cache_lookups_total",
		Help: "Search result cache lookups by outcome.",
	}, []string{
		"result", // hit, miss or expired.
	})

	evictionsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "search_cache_evictions_total",
		Help: "Entries removed from the search result cache by reason.",
	}, []string{
		"reason", // lru, max_age, ttl or corrupt.
	})

	storageErrorsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "search_cache_storage_errors_total",
		Help: "Key-value store failures swallowed by the search result cache.",
	}, []string{
		"op", // get, set, remove or keys.
	})
)
