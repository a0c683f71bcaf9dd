package query

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queryHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_query_hits_total",
		Help: "Total number of query reads answered from a cache entry",
	})

	queryMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_query_misses_total",
		Help: "Total number of query reads that blocked on a fetch",
	})

	querySharedFetches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_query_shared_fetches_total",
		Help: "Total number of callers that joined an in-flight fetch for the same key",
	})

	queryEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_query_evictions_total",
		Help: "Total number of unused query entries removed after their gc time",
	})

	queryFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_query_fetch_duration_seconds",
		Help:    "Duration of query fetch functions in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	queryEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_query_entries",
		Help: "Number of query cache entries currently held",
	})
)
