package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits counts lookups answered from Redis, by endpoint label.
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_response_cache_hits_total",
			Help: "Response cache hits by endpoint",
		},
		[]string{"endpoint"},
	)

	// CacheMisses counts lookups with nothing usable in Redis.
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_response_cache_misses_total",
			Help: "Response cache misses by endpoint",
		},
		[]string{"endpoint"},
	)

	// CacheStoredBytes counts response bytes written to Redis.
	CacheStoredBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_response_cache_stored_bytes_total",
			Help: "Response bytes written to the cache by endpoint",
		},
		[]string{"endpoint"},
	)

	// ConditionalRequestsSent counts requests revalidated with
	// If-None-Match or If-Modified-Since.
	ConditionalRequestsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_conditional_requests_total",
			Help: "Conditional requests sent upstream by endpoint",
		},
		[]string{"endpoint"},
	)

	// NotModifiedResponses counts 304 answers that kept a cached body.
	NotModifiedResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_not_modified_responses_total",
			Help: "304 Not Modified responses by endpoint",
		},
		[]string{"endpoint"},
	)

	// CacheErrors counts failed Redis operations.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_response_cache_errors_total",
			Help: "Response cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "revalidate"
	)
)
