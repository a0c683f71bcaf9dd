// Package metrics exposes the Prometheus registry used by the catalog client.
// All metrics are defined in their respective packages (client, cache,
// ratelimit, query, pagination) next to the code that updates them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the catalog client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves the default gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - catalog_requests_total{endpoint, status} (Counter): Upstream requests by endpoint and status
//   - catalog_request_duration_seconds{endpoint} (Histogram): Upstream request duration
//   - catalog_fetch_errors_total{class} (Counter): Failed fetches by class (client, server, rate_limit, network, decode)
//
// Retry Metrics (pkg/client):
//   - catalog_retries_total{error_class} (Counter): Retry attempts by error class
//   - catalog_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - catalog_retry_exhausted_total{error_class} (Counter): Fetches that exhausted max attempts
//
// Response Cache Metrics (pkg/cache):
//   - catalog_response_cache_hits_total{endpoint} (Counter): Cache hits by endpoint
//   - catalog_response_cache_misses_total{endpoint} (Counter): Cache misses by endpoint
//   - catalog_response_cache_stored_bytes_total{endpoint} (Counter): Response bytes written to the cache
//   - catalog_conditional_requests_total{endpoint} (Counter): Requests sent with If-None-Match / If-Modified-Since
//   - catalog_not_modified_responses_total{endpoint} (Counter): 304 Not Modified responses
//   - catalog_response_cache_errors_total{operation} (Counter): Cache operation errors
//
// Rate Limit Metrics (pkg/ratelimit):
//   - catalog_rate_limit_remaining (Gauge): Requests remaining in the current window
//   - catalog_rate_limit_blocks_total (Counter): Requests blocked below the critical threshold
//   - catalog_rate_limit_throttles_total (Counter): Requests delayed below the warning threshold
//
// Query Cache Metrics (pkg/query):
//   - catalog_query_hits_total (Counter): Reads served from the query cache
//   - catalog_query_misses_total (Counter): Reads that had to wait for a fetch
//   - catalog_query_shared_fetches_total (Counter): Reads that joined an in-flight fetch
//   - catalog_query_evictions_total (Counter): Entries removed by garbage collection
//   - catalog_query_fetch_duration_seconds (Histogram): Query function duration
//   - catalog_query_entries (Gauge): Entries currently cached
//
// Batch Metrics (pkg/pagination):
//   - catalog_batch_pages_total{result} (Counter): Pages fetched by the batch fetcher
//
// Example Prometheus Queries:
//
//   # Query Cache Hit Rate
//   sum(rate(catalog_query_hits_total[5m])) /
//   (sum(rate(catalog_query_hits_total[5m])) + sum(rate(catalog_query_misses_total[5m])))
//
//   # Remaining Upstream Budget
//   catalog_rate_limit_remaining < 20
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(catalog_request_duration_seconds_bucket[5m]))
