// Package query is an in-process request memoization and revalidation layer.
//
// A Client holds one cache entry per Key. Each read decides between three
// outcomes:
//
//   - fresh data: served from the entry, no request
//   - stale data: served from the entry, revalidated in the background
//   - no data: the caller blocks on a fetch
//
// Concurrent fetches for the same key are collapsed into one request. An
// entry nobody observes is evicted GCTime after its last use.
//
// # Basic Usage
//
//	qc := query.NewClient(query.DefaultConfig(), logger)
//	defer qc.Close()
//
//	res := query.Query(ctx, qc, query.Options[*catalog.ProductList]{
//		Key:       query.NewKey("products", filter.Sort, filter.Search),
//		Fn:        func(ctx context.Context) (*catalog.ProductList, error) { return api.ListProducts(ctx, filter) },
//		StaleTime: 5 * time.Second,
//		GCTime:    3 * time.Second,
//	})
//	if res.IsError() {
//		// render the error message
//	}
//
// # Observers
//
// An Observer is a long-lived subscription to one key. It keeps the entry
// alive, polls when RefetchInterval is set, and with KeepPreviousData shows
// the previous key's data while a new key loads.
//
// # Infinite Queries
//
// Infinite accumulates pages under a single key. FetchNextPage and
// OnIntersect never run two next-page fetches at the same time, and a
// next-page fetch never overlaps a revalidation of the loaded pages. Like an
// Observer it keeps its entry alive from the first Load until Close.
//
// # Metrics
//
//   - catalog_query_hits_total - reads answered from an entry
//   - catalog_query_misses_total - reads that had to block on a fetch
//   - catalog_query_shared_fetches_total - callers that joined an in-flight fetch
//   - catalog_query_evictions_total - entries removed by garbage collection
//   - catalog_query_fetch_duration_seconds - duration of fetch functions
//   - catalog_query_entries - entries currently held
package query
