// Package cache provides a Redis-backed HTTP response cache shared by every
// process that talks to the catalog API.
//
// The query cache in pkg/query lives in process memory and decides when a
// view refetches. This package sits below it: a refetch that reaches the
// HTTP layer is answered from Redis while the upstream response is still
// valid, and revalidated with a conditional request (If-None-Match or
// If-Modified-Since) once it is not.
//
// # Basic Usage
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.Key{
//		Endpoint: "/products/search",
//		Query:    url.Values{"q": []string{"phone"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from upstream
//	}
//
// # HTTP Response Caching
//
//	entry, err := cache.ResponseToEntry(resp, time.Now())
//	if err != nil {
//		return err
//	}
//	if err := manager.Set(ctx, key, entry); err != nil {
//		return err
//	}
//
// Expiry is taken from Cache-Control max-age, then Expires, then DefaultTTL.
// Responses marked no-store are never cached.
//
// # Revalidation
//
// A 304 answer keeps the stored body and only moves its expiry:
//
//	entry, err := manager.Revalidated(ctx, key, cache.Expiry(resp.Header, now))
//
// The update runs under WATCH, so concurrent revalidations of one listing
// are counted once each.
//
// # Metrics
//
// Endpoint labels are bounded: product ids and category slugs collapse to
// "/products/{id}" and "/products/category/{slug}".
//
//   - catalog_response_cache_hits_total{endpoint}
//   - catalog_response_cache_misses_total{endpoint}
//   - catalog_response_cache_stored_bytes_total{endpoint}
//   - catalog_conditional_requests_total{endpoint}
//   - catalog_not_modified_responses_total{endpoint}
//   - catalog_response_cache_errors_total{operation}
package cache
