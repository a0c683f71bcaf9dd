package cache

import (
	"net/url"
	"sort"
	"strings"
)

// Prefix namespaces every key this package writes to Redis.
const Prefix = "catalog"

// Key identifies a cached response by endpoint path and query.
type Key struct {
	// Endpoint is the request path, e.g. "/products/category/beauty".
	Endpoint string

	// Query holds the request query parameters.
	Query url.Values
}

// KeyFromURL builds the key of a request URL.
func KeyFromURL(u *url.URL) Key {
	return Key{Endpoint: u.Path, Query: u.Query()}
}

// String generates a deterministic key string.
// Format: catalog:endpoint:param1=val1:param2=val2
//
// Example:
//
//	catalog:products:limit=6:skip=12
func (k Key) String() string {
	parts := []string{Prefix}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.Query) > 0 {
		names := make([]string, 0, len(k.Query))
		for name := range k.Query {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			values := append([]string(nil), k.Query[name]...)
			sort.Strings(values)
			parts = append(parts, name+"="+strings.Join(values, ","))
		}
	}

	return strings.Join(parts, ":")
}

// Label returns the bounded endpoint label of the key, shared with the
// client's request metrics.
func (k Key) Label() string {
	return EndpointLabel(k.Endpoint)
}

// EndpointLabel collapses product ids and category slugs of path so metric
// labels stay bounded.
func EndpointLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 2 && parts[0] == "products" && parts[1] != "search" && parts[1] != "categories":
		return "/products/{id}"
	case len(parts) == 3 && parts[0] == "products" && parts[1] == "category":
		return "/products/category/{slug}"
	default:
		return "/" + strings.Join(parts, "/")
	}
}
