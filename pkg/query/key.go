package query

import (
	"fmt"
	"net/url"
	"strings"
)

// Key identifies a cache entry. Two keys are equal when their parts are.
type Key []string

// NewKey formats every part with fmt.Sprint.
//
// Example:
//
//	query.NewKey("products", "asc", "", "beauty", 2) // products/asc//beauty/2
func NewKey(parts ...any) Key {
	k := make(Key, len(parts))
	for i, p := range parts {
		k[i] = fmt.Sprint(p)
	}
	return k
}

// String generates a deterministic identifier. Parts are path-escaped so a
// "/" inside a part cannot collide with the separator.
func (k Key) String() string {
	escaped := make([]string, len(k))
	for i, p := range k {
		escaped[i] = url.PathEscape(p)
	}
	return strings.Join(escaped, "/")
}

// HasPrefix reports whether prefix matches the leading parts of k.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Equal reports whether both keys have the same parts.
func (k Key) Equal(other Key) bool {
	return len(k) == len(other) && k.HasPrefix(other)
}
