package cache

import "time"

// Entry is a catalog API response held in Redis. Only the parts needed to
// replay a JSON answer and revalidate it are kept.
type Entry struct {
	// Endpoint is the bounded endpoint label, e.g. "/products/{id}".
	Endpoint string `json:"endpoint"`

	Body        []byte `json:"body"`
	ContentType string `json:"content_type,omitempty"`
	StatusCode  int    `json:"status_code"`

	// ETag and LastModified are the validators sent on revalidation.
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`

	StoredAt time.Time `json:"stored_at"`
	Expires  time.Time `json:"expires"`

	// Revalidations counts the 304 answers that extended the entry.
	Revalidations int `json:"revalidations,omitempty"`
}

// Expired reports whether the entry is past its expiry at now.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.Expires)
}

// TTL returns the time left until expiry, or 0 once expired.
func (e *Entry) TTL(now time.Time) time.Duration {
	if e.Expired(now) {
		return 0
	}
	return e.Expires.Sub(now)
}

// Age returns how long ago the body was stored. A 304 does not reset it.
func (e *Entry) Age(now time.Time) time.Duration {
	if e.StoredAt.IsZero() || now.Before(e.StoredAt) {
		return 0
	}
	return now.Sub(e.StoredAt)
}

// HasValidator reports whether the entry can be revalidated upstream.
func (e *Entry) HasValidator() bool {
	return e.ETag != "" || !e.LastModified.IsZero()
}
