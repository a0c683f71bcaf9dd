package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTTL is the fallback TTL when the response carries no freshness
	// information.
	DefaultTTL = 30 * time.Second
)

// ResponseToEntry converts a catalog response received at now to an Entry.
// The response body is restored after reading.
func ResponseToEntry(resp *http.Response, now time.Time) (*Entry, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	entry := &Entry{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
		ETag:        resp.Header.Get("ETag"),
		StoredAt:    now,
		Expires:     Expiry(resp.Header, now),
	}
	if resp.Request != nil && resp.Request.URL != nil {
		entry.Endpoint = EndpointLabel(resp.Request.URL.Path)
	}
	if raw := resp.Header.Get("Last-Modified"); raw != "" {
		if lastMod, err := http.ParseTime(raw); err == nil {
			entry.LastModified = lastMod
		}
	}

	return entry, nil
}

// EntryToResponse replays a cached entry as a response served at now. It
// carries the validators, an Age header and X-Cache: HIT.
func EntryToResponse(entry *Entry, now time.Time) *http.Response {
	status := entry.StatusCode
	if status == 0 {
		status = http.StatusOK
	}

	header := http.Header{}
	if entry.ContentType != "" {
		header.Set("Content-Type", entry.ContentType)
	}
	if entry.ETag != "" {
		header.Set("ETag", entry.ETag)
	}
	if !entry.LastModified.IsZero() {
		header.Set("Last-Modified", entry.LastModified.UTC().Format(http.TimeFormat))
	}
	header.Set("Age", strconv.Itoa(int(entry.Age(now).Seconds())))
	header.Set("X-Cache", "HIT")

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(entry.Body)),
		ContentLength: int64(len(entry.Body)),
	}
}

// Expiry derives when a response received at now stops being fresh.
// Cache-Control wins over Expires; no-store and no-cache expire at once.
func Expiry(headers http.Header, now time.Time) time.Time {
	if maxAge, ok := parseCacheControl(headers.Get("Cache-Control")); ok {
		return now.Add(maxAge)
	}

	raw := headers.Get("Expires")
	if raw == "" {
		return now.Add(DefaultTTL)
	}

	expires, err := http.ParseTime(raw)
	if err != nil {
		return now.Add(DefaultTTL)
	}

	if expires.Before(now) {
		return now
	}
	return expires
}

// parseCacheControl returns the freshness lifetime a Cache-Control header
// grants, and false when the header does not decide it.
func parseCacheControl(value string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}

	var (
		maxAge    time.Duration
		hasMaxAge bool
	)
	for _, directive := range strings.Split(value, ",") {
		directive = strings.ToLower(strings.TrimSpace(directive))
		switch {
		case directive == "no-store", directive == "no-cache":
			return 0, true
		case strings.HasPrefix(directive, "s-maxage="), strings.HasPrefix(directive, "max-age="):
			_, raw, _ := strings.Cut(directive, "=")
			secs, err := strconv.Atoi(strings.Trim(raw, `"`))
			if err != nil || secs < 0 {
				continue
			}
			// s-maxage targets shared caches and overrides max-age.
			if !hasMaxAge || strings.HasPrefix(directive, "s-maxage=") {
				maxAge = time.Duration(secs) * time.Second
				hasMaxAge = true
			}
		}
	}
	return maxAge, hasMaxAge
}

// AddConditionalHeaders adds If-None-Match or If-Modified-Since to req.
// ETag is preferred.
func AddConditionalHeaders(req *http.Request, entry *Entry) {
	if entry == nil || req == nil {
		return
	}

	if entry.ETag != "" {
		req.Header.Set("If-None-Match", entry.ETag)
	} else if !entry.LastModified.IsZero() {
		req.Header.Set("If-Modified-Since", entry.LastModified.UTC().Format(http.TimeFormat))
	}
}
