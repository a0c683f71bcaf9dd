// Package client provides the catalog HTTP client: URL construction for
// every listing shape, one GET per fetch, and optional Redis-backed response
// caching and rate limit gating shared between processes.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/catalog-client/pkg/cache"
	"github.com/Sternrassler/catalog-client/pkg/catalog"
	"github.com/Sternrassler/catalog-client/pkg/pagination"
	"github.com/Sternrassler/catalog-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the public catalog API.
	DefaultBaseURL = "https://dummyjson.com"

	// DefaultUserAgent identifies this client upstream.
	DefaultUserAgent = "catalog-client/1.0"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_requests_total",
		Help: "Total upstream requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"endpoint"})

	fetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_fetch_errors_total",
		Help: "Total failed fetches by error class",
	}, []string{"class"})
)

// Client fetches catalog data.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	retry       RetryConfig
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API root, without trailing slash.
	BaseURL string

	// UserAgent header sent with every request.
	UserAgent string

	// Redis enables the shared response cache and rate limit tracking.
	// Optional.
	Redis *redis.Client

	// Timeout bounds each request. 0 means no timeout.
	Timeout time.Duration

	// PageSize is the number of products per offset page.
	PageSize int

	// MaxAttempts is the number of attempts per fetch. 1 disables retries.
	MaxAttempts int

	// InitialBackoff is the first retry delay when retries are enabled.
	InitialBackoff time.Duration
}

// DefaultConfig returns the default configuration: no cache, no timeout,
// no retries.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		UserAgent:      DefaultUserAgent,
		PageSize:       pagination.DefaultPageSize,
		MaxAttempts:    1,
		InitialBackoff: DefaultRetryConfig().InitialBackoff,
	}
}

// New creates a new catalog client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", cfg.BaseURL)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("page_size must be > 0 (got %d)", cfg.PageSize)
	}

	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("max_attempts must be >= 1 (got %d)", cfg.MaxAttempts)
	}

	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative (got %v)", cfg.Timeout)
	}

	logger := log.With().Str("component", "catalog-client").Logger()

	retry := DefaultRetryConfig()
	retry.MaxAttempts = cfg.MaxAttempts
	if cfg.InitialBackoff > 0 {
		retry.InitialBackoff = cfg.InitialBackoff
	}

	c := &Client{
		httpClient: &http.Client{},
		baseURL:    base,
		retry:      retry,
		config:     cfg,
		logger:     logger,
	}

	if cfg.Redis != nil {
		c.rateLimiter = ratelimit.NewTracker(cfg.Redis, logger)
		c.cache = cache.NewManager(cfg.Redis)
	}

	return c, nil
}

// PageSize returns the configured offset page size.
func (c *Client) PageSize() int {
	return c.config.PageSize
}

// ListURL builds the listing URL of a filter. Exactly one shape applies,
// by precedence: search, then sort, then category, then the plain or
// paginated listing.
func (c *Client) ListURL(f catalog.Filter) string {
	q := url.Values{}
	var path string

	switch {
	case f.Search != "":
		path = "/products/search"
		q.Set("q", f.Search)
	case f.Sort != catalog.SortNone:
		path = "/products"
		q.Set("sortBy", "price")
		q.Set("order", string(f.Sort))
	case f.Category != "":
		path = "/products/category/" + url.PathEscape(f.Category)
	case f.Paged:
		path = "/products"
		q.Set("limit", strconv.Itoa(c.config.PageSize))
		q.Set("skip", strconv.Itoa(pagination.Offset(f.Page, c.config.PageSize)))
	default:
		path = "/products"
	}

	return c.resolve(path, q)
}

// PageURL builds the URL of one offset page of the full listing.
func (c *Client) PageURL(page int) string {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.config.PageSize))
	q.Set("skip", strconv.Itoa(pagination.Offset(page, c.config.PageSize)))
	return c.resolve("/products", q)
}

// ProductURL builds the URL of a single product.
func (c *Client) ProductURL(id int) string {
	return c.resolve("/products/"+strconv.Itoa(id), nil)
}

// CategoriesURL builds the URL of the category list.
func (c *Client) CategoriesURL() string {
	return c.resolve("/products/categories", nil)
}

// resolve joins an already escaped path onto the base URL.
func (c *Client) resolve(escapedPath string, q url.Values) string {
	u := *c.baseURL
	raw := strings.TrimRight(u.EscapedPath(), "/") + escapedPath
	if p, err := url.PathUnescape(raw); err == nil {
		u.Path = p
		u.RawPath = raw
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ListProducts fetches the listing selected by f.
func (c *Client) ListProducts(ctx context.Context, f catalog.Filter) (*catalog.ProductList, error) {
	var list catalog.ProductList
	if err := c.getJSON(ctx, c.ListURL(f), &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// FetchPage fetches one offset page of the full listing. Pages are
// zero-based.
func (c *Client) FetchPage(ctx context.Context, page int) (*catalog.ProductList, error) {
	var list catalog.ProductList
	if err := c.getJSON(ctx, c.PageURL(page), &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// GetProduct fetches a single product.
func (c *Client) GetProduct(ctx context.Context, id int) (*catalog.Product, error) {
	var p catalog.Product
	if err := c.getJSON(ctx, c.ProductURL(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListCategories fetches every category.
func (c *Client) ListCategories(ctx context.Context) ([]catalog.Category, error) {
	var cats []catalog.Category
	if err := c.getJSON(ctx, c.CategoriesURL(), &cats); err != nil {
		return nil, err
	}
	return cats, nil
}

// getJSON performs one GET and decodes the body into v.
func (c *Client) getJSON(ctx context.Context, rawURL string, v any) error {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		fetchErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return &FetchError{URL: rawURL, StatusCode: resp.StatusCode, Class: ErrorClassDecode, Err: err}
	}
	return nil
}

// Do performs a GET with rate limiting, response caching and error
// classification. Any status outside 2xx is returned as a *FetchError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := cache.EndpointLabel(req.URL.Path)
	rawURL := req.URL.String()

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Rate limit check failed, sending request anyway")
		} else if !allowed {
			c.logger.Warn().Str("endpoint", endpoint).Msg("Request blocked by rate limiter")
			requestsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			fetchErrorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
			return nil, &FetchError{URL: rawURL, Class: ErrorClassRateLimit, Err: ErrRateLimited}
		}
	}

	cacheKey := cache.KeyFromURL(req.URL)
	var cachedEntry *cache.Entry
	if c.cache != nil {
		entry, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			cachedEntry = entry
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
	}

	if cachedEntry != nil && cachedEntry.HasValidator() {
		cache.AddConditionalHeaders(req, cachedEntry)
		cache.ConditionalRequestsSent.WithLabelValues(endpoint).Inc()
		c.logger.Debug().
			Str("endpoint", endpoint).
			Str("etag", cachedEntry.ETag).
			Msg("Making conditional request")
	}

	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("url", rawURL).
		Msg("Executing catalog request")

	var resp *http.Response
	err := retryWithBackoff(ctx, c.retry, func() error {
		r, reqErr := c.httpClient.Do(req)
		if reqErr != nil {
			fetchErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			c.logger.Error().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			return &FetchError{URL: rawURL, Class: ErrorClassNetwork, Err: reqErr}
		}

		if c.rateLimiter != nil {
			if err := c.rateLimiter.UpdateFromHeaders(ctx, r.Header); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
			}
		}

		requestsTotal.WithLabelValues(endpoint, strconv.Itoa(r.StatusCode)).Inc()

		if r.StatusCode == http.StatusNotModified && cachedEntry != nil {
			resp = r
			return nil
		}

		if r.StatusCode < 200 || r.StatusCode > 299 {
			class := classifyStatus(r.StatusCode)
			fetchErrorsTotal.WithLabelValues(string(class)).Inc()
			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", r.StatusCode).
				Str("error_class", string(class)).
				Msg("Catalog request error")

			_, _ = io.Copy(io.Discard, r.Body)
			r.Body.Close()
			return &FetchError{URL: rawURL, StatusCode: r.StatusCode, Class: class}
		}

		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotModified {
		c.logger.Debug().Str("endpoint", endpoint).Msg("304 Not Modified - using cache")
		cache.NotModifiedResponses.WithLabelValues(endpoint).Inc()

		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		now := time.Now()
		updated, err := c.cache.Revalidated(ctx, cacheKey, cache.Expiry(resp.Header, now))
		switch {
		case err == nil:
			cachedEntry = updated
		case errors.Is(err, cache.ErrCacheMiss):
			c.logger.Debug().Str("endpoint", endpoint).Msg("Cached response expired during revalidation")
		default:
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Failed to refresh cached response")
		}
		return cache.EntryToResponse(cachedEntry, now), nil
	}

	if c.cache != nil && resp.StatusCode == http.StatusOK {
		now := time.Now()
		entry, err := cache.ResponseToEntry(resp, now)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Failed to create cache entry")
		} else if ttl := entry.TTL(now); ttl > 0 {
			if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to cache response")
			} else {
				c.logger.Debug().
					Str("endpoint", endpoint).
					Dur("ttl", ttl).
					Msg("Cached response")
			}
		}
	}

	return resp, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Ping checks the Redis connection, if one is configured.
func (c *Client) Ping(ctx context.Context) error {
	if c.config.Redis == nil {
		return nil
	}
	if err := c.config.Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// GetCache returns the response cache manager, or nil without Redis.
func (c *Client) GetCache() *cache.Manager {
	return c.cache
}
