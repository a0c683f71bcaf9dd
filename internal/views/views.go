// Package views configures the query cache per view and builds the view
// models the web front-end and the terminal browser render from.
//
// Every view reads through one *query.Client. Keys are derived from the
// effective filter, so two filters that fetch the same listing URL share an
// entry.
package views

import (
	"context"
	"time"

	"github.com/Sternrassler/catalog-client/pkg/catalog"
	"github.com/Sternrassler/catalog-client/pkg/query"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Fetcher is the data source of the views. *client.Client satisfies it.
type Fetcher interface {
	ListProducts(ctx context.Context, f catalog.Filter) (*catalog.ProductList, error)
	GetProduct(ctx context.Context, id int) (*catalog.Product, error)
	ListCategories(ctx context.Context) ([]catalog.Category, error)
	PageSize() int
}

// Config holds the cache policy of each view.
type Config struct {
	ListStaleTime time.Duration
	ListGCTime    time.Duration

	DetailStaleTime time.Duration
	DetailGCTime    time.Duration

	CategoriesStaleTime time.Duration
	CategoriesGCTime    time.Duration

	// PollInterval is the refetch interval of watched lists. 0 disables polling.
	PollInterval time.Duration

	// MaxCategories limits the category buttons shown above the list.
	MaxCategories int
}

// DefaultConfig returns the default view cache policy.
func DefaultConfig() Config {
	return Config{
		ListStaleTime:       5 * time.Second,
		ListGCTime:          3 * time.Second,
		DetailStaleTime:     5 * time.Second,
		DetailGCTime:        10 * time.Second,
		CategoriesStaleTime: 5 * time.Minute,
		CategoriesGCTime:    10 * time.Minute,
		PollInterval:        5 * time.Second,
		MaxCategories:       5,
	}
}

// Catalog builds view models on top of a query cache.
type Catalog struct {
	api    Fetcher
	qc     *query.Client
	cfg    Config
	logger zerolog.Logger
}

// New creates a Catalog. Zero fields of cfg fall back to DefaultConfig.
func New(api Fetcher, qc *query.Client, cfg Config) *Catalog {
	def := DefaultConfig()
	if cfg.ListStaleTime == 0 {
		cfg.ListStaleTime = def.ListStaleTime
	}
	if cfg.ListGCTime == 0 {
		cfg.ListGCTime = def.ListGCTime
	}
	if cfg.DetailStaleTime == 0 {
		cfg.DetailStaleTime = def.DetailStaleTime
	}
	if cfg.DetailGCTime == 0 {
		cfg.DetailGCTime = def.DetailGCTime
	}
	if cfg.CategoriesStaleTime == 0 {
		cfg.CategoriesStaleTime = def.CategoriesStaleTime
	}
	if cfg.CategoriesGCTime == 0 {
		cfg.CategoriesGCTime = def.CategoriesGCTime
	}
	if cfg.MaxCategories <= 0 {
		cfg.MaxCategories = def.MaxCategories
	}

	return &Catalog{
		api:    api,
		qc:     qc,
		cfg:    cfg,
		logger: log.With().Str("component", "views").Logger(),
	}
}

// Config returns the effective configuration.
func (c *Catalog) Config() Config {
	return c.cfg
}

// PageSize returns the offset page size of the data source.
func (c *Catalog) PageSize() int {
	return c.api.PageSize()
}

// ListKey is the cache key of a listing.
func ListKey(f catalog.Filter) query.Key {
	e := f.Effective()
	return query.NewKey("products", string(e.Sort), e.Search, e.Category, e.Page)
}

// FeedKey is the cache key of an infinite listing.
func FeedKey(f catalog.Filter) query.Key {
	e := f.Effective()
	return query.NewKey("products", "infinite", string(e.Sort), e.Search, e.Category)
}

// ProductKey is the cache key of a product detail.
func ProductKey(id int) query.Key {
	return query.NewKey("product", id)
}

// CategoriesKey is the cache key of the category list.
func CategoriesKey() query.Key {
	return query.NewKey("categories")
}

// ListOptions returns the query options of a listing. Paged listings keep
// the previous page on screen while the next one loads.
func (c *Catalog) ListOptions(f catalog.Filter) query.Options[*catalog.ProductList] {
	return query.Options[*catalog.ProductList]{
		Key: ListKey(f),
		Fn: func(ctx context.Context) (*catalog.ProductList, error) {
			return c.api.ListProducts(ctx, f)
		},
		StaleTime:        c.cfg.ListStaleTime,
		GCTime:           c.cfg.ListGCTime,
		KeepPreviousData: f.Paged,
	}
}

// ProductOptions returns the query options of a product detail.
func (c *Catalog) ProductOptions(id int) query.Options[*catalog.Product] {
	return query.Options[*catalog.Product]{
		Key: ProductKey(id),
		Fn: func(ctx context.Context) (*catalog.Product, error) {
			return c.api.GetProduct(ctx, id)
		},
		StaleTime: c.cfg.DetailStaleTime,
		GCTime:    c.cfg.DetailGCTime,
	}
}

// CategoriesOptions returns the query options of the category list.
func (c *Catalog) CategoriesOptions() query.Options[[]catalog.Category] {
	return query.Options[[]catalog.Category]{
		Key:       CategoriesKey(),
		Fn:        c.api.ListCategories,
		StaleTime: c.cfg.CategoriesStaleTime,
		GCTime:    c.cfg.CategoriesGCTime,
	}
}

// Invalidate marks every cached listing and product stale.
func (c *Catalog) Invalidate() int {
	return c.qc.Invalidate(query.NewKey("products")) + c.qc.Invalidate(query.NewKey("product"))
}
