package views

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/catalog-client/pkg/catalog"
	"github.com/Sternrassler/catalog-client/pkg/pagination"
	"github.com/Sternrassler/catalog-client/pkg/query"
	"golang.org/x/sync/errgroup"
)

// Pager is the prev/next navigation of an offset listing.
type Pager struct {
	pagination.Links

	// Prev and Next are the filters the links navigate to.
	Prev catalog.Filter
	Next catalog.Filter
}

// ListPage is the view model of a product listing.
type ListPage struct {
	Filter     catalog.Filter
	Cards      []Card
	Categories []CategoryButton

	// Pager is nil unless the listing is paged and honours the page.
	Pager *Pager

	Count     int
	UpdatedAt time.Time

	// Error is set when any part of the page failed.
	Error string

	query.Meta
}

// Header is the "N Products, last update at: ..." line.
func (p ListPage) Header(now time.Time) string {
	return fmt.Sprintf("%d Products, last update at: %s", p.Count, UpdatedAgo(p.UpdatedAt, now))
}

// List reads the products and the categories of f together. The page is
// pending or failed as a whole. When a Next link is shown the following page
// is prefetched.
func (c *Catalog) List(ctx context.Context, f catalog.Filter) ListPage {
	var (
		products   query.Result[*catalog.ProductList]
		categories query.Result[[]catalog.Category]
		g          errgroup.Group
	)

	g.Go(func() error {
		products = query.Query(ctx, c.qc, c.ListOptions(f))
		return products.Err
	})
	g.Go(func() error {
		categories = query.Query(ctx, c.qc, c.CategoriesOptions())
		return categories.Err
	})
	if err := g.Wait(); err != nil {
		c.logger.Warn().Err(err).Str("filter", f.Encode()).Msg("List fetch failed")
	}

	page := c.buildList(f, products, categories)
	if page.Pager != nil && page.Pager.HasNext {
		c.prefetchList(page.Pager.Next)
	}
	return page
}

func (c *Catalog) buildList(f catalog.Filter, products query.Result[*catalog.ProductList], categories query.Result[[]catalog.Category]) ListPage {
	meta := query.Combine(products.Meta, categories.Meta)
	page := ListPage{
		Filter:    f,
		Meta:      meta,
		UpdatedAt: meta.DataUpdatedAt,
	}

	if meta.IsError() {
		page.Error = ErrorMessage
		return page
	}

	page.Cards = Cards(products.Data)
	page.Count = products.Data.Len()
	page.Categories = CategoryButtons(categories.Data, f, c.cfg.MaxCategories)

	if f.Paged && f.Pageable() && products.IsSuccess() {
		links := pagination.NewLinks(f.Page, page.Count, c.api.PageSize())
		page.Pager = &Pager{
			Links: links,
			Prev:  f.WithPage(links.Prev),
			Next:  f.WithPage(links.Next),
		}
	}
	return page
}

func (c *Catalog) prefetchList(f catalog.Filter) {
	c.logger.Debug().Int("page", f.Page).Msg("Prefetching next page")
	query.PrefetchAsync(c.qc, c.ListOptions(f))
}

// PrefetchList loads a listing into the cache ahead of navigation.
func (c *Catalog) PrefetchList(ctx context.Context, f catalog.Filter) error {
	return query.Prefetch(ctx, c.qc, c.ListOptions(f))
}

// ListWatch keeps a listing on screen: it polls, follows filter changes and
// keeps the previous page visible while a new page loads.
type ListWatch struct {
	c        *Catalog
	onChange func(ListPage)

	mu     sync.Mutex
	filter catalog.Filter
	obs    *query.Observer[*catalog.ProductList]
}

// WatchList subscribes to the listing of f. onChange receives every new
// page state and may be nil.
func (c *Catalog) WatchList(f catalog.Filter, onChange func(ListPage)) *ListWatch {
	w := &ListWatch{c: c, onChange: onChange, filter: f}

	query.PrefetchAsync(c.qc, c.CategoriesOptions())

	obs := query.Observe(c.qc, w.options(f), func(query.Result[*catalog.ProductList]) {
		w.notify()
	})

	w.mu.Lock()
	w.obs = obs
	w.mu.Unlock()
	return w
}

func (w *ListWatch) options(f catalog.Filter) query.Options[*catalog.ProductList] {
	opts := w.c.ListOptions(f)
	opts.RefetchInterval = w.c.cfg.PollInterval
	return opts
}

// SetFilter moves the watch to another filter.
func (w *ListWatch) SetFilter(f catalog.Filter) {
	w.mu.Lock()
	w.filter = f
	obs := w.obs
	w.mu.Unlock()

	obs.SetOptions(w.options(f))
}

// Filter returns the watched filter.
func (w *ListWatch) Filter() catalog.Filter {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.filter
}

func (w *ListWatch) state() (catalog.Filter, *query.Observer[*catalog.ProductList]) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.filter, w.obs
}

// Page returns the current view model. Categories come from the cache
// without blocking.
func (w *ListWatch) Page() ListPage {
	f, obs := w.state()
	if obs == nil {
		return ListPage{Filter: f, Meta: query.Meta{Status: query.StatusPending, IsFetching: true}}
	}
	products := obs.Result()
	categories := query.Peek[[]catalog.Category](w.c.qc, CategoriesKey(), w.c.cfg.CategoriesStaleTime)

	// Missing categories must not hold back the products.
	if !categories.IsSuccess() {
		categories.Meta = query.Meta{Status: query.StatusSuccess}
	}

	page := w.c.buildList(f, products, categories)
	if page.Pager != nil && page.Pager.HasNext && !products.IsPlaceholderData {
		w.c.prefetchList(page.Pager.Next)
	}
	return page
}

// Refetch forces a reload of the current listing.
func (w *ListWatch) Refetch(ctx context.Context) error {
	_, obs := w.state()
	_, err := obs.Refetch(ctx)
	return err
}

// Close ends the subscription.
func (w *ListWatch) Close() {
	_, obs := w.state()
	obs.Close()
}

func (w *ListWatch) notify() {
	if w.onChange != nil {
		w.onChange(w.Page())
	}
}

// Feed is an infinite listing of one filter.
type Feed struct {
	*query.Infinite[*catalog.ProductList, int]
}

// Feed creates an infinite listing of f. Pages are requested with an
// incrementing page number; listings that ignore the page stop after the
// first one. The feed holds its pages from the first Load until Close.
func (c *Catalog) Feed(f catalog.Filter) *Feed {
	size := c.api.PageSize()
	return &Feed{query.NewInfinite(c.qc, query.InfiniteOptions[*catalog.ProductList, int]{
		Key: FeedKey(f),
		Fn: func(ctx context.Context, page int) (*catalog.ProductList, error) {
			req := f
			if f.Pageable() {
				req = f.WithPage(page)
			}
			list, err := c.api.ListProducts(ctx, req)
			if err != nil {
				return nil, err
			}
			c.seedProducts(list)
			return list, nil
		},
		InitialPageParam: 0,
		NextPageParam: func(last *catalog.ProductList, pages []*catalog.ProductList, lastParam int) (int, bool) {
			if !f.Pageable() || !pagination.HasNext(last.Len(), size) {
				return 0, false
			}
			if last.Total > 0 && last.Skip+last.Len() >= last.Total {
				return 0, false
			}
			return lastParam + 1, true
		},
		StaleTime: c.cfg.ListStaleTime,
		GCTime:    c.cfg.ListGCTime,
	})}
}

// ResetFeed drops the loaded pages of f, so the next feed of f starts over
// at the first page.
func (c *Catalog) ResetFeed(f catalog.Filter) {
	c.qc.Remove(FeedKey(f))
}

// seedProducts stores the products of a feed page as product details, so a
// card opened from the feed renders without a request. Cached details win.
func (c *Catalog) seedProducts(list *catalog.ProductList) {
	for i := range list.Products {
		p := &list.Products[i]
		if _, ok := query.GetQueryData[*catalog.Product](c.qc, ProductKey(p.ID)); ok {
			continue
		}
		query.SetQueryData(c.qc, ProductKey(p.ID), p)
	}
}

// Cards flattens every loaded page into cards.
func (f *Feed) Cards() []Card {
	var cards []Card
	for _, page := range f.Result().Data.Pages {
		cards = append(cards, Cards(page)...)
	}
	return cards
}

// Categories reads the category list.
func (c *Catalog) Categories(ctx context.Context) query.Result[[]catalog.Category] {
	return query.Query(ctx, c.qc, c.CategoriesOptions())
}
