package views

import (
	"context"

	"github.com/Sternrassler/catalog-client/pkg/catalog"
	"github.com/Sternrassler/catalog-client/pkg/query"
)

// DetailPage is the view model of a single product.
type DetailPage struct {
	Product *catalog.Product
	Banner  Banner

	// Error is set when the product could not be loaded.
	Error string

	query.Meta
}

// Loading reports whether there is nothing to show yet.
func (p DetailPage) Loading() bool {
	return p.IsPending()
}

func newDetailPage(r query.Result[*catalog.Product]) DetailPage {
	page := DetailPage{Meta: r.Meta, Banner: BannerFor(r.Meta)}
	switch {
	case r.IsError() && r.Data == nil:
		page.Error = ErrorMessage
	case r.Data != nil:
		page.Product = r.Data
	}
	return page
}

// Detail reads product id. With refetch set the cached product is marked
// stale first, so it is served immediately while a background fetch runs.
func (c *Catalog) Detail(ctx context.Context, id int, refetch bool) DetailPage {
	if refetch {
		c.qc.Invalidate(ProductKey(id))
	}
	return newDetailPage(query.Query(ctx, c.qc, c.ProductOptions(id)))
}

// PrefetchProduct loads product id in the background, typically when its
// card gets focus.
func (c *Catalog) PrefetchProduct(id int) {
	query.PrefetchAsync(c.qc, c.ProductOptions(id))
}

// ProductWatch keeps one product detail on screen.
type ProductWatch struct {
	obs *query.Observer[*catalog.Product]
}

// WatchProduct subscribes to product id. onChange may be nil.
func (c *Catalog) WatchProduct(id int, onChange func(DetailPage)) *ProductWatch {
	obs := query.Observe(c.qc, c.ProductOptions(id), func(r query.Result[*catalog.Product]) {
		if onChange != nil {
			onChange(newDetailPage(r))
		}
	})
	return &ProductWatch{obs: obs}
}

// Page returns the current view model.
func (w *ProductWatch) Page() DetailPage {
	return newDetailPage(w.obs.Result())
}

// Refetch reloads the product now.
func (w *ProductWatch) Refetch(ctx context.Context) error {
	_, err := w.obs.Refetch(ctx)
	return err
}

// Close ends the subscription.
func (w *ProductWatch) Close() {
	w.obs.Close()
}
