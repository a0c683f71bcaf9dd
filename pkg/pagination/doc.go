// Package pagination provides offset page arithmetic and parallel batch
// fetching for the paginated product listing.
//
// The listing API is offset based (limit/skip). A page index is zero based
// and maps to skip = page*size. The Next link is offered while a page comes
// back full, the Prev link on every page after the first.
//
// Example usage:
//
//	links := pagination.NewLinks(page, len(list.Products), pagination.DefaultPageSize)
//
//	fetcher := pagination.NewBatchFetcher[*catalog.ProductList](
//		pagination.FetchFunc[*catalog.ProductList](fetchPage),
//		pagination.DefaultConfig(),
//	)
//	pages, err := fetcher.FetchAllPages(ctx)
//
// The batch fetcher:
//   - Fetches page 0 to determine total pages
//   - Spawns a worker pool (default 4 workers)
//   - Distributes remaining pages across workers
//   - Returns partial results together with the first worker error
package pagination
