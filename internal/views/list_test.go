package views

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/catalog-client/internal/testutil"
	"github.com/Sternrassler/catalog-client/pkg/catalog"
	"github.com/Sternrassler/catalog-client/pkg/query"
)

func TestList_CombinesProductsAndCategories(t *testing.T) {
	c, mock := newTestCatalog(t)

	page := c.List(context.Background(), catalog.Filter{Category: "groceries"})
	if page.Error != "" {
		t.Fatalf("unexpected error %q", page.Error)
	}
	if !page.IsSuccess() {
		t.Fatalf("status = %s", page.Status)
	}
	if page.Count != 3 || len(page.Cards) != 3 {
		t.Errorf("groceries: count %d, cards %d", page.Count, len(page.Cards))
	}
	if len(page.Categories) != 5 {
		t.Errorf("expected the first 5 categories, got %d", len(page.Categories))
	}
	if page.Pager != nil {
		t.Error("category listing must not be paged")
	}
	if page.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}

	active := 0
	for _, b := range page.Categories {
		if b.Active {
			active++
		}
	}
	if active != 1 {
		t.Errorf("expected exactly one active category, got %d", active)
	}

	c.List(context.Background(), catalog.Filter{Category: "groceries"})
	if n := mock.CountRequests("/products/category/groceries"); n != 1 {
		t.Errorf("fresh listing fetched %d times, want 1", n)
	}
	if n := mock.CountRequests("/products/categories"); n != 1 {
		t.Errorf("categories fetched %d times, want 1", n)
	}
}

func TestList_SearchIgnoresSortAndPage(t *testing.T) {
	c, mock := newTestCatalog(t)

	page := c.List(context.Background(), catalog.Filter{Search: "phone", Sort: catalog.SortDesc, Page: 2, Paged: true})
	if page.Error != "" {
		t.Fatalf("unexpected error %q", page.Error)
	}
	if page.Count != 4 {
		t.Errorf("search results = %d, want 4", page.Count)
	}
	if page.Pager != nil {
		t.Error("search listing must not be paged")
	}

	for _, uri := range mock.GetRequests() {
		if uri == "/products/search?q=phone" {
			return
		}
	}
	t.Errorf("search URL not requested, got %v", mock.GetRequests())
}

func TestList_PagerAndNextPagePrefetch(t *testing.T) {
	c, mock := newTestCatalog(t)

	page := c.List(context.Background(), catalog.Filter{Page: 0, Paged: true})
	if page.Pager == nil {
		t.Fatal("paged listing without pager")
	}
	if page.Pager.HasPrev {
		t.Error("first page must not link back")
	}
	if !page.Pager.HasNext {
		t.Error("full first page should link forward")
	}
	if page.Pager.Next.Page != 1 || !page.Pager.Next.Paged {
		t.Errorf("Next = %+v", page.Pager.Next)
	}

	eventually(t, "next page prefetched", func() bool {
		for _, uri := range mock.GetRequests() {
			if uri == "/products?limit=6&skip=6" {
				return true
			}
		}
		return false
	})
}

func TestList_LastPageHasNoNext(t *testing.T) {
	c, _ := newTestCatalog(t)

	// 18 products, 6 per page: page 3 is empty.
	page := c.List(context.Background(), catalog.Filter{Page: 3, Paged: true})
	if page.Pager == nil {
		t.Fatal("paged listing without pager")
	}
	if page.Pager.HasNext {
		t.Error("short page must not link forward")
	}
	if !page.Pager.HasPrev || page.Pager.Prev.Page != 2 {
		t.Errorf("Prev = %+v", page.Pager.Prev)
	}
}

func TestList_AnyFailureFailsThePage(t *testing.T) {
	c, mock := newTestCatalog(t)
	mock.SetResponse("/products/categories", testutil.MockResponse{StatusCode: http.StatusInternalServerError})

	page := c.List(context.Background(), catalog.Filter{})
	if page.Error != ErrorMessage {
		t.Errorf("Error = %q, want %q", page.Error, ErrorMessage)
	}
	if !page.IsError() {
		t.Errorf("status = %s, want error", page.Status)
	}
	if len(page.Cards) != 0 {
		t.Error("failed page must not render cards")
	}
}

func TestWatchList_KeepsPreviousPageWhileLoading(t *testing.T) {
	c, mock := newTestCatalog(t)

	release := make(chan struct{})
	var once sync.Once
	mock.SetHandler("/products", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("skip") == "6" {
			<-release
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"products":[{"id":1,"title":"A","price":1}],"total":18,"skip":0,"limit":6}`))
	})
	t.Cleanup(func() { once.Do(func() { close(release) }) })

	cfg := c.Config()
	cfg.PollInterval = 0
	c.cfg = cfg

	changes := make(chan ListPage, 64)
	w := c.WatchList(catalog.Filter{Page: 0, Paged: true}, func(p ListPage) {
		select {
		case changes <- p:
		default:
		}
	})
	defer w.Close()

	eventually(t, "first page loaded", func() bool { return w.Page().Count == 1 })

	w.SetFilter(catalog.Filter{Page: 1, Paged: true})
	page := w.Page()
	if !page.IsPlaceholderData {
		t.Error("expected previous page as placeholder")
	}
	if page.Count != 1 {
		t.Errorf("placeholder count = %d, want 1", page.Count)
	}
	if page.Filter.Page != 1 {
		t.Errorf("page filter = %+v", page.Filter)
	}

	once.Do(func() { close(release) })
	eventually(t, "second page loaded", func() bool {
		p := w.Page()
		return p.IsSuccess() && !p.IsPlaceholderData
	})

	if len(changes) == 0 {
		t.Error("onChange never called")
	}
}

func TestFeed_LoadsPagesUntilShortPage(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	feed := c.Feed(catalog.Filter{})
	r := feed.Load(ctx)
	if !r.IsSuccess() || !r.HasNextPage {
		t.Fatalf("first load: %+v", r.Meta)
	}

	for feed.HasNextPage() {
		if _, err := feed.FetchNextPage(ctx); err != nil {
			t.Fatalf("FetchNextPage: %v", err)
		}
	}

	if n := len(feed.Cards()); n != 18 {
		t.Errorf("feed cards = %d, want 18", n)
	}
	if n := len(feed.Result().Data.Pages); n != 3 {
		t.Errorf("pages = %d, want 3", n)
	}
}

func TestFeed_UnpagedListingStopsAfterFirstPage(t *testing.T) {
	c, _ := newTestCatalog(t)

	feed := c.Feed(catalog.Filter{Search: "phone"})
	r := feed.Load(context.Background())
	if !r.IsSuccess() {
		t.Fatalf("load: %+v", r.Meta)
	}
	if r.HasNextPage {
		t.Error("search feed must not offer a next page")
	}
	if n := len(feed.Cards()); n != 4 {
		t.Errorf("cards = %d, want 4", n)
	}
}

func TestCategories(t *testing.T) {
	c, _ := newTestCatalog(t)

	r := c.Categories(context.Background())
	if !r.IsSuccess() {
		t.Fatalf("Categories: %+v", r.Meta)
	}
	if len(r.Data) != 7 || r.Data[0].Slug != "beauty" {
		t.Errorf("categories = %+v", r.Data)
	}
}

func TestFeed_KeepsPagesWhileOpen(t *testing.T) {
	c, _ := newTestCatalogWith(t, Config{ListGCTime: 50 * time.Millisecond})
	ctx := context.Background()
	f := catalog.Filter{}

	feed := c.Feed(f)
	feed.Load(ctx)

	time.Sleep(200 * time.Millisecond)
	if n := len(feed.Cards()); n != 6 {
		t.Fatalf("cards after idling past the gc time = %d, want 6", n)
	}

	done := make(chan error, 1)
	if !feed.OnIntersect(ctx, func(err error) { done <- err }) {
		t.Fatal("scrolling an idle feed should fetch the next page")
	}
	if err := <-done; err != nil {
		t.Fatalf("next page: %v", err)
	}
	if n := len(feed.Cards()); n != 12 {
		t.Errorf("cards = %d, want 12", n)
	}

	feed.Close()
	eventually(t, "closed feed collected", func() bool {
		_, ok := query.GetQueryData[query.InfiniteData[*catalog.ProductList, int]](c.qc, FeedKey(f))
		return !ok
	})
}

func TestFeed_SeedsProductDetails(t *testing.T) {
	c, mock := newTestCatalog(t)
	ctx := context.Background()

	feed := c.Feed(catalog.Filter{})
	defer feed.Close()
	feed.Load(ctx)

	page := c.Detail(ctx, 3, false)
	if page.Product == nil || page.Product.ID != 3 {
		t.Fatalf("seeded detail: %+v", page)
	}
	if page.Banner != BannerUpToDate {
		t.Errorf("Banner = %s, want up-to-date", page.Banner)
	}
	if n := mock.CountRequests("/products/3"); n != 0 {
		t.Errorf("detail of a feed card fetched %d times, want 0", n)
	}
}

func TestFeed_SeedingKeepsCachedDetails(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()

	cached := &catalog.Product{ID: 1, Title: "cached detail"}
	query.SetQueryData(c.qc, ProductKey(1), cached)

	feed := c.Feed(catalog.Filter{})
	defer feed.Close()
	feed.Load(ctx)

	if got, _ := query.GetQueryData[*catalog.Product](c.qc, ProductKey(1)); got != cached {
		t.Errorf("feed replaced a cached detail: %+v", got)
	}
}

func TestResetFeed(t *testing.T) {
	c, _ := newTestCatalog(t)
	ctx := context.Background()
	f := catalog.Filter{}

	feed := c.Feed(f)
	feed.Load(ctx)
	if _, err := feed.FetchNextPage(ctx); err != nil {
		t.Fatal(err)
	}
	feed.Close()

	c.ResetFeed(f)

	again := c.Feed(f)
	defer again.Close()
	r := again.Load(ctx)
	if n := len(r.Data.Pages); n != 1 {
		t.Errorf("reset feed starts with %d pages, want 1", n)
	}
}
