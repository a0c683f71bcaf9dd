package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/catalog-client/internal/testutil"
	"github.com/Sternrassler/catalog-client/internal/views"
	"github.com/Sternrassler/catalog-client/pkg/catalog"
	"github.com/Sternrassler/catalog-client/pkg/client"
	"github.com/Sternrassler/catalog-client/pkg/logging"
	"github.com/Sternrassler/catalog-client/pkg/query"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logging.Silence()
	os.Exit(m.Run())
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, pinger Pinger) (*Server, *testutil.MockCatalog) {
	t.Helper()

	mock := testutil.NewMockCatalog()
	t.Cleanup(mock.Close)

	cfg := client.DefaultConfig()
	cfg.BaseURL = mock.URL()
	api, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}

	qc := query.NewClient(query.DefaultConfig(), zerolog.Nop())
	t.Cleanup(qc.Close)

	srv, err := New(views.New(api, qc, views.Config{}), pinger, DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv, mock
}

func do(t *testing.T, srv *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func parseHTML(t *testing.T, rec *httptest.ResponseRecorder) *html.Node {
	t.Helper()

	doc, err := html.Parse(rec.Body)
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// findAll returns every element below n that matches.
func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func byID(n *html.Node, id string) *html.Node {
	found := findAll(n, func(n *html.Node) bool { return attr(n, "id") == id })
	if len(found) == 0 {
		return nil
	}
	return found[0]
}

func byClass(n *html.Node, class string) []*html.Node {
	return findAll(n, func(n *html.Node) bool { return hasClass(n, class) })
}

func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, nil, DefaultConfig()); err == nil {
		t.Error("expected error without catalog")
	}

	qc := query.NewClient(query.DefaultConfig(), zerolog.Nop())
	defer qc.Close()
	api, _ := client.New(client.DefaultConfig())
	if _, err := New(views.New(api, qc, views.Config{}), nil, Config{}); err == nil {
		t.Error("expected error without addr")
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/health")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name   string
		pinger Pinger
		want   int
	}{
		{"no dependencies", nil, http.StatusOK},
		{"redis reachable", fakePinger{}, http.StatusOK},
		{"redis down", fakePinger{err: errors.New("connection refused")}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.pinger)
			if rec := do(t, srv, http.MethodGet, "/ready"); rec.Code != tt.want {
				t.Errorf("ready = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRootRedirectsToProducts(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/")
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/products" {
		t.Errorf("got %d Location=%q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics output missing runtime collectors")
	}
}

func TestRequestID(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get(HeaderRequestID); got != "abc-123" {
		t.Errorf("propagated id = %q", got)
	}

	rec = do(t, srv, http.MethodGet, "/health")
	if _, err := uuid.Parse(rec.Header().Get(HeaderRequestID)); err != nil {
		t.Errorf("minted id %q is not a uuid: %v", rec.Header().Get(HeaderRequestID), err)
	}
}

func TestListPage_FirstPage(t *testing.T) {
	srv, mock := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/products")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	doc := parseHTML(t, rec)

	cards := byClass(doc, "card")
	if len(cards) != 6 {
		t.Fatalf("cards = %d, want 6", len(cards))
	}
	if got := attr(cards[0], "href"); got != "/products/1" {
		t.Errorf("first card href = %q", got)
	}

	header := text(byID(doc, "header"))
	if !strings.HasPrefix(header, "6 Products, last update at: ") {
		t.Errorf("header = %q", header)
	}

	if chips := findAll(byID(doc, "categories"), func(n *html.Node) bool { return n.Data == "a" }); len(chips) != 5 {
		t.Errorf("category buttons = %d, want 5", len(chips))
	}

	pager := byID(doc, "pager")
	if pager == nil {
		t.Fatal("pager missing on first page")
	}
	if prev := findAll(pager, func(n *html.Node) bool { return attr(n, "rel") == "prev" }); len(prev) != 0 {
		t.Error("first page must not link back")
	}
	next := findAll(pager, func(n *html.Node) bool { return attr(n, "rel") == "next" })
	if len(next) != 1 || attr(next[0], "href") != "?page=1" {
		t.Errorf("next link = %v", next)
	}

	if n := mock.CountRequests("/products"); n < 1 {
		t.Errorf("upstream list requests = %d", n)
	}
}

func TestListPage_LastPage(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	doc := parseHTML(t, do(t, srv, http.MethodGet, "/products?page=2"))
	if cards := byClass(doc, "card"); len(cards) != 6 {
		t.Fatalf("cards = %d, want 6", len(cards))
	}
	pager := byID(doc, "pager")
	if pager == nil {
		t.Fatal("pager missing")
	}
	// 18 products: page 2 is full, so Next is still shown.
	if prev := findAll(pager, func(n *html.Node) bool { return attr(n, "rel") == "prev" }); len(prev) != 1 || attr(prev[0], "href") != "?page=1" {
		t.Errorf("prev link = %v", prev)
	}

	doc = parseHTML(t, do(t, srv, http.MethodGet, "/products?page=3"))
	if cards := byClass(doc, "card"); len(cards) != 0 {
		t.Errorf("page past the end rendered %d cards", len(cards))
	}
	if next := findAll(byID(doc, "pager"), func(n *html.Node) bool { return attr(n, "rel") == "next" }); len(next) != 0 {
		t.Error("short page must not link forward")
	}
}

func TestListPage_SearchEndToEnd(t *testing.T) {
	srv, mock := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/products?search=phone&sort=asc&page=2")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	doc := parseHTML(t, rec)

	cards := byClass(doc, "card")
	if len(cards) != 4 {
		t.Fatalf("cards = %d, want 4", len(cards))
	}
	for _, c := range cards {
		if !strings.Contains(strings.ToLower(text(c)), "phone") {
			t.Errorf("card %q does not match the search", text(c))
		}
	}
	if byID(doc, "pager") != nil {
		t.Error("search results must not be paged")
	}
	if got := attr(byID(doc, "search"), "value"); got != "phone" {
		t.Errorf("search input value = %q", got)
	}

	found := false
	for _, uri := range mock.GetRequests() {
		if uri == "/products/search?q=phone" {
			found = true
		}
	}
	if !found {
		t.Errorf("search endpoint not requested: %v", mock.GetRequests())
	}
}

func TestListPage_CategoryToggle(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	doc := parseHTML(t, do(t, srv, http.MethodGet, "/products?category=smartphones"))
	if cards := byClass(doc, "card"); len(cards) != 4 {
		t.Errorf("smartphones cards = %d, want 4", len(cards))
	}

	doc = parseHTML(t, do(t, srv, http.MethodGet, "/products?category=beauty"))
	active := findAll(byID(doc, "categories"), func(n *html.Node) bool { return hasClass(n, "active") })
	if len(active) != 1 || attr(active[0], "data-slug") != "beauty" {
		t.Fatalf("active buttons = %v", active)
	}
	// Clicking the active category clears it.
	if got := attr(active[0], "href"); got != "?page=0" {
		t.Errorf("active category href = %q", got)
	}
}

func TestListPage_UpstreamError(t *testing.T) {
	srv, mock := newTestServer(t, nil)
	mock.SetResponse("/products", testutil.MockResponse{StatusCode: http.StatusInternalServerError})

	rec := do(t, srv, http.MethodGet, "/products")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	doc := parseHTML(t, rec)
	alerts := byClass(doc, "error")
	if len(alerts) != 1 || text(alerts[0]) != views.ErrorMessage {
		t.Errorf("error message not rendered: %v", alerts)
	}
	if len(byClass(doc, "card")) != 0 {
		t.Error("failed page must not render cards")
	}
}

func TestDetailPage(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/products/1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	doc := parseHTML(t, rec)

	product := byID(doc, "product")
	if product == nil {
		t.Fatal("product missing")
	}
	if !strings.Contains(text(product), "Essence Mascara Lash Princess") {
		t.Errorf("product text = %q", text(product))
	}
	if got := text(byID(doc, "cta")); got != views.CallToAction {
		t.Errorf("cta = %q", got)
	}
	for _, badge := range views.TrustBadges {
		if !strings.Contains(text(product), badge) {
			t.Errorf("badge %q missing", badge)
		}
	}

	banner := byID(doc, "banner")
	if !hasClass(banner, "up-to-date") {
		t.Errorf("banner class = %q", attr(banner, "class"))
	}
	if byID(doc, "refetch") != nil {
		t.Error("up-to-date banner offers no refetch")
	}
}

func TestDetailPage_Refetch(t *testing.T) {
	srv, mock := newTestServer(t, nil)

	do(t, srv, http.MethodGet, "/products/2")
	doc := parseHTML(t, do(t, srv, http.MethodGet, "/products/2?refetch=1"))

	if banner := byID(doc, "banner"); hasClass(banner, "up-to-date") {
		t.Error("refetched product must not claim to be up to date")
	}
	if !strings.Contains(text(byID(doc, "product")), "Eyeshadow Palette with Mirror") {
		t.Error("cached product not served during refetch")
	}

	deadline := time.Now().Add(2 * time.Second)
	for mock.CountRequests("/products/2") < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := mock.CountRequests("/products/2"); n != 2 {
		t.Errorf("upstream detail requests = %d, want 2", n)
	}
}

func TestDetailPage_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	for _, target := range []string{"/products/999", "/products/abc"} {
		rec := do(t, srv, http.MethodGet, target)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", target, rec.Code)
		}
		if byID(parseHTML(t, rec), "product") != nil {
			t.Errorf("%s: rendered a product", target)
		}
	}
}

func TestAPIProducts(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/products?page=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp listResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 6 || len(resp.Products) != 6 {
		t.Errorf("count = %d, products = %d", resp.Count, len(resp.Products))
	}
	if resp.Products[0].ID != 7 {
		t.Errorf("first product on page 1 = %d, want 7", resp.Products[0].ID)
	}
	if resp.Page == nil || resp.Page.Prev != "?page=0" || resp.Page.Next != "?page=2" {
		t.Errorf("page = %+v", resp.Page)
	}
}

func TestAPIProducts_Error(t *testing.T) {
	srv, mock := newTestServer(t, nil)
	mock.SetResponse("/products/categories", testutil.MockResponse{StatusCode: http.StatusServiceUnavailable})

	rec := do(t, srv, http.MethodGet, "/api/products")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Something went wrong") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestAPIProduct(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/products/1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp detailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Product == nil || resp.Product.ID != 1 {
		t.Fatalf("product = %+v", resp.Product)
	}
	if resp.Banner != views.BannerUpToDate.String() || resp.Message != views.BannerUpToDate.Text() {
		t.Errorf("banner = %q %q", resp.Banner, resp.Message)
	}

	if rec := do(t, srv, http.MethodGet, "/api/products/999"); rec.Code != http.StatusNotFound {
		t.Errorf("missing product status = %d", rec.Code)
	}
}

func TestAPICategories(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/categories")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var categories []catalog.Category
	if err := json.Unmarshal(rec.Body.Bytes(), &categories); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(categories) != 7 || categories[0].Slug != "beauty" {
		t.Errorf("categories = %+v", categories)
	}
}

func TestAPIPrefetch(t *testing.T) {
	srv, mock := newTestServer(t, nil)

	rec := do(t, srv, http.MethodPost, "/api/products/3/prefetch")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for mock.CountRequests("/products/3") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// The detail view is now served from the cache.
	do(t, srv, http.MethodGet, "/products/3")
	if n := mock.CountRequests("/products/3"); n != 1 {
		t.Errorf("upstream detail requests = %d, want 1", n)
	}
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	srv.config.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
