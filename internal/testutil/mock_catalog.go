// Package testutil provides testing utilities for the catalog client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/catalog-client/pkg/catalog"
	"github.com/shopspring/decimal"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockCatalog is a configurable mock of the product API for testing. Unless a
// path has a custom handler it serves listing, search, category and detail
// endpoints from an in-memory product set.
type MockCatalog struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	products     []catalog.Product
	categories   []catalog.Category
	version      int
	cacheControl string

	// Tracking
	RequestCount      int
	ConditionalCount  int
	LastRequestHeader http.Header
	Requests          []string
}

// NewMockCatalog creates a mock API serving SampleProducts.
func NewMockCatalog() *MockCatalog {
	mock := &MockCatalog{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}
	mock.SetProducts(SampleProducts())

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.Requests = append(mock.Requests, r.URL.RequestURI())

		// Track conditional requests
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.ConditionalCount++
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockCatalog) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCatalog) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockCatalog) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.LastRequestHeader = nil
	m.Requests = nil
}

// SetProducts replaces the served products. Categories are derived from
// them in order of first appearance.
func (m *MockCatalog) SetProducts(products []catalog.Product) {
	var categories []catalog.Category
	seen := map[string]bool{}
	for _, p := range products {
		if seen[p.Category] {
			continue
		}
		seen[p.Category] = true
		categories = append(categories, catalog.Category{
			Slug: p.Category,
			Name: categoryName(p.Category),
			URL:  "https://dummyjson.com/products/category/" + p.Category,
		})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = products
	m.categories = categories
	m.version++
}

// SetCacheControl makes the default handler send Cache-Control and a
// version ETag, and answer matching If-None-Match with 304. The version
// changes with every SetProducts.
func (m *MockCatalog) SetCacheControl(value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheControl = value
}

// SetHandler sets a custom handler for a specific path.
func (m *MockCatalog) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockCatalog) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockCatalog) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockCatalog) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// GetRequests returns the request URIs received so far, in order.
func (m *MockCatalog) GetRequests() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.Requests...)
}

// CountRequests returns how many requests had the given path.
func (m *MockCatalog) CountRequests(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, uri := range m.Requests {
		if p, _, _ := strings.Cut(uri, "?"); p == path {
			n++
		}
	}
	return n
}

// defaultHandler serves the in-memory product set.
func (m *MockCatalog) defaultHandler(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	products := m.products
	categories := m.categories
	version := m.version
	cacheControl := m.cacheControl
	m.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-RateLimit-Limit", "100")
	w.Header().Set("X-RateLimit-Remaining", "99")
	w.Header().Set("X-RateLimit-Reset", "60")

	if cacheControl != "" {
		etag := fmt.Sprintf(`"v%d"`, version)
		w.Header().Set("Cache-Control", cacheControl)
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	q := r.URL.Query()

	switch {
	case path == "/products":
		writeList(w, sortProducts(products, q.Get("sortBy"), q.Get("order")), q)
	case path == "/products/search":
		term := strings.ToLower(q.Get("q"))
		var found []catalog.Product
		for _, p := range products {
			if strings.Contains(strings.ToLower(p.Title), term) || strings.Contains(strings.ToLower(p.Description), term) {
				found = append(found, p)
			}
		}
		writeList(w, found, q)
	case path == "/products/categories":
		writeJSON(w, http.StatusOK, categories)
	case strings.HasPrefix(path, "/products/category/"):
		slug := strings.TrimPrefix(path, "/products/category/")
		var found []catalog.Product
		for _, p := range products {
			if p.Category == slug {
				found = append(found, p)
			}
		}
		writeList(w, found, q)
	case strings.HasPrefix(path, "/products/"):
		id, err := strconv.Atoi(strings.TrimPrefix(path, "/products/"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid product id"})
			return
		}
		for _, p := range products {
			if p.ID == id {
				writeJSON(w, http.StatusOK, p)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"message": fmt.Sprintf("Product with id '%d' not found", id)})
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "not found"})
	}
}

func writeList(w http.ResponseWriter, products []catalog.Product, q map[string][]string) {
	total := len(products)
	limit := 30
	if v, err := strconv.Atoi(first(q["limit"])); err == nil && v >= 0 {
		limit = v
	}
	skip := 0
	if v, err := strconv.Atoi(first(q["skip"])); err == nil && v > 0 {
		skip = v
	}

	start := min(skip, total)
	end := min(start+limit, total)
	if limit == 0 {
		end = total
	}

	writeJSON(w, http.StatusOK, catalog.ProductList{
		Products: append([]catalog.Product{}, products[start:end]...),
		Total:    total,
		Skip:     skip,
		Limit:    end - start,
	})
}

func sortProducts(products []catalog.Product, by, order string) []catalog.Product {
	if by != "price" {
		return products
	}
	sorted := append([]catalog.Product(nil), products...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if order == "desc" {
			return sorted[i].Price.GreaterThan(sorted[j].Price)
		}
		return sorted[i].Price.LessThan(sorted[j].Price)
	})
	return sorted
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func first(v []string) string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

func categoryName(slug string) string {
	words := strings.Split(slug, "-")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// SampleProducts returns a fixed product set spanning seven categories.
func SampleProducts() []catalog.Product {
	type row struct {
		title, category, price string
	}
	rows := []row{
		{"Essence Mascara Lash Princess", "beauty", "9.99"},
		{"Eyeshadow Palette with Mirror", "beauty", "19.99"},
		{"Powder Canister", "beauty", "14.99"},
		{"Calvin Klein CK One", "fragrances", "49.99"},
		{"Chanel Coco Noir Eau De", "fragrances", "129.99"},
		{"Annibale Colombo Bed", "furniture", "1899.99"},
		{"Annibale Colombo Sofa", "furniture", "2499.99"},
		{"Apple", "groceries", "1.99"},
		{"Beef Steak", "groceries", "12.99"},
		{"Cat Food", "groceries", "8.99"},
		{"Decoration Swing", "home-decoration", "59.99"},
		{"Family Tree Photo Frame", "home-decoration", "29.99"},
		{"Bamboo Spatula", "kitchen-accessories", "7.99"},
		{"Black Aluminium Cup", "kitchen-accessories", "5.99"},
		{"iPhone 9", "smartphones", "549.00"},
		{"iPhone X", "smartphones", "899.00"},
		{"Samsung Galaxy Phone S8", "smartphones", "499.99"},
		{"Wireless Headphones", "smartphones", "89.99"},
	}

	products := make([]catalog.Product, len(rows))
	for i, r := range rows {
		id := i + 1
		products[i] = catalog.Product{
			ID:                 id,
			Title:              r.title,
			Description:        fmt.Sprintf("The %s is a sample product.", r.title),
			Category:           r.category,
			Price:              decimal.RequireFromString(r.price),
			DiscountPercentage: decimal.NewFromInt(int64(id % 10)),
			Rating:             float64(30+id%20) / 10,
			Stock:              id * 3,
			Thumbnail:          fmt.Sprintf("https://cdn.dummyjson.com/products/images/%d/thumbnail.png", id),
			Images:             []string{fmt.Sprintf("https://cdn.dummyjson.com/products/images/%d/1.png", id)},
		}
	}
	return products
}
