package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/catalog-client/internal/views"
	"github.com/Sternrassler/catalog-client/pkg/catalog"
	"github.com/Sternrassler/catalog-client/pkg/client"
	"github.com/gin-gonic/gin"
)

// listFilter reads the list filter from the query string. The web list is
// always offset-paged.
func listFilter(c *gin.Context) catalog.Filter {
	f := catalog.FilterFromValues(c.Request.URL.Query())
	f.Paged = true
	return f
}

func productID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func wantsRefetch(c *gin.Context) bool {
	switch c.Query("refetch") {
	case "1", "true", "yes":
		return true
	}
	return false
}

// statusFor maps a fetch error to the status served downstream.
func statusFor(err error) int {
	var fe *client.FetchError
	if errors.As(err, &fe) && fe.StatusCode == http.StatusNotFound {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (s *Server) handleReady(c *gin.Context) {
	if s.pinger == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.ReadyTimeout)
	defer cancel()

	if err := s.pinger.Ping(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Readiness check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

type sortLink struct {
	Label  string
	Href   string
	Active bool
}

type listData struct {
	Page  views.ListPage
	Now   time.Time
	Sorts []sortLink

	PrevHref string
	NextHref string
}

func sortLinks(f catalog.Filter) []sortLink {
	links := make([]sortLink, 0, 2)
	for _, s := range []struct {
		label string
		order catalog.SortOrder
	}{
		{"Price: low to high", catalog.SortAsc},
		{"Price: high to low", catalog.SortDesc},
	} {
		target := f.WithSort(s.order)
		if f.Sort == s.order {
			target = f.WithSort(catalog.SortNone)
		}
		links = append(links, sortLink{
			Label:  s.label,
			Href:   "?" + target.Encode(),
			Active: f.Sort == s.order,
		})
	}
	return links
}

func (s *Server) handleListPage(c *gin.Context) {
	f := listFilter(c)
	page := s.catalog.List(c.Request.Context(), f)

	status := http.StatusOK
	if page.Error != "" {
		status = statusFor(page.Err)
	}
	data := listData{Page: page, Now: time.Now(), Sorts: sortLinks(f)}
	if p := page.Pager; p != nil {
		data.PrevHref = "?" + p.Prev.Encode()
		data.NextHref = "?" + p.Next.Encode()
	}
	c.HTML(status, "list.html", data)
}

type detailData struct {
	Page         views.DetailPage
	CallToAction string
	TrustBadges  []string
}

func (s *Server) handleDetailPage(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		c.HTML(http.StatusNotFound, "detail.html", detailData{Page: views.DetailPage{Error: "Product not found."}})
		return
	}

	page := s.catalog.Detail(c.Request.Context(), id, wantsRefetch(c))

	status := http.StatusOK
	if page.Error != "" {
		status = statusFor(page.Err)
	}
	c.HTML(status, "detail.html", detailData{
		Page:         page,
		CallToAction: views.CallToAction,
		TrustBadges:  views.TrustBadges,
	})
}

// listResponse is the JSON shape of /api/products.
type listResponse struct {
	Filter     string                 `json:"filter"`
	Count      int                    `json:"count"`
	Products   []views.Card           `json:"products"`
	Categories []views.CategoryButton `json:"categories"`
	Page       *pageResponse          `json:"page,omitempty"`
	UpdatedAt  time.Time              `json:"updatedAt"`
	Stale      bool                   `json:"stale"`
}

type pageResponse struct {
	Page    int    `json:"page"`
	HasPrev bool   `json:"hasPrev"`
	HasNext bool   `json:"hasNext"`
	Prev    string `json:"prev,omitempty"`
	Next    string `json:"next,omitempty"`
}

func (s *Server) handleListAPI(c *gin.Context) {
	page := s.catalog.List(c.Request.Context(), listFilter(c))
	if page.Error != "" {
		c.JSON(statusFor(page.Err), gin.H{"error": page.Error})
		return
	}

	resp := listResponse{
		Filter:     page.Filter.Encode(),
		Count:      page.Count,
		Products:   page.Cards,
		Categories: page.Categories,
		UpdatedAt:  page.UpdatedAt,
		Stale:      page.IsStale,
	}
	if resp.Products == nil {
		resp.Products = []views.Card{}
	}
	if p := page.Pager; p != nil {
		resp.Page = &pageResponse{Page: p.Page, HasPrev: p.HasPrev, HasNext: p.HasNext}
		if p.HasPrev {
			resp.Page.Prev = "?" + p.Prev.Encode()
		}
		if p.HasNext {
			resp.Page.Next = "?" + p.Next.Encode()
		}
	}
	c.JSON(http.StatusOK, resp)
}

// detailResponse is the JSON shape of /api/products/:id.
type detailResponse struct {
	Product   *catalog.Product `json:"product"`
	Banner    string           `json:"banner"`
	Message   string           `json:"message"`
	Action    string           `json:"action,omitempty"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

func (s *Server) handleDetailAPI(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		return
	}

	page := s.catalog.Detail(c.Request.Context(), id, wantsRefetch(c))
	if page.Error != "" {
		c.JSON(statusFor(page.Err), gin.H{"error": page.Error})
		return
	}
	c.JSON(http.StatusOK, detailResponse{
		Product:   page.Product,
		Banner:    page.Banner.String(),
		Message:   page.Banner.Text(),
		Action:    page.Banner.Action(),
		UpdatedAt: page.DataUpdatedAt,
	})
}

func (s *Server) handlePrefetch(c *gin.Context) {
	id, ok := productID(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		return
	}
	s.catalog.PrefetchProduct(id)
	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": "prefetching"})
}

func (s *Server) handleCategoriesAPI(c *gin.Context) {
	r := s.catalog.Categories(c.Request.Context())
	if r.IsError() {
		c.JSON(statusFor(r.Err), gin.H{"error": views.ErrorMessage})
		return
	}
	categories := r.Data
	if categories == nil {
		categories = []catalog.Category{}
	}
	c.JSON(http.StatusOK, categories)
}
