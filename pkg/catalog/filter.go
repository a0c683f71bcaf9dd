package catalog

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// SortOrder is the price ordering requested from the API.
type SortOrder string

const (
	// SortNone leaves the API default ordering.
	SortNone SortOrder = ""

	// SortAsc orders by ascending price.
	SortAsc SortOrder = "asc"

	// SortDesc orders by descending price.
	SortDesc SortOrder = "desc"
)

// Query-string parameter names owned by the list views.
const (
	ParamSearch   = "search"
	ParamSort     = "sort"
	ParamCategory = "category"
	ParamPage     = "page"
)

// ParseSortOrder accepts "asc" and "desc" (case-insensitive) and the empty string.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return SortNone, nil
	case "asc":
		return SortAsc, nil
	case "desc":
		return SortDesc, nil
	default:
		return SortNone, fmt.Errorf("invalid sort order %q", s)
	}
}

// Filter is the list view state. It is derived from the URL query string and
// is the only source of truth for what the list shows.
type Filter struct {
	Sort     SortOrder
	Search   string
	Category string

	// Page is zero-based and only meaningful when Paged is set.
	Page  int
	Paged bool
}

// FilterFromValues reads a Filter from URL query values. Unknown sort values
// and malformed or negative pages are ignored rather than rejected, so a
// hand-edited link still renders something.
func FilterFromValues(v url.Values) Filter {
	f := Filter{
		Search:   strings.TrimSpace(v.Get(ParamSearch)),
		Category: strings.TrimSpace(v.Get(ParamCategory)),
	}
	if s, err := ParseSortOrder(v.Get(ParamSort)); err == nil {
		f.Sort = s
	}
	if raw, ok := v[ParamPage]; ok && len(raw) > 0 {
		f.Paged = true
		if n, err := strconv.Atoi(raw[0]); err == nil && n > 0 {
			f.Page = n
		}
	}
	return f
}

// Values encodes the filter back into query values. Empty fields are omitted.
func (f Filter) Values() url.Values {
	v := url.Values{}
	if f.Search != "" {
		v.Set(ParamSearch, f.Search)
	}
	if f.Sort != SortNone {
		v.Set(ParamSort, string(f.Sort))
	}
	if f.Category != "" {
		v.Set(ParamCategory, f.Category)
	}
	if f.Paged {
		v.Set(ParamPage, strconv.Itoa(f.Page))
	}
	return v
}

// Encode is the shareable query string for this filter.
func (f Filter) Encode() string {
	return f.Values().Encode()
}

// WithSearch replaces the search text. Any page position is reset because
// result sets of different searches are unrelated.
func (f Filter) WithSearch(search string) Filter {
	f.Search = strings.TrimSpace(search)
	if f.Paged {
		f.Page = 0
	}
	return f
}

// WithSort replaces the sort order.
func (f Filter) WithSort(s SortOrder) Filter {
	f.Sort = s
	return f
}

// ToggleCategory selects slug, or clears the selection when slug is already active.
func (f Filter) ToggleCategory(slug string) Filter {
	if f.Category == slug {
		f.Category = ""
	} else {
		f.Category = slug
	}
	if f.Paged {
		f.Page = 0
	}
	return f
}

// WithPage moves to page n (clamped at 0) and switches the filter to paged mode.
func (f Filter) WithPage(n int) Filter {
	if n < 0 {
		n = 0
	}
	f.Page = n
	f.Paged = true
	return f
}

// Pageable reports whether the listing shape of f honours the page
// position. Search, sort and category listings are single-shot.
func (f Filter) Pageable() bool {
	return f.Search == "" && f.Sort == SortNone && f.Category == ""
}

// Effective reduces f to the fields the listing URL actually uses, by
// precedence search, sort, category, page. Filters that fetch the same URL
// have the same effective filter.
func (f Filter) Effective() Filter {
	switch {
	case f.Search != "":
		return Filter{Search: f.Search}
	case f.Sort != SortNone:
		return Filter{Sort: f.Sort}
	case f.Category != "":
		return Filter{Category: f.Category}
	default:
		return Filter{Page: f.Page, Paged: f.Paged}
	}
}
