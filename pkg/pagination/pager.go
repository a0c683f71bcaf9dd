package pagination

// DefaultPageSize is the number of products per offset page.
const DefaultPageSize = 6

// Offset returns the number of items skipped before page.
func Offset(page, size int) int {
	if page < 0 {
		page = 0
	}
	return page * size
}

// TotalPages returns how many pages of size hold total items.
func TotalPages(total, size int) int {
	if total <= 0 || size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// HasNext reports whether a page that returned count items may have a
// successor. A full page is assumed to have one.
func HasNext(count, size int) bool {
	return size > 0 && count >= size
}

// HasPrev reports whether page has a predecessor.
func HasPrev(page int) bool {
	return page > 0
}

// Links describes the prev/next navigation of an offset page.
type Links struct {
	Page    int
	Prev    int
	Next    int
	HasPrev bool
	HasNext bool
}

// NewLinks computes navigation for page given the number of items it
// returned.
func NewLinks(page, count, size int) Links {
	if page < 0 {
		page = 0
	}
	return Links{
		Page:    page,
		Prev:    page - 1,
		Next:    page + 1,
		HasPrev: HasPrev(page),
		HasNext: HasNext(count, size),
	}
}
