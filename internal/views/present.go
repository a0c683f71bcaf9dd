package views

import (
	"strconv"
	"time"

	"github.com/Sternrassler/catalog-client/pkg/catalog"
	"github.com/Sternrassler/catalog-client/pkg/client"
	"github.com/Sternrassler/catalog-client/pkg/query"
	"github.com/dustin/go-humanize"
)

// ErrorMessage is rendered for every failed fetch.
const ErrorMessage = client.UserMessage

// Banner is the freshness notice of the detail view.
type Banner int

const (
	// BannerFetching is shown while a request is in flight.
	BannerFetching Banner = iota
	// BannerStale is shown when cached data is past its stale time.
	BannerStale
	// BannerUpToDate is shown otherwise.
	BannerUpToDate
)

// BannerFor picks exactly one banner. An in-flight request wins over
// staleness.
func BannerFor(m query.Meta) Banner {
	switch {
	case m.IsFetching:
		return BannerFetching
	case m.IsStale:
		return BannerStale
	default:
		return BannerUpToDate
	}
}

// Text is the banner message.
func (b Banner) Text() string {
	switch b {
	case BannerFetching:
		return "Getting the data..."
	case BannerStale:
		return "The product may have changed..."
	default:
		return "Everything up to date - go ahead and add it to your bag!"
	}
}

// Action is the label of the manual refetch control, empty when the banner
// offers none.
func (b Banner) Action() string {
	if b == BannerStale {
		return "Get the latest data"
	}
	return ""
}

func (b Banner) String() string {
	switch b {
	case BannerFetching:
		return "fetching"
	case BannerStale:
		return "stale"
	default:
		return "up-to-date"
	}
}

// CallToAction is the detail view's purchase button label.
const CallToAction = "Add to bag"

// TrustBadges are shown under every product detail.
var TrustBadges = []string{
	"In stock and ready to ship",
	"Lifetime Guarantee",
}

// Card is the presentational value of one product in a list.
type Card struct {
	ID          int    `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Price       string `json:"price" yaml:"price"`
	Description string `json:"description" yaml:"description"`
	Category    string `json:"category" yaml:"category"`
	Image       string `json:"image" yaml:"image"`
	Href        string `json:"href" yaml:"href"`
}

// NewCard builds the card of p.
func NewCard(p catalog.Product) Card {
	return Card{
		ID:          p.ID,
		Title:       p.Title,
		Price:       p.FormattedPrice(),
		Description: p.Description,
		Category:    p.Category,
		Image:       p.Image(),
		Href:        "/products/" + strconv.Itoa(p.ID),
	}
}

// Cards builds one card per product, in order, without filtering.
func Cards(list *catalog.ProductList) []Card {
	if list.Len() == 0 {
		return nil
	}
	cards := make([]Card, 0, list.Len())
	for _, p := range list.Products {
		cards = append(cards, NewCard(p))
	}
	return cards
}

// CategoryButton toggles one category on the list.
type CategoryButton struct {
	Slug   string `json:"slug"`
	Name   string `json:"name"`
	Active bool   `json:"active"`

	// Filter is the filter the button navigates to.
	Filter catalog.Filter `json:"-"`
}

// Href is the query string of the button's target.
func (b CategoryButton) Href() string {
	return "?" + b.Filter.Encode()
}

// CategoryButtons builds buttons for the first max categories. Clicking the
// active category clears it.
func CategoryButtons(categories []catalog.Category, f catalog.Filter, max int) []CategoryButton {
	if max > 0 && len(categories) > max {
		categories = categories[:max]
	}
	buttons := make([]CategoryButton, 0, len(categories))
	for _, c := range categories {
		buttons = append(buttons, CategoryButton{
			Slug:   c.Slug,
			Name:   c.Name,
			Active: f.Category == c.Slug,
			Filter: f.ToggleCategory(c.Slug),
		})
	}
	return buttons
}

// UpdatedAgo renders t relative to now, e.g. "5 seconds ago". Zero t
// renders as "never".
func UpdatedAgo(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	if now.Sub(t) < time.Second {
		return "just now"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}
