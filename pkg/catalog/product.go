// Package catalog defines the product catalog domain types and the owned
// URL query-string contract (search, sort, category, page).
package catalog

import (
	"github.com/shopspring/decimal"
)

// Product is a catalog item as returned by the product API.
// Fields are consumed as-is and never validated.
type Product struct {
	ID                   int             `json:"id"`
	Title                string          `json:"title"`
	Description          string          `json:"description"`
	Category             string          `json:"category"`
	Price                decimal.Decimal `json:"price"`
	DiscountPercentage   decimal.Decimal `json:"discountPercentage"`
	Rating               float64         `json:"rating"`
	Stock                int             `json:"stock"`
	Tags                 []string        `json:"tags,omitempty"`
	Brand                string          `json:"brand,omitempty"`
	SKU                  string          `json:"sku,omitempty"`
	Weight               float64         `json:"weight,omitempty"`
	Dimensions           *Dimensions     `json:"dimensions,omitempty"`
	WarrantyInformation  string          `json:"warrantyInformation,omitempty"`
	ShippingInformation  string          `json:"shippingInformation,omitempty"`
	AvailabilityStatus   string          `json:"availabilityStatus,omitempty"`
	Reviews              []Review        `json:"reviews,omitempty"`
	ReturnPolicy         string          `json:"returnPolicy,omitempty"`
	MinimumOrderQuantity int             `json:"minimumOrderQuantity,omitempty"`
	Meta                 *Meta           `json:"meta,omitempty"`
	Thumbnail            string          `json:"thumbnail,omitempty"`
	Images               []string        `json:"images,omitempty"`
}

// Dimensions of a product package.
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Depth  float64 `json:"depth"`
}

// Review is a single customer review.
type Review struct {
	Rating        int    `json:"rating"`
	Comment       string `json:"comment"`
	Date          string `json:"date"`
	ReviewerName  string `json:"reviewerName"`
	ReviewerEmail string `json:"reviewerEmail"`
}

// Meta carries bookkeeping fields of a product record.
type Meta struct {
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
	Barcode   string `json:"barcode"`
	QRCode    string `json:"qrCode"`
}

// ProductList is the envelope of every listing endpoint.
type ProductList struct {
	Products []Product `json:"products"`
	Total    int       `json:"total"`
	Skip     int       `json:"skip"`
	Limit    int       `json:"limit"`
}

// Len returns the number of products in the list. A nil list has length 0.
func (l *ProductList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Products)
}

// Category is an entry of /products/categories.
type Category struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

var hundred = decimal.NewFromInt(100)

// DiscountedPrice applies DiscountPercentage to Price, rounded to cents.
func (p Product) DiscountedPrice() decimal.Decimal {
	if p.DiscountPercentage.IsZero() {
		return p.Price
	}
	factor := hundred.Sub(p.DiscountPercentage).Div(hundred)
	return p.Price.Mul(factor).Round(2)
}

// FormattedPrice renders Price as "$12.99".
func (p Product) FormattedPrice() string {
	return "$" + p.Price.StringFixed(2)
}

// Image returns the first gallery image, falling back to the thumbnail.
func (p Product) Image() string {
	if len(p.Images) > 0 {
		return p.Images[0]
	}
	return p.Thumbnail
}
