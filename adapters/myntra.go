package adapters

import (
	"net/url"

	"product-aggregator/internal/types"
)

// MyntraSpec is the default search spec for myntra.com. Results render client side.
var MyntraSpec = SiteSpec{
	ID:          types.SiteMyntra,
	BaseURL:     "https://www.myntra.com",
	SearchURL:   "https://www.myntra.com/%s",
	Driver:      types.DriverBrowser,
	ScrollSteps: 3,
	Selectors: Selectors{
		Card:     "li.product-base",
		Name:     "h4.product-product",
		Price:    "span.product-discountedPrice, div.product-price span",
		Link:     "a",
		Image:    "img.img-responsive",
		Brand:    "h3.product-brand",
		Discount: "span.product-discountPercentage",
		Reviews:  "div.product-ratingsCount",
		Rating:   "div.product-ratingsContainer span",
	},
	Details: DetailSelectors{
		Row:   "div.index-tableContainer div.index-row",
		Key:   "div.index-rowKey",
		Value: "div.index-rowValue",
	},
}

// MyntraAdapter handles extraction for myntra.com
type MyntraAdapter struct {
	*BaseAdapter
}

// NewMyntraAdapter creates a new Myntra adapter
func NewMyntraAdapter(spec SiteSpec, config *types.Config, logger types.Logger) *MyntraAdapter {
	return &MyntraAdapter{BaseAdapter: NewBaseAdapter(spec, config, logger)}
}

// SearchURL builds Myntra's path-style search address ("running shoes" -> /running-shoes).
// Queries with nothing to slug go through the raw query search instead of the home page.
func (m *MyntraAdapter) SearchURL(query string, params types.PageParams) string {
	slug := slugify(query)
	if slug == "" {
		return m.spec.BaseURL + "/search?rawQuery=" + url.QueryEscape(query)
	}
	return m.BaseAdapter.SearchURL(slug, params)
}
