package adapters

import (
	"product-aggregator/internal/types"
)

// AjioSpec is the default search spec for ajio.com. Results render client side.
var AjioSpec = SiteSpec{
	ID:          types.SiteAjio,
	BaseURL:     "https://www.ajio.com",
	SearchURL:   "https://www.ajio.com/search/?text=%s",
	Driver:      types.DriverBrowser,
	ScrollSteps: 2,
	Selectors: Selectors{
		Card:     "div.item.rilrtl-products-list__item",
		Name:     "div.nameCls",
		Price:    "span.price strong, span.price",
		Link:     "a.rilrtl-products-list__link",
		Image:    "img.rilrtl-lazy-img",
		Brand:    "div.brand",
		Discount: "span.discount",
		Reviews:  "p._3I65V span:last-child",
		Rating:   "p._3I65V span:first-child",
	},
	Details: DetailSelectors{
		Row:   "ul.prod-list li.detail-list",
		Key:   "span.key, strong",
		Value: "span.value, span:last-child",
	},
}

// AjioAdapter handles extraction for ajio.com
type AjioAdapter struct {
	*BaseAdapter
}

// NewAjioAdapter creates a new Ajio adapter
func NewAjioAdapter(spec SiteSpec, config *types.Config, logger types.Logger) *AjioAdapter {
	return &AjioAdapter{BaseAdapter: NewBaseAdapter(spec, config, logger)}
}
