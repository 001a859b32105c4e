package adapters

import (
	"github.com/PuerkitoBio/goquery"

	"product-aggregator/internal/types"
)

// FlipkartSpec is the default search spec for flipkart.com
var FlipkartSpec = SiteSpec{
	ID:        types.SiteFlipkart,
	BaseURL:   "https://www.flipkart.com",
	SearchURL: "https://www.flipkart.com/search?q=%s",
	Driver:    types.DriverHTTP,
	Selectors: Selectors{
		Card:     "div[data-id]",
		Name:     "div.KzDlHZ, a.wjcEIp, a.WKTcLC",
		Price:    "div.Nx9bqj",
		Link:     `a[href*="/p/"]`,
		Image:    "img",
		Brand:    "div.syl9yP",
		Discount: "div.UkUFwK span",
		Reviews:  "span.Wphh3N",
		Rating:   "div.XQDdHH",
	},
	Details: DetailSelectors{
		Row:   "table tr",
		Key:   "td:first-child",
		Value: "td:last-child",
	},
}

// FlipkartAdapter handles extraction for flipkart.com
type FlipkartAdapter struct {
	*BaseAdapter
}

// NewFlipkartAdapter creates a new Flipkart adapter
func NewFlipkartAdapter(spec SiteSpec, config *types.Config, logger types.Logger) *FlipkartAdapter {
	f := &FlipkartAdapter{BaseAdapter: NewBaseAdapter(spec, config, logger)}
	f.hook = f.fixCard
	return f
}

// fixCard falls back to the link title when the name block is missing (grid layouts)
func (f *FlipkartAdapter) fixCard(card *goquery.Selection, rec *types.ProductRecord) bool {
	if rec.Name == "" {
		if title, ok := card.Find(`a[title]`).First().Attr("title"); ok {
			rec.Name = CleanText(title)
		}
	}
	return true
}
