package adapters

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"product-aggregator/internal/types"
)

// AmazonSpec is the default search spec for amazon.in
var AmazonSpec = SiteSpec{
	ID:        types.SiteAmazon,
	BaseURL:   "https://www.amazon.in",
	SearchURL: "https://www.amazon.in/s?k=%s",
	Driver:    types.DriverHTTP,
	Selectors: Selectors{
		Card:     `div[data-component-type="s-search-result"]`,
		Name:     "h2 span",
		Price:    ".a-price .a-offscreen",
		Link:     `a.a-link-normal[href*="/dp/"]`,
		Image:    "img.s-image",
		Brand:    "h2.a-size-mini span, .s-line-clamp-1 span.a-size-base-plus",
		Discount: `.a-row span:contains("off")`,
		Reviews:  "span.a-size-base.s-underline-text",
		Rating:   "span.a-icon-alt",
	},
	Details: DetailSelectors{
		Row:   "#productDetails_techSpec_section_1 tr, #productDetails_detailBullets_sections1 tr",
		Key:   "th",
		Value: "td",
	},
}

// AmazonAdapter handles extraction for amazon.in
type AmazonAdapter struct {
	*BaseAdapter
}

// NewAmazonAdapter creates a new Amazon adapter
func NewAmazonAdapter(spec SiteSpec, config *types.Config, logger types.Logger) *AmazonAdapter {
	a := &AmazonAdapter{BaseAdapter: NewBaseAdapter(spec, config, logger)}
	a.hook = a.fixCard
	return a
}

// fixCard drops placeholder results without an ASIN and strips review count parentheses
func (a *AmazonAdapter) fixCard(card *goquery.Selection, rec *types.ProductRecord) bool {
	if asin, _ := card.Attr("data-asin"); asin == "" {
		return false
	}
	rec.ReviewSummary = strings.Trim(rec.ReviewSummary, "()")
	rec.Discount = strings.Trim(rec.Discount, "()")
	return true
}
