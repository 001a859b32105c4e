package adapters

import (
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"product-aggregator/internal/types"
)

// SnapdealSpec is the default search spec for snapdeal.com
var SnapdealSpec = SiteSpec{
	ID:        types.SiteSnapdeal,
	BaseURL:   "https://www.snapdeal.com",
	SearchURL: "https://www.snapdeal.com/search?keyword=%s",
	Driver:    types.DriverHTTP,
	Selectors: Selectors{
		Card:     "div.product-tuple-listing",
		Name:     "p.product-title",
		Price:    "span.product-price",
		Link:     "a.dp-widget-link",
		Image:    "img.product-image",
		Discount: "div.product-discount span",
		Reviews:  "p.product-rating-count",
	},
	Details: DetailSelectors{
		Row:   "table.product-spec tr, div.spec-body li",
		Key:   "td:first-child, span.h-content",
		Value: "td:last-child, span.detailssubbox",
	},
}

var starWidthRe = regexp.MustCompile(`width:\s*([\d.]+)%`)

// SnapdealAdapter handles extraction for snapdeal.com
type SnapdealAdapter struct {
	*BaseAdapter
}

// NewSnapdealAdapter creates a new Snapdeal adapter
func NewSnapdealAdapter(spec SiteSpec, config *types.Config, logger types.Logger) *SnapdealAdapter {
	s := &SnapdealAdapter{BaseAdapter: NewBaseAdapter(spec, config, logger)}
	s.hook = s.fixCard
	return s
}

// fixCard reads the star rating from the filled-stars width ("width:84%" -> 4.2)
func (s *SnapdealAdapter) fixCard(card *goquery.Selection, rec *types.ProductRecord) bool {
	style, ok := card.Find("div.filled-stars").First().Attr("style")
	if !ok {
		return true
	}
	m := starWidthRe.FindStringSubmatch(style)
	if m == nil {
		return true
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return true
	}
	rating := pct / 20
	if rating >= 0 && rating <= 5 {
		rec.ReviewRating = &rating
	}
	return true
}
