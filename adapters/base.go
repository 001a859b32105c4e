package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"product-aggregator/internal/types"
	"product-aggregator/utils"
)

// Selectors are the CSS selectors locating product card fields.
// Field selectors are evaluated relative to the card.
type Selectors struct {
	Card     string `yaml:"card"`
	Name     string `yaml:"name"`
	Price    string `yaml:"price"`
	Link     string `yaml:"link"`
	Image    string `yaml:"image"`
	Brand    string `yaml:"brand"`
	Discount string `yaml:"discount"`
	Reviews  string `yaml:"reviews"`
	Rating   string `yaml:"rating"`
}

// DetailSelectors locate the key/value rows of a product specification table
type DetailSelectors struct {
	Row   string `yaml:"row"`
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// SiteSpec describes how to search one store
type SiteSpec struct {
	ID          types.SiteID     `yaml:"-"`
	BaseURL     string           `yaml:"base_url"`
	SearchURL   string           `yaml:"search_url"` // fmt template receiving the escaped query
	Driver      types.DriverKind `yaml:"driver"`
	ScrollSteps int              `yaml:"scroll_steps"`
	Selectors   Selectors        `yaml:"selectors"`
	Details     DetailSelectors  `yaml:"details"`
}

// Merge overlays the non-empty fields of o onto s
func (s SiteSpec) Merge(o SiteSpec) SiteSpec {
	pick := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	pick(&s.BaseURL, o.BaseURL)
	pick(&s.SearchURL, o.SearchURL)
	if o.Driver != "" {
		s.Driver = o.Driver
	}
	if o.ScrollSteps > 0 {
		s.ScrollSteps = o.ScrollSteps
	}
	pick(&s.Selectors.Card, o.Selectors.Card)
	pick(&s.Selectors.Name, o.Selectors.Name)
	pick(&s.Selectors.Price, o.Selectors.Price)
	pick(&s.Selectors.Link, o.Selectors.Link)
	pick(&s.Selectors.Image, o.Selectors.Image)
	pick(&s.Selectors.Brand, o.Selectors.Brand)
	pick(&s.Selectors.Discount, o.Selectors.Discount)
	pick(&s.Selectors.Reviews, o.Selectors.Reviews)
	pick(&s.Selectors.Rating, o.Selectors.Rating)
	pick(&s.Details.Row, o.Details.Row)
	pick(&s.Details.Key, o.Details.Key)
	pick(&s.Details.Value, o.Details.Value)
	return s
}

// cardHook lets a store fix up a record after generic extraction. Returning false drops the card.
type cardHook func(card *goquery.Selection, rec *types.ProductRecord) bool

// BaseAdapter provides selector-driven extraction shared by all stores.
// Store adapters embed it and supply their SiteSpec and an optional card hook.
type BaseAdapter struct {
	spec   SiteSpec
	config *types.Config
	logger types.Logger
	hook   cardHook
}

// NewBaseAdapter creates a base adapter for spec
func NewBaseAdapter(spec SiteSpec, config *types.Config, logger types.Logger) *BaseAdapter {
	return &BaseAdapter{
		spec:   spec,
		config: config,
		logger: logger.WithField("site", spec.ID),
	}
}

// Site returns the store identifier
func (b *BaseAdapter) Site() types.SiteID {
	return b.spec.ID
}

// Driver returns the page driver kind configured for the store
func (b *BaseAdapter) Driver() types.DriverKind {
	return b.spec.Driver
}

// Spec returns the effective site spec
func (b *BaseAdapter) Spec() SiteSpec {
	return b.spec
}

// SearchURL builds the store's search page address
func (b *BaseAdapter) SearchURL(query string, params types.PageParams) string {
	// Stores paginate in their own page sizes; the first result page is
	// fetched and the requested window is sliced out in Extract.
	return fmt.Sprintf(b.spec.SearchURL, url.QueryEscape(query))
}

// Extract waits for product cards, scrolls lazy-loading stores and parses the cards.
// A page where cards never appear yields zero records and no error.
func (b *BaseAdapter) Extract(ctx context.Context, page types.Page, params types.PageParams) ([]types.ProductRecord, error) {
	if ctx.Err() != nil {
		return nil, types.Aborted(ctx)
	}

	if err := page.WaitVisible(ctx, b.spec.Selectors.Card, b.config.DOMTimeout); err != nil {
		if errors.Is(err, types.ErrContentTimeout) {
			b.logger.Debugf("No product cards on %s", page.URL())
			return nil, nil
		}
		return nil, err
	}

	if b.spec.ScrollSteps > 0 {
		if err := page.Scroll(ctx, b.spec.ScrollSteps, b.config.ScrollPause); err != nil {
			if types.IsAborted(err) {
				return nil, err
			}
			b.logger.Debugf("Scrolling %s stopped early: %v", page.URL(), err)
		}
	}

	records, err := utils.Evaluate(ctx, page, b.ParseCards)
	if err != nil {
		return nil, err
	}

	b.logger.Debugf("Parsed %d cards from %s", len(records), page.URL())
	return Paginate(records, params), nil
}

// ParseCards extracts every product card in doc
func (b *BaseAdapter) ParseCards(doc *goquery.Document) ([]types.ProductRecord, error) {
	sel := b.spec.Selectors
	var records []types.ProductRecord

	doc.Find(sel.Card).Each(func(i int, card *goquery.Selection) {
		rec := types.ProductRecord{
			Name:          childText(card, sel.Name),
			Link:          b.AbsoluteURL(childAttr(card, sel.Link, "href")),
			Image:         b.AbsoluteURL(imageSource(card, sel.Image)),
			Brand:         childText(card, sel.Brand),
			Discount:      childText(card, sel.Discount),
			ReviewSummary: childText(card, sel.Reviews),
			Price:         ParsePrice(childText(card, sel.Price)),
			ReviewRating:  ParseRating(childText(card, sel.Rating)),
			SourceSite:    b.spec.ID,
		}
		if b.hook != nil && !b.hook(card, &rec) {
			return
		}
		if rec.Name == "" || rec.Link == "" {
			return
		}
		records = append(records, rec)
	})

	return records, nil
}

// ExtractDetails reads the product specification table as normalized key/value pairs
func (b *BaseAdapter) ExtractDetails(ctx context.Context, page types.Page) (map[string]string, error) {
	d := b.spec.Details
	if d.Row == "" {
		return nil, fmt.Errorf("%s: no detail selectors configured", b.spec.ID)
	}

	if err := page.WaitVisible(ctx, d.Row, b.config.DOMTimeout); err != nil {
		if errors.Is(err, types.ErrContentTimeout) {
			return nil, nil
		}
		return nil, err
	}

	return utils.Evaluate(ctx, page, func(doc *goquery.Document) (map[string]string, error) {
		details := make(map[string]string)
		doc.Find(d.Row).Each(func(i int, row *goquery.Selection) {
			key := NormalizeKey(childText(row, d.Key))
			value := CleanText(childText(row, d.Value))
			if key == "" || value == "" {
				return
			}
			if _, exists := details[key]; !exists {
				details[key] = value
			}
		})
		return details, nil
	})
}

// AbsoluteURL resolves href against the store base URL
func (b *BaseAdapter) AbsoluteURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "data:") {
		return ""
	}
	base, err := url.Parse(b.spec.BaseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// Paginate returns the [offset, offset+limit) window of records
func Paginate(records []types.ProductRecord, params types.PageParams) []types.ProductRecord {
	if params.Limit <= 0 {
		return records
	}
	start := params.Offset()
	if start < 0 || start >= len(records) {
		return nil
	}
	end := start + params.Limit
	if end > len(records) {
		end = len(records)
	}
	return records[start:end]
}

var (
	spaceRe  = regexp.MustCompile(`\s+`)
	numberRe = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
)

// CleanText trims s and collapses internal whitespace
func CleanText(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// NormalizeKey canonicalizes a specification label for comparison
func NormalizeKey(s string) string {
	s = strings.ToLower(CleanText(s))
	return strings.TrimSpace(strings.TrimRight(s, ":"))
}

// ParsePrice extracts the first number from a price label such as "₹1,299.00"
func ParsePrice(s string) *float64 {
	match := numberRe.FindString(s)
	if match == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseRating extracts a 0-5 rating from labels such as "4.3 out of 5 stars"
func ParseRating(s string) *float64 {
	v := ParsePrice(s)
	if v == nil || *v < 0 || *v > 5 {
		return nil
	}
	return v
}

func childText(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return CleanText(s.Find(selector).First().Text())
}

func childAttr(s *goquery.Selection, selector, attr string) string {
	target := s
	if selector != "" {
		target = s.Find(selector).First()
	}
	v, _ := target.Attr(attr)
	return v
}

// imageSource prefers lazy-load attributes over placeholder src values
func imageSource(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	img := s.Find(selector).First()
	for _, attr := range []string{"data-src", "src", "srcset"} {
		if v, ok := img.Attr(attr); ok && v != "" && !strings.HasPrefix(v, "data:") {
			if attr == "srcset" {
				fields := strings.Fields(v)
				if len(fields) == 0 {
					continue
				}
				v = fields[0]
			}
			return v
		}
	}
	return ""
}
