package types

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// SiteID identifies a supported store
type SiteID string

const (
	SiteAmazon   SiteID = "amazon"
	SiteFlipkart SiteID = "flipkart"
	SiteMyntra   SiteID = "myntra"
	SiteAjio     SiteID = "ajio"
	SiteSnapdeal SiteID = "snapdeal"
)

// AllSites lists every store in a stable order
var AllSites = []SiteID{SiteAmazon, SiteFlipkart, SiteMyntra, SiteAjio, SiteSnapdeal}

// ParseSiteID canonicalizes user input such as "Amazon", "amazon.in" or "www.flipkart.com"
func ParseSiteID(raw string) (SiteID, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexByte(s, '.'); i > 0 {
		s = s[:i]
	}
	for _, id := range AllSites {
		if s == string(id) {
			return id, nil
		}
	}
	return "", &ValidationError{Field: "platforms", Reason: fmt.Sprintf("unknown platform %q", raw)}
}

// PageParams carries the pagination window applied inside each extractor
type PageParams struct {
	Page  int
	Limit int
}

// Offset returns the index of the first record on the page
func (p PageParams) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Query is an admitted search request. It is not modified after NewQuery returns.
type Query struct {
	Text   string
	Sites  []SiteID
	Params PageParams
}

const (
	DefaultPage  = 1
	DefaultLimit = 10
)

// NewQuery validates raw search input. Empty site lists select every site;
// zero page/limit fall back to defaults.
func NewQuery(text string, platforms []string, page, limit int) (Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Query{}, &ValidationError{Field: "query", Reason: "query is required"}
	}
	if page == 0 {
		page = DefaultPage
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if page < 1 {
		return Query{}, &ValidationError{Field: "page", Reason: "page must be >= 1"}
	}
	if limit < 1 {
		return Query{}, &ValidationError{Field: "limit", Reason: "limit must be >= 1"}
	}

	var sites []SiteID
	seen := make(map[SiteID]bool)
	for _, raw := range platforms {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		id, err := ParseSiteID(raw)
		if err != nil {
			return Query{}, err
		}
		if !seen[id] {
			seen[id] = true
			sites = append(sites, id)
		}
	}
	if len(sites) == 0 {
		sites = append(sites, AllSites...)
	}

	return Query{
		Text:   text,
		Sites:  sites,
		Params: PageParams{Page: page, Limit: limit},
	}, nil
}

// ProductRecord is one product card scraped from a store
type ProductRecord struct {
	Name          string   `json:"name"`
	Price         *float64 `json:"price"`
	Link          string   `json:"link"`
	Image         string   `json:"image"`
	Brand         string   `json:"brand"`
	Discount      string   `json:"discount"`
	ReviewSummary string   `json:"reviews"`
	ReviewRating  *float64 `json:"reviewRating"`
	SourceSite    SiteID   `json:"platform"`
}

// JobOutcome is the result of one site's job. Error is set only when Items is empty.
type JobOutcome struct {
	Site  SiteID
	Items []ProductRecord
	Error error
}

// DriverKind selects the page driver an extractor needs
type DriverKind string

const (
	DriverBrowser DriverKind = "browser"
	DriverHTTP    DriverKind = "http"
)

// Page is a loaded document owned by exactly one job
type Page interface {
	// URL returns the address the page was opened with
	URL() string

	// HTML returns the current document markup
	HTML(ctx context.Context) (string, error)

	// WaitVisible waits for selector; returns ErrContentTimeout when it never appears
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	// Scroll scrolls the viewport steps times, pausing between steps
	Scroll(ctx context.Context, steps int, pause time.Duration) error

	// Close releases the page. Safe to call more than once.
	Close()
}

// PageDriver opens pages for one request session
type PageDriver interface {
	Open(ctx context.Context, url string, timeout time.Duration) (Page, error)
	Close()
}

// Drivers is the set of page drivers owned by one request
type Drivers map[DriverKind]PageDriver

// Close closes every driver
func (d Drivers) Close() {
	for _, drv := range d {
		drv.Close()
	}
}

// SiteExtractor defines the interface for store-specific search extraction
type SiteExtractor interface {
	// Site returns the store this extractor serves
	Site() SiteID

	// Driver returns the page driver kind the store needs
	Driver() DriverKind

	// SearchURL builds the search page address for a query
	SearchURL(query string, params PageParams) string

	// Extract turns a loaded search page into records for the requested page window
	Extract(ctx context.Context, page Page, params PageParams) ([]ProductRecord, error)
}

// DetailExtractor is implemented by extractors able to read a product's specification table
type DetailExtractor interface {
	ExtractDetails(ctx context.Context, page Page) (map[string]string, error)
}

// Logger is the structured logger used across the module
type Logger = logrus.FieldLogger

// Config holds the configuration for the aggregator
type Config struct {
	RequestDelay          time.Duration
	MaxRetries            int
	RetryBackoff          time.Duration
	Timeout               time.Duration
	DOMTimeout            time.Duration
	TeardownTimeout       time.Duration
	ScrollPause           time.Duration
	MaxConcurrentRequests int
	UseHeadlessBrowser    bool
	ChromePath            string
	UserAgent             string

	Port           string
	LogLevel       string
	SitesFile      string
	ProxyListURL   string
	ProxyCheckURL  string
	SuggestionsURL string

	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		RequestDelay:          500 * time.Millisecond,
		MaxRetries:            3,
		RetryBackoff:          500 * time.Millisecond,
		Timeout:               30 * time.Second,
		DOMTimeout:            15 * time.Second,
		TeardownTimeout:       5 * time.Second,
		ScrollPause:           400 * time.Millisecond,
		MaxConcurrentRequests: 5,
		UseHeadlessBrowser:    true,
		UserAgent:             "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Port:                  "8080",
		LogLevel:              "info",
		ProxyCheckURL:         "https://httpbin.org/ip",
		SuggestionsURL:        "https://completion.amazon.in/api/2017/suggestions?mid=A21TJRUUN4KGV&alias=aps&prefix=%s",
		OpenAIModel:           "gpt-4o-mini",
	}
}
