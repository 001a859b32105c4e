// Command probe opens one store's search page and reports how many elements
// each configured selector matches. Use it when a store changes its markup.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"product-aggregator/adapters"
	"product-aggregator/internal/config"
	"product-aggregator/internal/types"
	"product-aggregator/utils"
)

type specProvider interface {
	Spec() adapters.SiteSpec
}

func main() {
	var (
		siteFlag  = flag.String("site", "", "Store to probe (amazon, flipkart, myntra, ajio, snapdeal)")
		queryFlag = flag.String("query", "shoes", "Search text")
		samples   = flag.Int("samples", 5, "Number of sample links to print")
	)
	flag.Parse()

	site, err := types.ParseSiteID(*siteFlag)
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := config.NewLogger(cfg.LogLevel)

	overrides, err := config.LoadSiteSpecs(cfg.SitesFile)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	httpClient := utils.NewHTTPClient(cfg, logger, "")
	defer httpClient.Close()

	registry := adapters.NewRegistry(cfg, logger, overrides)
	ext, err := registry.Get(site)
	if err != nil {
		log.Fatal(err)
	}
	sp, ok := ext.(specProvider)
	if !ok {
		log.Fatalf("%s does not expose its selectors", site)
	}
	spec := sp.Spec()

	session := uuid.NewString()
	drivers := utils.NewDriverFactory(cfg, logger, httpClient, nil).New(session)
	defer drivers.Close()

	driver, ok := drivers[ext.Driver()]
	if !ok {
		driver = drivers[types.DriverHTTP]
	}

	searchURL := ext.SearchURL(*queryFlag, types.PageParams{Page: 1, Limit: types.DefaultLimit})
	fmt.Printf("=== Probing %s (%s driver) ===\n", site, ext.Driver())
	fmt.Printf("URL: %s\n", searchURL)

	page, err := driver.Open(ctx, searchURL, cfg.Timeout)
	if err != nil {
		log.Fatalf("Failed to open search page: %v", err)
	}
	defer page.Close()

	if err := page.WaitVisible(ctx, spec.Selectors.Card, cfg.DOMTimeout); err != nil {
		fmt.Printf("Cards never appeared: %v\n", err)
	}
	if spec.ScrollSteps > 0 {
		if err := page.Scroll(ctx, spec.ScrollSteps, cfg.ScrollPause); err != nil {
			fmt.Printf("Scroll stopped: %v\n", err)
		}
	}

	html, err := page.HTML(ctx)
	if err != nil {
		log.Fatalf("Failed to read page: %v", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		log.Fatalf("Failed to parse HTML: %v", err)
	}

	cards := doc.Find(spec.Selectors.Card)
	fmt.Printf("Document size: %d bytes\n", len(html))
	fmt.Printf("Cards (%s): %d\n", spec.Selectors.Card, cards.Length())

	fields := []struct{ name, selector string }{
		{"name", spec.Selectors.Name},
		{"price", spec.Selectors.Price},
		{"link", spec.Selectors.Link},
		{"image", spec.Selectors.Image},
		{"brand", spec.Selectors.Brand},
		{"discount", spec.Selectors.Discount},
		{"reviews", spec.Selectors.Reviews},
		{"rating", spec.Selectors.Rating},
	}
	for _, f := range fields {
		if f.selector == "" {
			continue
		}
		hits := 0
		cards.Each(func(i int, card *goquery.Selection) {
			if card.Find(f.selector).Length() > 0 {
				hits++
			}
		})
		fmt.Printf("  %-9s %3d/%d  (%s)\n", f.name, hits, cards.Length(), f.selector)
	}

	fmt.Println("Sample of parsed cards:")
	records, err := utils.Evaluate(ctx, page, func(doc *goquery.Document) ([]types.ProductRecord, error) {
		return parseCards(ext, doc)
	})
	if err != nil {
		log.Fatalf("Failed to parse cards: %v", err)
	}
	for i, r := range records {
		if i >= *samples {
			break
		}
		price := "-"
		if r.Price != nil {
			price = fmt.Sprintf("%.2f", *r.Price)
		}
		fmt.Printf("  %d: name='%s', price=%s, link='%s'\n", i+1, r.Name, price, r.Link)
	}
}

// parseCards runs the store's own card parser
func parseCards(ext types.SiteExtractor, doc *goquery.Document) ([]types.ProductRecord, error) {
	p, ok := ext.(interface {
		ParseCards(*goquery.Document) ([]types.ProductRecord, error)
	})
	if !ok {
		return nil, fmt.Errorf("%s has no card parser", ext.Site())
	}
	return p.ParseCards(doc)
}
