package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"product-aggregator/adapters"
	"product-aggregator/extractor"
	"product-aggregator/internal/config"
	"product-aggregator/internal/types"
	"product-aggregator/utils"
)

func main() {
	// Parse command line flags
	var (
		queryFlag  = flag.String("query", "", "Search text")
		sitesFlag  = flag.String("sites", "", "Comma-separated list of stores (default: all)")
		page       = flag.Int("page", types.DefaultPage, "Result page (1-based)")
		limit      = flag.Int("limit", types.DefaultLimit, "Results per store")
		outputFlag = flag.String("output", "", "Output file path (default: stdout)")
		maxRetries = flag.Int("retries", 0, "Maximum attempts per store (default: MAX_RETRIES)")
		timeout    = flag.Duration("timeout", 0, "Navigation timeout (default: NAV_TIMEOUT)")
		httpOnly   = flag.Bool("http-only", false, "Use HTTP requests only (disable headless browser)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if *maxRetries > 0 {
		cfg.MaxRetries = *maxRetries
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *httpOnly {
		cfg.UseHeadlessBrowser = false
	}
	if *verbose && os.Getenv("LOG_LEVEL") == "" {
		cfg.LogLevel = "debug"
	}
	logger := config.NewLogger(cfg.LogLevel)

	var sites []string
	if *sitesFlag != "" {
		sites = strings.Split(*sitesFlag, ",")
	}
	q, err := types.NewQuery(*queryFlag, sites, *page, *limit)
	if err != nil {
		log.Fatal(err)
	}

	overrides, err := config.LoadSiteSpecs(cfg.SitesFile)
	if err != nil {
		logger.Fatalf("Failed to load site specs: %v", err)
	}

	// Ctrl-C aborts the query and tears down its browsers
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := utils.NewHTTPClient(cfg, logger, "")
	defer httpClient.Close()

	registry := adapters.NewRegistry(cfg, logger, overrides)
	drivers := utils.NewDriverFactory(cfg, logger, httpClient, nil)
	pool := extractor.NewPool(registry, extractor.NewRetrier(cfg, logger), cfg, logger)
	supervisor := extractor.NewSupervisor(pool, extractor.NewAssembler(), drivers, cfg, logger)

	startTime := time.Now()
	logger.Infof("Searching %q on %v", q.Text, q.Sites)

	results, err := supervisor.Submit(ctx, q)
	if err != nil {
		logger.Fatalf("Search failed: %v", err)
	}
	logger.Infof("Search completed in %v", time.Since(startTime))

	// Marshal results to JSON
	jsonData, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		logger.Fatalf("Failed to marshal results: %v", err)
	}

	// Output results
	if *outputFlag != "" {
		if err := os.WriteFile(*outputFlag, jsonData, 0644); err != nil {
			logger.Fatalf("Failed to write output file: %v", err)
		}
		logger.Infof("Results written to: %s", *outputFlag)
	} else {
		fmt.Println(string(jsonData))
	}

	// Print summary
	perSite := make(map[types.SiteID]int)
	for _, r := range results {
		perSite[r.SourceSite]++
	}
	logger.Infof("Total products found: %d", len(results))
	for _, site := range q.Sites {
		logger.Infof("  %-10s %d", site, perSite[site])
	}
}
