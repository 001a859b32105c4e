package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"product-aggregator/adapters"
	"product-aggregator/extractor"
	"product-aggregator/internal/api"
	"product-aggregator/internal/assistant"
	"product-aggregator/internal/config"
	"product-aggregator/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := config.NewLogger(cfg.LogLevel)

	overrides, err := config.LoadSiteSpecs(cfg.SitesFile)
	if err != nil {
		logger.Fatalf("Failed to load site specs: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := utils.NewHTTPClient(cfg, logger, "")
	defer httpClient.Close()

	proxies := utils.NewProxyPool(cfg, logger, httpClient)
	if err := proxies.Refresh(ctx); err != nil {
		logger.Warnf("Continuing without proxies: %v", err)
	}

	registry := adapters.NewRegistry(cfg, logger, overrides)
	drivers := utils.NewDriverFactory(cfg, logger, httpClient, proxies)
	defer drivers.Close()
	retrier := extractor.NewRetrier(cfg, logger)
	pool := extractor.NewPool(registry, retrier, cfg, logger)
	supervisor := extractor.NewSupervisor(pool, extractor.NewAssembler(), drivers, cfg, logger)
	comparer := extractor.NewComparer(registry, retrier, drivers, cfg, logger)

	server := api.NewServer(supervisor, comparer, assistant.New(cfg, logger), httpClient, cfg, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Infof("Starting API server on port %s", cfg.Port)
		logger.Info("Available endpoints:")
		logger.Info("  POST /search       - Search products across stores")
		logger.Info("  GET  /suggestions  - Autocomplete passthrough")
		logger.Info("  POST /ai-response  - Shopping assistant")
		logger.Info("  POST /compare      - Compare two products")
		logger.Info("  GET  /health       - Health check")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	// Tear down in-flight work first so no browser outlives the process
	supervisor.Shutdown()
	comparer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Shutdown: %v", err)
	}
	logger.Info("Server stopped")
}
