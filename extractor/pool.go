package extractor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"product-aggregator/adapters"
	"product-aggregator/internal/types"
)

// Pool fans a query out to one retried job per selected site.
// A site's failure is recorded in its outcome and never affects siblings.
type Pool struct {
	registry *adapters.Registry
	retrier  *Retrier
	config   *types.Config
	logger   types.Logger
}

// NewPool creates a job pool
func NewPool(registry *adapters.Registry, retrier *Retrier, config *types.Config, logger types.Logger) *Pool {
	return &Pool{
		registry: registry,
		retrier:  retrier,
		config:   config,
		logger:   logger,
	}
}

// RunAll runs every selected site concurrently and waits for all of them to settle.
// Pages are opened through h's drivers and owned by h until their job releases them.
func (p *Pool) RunAll(ctx context.Context, q types.Query, h *RequestHandle) map[types.SiteID]types.JobOutcome {
	outcomes := make(map[types.SiteID]types.JobOutcome, len(q.Sites))
	var mu sync.Mutex

	var g errgroup.Group
	if p.config.MaxConcurrentRequests > 0 {
		g.SetLimit(p.config.MaxConcurrentRequests)
	}

	for _, site := range q.Sites {
		site := site
		g.Go(func() error {
			outcome := p.runJob(ctx, q, site, h)
			mu.Lock()
			outcomes[site] = outcome
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// runJob converts every failure, panics included, into an empty outcome
func (p *Pool) runJob(ctx context.Context, q types.Query, site types.SiteID, h *RequestHandle) (outcome types.JobOutcome) {
	logger := p.logger.WithFields(logrus.Fields{"request_id": h.ID, "site": site})
	start := time.Now()
	outcome.Site = site

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Job panicked: %v", r)
			outcome = types.JobOutcome{Site: site, Error: fmt.Errorf("job panicked: %v", r)}
		}
	}()

	ext, err := p.registry.Get(site)
	if err != nil {
		outcome.Error = err
		return outcome
	}

	items, err := Retry(ctx, p.retrier, string(site), func(ctx context.Context) ([]types.ProductRecord, error) {
		return p.scrapeOnce(ctx, q, ext, h)
	})
	if err != nil {
		if types.IsAborted(err) {
			logger.Debugf("Job aborted after %v", time.Since(start))
		} else {
			logger.Warnf("Job failed after %v: %v", time.Since(start), err)
		}
		outcome.Error = err
		return outcome
	}

	logger.Infof("Job found %d items in %v", len(items), time.Since(start))
	outcome.Items = items
	return outcome
}

// scrapeOnce is a single attempt: open the search page, extract, close the page
func (p *Pool) scrapeOnce(ctx context.Context, q types.Query, ext types.SiteExtractor, h *RequestHandle) ([]types.ProductRecord, error) {
	if ctx.Err() != nil {
		return nil, types.Aborted(ctx)
	}

	driver, err := driverFor(h.Drivers, ext.Driver())
	if err != nil {
		return nil, err
	}

	url := ext.SearchURL(q.Text, q.Params)
	page, err := driver.Open(ctx, url, p.config.Timeout)
	if err != nil {
		return nil, err
	}

	release, err := h.Own("page "+url, page.Close)
	if err != nil {
		page.Close()
		return nil, err
	}
	defer release()

	// One abort listener per page, removed when the attempt ends
	stop := context.AfterFunc(ctx, page.Close)
	defer stop()

	if ctx.Err() != nil {
		return nil, types.Aborted(ctx)
	}
	return ext.Extract(ctx, page, q.Params)
}

// driverFor picks the driver of kind, falling back to HTTP when no browser is available
func driverFor(drivers types.Drivers, kind types.DriverKind) (types.PageDriver, error) {
	if d, ok := drivers[kind]; ok {
		return d, nil
	}
	if d, ok := drivers[types.DriverHTTP]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("no %s driver available", kind)
}
