package extractor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"product-aggregator/adapters"
	"product-aggregator/internal/types"
)

// MissingValue fills a comparison cell for a key only one product has
const MissingValue = "-"

// CompareItem identifies one product to compare
type CompareItem struct {
	Platform string `json:"platform"`
	Link     string `json:"link"`
}

// Comparison maps a normalized spec key to the values of product "1" and "2"
type Comparison map[string]map[string]string

// Comparer looks up the specification tables of two products side by side.
// Lookups run under a private request handle, outside the supervisor's slot.
type Comparer struct {
	registry *adapters.Registry
	retrier  *Retrier
	drivers  DriverSource
	config   *types.Config
	logger   types.Logger

	mu     sync.Mutex
	active map[*RequestHandle]struct{}
	closed bool
}

// NewComparer creates a comparer
func NewComparer(registry *adapters.Registry, retrier *Retrier, drivers DriverSource, config *types.Config, logger types.Logger) *Comparer {
	return &Comparer{
		registry: registry,
		retrier:  retrier,
		drivers:  drivers,
		config:   config,
		logger:   logger,
		active:   make(map[*RequestHandle]struct{}),
	}
}

// Compare fetches both products concurrently. It returns ErrNoResults when neither lookup found anything.
func (c *Comparer) Compare(ctx context.Context, items []CompareItem) (Comparison, error) {
	if len(items) != 2 {
		return nil, &types.ValidationError{Field: "products", Reason: "exactly 2 products are required"}
	}

	extractors := make([]types.SiteExtractor, len(items))
	for i, item := range items {
		site, err := types.ParseSiteID(item.Platform)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(item.Link) == "" {
			return nil, &types.ValidationError{Field: "link", Reason: fmt.Sprintf("product %d has no link", i+1)}
		}
		ext, err := c.registry.Get(site)
		if err != nil {
			return nil, &types.ValidationError{Field: "platform", Reason: err.Error()}
		}
		extractors[i] = ext
	}

	h, err := c.track(ctx)
	if err != nil {
		return nil, err
	}
	defer c.untrack(h)

	details := make([]map[string]string, len(items))
	var wg sync.WaitGroup
	for i := range items {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			details[i] = c.lookup(h, extractors[i], items[i].Link)
		}()
	}
	wg.Wait()

	if h.Context().Err() != nil {
		return nil, types.Aborted(h.Context())
	}
	if len(details[0]) == 0 && len(details[1]) == 0 {
		return nil, types.ErrNoResults
	}
	return combine(details[0], details[1]), nil
}

func (c *Comparer) track(ctx context.Context) (*RequestHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, types.ErrShutdown
	}
	id := uuid.NewString()
	h := NewRequestHandle(ctx, id, c.drivers.New(id), c.logger.WithField("request_id", id))
	c.active[h] = struct{}{}
	return h, nil
}

func (c *Comparer) untrack(h *RequestHandle) {
	h.Teardown()
	c.mu.Lock()
	delete(c.active, h)
	c.mu.Unlock()
}

// Shutdown cancels every comparison in flight, waits a bounded time for their
// browsers to close and rejects later calls
func (c *Comparer) Shutdown() {
	c.mu.Lock()
	c.closed = true
	handles := make([]*RequestHandle, 0, len(c.active))
	for h := range c.active {
		handles = append(handles, h)
	}
	c.mu.Unlock()

	timeout := c.config.TeardownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for _, h := range handles {
		h.Cancel(types.ErrShutdown)
		go h.Teardown()
	}
	for _, h := range handles {
		select {
		case <-h.Done():
		case <-deadline.C:
			c.logger.Warnf("Comparison %s did not tear down within %v", h.ID, timeout)
			return
		}
	}
}

// lookup returns the detail table of one product, or nil on any failure
func (c *Comparer) lookup(h *RequestHandle, ext types.SiteExtractor, link string) map[string]string {
	logger := c.logger.WithField("site", ext.Site())

	de, ok := ext.(types.DetailExtractor)
	if !ok {
		logger.Warnf("Site does not support product details")
		return nil
	}
	driver, err := driverFor(h.Drivers, ext.Driver())
	if err != nil {
		logger.Warnf("Detail lookup failed: %v", err)
		return nil
	}

	found, err := Retry(h.Context(), c.retrier, "details "+string(ext.Site()), func(ctx context.Context) ([]map[string]string, error) {
		page, err := driver.Open(ctx, link, c.config.Timeout)
		if err != nil {
			return nil, err
		}
		release, err := h.Own("page "+link, page.Close)
		if err != nil {
			page.Close()
			return nil, err
		}
		defer release()

		d, err := de.ExtractDetails(ctx, page)
		if err != nil || len(d) == 0 {
			return nil, err
		}
		return []map[string]string{d}, nil
	})
	if err != nil {
		if !types.IsAborted(err) {
			logger.Warnf("Detail lookup for %s failed: %v", link, err)
		}
		return nil
	}
	return found[0]
}

// combine joins two detail tables on normalized keys
func combine(a, b map[string]string) Comparison {
	keys := make(map[string]bool)
	for k := range a {
		keys[adapters.NormalizeKey(k)] = true
	}
	for k := range b {
		keys[adapters.NormalizeKey(k)] = true
	}

	value := func(m map[string]string, key string) string {
		for k, v := range m {
			if adapters.NormalizeKey(k) == key {
				return v
			}
		}
		return MissingValue
	}

	out := make(Comparison, len(keys))
	for k := range keys {
		if k == "" {
			continue
		}
		out[k] = map[string]string{"1": value(a, k), "2": value(b, k)}
	}
	return out
}
