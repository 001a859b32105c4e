package extractor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-aggregator/internal/types"
)

func newTestHandle(ctx context.Context, drivers types.Drivers) *RequestHandle {
	return NewRequestHandle(ctx, "req-test", drivers, testLogger())
}

func TestPool_RunAll_PartialFailure(t *testing.T) {
	flipkart := &fakeExtractor{site: types.SiteFlipkart, extract: returning(nil, errors.New("blocked"))}
	registry := newRegistry(
		&fakeExtractor{site: types.SiteAmazon, extract: returning(records(types.SiteAmazon, 3), nil)},
		flipkart,
		&fakeExtractor{site: types.SiteMyntra, kind: types.DriverBrowser, extract: returning(records(types.SiteMyntra, 2), nil)},
	)
	config := testConfig()
	pool := NewPool(registry, NewRetrier(config, testLogger()), config, testLogger())

	driver := &fakeDriver{}
	h := newTestHandle(context.Background(), types.Drivers{types.DriverHTTP: driver})
	defer h.Teardown()

	q, err := types.NewQuery("shoes", []string{"amazon", "flipkart", "myntra"}, 1, 10)
	require.NoError(t, err)

	outcomes := pool.RunAll(h.Context(), q, h)

	require.Len(t, outcomes, 3)
	assert.Len(t, outcomes[types.SiteAmazon].Items, 3)
	assert.NoError(t, outcomes[types.SiteAmazon].Error)
	assert.Len(t, outcomes[types.SiteMyntra].Items, 2)

	assert.Empty(t, outcomes[types.SiteFlipkart].Items)
	var exhausted *types.ExhaustedRetriesError
	assert.True(t, errors.As(outcomes[types.SiteFlipkart].Error, &exhausted))
	assert.Equal(t, int32(config.MaxRetries), flipkart.calls.Load())

	// Every page was released by its job
	assert.Equal(t, int32(0), driver.open.Load())
	assert.Equal(t, 1, h.Owned(), "only the drivers remain owned")
}

func TestPool_RunAll_PanicIsContained(t *testing.T) {
	registry := newRegistry(
		&fakeExtractor{site: types.SiteAmazon, extract: func(ctx context.Context, page types.Page, params types.PageParams) ([]types.ProductRecord, error) {
			panic("selector exploded")
		}},
		&fakeExtractor{site: types.SiteAjio, extract: returning(records(types.SiteAjio, 1), nil)},
	)
	config := testConfig()
	pool := NewPool(registry, NewRetrier(config, testLogger()), config, testLogger())
	h := newTestHandle(context.Background(), types.Drivers{types.DriverHTTP: &fakeDriver{}})
	defer h.Teardown()

	q, err := types.NewQuery("shoes", []string{"amazon", "ajio"}, 1, 10)
	require.NoError(t, err)

	outcomes := pool.RunAll(h.Context(), q, h)

	assert.Contains(t, outcomes[types.SiteAmazon].Error.Error(), "panicked")
	assert.Len(t, outcomes[types.SiteAjio].Items, 1)
}

func TestPool_RunAll_UnknownSite(t *testing.T) {
	config := testConfig()
	pool := NewPool(newRegistry(), NewRetrier(config, testLogger()), config, testLogger())
	h := newTestHandle(context.Background(), types.Drivers{types.DriverHTTP: &fakeDriver{}})
	defer h.Teardown()

	q, err := types.NewQuery("shoes", []string{"snapdeal"}, 1, 10)
	require.NoError(t, err)

	outcomes := pool.RunAll(h.Context(), q, h)

	assert.Contains(t, outcomes[types.SiteSnapdeal].Error.Error(), "no adapter found")
}

func TestPool_RunAll_Cancelled(t *testing.T) {
	started := make(chan struct{})
	registry := newRegistry(
		&fakeExtractor{site: types.SiteAmazon, extract: blocking(started)},
		&fakeExtractor{site: types.SiteFlipkart, extract: blocking(make(chan struct{}))},
	)
	config := testConfig()
	pool := NewPool(registry, NewRetrier(config, testLogger()), config, testLogger())
	driver := &fakeDriver{}
	h := newTestHandle(context.Background(), types.Drivers{types.DriverHTTP: driver})
	defer h.Teardown()

	q, err := types.NewQuery("shoes", []string{"amazon", "flipkart"}, 1, 10)
	require.NoError(t, err)

	go func() {
		<-started
		h.Cancel(types.ErrSuperseded)
	}()

	outcomes := pool.RunAll(h.Context(), q, h)

	for site, o := range outcomes {
		assert.Empty(t, o.Items, site)
		assert.ErrorIs(t, o.Error, types.ErrSuperseded, site)
	}
	assert.Equal(t, int32(0), driver.open.Load())
}

func TestPool_RunAll_ConcurrencyLimit(t *testing.T) {
	var running, peak atomic.Int32
	extract := func(ctx context.Context, page types.Page, params types.PageParams) ([]types.ProductRecord, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return records(types.SiteAmazon, 1), nil
	}

	var extractors []types.SiteExtractor
	for _, site := range types.AllSites {
		extractors = append(extractors, &fakeExtractor{site: site, extract: extract})
	}
	config := testConfig()
	config.MaxConcurrentRequests = 2
	pool := NewPool(newRegistry(extractors...), NewRetrier(config, testLogger()), config, testLogger())
	h := newTestHandle(context.Background(), types.Drivers{types.DriverHTTP: &fakeDriver{}})
	defer h.Teardown()

	q, err := types.NewQuery("shoes", nil, 1, 10)
	require.NoError(t, err)

	outcomes := pool.RunAll(h.Context(), q, h)

	assert.Len(t, outcomes, len(types.AllSites))
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPool_OpenFailureIsRetried(t *testing.T) {
	registry := newRegistry(&fakeExtractor{site: types.SiteAmazon, extract: returning(records(types.SiteAmazon, 1), nil)})
	config := testConfig()
	pool := NewPool(registry, NewRetrier(config, testLogger()), config, testLogger())
	driver := &fakeDriver{openErr: &types.NavigationError{URL: "https://amazon.test", Err: context.DeadlineExceeded}}
	h := newTestHandle(context.Background(), types.Drivers{types.DriverHTTP: driver})
	defer h.Teardown()

	q, err := types.NewQuery("shoes", []string{"amazon"}, 1, 10)
	require.NoError(t, err)

	outcomes := pool.RunAll(h.Context(), q, h)

	var navErr *types.NavigationError
	assert.True(t, errors.As(outcomes[types.SiteAmazon].Error, &navErr))
}

func TestDriverFor_FallsBackToHTTP(t *testing.T) {
	httpDriver := &fakeDriver{}

	d, err := driverFor(types.Drivers{types.DriverHTTP: httpDriver}, types.DriverBrowser)
	require.NoError(t, err)
	assert.Same(t, httpDriver, d)

	_, err = driverFor(types.Drivers{}, types.DriverBrowser)
	assert.Error(t, err)
}
