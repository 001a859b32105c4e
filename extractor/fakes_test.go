package extractor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"product-aggregator/adapters"
	"product-aggregator/internal/types"
)

func testLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func testConfig() *types.Config {
	config := types.DefaultConfig()
	config.MaxRetries = 2
	config.RetryBackoff = 0
	config.Timeout = time.Second
	config.TeardownTimeout = time.Second
	return config
}

// fakePage counts itself open until closed
type fakePage struct {
	url    string
	driver *fakeDriver
	once   sync.Once
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) HTML(ctx context.Context) (string, error) { return "", nil }

func (p *fakePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return nil
}

func (p *fakePage) Scroll(ctx context.Context, steps int, pause time.Duration) error { return nil }

func (p *fakePage) Close() {
	p.once.Do(func() {
		p.driver.open.Add(-1)
	})
}

// fakeDriver hands out fakePages and tracks how many are still open
type fakeDriver struct {
	session string
	open    atomic.Int32
	opened  atomic.Int32
	closed  atomic.Bool

	// closeDelay blocks Close, simulating a browser that will not exit
	closeDelay chan struct{}
	openErr    error
}

func (d *fakeDriver) Open(ctx context.Context, url string, timeout time.Duration) (types.Page, error) {
	if ctx.Err() != nil {
		return nil, types.Aborted(ctx)
	}
	if d.closed.Load() {
		return nil, fmt.Errorf("driver closed: %w", types.ErrAborted)
	}
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.open.Add(1)
	d.opened.Add(1)
	return &fakePage{url: url, driver: d}, nil
}

func (d *fakeDriver) Close() {
	if d.closeDelay != nil {
		<-d.closeDelay
	}
	d.closed.Store(true)
}

// fakeSource creates one fakeDriver per session and remembers them in order
type fakeSource struct {
	mu         sync.Mutex
	drivers    []*fakeDriver
	closeDelay chan struct{}
}

func (s *fakeSource) New(session string) types.Drivers {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := &fakeDriver{session: session, closeDelay: s.closeDelay}
	s.drivers = append(s.drivers, d)
	return types.Drivers{types.DriverHTTP: d}
}

func (s *fakeSource) driver(i int) *fakeDriver {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drivers[i]
}

func (s *fakeSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.drivers)
}

type extractFunc func(ctx context.Context, page types.Page, params types.PageParams) ([]types.ProductRecord, error)

// fakeExtractor runs extract against whatever page the driver opened
type fakeExtractor struct {
	site    types.SiteID
	kind    types.DriverKind
	extract extractFunc
	calls   atomic.Int32
}

func (e *fakeExtractor) Site() types.SiteID { return e.site }

func (e *fakeExtractor) Driver() types.DriverKind {
	if e.kind == "" {
		return types.DriverHTTP
	}
	return e.kind
}

func (e *fakeExtractor) SearchURL(query string, params types.PageParams) string {
	return fmt.Sprintf("https://%s.test/search?q=%s", e.site, query)
}

func (e *fakeExtractor) Extract(ctx context.Context, page types.Page, params types.PageParams) ([]types.ProductRecord, error) {
	e.calls.Add(1)
	return e.extract(ctx, page, params)
}

// fakeDetailExtractor also reads product details
type fakeDetailExtractor struct {
	fakeExtractor
	details func(ctx context.Context, page types.Page) (map[string]string, error)
}

func (e *fakeDetailExtractor) ExtractDetails(ctx context.Context, page types.Page) (map[string]string, error) {
	return e.details(ctx, page)
}

func records(site types.SiteID, n int) []types.ProductRecord {
	out := make([]types.ProductRecord, n)
	for i := range out {
		out[i] = types.ProductRecord{
			Name:       fmt.Sprintf("%s item %d", site, i+1),
			Link:       fmt.Sprintf("https://%s.test/p/%d", site, i+1),
			SourceSite: site,
		}
	}
	return out
}

func returning(items []types.ProductRecord, err error) extractFunc {
	return func(ctx context.Context, page types.Page, params types.PageParams) ([]types.ProductRecord, error) {
		return items, err
	}
}

// blocking signals started and then waits for cancellation
func blocking(started chan<- struct{}) extractFunc {
	var once sync.Once
	return func(ctx context.Context, page types.Page, params types.PageParams) ([]types.ProductRecord, error) {
		once.Do(func() { close(started) })
		<-ctx.Done()
		return nil, types.Aborted(ctx)
	}
}

func newRegistry(extractors ...types.SiteExtractor) *adapters.Registry {
	r := adapters.NewEmptyRegistry()
	for _, e := range extractors {
		r.Register(e)
	}
	return r
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting")
	}
}
