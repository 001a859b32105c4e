package utils

import (
	"sync"

	"product-aggregator/internal/types"
)

// DriverFactory builds the page drivers owned by one request session
type DriverFactory struct {
	config  *types.Config
	logger  types.Logger
	http    *HTTPClient
	proxies *ProxyPool

	mu      sync.Mutex
	proxied map[string]*HTTPClient
}

// NewDriverFactory creates a factory sharing one HTTP client across direct sessions.
// proxies may be nil.
func NewDriverFactory(config *types.Config, logger types.Logger, http *HTTPClient, proxies *ProxyPool) *DriverFactory {
	return &DriverFactory{config: config, logger: logger, http: http, proxies: proxies, proxied: make(map[string]*HTTPClient)}
}

// New returns fresh drivers for session. Both drivers of a session egress through
// the same proxy when the pool has one. Chrome is only launched if a browser page is opened.
func (f *DriverFactory) New(session string) types.Drivers {
	proxy := ""
	if f.proxies != nil {
		proxy = f.proxies.Pick()
	}
	drivers := types.Drivers{
		types.DriverHTTP: f.client(proxy).Session(),
	}
	if f.config.UseHeadlessBrowser {
		drivers[types.DriverBrowser] = NewBrowserClient(f.config, f.logger.WithField("session", session), session, proxy)
	}
	return drivers
}

// client returns the HTTP client for proxy, creating it on first use so
// connections to one proxy are pooled across sessions
func (f *DriverFactory) client(proxy string) *HTTPClient {
	if proxy == "" {
		return f.http
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.proxied[proxy]
	if !ok {
		c = NewHTTPClient(f.config, f.logger.WithField("proxy", proxy), proxy)
		f.proxied[proxy] = c
	}
	return c
}

// Close drops idle connections of the per-proxy clients. The shared direct client is owned by the caller.
func (f *DriverFactory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.proxied {
		c.Close()
	}
}
