package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"product-aggregator/internal/types"
)

// HTTPClient provides HTTP functionality with per-host rate limiting.
// Retries are left to the caller's Retrier.
type HTTPClient struct {
	client *http.Client
	config *types.Config
	logger types.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPClient creates a new HTTP client with the given configuration.
// A non-empty proxy is used for every request.
func NewHTTPClient(config *types.Config, logger types.Logger, proxy string) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if proxy != "" {
		if u, err := parseProxy(proxy); err == nil {
			transport.Proxy = http.ProxyURL(u)
		} else {
			logger.Warnf("Ignoring malformed proxy %q: %v", proxy, err)
		}
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
		config:   config,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

func parseProxy(proxy string) (*url.URL, error) {
	if !strings.Contains(proxy, "://") {
		proxy = "http://" + proxy
	}
	return url.Parse(proxy)
}

func (h *HTTPClient) limiter(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.limiters[host]
	if !ok {
		every := rate.Inf
		if h.config.RequestDelay > 0 {
			every = rate.Every(h.config.RequestDelay)
		}
		l = rate.NewLimiter(every, 1)
		h.limiters[host] = l
	}
	return l
}

// Get performs a single rate-limited GET request
func (h *HTTPClient) Get(ctx context.Context, rawURL string) ([]byte, error) {
	body, _, err := h.fetch(ctx, rawURL)
	return body, err
}

// GetWithType performs a GET and also returns the response content type
func (h *HTTPClient) GetWithType(ctx context.Context, rawURL string) ([]byte, string, error) {
	return h.fetch(ctx, rawURL)
}

func (h *HTTPClient) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse url %q: %w", rawURL, err)
	}

	if err := h.limiter(u.Host).Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, "", types.Aborted(ctx)
		}
		return nil, "", fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", h.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	h.logger.Debugf("Making request to %s", rawURL)

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", types.Aborted(ctx)
		}
		return nil, "", &types.NavigationError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &types.TransientFetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", types.Aborted(ctx)
		}
		return nil, "", fmt.Errorf("failed to read response body: %w", err)
	}

	h.logger.Debugf("Successfully retrieved %d bytes from %s", len(body), rawURL)
	return body, resp.Header.Get("Content-Type"), nil
}

// Close cleans up idle connections
func (h *HTTPClient) Close() {
	h.client.CloseIdleConnections()
}

// Session returns a PageDriver bound to one request. Closing it aborts
// every call still in flight through it.
func (h *HTTPClient) Session() *HTTPSession {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &HTTPSession{client: h, ctx: ctx, cancel: cancel}
}

// HTTPSession is a per-request PageDriver serving static HTML pages
type HTTPSession struct {
	client *HTTPClient
	ctx    context.Context
	cancel context.CancelCauseFunc
}

// Open fetches url and returns it as a static page
func (s *HTTPSession) Open(ctx context.Context, rawURL string, timeout time.Duration) (types.Page, error) {
	if ctx.Err() != nil {
		return nil, types.Aborted(ctx)
	}
	if s.ctx.Err() != nil {
		return nil, types.Aborted(s.ctx)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	body, err := s.client.Get(fetchCtx, rawURL)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, types.Aborted(ctx)
		case s.ctx.Err() != nil:
			return nil, types.Aborted(s.ctx)
		case errors.Is(fetchCtx.Err(), context.DeadlineExceeded):
			return nil, &types.NavigationError{URL: rawURL, Err: context.DeadlineExceeded}
		}
		return nil, err
	}

	return NewStaticPage(rawURL, string(body)), nil
}

// Close aborts in-flight fetches of this session
func (s *HTTPSession) Close() {
	s.cancel(types.ErrAborted)
}

// StaticPage is an already-downloaded document
type StaticPage struct {
	url    string
	html   string
	mu     sync.Mutex
	closed bool
}

// NewStaticPage wraps downloaded markup as a Page
func NewStaticPage(rawURL, html string) *StaticPage {
	return &StaticPage{url: rawURL, html: html}
}

func (p *StaticPage) URL() string { return p.url }

func (p *StaticPage) HTML(ctx context.Context) (string, error) {
	if ctx.Err() != nil {
		return "", types.Aborted(ctx)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", fmt.Errorf("page %s: %w", p.url, types.ErrAborted)
	}
	return p.html, nil
}

// WaitVisible reports whether selector is present; static markup never changes so there is no waiting
func (p *StaticPage) WaitVisible(ctx context.Context, selector string, _ time.Duration) error {
	html, err := p.HTML(ctx)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("failed to parse HTML: %w", err)
	}
	if doc.Find(selector).Length() == 0 {
		return ErrSelectorTimeout(selector)
	}
	return nil
}

// Scroll is a no-op for static pages beyond the cancellation checkpoint
func (p *StaticPage) Scroll(ctx context.Context, _ int, _ time.Duration) error {
	if ctx.Err() != nil {
		return types.Aborted(ctx)
	}
	return nil
}

func (p *StaticPage) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// ErrSelectorTimeout wraps ErrContentTimeout with the selector that never appeared
func ErrSelectorTimeout(selector string) error {
	return fmt.Errorf("selector %q: %w", selector, types.ErrContentTimeout)
}
