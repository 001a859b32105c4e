package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"product-aggregator/internal/types"
)

// SessionFlag is the Chrome command line marker identifying processes of one browser session
const SessionFlag = "aggregator-session"

// BrowserClient provides headless browser pages for one request session.
// Chrome is launched on the first Open and shared by every tab of the session.
type BrowserClient struct {
	config  *types.Config
	logger  types.Logger
	session string
	proxy   string

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	closed        bool
}

// NewBrowserClient creates a new browser client. session tags the Chrome
// process so a stuck instance can be found later by KillBrowsers.
func NewBrowserClient(config *types.Config, logger types.Logger, session, proxy string) *BrowserClient {
	return &BrowserClient{
		config:  config,
		logger:  logger,
		session: session,
		proxy:   proxy,
	}
}

// Marker returns the command line fragment identifying this session's Chrome processes
func (b *BrowserClient) Marker() string {
	return SessionMarker(b.session)
}

// SessionMarker returns the command line fragment for a session id
func SessionMarker(session string) string {
	return fmt.Sprintf("--%s=%s", SessionFlag, session)
}

func (b *BrowserClient) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.Flag(SessionFlag, b.session),
		chromedp.UserAgent(b.config.UserAgent),
		chromedp.WindowSize(1366, 900),
	)
	if b.proxy != "" {
		opts = append(opts, chromedp.ProxyServer(b.proxy))
	}
	if b.config.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(b.config.ChromePath))
	}
	return opts
}

// browser returns the session's browser context, launching Chrome if needed
func (b *BrowserClient) browser() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("browser session %s closed: %w", b.session, types.ErrAborted)
	}
	if ctx := b.live(); ctx != nil {
		return ctx, nil
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), b.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(b.logger.Debugf))

	// Force Chrome startup
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b.logger.Debugf("Browser session %s started", b.session)
	b.allocCancel = allocCancel
	b.browserCtx = browserCtx
	b.browserCancel = browserCancel
	return browserCtx, nil
}

// live returns the cached browser context, discarding it if Chrome has gone away. Callers hold b.mu.
func (b *BrowserClient) live() context.Context {
	if b.browserCtx == nil {
		return nil
	}
	if b.browserCtx.Err() == nil {
		return b.browserCtx
	}
	b.logger.Warnf("Browser session %s died, relaunching on next page", b.session)
	b.browserCancel()
	b.allocCancel()
	b.browserCtx, b.browserCancel, b.allocCancel = nil, nil, nil
	return nil
}

// Open navigates a new tab to url
func (b *BrowserClient) Open(ctx context.Context, url string, timeout time.Duration) (types.Page, error) {
	if ctx.Err() != nil {
		return nil, types.Aborted(ctx)
	}

	browserCtx, err := b.browser()
	if err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	page := &browserPage{url: url, ctx: tabCtx, cancel: tabCancel, logger: b.logger}

	// The tab must be created on its own context; a timeout on the first Run would close it.
	stopTab := context.AfterFunc(ctx, page.Close)
	err = chromedp.Run(tabCtx)
	if !stopTab() || err != nil {
		page.Close()
		if ctx.Err() != nil {
			return nil, types.Aborted(ctx)
		}
		return nil, &types.NavigationError{URL: url, Err: fmt.Errorf("open tab: %w", err)}
	}

	navCtx, cancel := context.WithTimeout(tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		page.Close()
		if ctx.Err() != nil {
			return nil, types.Aborted(ctx)
		}
		return nil, &types.NavigationError{URL: url, Err: err}
	}

	b.logger.Debugf("Navigated to %s", url)
	return page, nil
}

// Close shuts the browser down. Errors are logged, never returned.
func (b *BrowserClient) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	if b.browserCtx == nil {
		return
	}

	if err := chromedp.Cancel(b.browserCtx); err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Warnf("Failed to close browser session %s: %v", b.session, err)
	}
	b.browserCancel()
	b.allocCancel()
	b.logger.Debugf("Browser session %s closed", b.session)
}

// browserPage is one Chrome tab
type browserPage struct {
	url    string
	ctx    context.Context
	cancel context.CancelFunc
	logger types.Logger
	once   sync.Once
}

func (p *browserPage) URL() string { return p.url }

// run executes actions bounded by timeout and by the caller's ctx without closing the tab
func (p *browserPage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if ctx.Err() != nil {
		return types.Aborted(ctx)
	}
	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return types.Aborted(ctx)
	case p.ctx.Err() != nil:
		// The tab or its browser went away underneath a live request
		return &types.NavigationError{URL: p.url, Err: fmt.Errorf("tab closed: %w", err)}
	case isContextInvalidated(err):
		return fmt.Errorf("%v: %w", err, types.ErrContextInvalidated)
	}
	return err
}

func (p *browserPage) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, 30*time.Second, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}
	return html, nil
}

func (p *browserPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	err := p.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return ErrSelectorTimeout(selector)
	}
	return err
}

func (p *browserPage) Scroll(ctx context.Context, steps int, pause time.Duration) error {
	for i := 0; i < steps; i++ {
		var height float64
		err := p.run(ctx, 10*time.Second,
			chromedp.Evaluate(`window.scrollBy(0, window.innerHeight); document.body.scrollHeight`, &height),
			chromedp.Sleep(pause),
		)
		if err != nil {
			return fmt.Errorf("scroll step %d: %w", i+1, err)
		}
	}
	return nil
}

func (p *browserPage) Close() {
	p.once.Do(func() {
		p.cancel()
		p.logger.Debugf("Closed tab for %s", p.url)
	})
}

// isContextInvalidated matches the DevTools errors raised when a navigation
// replaces the document while a script is running against it
func isContextInvalidated(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Execution context was destroyed") ||
		strings.Contains(msg, "Cannot find context with specified id") ||
		strings.Contains(msg, "Inspected target navigated or closed")
}
