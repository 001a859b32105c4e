package utils

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"product-aggregator/internal/types"
)

const (
	proxyCheckTimeout = 5 * time.Second
	proxyCheckLimit   = 10
)

// ProxyPool keeps a best-effort list of working egress proxies.
// An empty pool is valid and means direct connections.
type ProxyPool struct {
	config *types.Config
	logger types.Logger
	client *HTTPClient

	mu     sync.RWMutex
	usable []string
}

// NewProxyPool creates an empty pool. Call Refresh to populate it.
func NewProxyPool(config *types.Config, logger types.Logger, client *HTTPClient) *ProxyPool {
	return &ProxyPool{config: config, logger: logger, client: client}
}

// Refresh downloads the proxy list and keeps the candidates that pass a check request
func (p *ProxyPool) Refresh(ctx context.Context) error {
	if p.config.ProxyListURL == "" {
		return nil
	}

	body, err := p.client.Get(ctx, p.config.ProxyListURL)
	if err != nil {
		return fmt.Errorf("failed to fetch proxy list: %w", err)
	}

	candidates := parseProxyList(body)
	p.logger.Infof("Validating %d proxy candidates", len(candidates))

	var mu sync.Mutex
	var usable []string
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(proxyCheckLimit)
	for _, candidate := range candidates {
		candidate := candidate
		g.Go(func() error {
			if p.check(gctx, candidate) {
				mu.Lock()
				usable = append(usable, candidate)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	p.mu.Lock()
	p.usable = usable
	p.mu.Unlock()

	p.logger.Infof("Proxy pool ready with %d usable proxies", len(usable))
	return nil
}

func (p *ProxyPool) check(ctx context.Context, proxy string) bool {
	u, err := parseProxy(proxy)
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, proxyCheckTimeout)
	defer cancel()

	client := &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(u)}}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.ProxyCheckURL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		p.logger.Debugf("Proxy %s failed check: %v", proxy, err)
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Pick returns a random usable proxy, or "" when none are known
func (p *ProxyPool) Pick() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.usable) == 0 {
		return ""
	}
	return p.usable[rand.IntN(len(p.usable))]
}

// Len returns the number of usable proxies
func (p *ProxyPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.usable)
}

func parseProxyList(body []byte) []string {
	var out []string
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || !strings.Contains(line, ":") {
			continue
		}
		if !seen[line] {
			seen[line] = true
			out = append(out, line)
		}
	}
	return out
}
