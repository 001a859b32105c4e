package adapters

import (
	"fmt"
	"strings"

	"product-aggregator/internal/types"
)

// Registry maps each supported store to its extractor. It is built once at startup.
type Registry struct {
	extractors map[types.SiteID]types.SiteExtractor
}

// NewRegistry builds every store adapter. overrides, keyed by site id, replace
// non-empty fields of the built-in specs. When the headless browser is
// disabled, browser stores fall back to plain HTTP.
func NewRegistry(config *types.Config, logger types.Logger, overrides map[types.SiteID]SiteSpec) *Registry {
	spec := func(base SiteSpec) SiteSpec {
		s := base
		if o, ok := overrides[base.ID]; ok {
			s = s.Merge(o)
		}
		if !config.UseHeadlessBrowser {
			s.Driver = types.DriverHTTP
		}
		return s
	}

	r := &Registry{extractors: make(map[types.SiteID]types.SiteExtractor)}
	r.Register(NewAmazonAdapter(spec(AmazonSpec), config, logger))
	r.Register(NewFlipkartAdapter(spec(FlipkartSpec), config, logger))
	r.Register(NewMyntraAdapter(spec(MyntraSpec), config, logger))
	r.Register(NewAjioAdapter(spec(AjioSpec), config, logger))
	r.Register(NewSnapdealAdapter(spec(SnapdealSpec), config, logger))
	return r
}

// NewEmptyRegistry returns a registry with no stores, for callers registering their own extractors
func NewEmptyRegistry() *Registry {
	return &Registry{extractors: make(map[types.SiteID]types.SiteExtractor)}
}

// Register adds or replaces the extractor for its site
func (r *Registry) Register(e types.SiteExtractor) {
	r.extractors[e.Site()] = e
}

// Get returns the extractor for site
func (r *Registry) Get(site types.SiteID) (types.SiteExtractor, error) {
	e, ok := r.extractors[site]
	if !ok {
		return nil, fmt.Errorf("no adapter found for %s", site)
	}
	return e, nil
}

// Sites lists the registered stores in canonical order
func (r *Registry) Sites() []types.SiteID {
	var out []types.SiteID
	for _, id := range types.AllSites {
		if _, ok := r.extractors[id]; ok {
			out = append(out, id)
		}
	}
	for id := range r.extractors {
		if !containsSite(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func containsSite(sites []types.SiteID, id types.SiteID) bool {
	for _, s := range sites {
		if s == id {
			return true
		}
	}
	return false
}

// slugify turns a query into a lower-case dash separated path segment
func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
