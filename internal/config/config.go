package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"product-aggregator/adapters"
	"product-aggregator/internal/types"
)

// Load builds the configuration from the environment. A .env file in the
// working directory is read first when present; real env vars win.
func Load() (*types.Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration from getenv, starting from DefaultConfig
func FromEnv(getenv func(string) string) (*types.Config, error) {
	config := types.DefaultConfig()

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	var errs []string
	dur := func(key string, dst *time.Duration) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d < 0 {
				errs = append(errs, fmt.Sprintf("%s=%q is not a valid duration", key, v))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				errs = append(errs, fmt.Sprintf("%s=%q is not a positive integer", key, v))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s=%q is not a boolean", key, v))
				return
			}
			*dst = b
		}
	}

	str("API_PORT", &config.Port)
	str("LOG_LEVEL", &config.LogLevel)
	num("MAX_RETRIES", &config.MaxRetries)
	dur("RETRY_BACKOFF", &config.RetryBackoff)
	dur("NAV_TIMEOUT", &config.Timeout)
	dur("DOM_TIMEOUT", &config.DOMTimeout)
	dur("TEARDOWN_TIMEOUT", &config.TeardownTimeout)
	dur("SCROLL_PAUSE", &config.ScrollPause)
	dur("REQUEST_DELAY", &config.RequestDelay)
	num("MAX_CONCURRENT", &config.MaxConcurrentRequests)
	flag("USE_HEADLESS_BROWSER", &config.UseHeadlessBrowser)
	str("CHROME_PATH", &config.ChromePath)
	str("USER_AGENT", &config.UserAgent)
	str("SITES_FILE", &config.SitesFile)
	str("PROXY_LIST_URL", &config.ProxyListURL)
	str("PROXY_CHECK_URL", &config.ProxyCheckURL)
	str("SUGGESTIONS_URL", &config.SuggestionsURL)
	str("OPENAI_API_KEY", &config.OpenAIKey)
	str("OPENAI_BASE_URL", &config.OpenAIBaseURL)
	str("OPENAI_MODEL", &config.OpenAIModel)

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return config, nil
}

// LoadSiteSpecs reads selector overrides from a YAML file keyed by site id:
//
//	myntra:
//	  scroll_steps: 5
//	  selectors:
//	    card: li.product-base
//
// An empty path yields no overrides.
func LoadSiteSpecs(path string) (map[types.SiteID]adapters.SiteSpec, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sites file %s: %w", path, err)
	}
	return ParseSiteSpecs(data)
}

// ParseSiteSpecs decodes YAML selector overrides
func ParseSiteSpecs(data []byte) (map[types.SiteID]adapters.SiteSpec, error) {
	var raw map[string]adapters.SiteSpec
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse sites file: %w", err)
	}

	specs := make(map[types.SiteID]adapters.SiteSpec, len(raw))
	for name, spec := range raw {
		id, err := types.ParseSiteID(name)
		if err != nil {
			return nil, fmt.Errorf("sites file: %w", err)
		}
		switch spec.Driver {
		case "", types.DriverBrowser, types.DriverHTTP:
		default:
			return nil, fmt.Errorf("sites file: %s: unknown driver %q", name, spec.Driver)
		}
		if spec.SearchURL != "" && strings.Count(spec.SearchURL, "%s") != 1 {
			return nil, fmt.Errorf("sites file: %s: search_url must contain exactly one %%s", name)
		}
		spec.ID = id
		specs[id] = spec
	}
	return specs, nil
}
