package sources

import (
	"os"
	"time"

	"github.com/jonathan/tender-radar/internal/fetch"
	"github.com/jonathan/tender-radar/internal/logger"
	"github.com/jonathan/tender-radar/internal/retry"
	"github.com/jonathan/tender-radar/internal/telemetry"
	"github.com/jonathan/tender-radar/internal/types"
)

// Config describes one configured source.
type Config struct {
	Name    string            `yaml:"name" json:"name" validate:"required"`
	Kind    types.SourceKind  `yaml:"kind" json:"kind" validate:"required,oneof=api_a html_b search_c rss"`
	URL     string            `yaml:"url" json:"url,omitempty" validate:"omitempty,url"`
	Feeds   []string          `yaml:"feeds" json:"feeds,omitempty" validate:"dive,url"`
	Headers map[string]string `yaml:"headers" json:"headers,omitempty"`
	// APIKeyEnv names an environment variable whose value is sent in APIKeyHeader.
	APIKeyEnv    string        `yaml:"api_key_env" json:"api_key_env,omitempty"`
	APIKeyHeader string        `yaml:"api_key_header" json:"api_key_header,omitempty"`
	PageSize     int           `yaml:"page_size" json:"page_size,omitempty" validate:"gte=0"`
	MaxPages     int           `yaml:"max_pages" json:"max_pages,omitempty" validate:"gte=0"`
	Delay        time.Duration `yaml:"delay" json:"delay,omitempty"`
	// Enrich fetches detail pages for candidates without a description.
	Enrich   bool         `yaml:"enrich" json:"enrich,omitempty"`
	Disabled bool         `yaml:"disabled" json:"disabled,omitempty"`
	REST     RESTConfig   `yaml:"rest" json:"rest"`
	Search   SearchConfig `yaml:"search" json:"search"`
	Table    TableConfig  `yaml:"table" json:"table"`
}

// Deps are the shared collaborators every connector needs.
type Deps struct {
	HTTP    *fetch.Options
	Retry   retry.Config
	Logger  logger.Logger
	Metrics *telemetry.Provider
	// NewBrowser builds the browser for table sources. Nil uses a headless Chrome.
	NewBrowser func(cfg TableConfig) TableBrowser
}

// New builds the connector for cfg.
func New(cfg Config, deps Deps) (Connector, error) {
	pager := pagerOptions(cfg, deps)
	httpOpts := sourceHTTP(cfg, deps)

	switch cfg.Kind {
	case types.SourceAPIA:
		if cfg.URL == "" {
			return nil, &ConfigError{Source: cfg.Name, Message: "url is required"}
		}
		return NewRESTConnector(cfg.Name, cfg.URL, cfg.REST, httpOpts, pager), nil
	case types.SourceSearchC:
		if cfg.URL == "" {
			return nil, &ConfigError{Source: cfg.Name, Message: "url is required"}
		}
		return NewSearchConnector(cfg.Name, cfg.URL, cfg.Search, httpOpts, pager), nil
	case types.SourceHTMLB:
		if cfg.URL == "" {
			return nil, &ConfigError{Source: cfg.Name, Message: "url is required"}
		}
		newBrowser := deps.NewBrowser
		if newBrowser == nil {
			newBrowser = ChromeBrowserFactory(deps.HTTP)
		}
		table := cfg.Table
		return NewTableConnector(cfg.Name, cfg.URL, table, func() TableBrowser { return newBrowser(table) }, pager), nil
	case types.SourceRSS:
		feeds := cfg.Feeds
		if len(feeds) == 0 && cfg.URL != "" {
			feeds = []string{cfg.URL}
		}
		if len(feeds) == 0 {
			return nil, &ConfigError{Source: cfg.Name, Message: "at least one feed url is required"}
		}
		return NewRSSConnector(cfg.Name, feeds, httpOpts, pager), nil
	default:
		return nil, &ConfigError{Source: cfg.Name, Message: "unknown kind " + string(cfg.Kind)}
	}
}

// NewEnricher builds the detail-page enricher for cfg. It shares the source's
// headers, retry policy and polite delay.
func NewEnricher(cfg Config, deps Deps) *DetailEnricher {
	opts := pagerOptions(cfg, deps)
	opts.Logger = logger.OrNop(deps.Logger).With(logger.String("source", cfg.Name))
	return NewDetailEnricher(sourceHTTP(cfg, deps), nil, opts)
}

func pagerOptions(cfg Config, deps Deps) PagerOptions {
	return PagerOptions{
		Retry:    deps.Retry,
		Delay:    cfg.Delay,
		MaxPages: cfg.MaxPages,
		Logger:   deps.Logger,
		Metrics:  deps.Metrics,
	}
}

// sourceHTTP applies the source's headers and API key to the shared options.
func sourceHTTP(cfg Config, deps Deps) *fetch.Options {
	headers := cfg.Headers
	if cfg.APIKeyEnv != "" {
		if key := os.Getenv(cfg.APIKeyEnv); key != "" {
			header := cfg.APIKeyHeader
			if header == "" {
				header = "X-API-Key"
			}
			headers = mergeHeaders(headers, map[string]string{header: key})
		}
	}
	return httpOptions(deps.HTTP, headers)
}

// ChromeBrowserFactory returns a factory for headless Chrome browsers configured from
// a table source.
func ChromeBrowserFactory(httpOpts *fetch.Options) func(TableConfig) TableBrowser {
	return func(cfg TableConfig) TableBrowser {
		opts := fetch.DefaultBrowserOptions()
		if cfg.TableSelector != "" {
			opts.TableSelector = cfg.TableSelector
		}
		if cfg.NextSelector != "" {
			opts.NextSelector = cfg.NextSelector
		}
		if httpOpts != nil && httpOpts.Timeout > 0 {
			opts.Timeout = httpOpts.Timeout
		}
		return fetch.NewChromeBrowser(opts)
	}
}

func httpOptions(base *fetch.Options, headers map[string]string) *fetch.Options {
	opts := fetch.DefaultOptions()
	if base != nil {
		copied := *base
		opts = &copied
	}
	if len(headers) > 0 {
		opts.Headers = mergeHeaders(opts.Headers, headers)
	}
	return opts
}

func mergeHeaders(a, b map[string]string) map[string]string {
	merged := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		merged[k] = v
	}
	return merged
}
