package config

import (
	"fmt"
	"sort"
	"time"
	_ "time/tzdata"

	"github.com/IshaanNene/hotnews/internal/site"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for hotnews.
type Config struct {
	Engine    EngineConfig          `mapstructure:"engine"     yaml:"engine"`
	UserAgent UserAgentConfig       `mapstructure:"user_agent" yaml:"user_agent"`
	Fetcher   FetcherConfig         `mapstructure:"fetcher"    yaml:"fetcher"`
	Crawl     CrawlConfig           `mapstructure:"crawl"      yaml:"crawl"`
	Sites     map[string]SiteConfig `mapstructure:"sites"      yaml:"sites"`
	Report    ReportConfig          `mapstructure:"report"     yaml:"report"`
	Logging   LoggingConfig         `mapstructure:"logging"    yaml:"logging"`
	Metrics   MetricsConfig         `mapstructure:"metrics"    yaml:"metrics"`
	Watch     WatchConfig           `mapstructure:"watch"      yaml:"watch"`
}

// EngineConfig controls the crawl engine of each site.
type EngineConfig struct {
	Concurrency        int           `mapstructure:"concurrency"          yaml:"concurrency"`
	ConcurrencyPerHost int           `mapstructure:"concurrency_per_host" yaml:"concurrency_per_host"`
	Delay              time.Duration `mapstructure:"delay"                yaml:"delay"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"      yaml:"request_timeout"`
	RunTimeout         time.Duration `mapstructure:"run_timeout"          yaml:"run_timeout"`
	MaxRetries         int           `mapstructure:"max_retries"          yaml:"max_retries"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"          yaml:"retry_delay"`
	MaxRetryDelay      time.Duration `mapstructure:"max_retry_delay"      yaml:"max_retry_delay"`
	DedupArticles      bool          `mapstructure:"dedup_articles"       yaml:"dedup_articles"`
}

// User-agent policies.
const (
	UserAgentFixed  = "fixed"
	UserAgentRotate = "rotate"
)

// UserAgentConfig selects the User-Agent header sent with every request.
type UserAgentConfig struct {
	Mode     string   `mapstructure:"mode"     yaml:"mode"`
	Fixed    string   `mapstructure:"fixed"    yaml:"fixed"`
	Pool     []string `mapstructure:"pool"     yaml:"pool"`
	Fallback string   `mapstructure:"fallback" yaml:"fallback"`
}

// FetcherConfig controls the HTTP client.
type FetcherConfig struct {
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
}

// CrawlConfig controls the time window and the size of the leaderboard.
type CrawlConfig struct {
	Window   time.Duration `mapstructure:"window"   yaml:"window"`
	Timezone string        `mapstructure:"timezone" yaml:"timezone"`
	TopN     int           `mapstructure:"top_n"    yaml:"top_n"`
}

// SiteConfig enables a site and optionally overrides its endpoints.
type SiteConfig struct {
	Enabled       bool   `mapstructure:"enabled"         yaml:"enabled"`
	BaseURL       string `mapstructure:"base_url"        yaml:"base_url"`
	CommentAPIURL string `mapstructure:"comment_api_url" yaml:"comment_api_url"`
}

// ReportConfig controls how results are printed.
type ReportConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// WatchConfig controls periodic re-crawls.
type WatchConfig struct {
	Schedule string `mapstructure:"schedule" yaml:"schedule"`
	APIPort  int    `mapstructure:"api_port" yaml:"api_port"`
}

// DefaultUserAgent is sent when no other user agent is configured.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Concurrency:        16,
			ConcurrencyPerHost: 8,
			Delay:              0,
			RequestTimeout:     30 * time.Second,
			RunTimeout:         10 * time.Minute,
			MaxRetries:         2,
			RetryDelay:         500 * time.Millisecond,
			MaxRetryDelay:      10 * time.Second,
			DedupArticles:      true,
		},
		UserAgent: UserAgentConfig{
			Mode: UserAgentRotate,
			Pool: []string{
				DefaultUserAgent,
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_2) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
				"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
			Fallback: DefaultUserAgent,
		},
		Fetcher: FetcherConfig{
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    100,
		},
		Crawl: CrawlConfig{
			Window:   4 * time.Hour,
			Timezone: "Asia/Bangkok",
			TopN:     10,
		},
		Sites: map[string]SiteConfig{
			site.VnExpressName: {Enabled: true},
			site.TuoiTreName:   {Enabled: true},
		},
		Report: ReportConfig{
			Format: "table",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
		Watch: WatchConfig{
			Schedule: "@every 15m",
			APIPort:  8080,
		},
	}
}

// Location loads the configured crawl timezone.
func (c CrawlConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("crawl.timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// WindowAt returns the crawl window ending at now in the configured timezone.
func (c CrawlConfig) WindowAt(now time.Time) (site.Window, error) {
	loc, err := c.Location()
	if err != nil {
		return site.Window{}, err
	}
	return site.WindowEndingAt(now, c.Window, loc), nil
}

// EnabledSites returns the names of the enabled sites, sorted.
func (c *Config) EnabledSites() []string {
	var names []string
	for name, sc := range c.Sites {
		if sc.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Adapters builds the adapters of every enabled site.
func (c *Config) Adapters() ([]site.Adapter, error) {
	var adapters []site.Adapter
	for _, name := range c.EnabledSites() {
		sc := c.Sites[name]
		a, err := site.New(name, site.Config{BaseURL: sc.BaseURL, CommentAPIURL: sc.CommentAPIURL})
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", name, err)
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}
