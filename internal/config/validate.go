package config

import (
	"fmt"
	"net/url"
	"slices"

	"github.com/robfig/cron/v3"

	"github.com/IshaanNene/hotnews/internal/site"
)

// ReportFormats lists the accepted report.format values.
var ReportFormats = []string{"table", "json", "bar"}

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Engine.Concurrency < 1 {
		return fmt.Errorf("engine.concurrency must be >= 1, got %d", cfg.Engine.Concurrency)
	}
	if cfg.Engine.Concurrency > 1000 {
		return fmt.Errorf("engine.concurrency must be <= 1000, got %d", cfg.Engine.Concurrency)
	}
	if cfg.Engine.ConcurrencyPerHost < 1 {
		return fmt.Errorf("engine.concurrency_per_host must be >= 1, got %d", cfg.Engine.ConcurrencyPerHost)
	}
	if cfg.Engine.Delay < 0 {
		return fmt.Errorf("engine.delay must be >= 0")
	}
	if cfg.Engine.RequestTimeout <= 0 {
		return fmt.Errorf("engine.request_timeout must be > 0")
	}
	if cfg.Engine.RunTimeout < 0 {
		return fmt.Errorf("engine.run_timeout must be >= 0")
	}
	if cfg.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must be >= 0, got %d", cfg.Engine.MaxRetries)
	}
	if cfg.Engine.RetryDelay < 0 || cfg.Engine.MaxRetryDelay < cfg.Engine.RetryDelay {
		return fmt.Errorf("engine.retry_delay must be >= 0 and <= engine.max_retry_delay")
	}

	switch cfg.UserAgent.Mode {
	case UserAgentFixed:
		if cfg.UserAgent.Fixed == "" && cfg.UserAgent.Fallback == "" {
			return fmt.Errorf("user_agent.fixed or user_agent.fallback must be set in fixed mode")
		}
	case UserAgentRotate:
		if len(cfg.UserAgent.Pool) == 0 && cfg.UserAgent.Fallback == "" {
			return fmt.Errorf("user_agent.pool or user_agent.fallback must be set in rotate mode")
		}
	default:
		return fmt.Errorf("user_agent.mode must be 'fixed' or 'rotate', got %q", cfg.UserAgent.Mode)
	}

	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}

	if cfg.Crawl.Window <= 0 {
		return fmt.Errorf("crawl.window must be > 0")
	}
	if _, err := cfg.Crawl.Location(); err != nil {
		return err
	}
	if cfg.Crawl.TopN < 1 {
		return fmt.Errorf("crawl.top_n must be >= 1, got %d", cfg.Crawl.TopN)
	}

	known := site.Names()
	for name, sc := range cfg.Sites {
		if !slices.Contains(known, name) {
			return fmt.Errorf("sites.%s: unknown site (known: %v)", name, known)
		}
		for key, raw := range map[string]string{"base_url": sc.BaseURL, "comment_api_url": sc.CommentAPIURL} {
			if raw == "" {
				continue
			}
			if err := ValidateURL(raw); err != nil {
				return fmt.Errorf("sites.%s.%s: %w", name, key, err)
			}
		}
	}
	if len(cfg.EnabledSites()) == 0 {
		return fmt.Errorf("at least one site must be enabled")
	}

	if !slices.Contains(ReportFormats, cfg.Report.Format) {
		return fmt.Errorf("report.format must be one of %v, got %q", ReportFormats, cfg.Report.Format)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	if cfg.Watch.Schedule == "" {
		return fmt.Errorf("watch.schedule must be set")
	}
	if _, err := cron.ParseStandard(cfg.Watch.Schedule); err != nil {
		return fmt.Errorf("watch.schedule %q: %w", cfg.Watch.Schedule, err)
	}
	if cfg.Watch.APIPort < 0 || cfg.Watch.APIPort > 65535 {
		return fmt.Errorf("watch.api_port must be 0-65535, got %d", cfg.Watch.APIPort)
	}

	return nil
}

// ValidateURL checks if a URL string is valid for crawling.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
