package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. HOTNEWS_CRAWL_TOP_N.
const EnvPrefix = "HOTNEWS"

// Load reads configuration from file and environment.
// Priority (highest to lowest): env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("hotnews")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".hotnews"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers default values in viper. Every key must be
// registered for environment overrides to apply.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("engine.concurrency", cfg.Engine.Concurrency)
	v.SetDefault("engine.concurrency_per_host", cfg.Engine.ConcurrencyPerHost)
	v.SetDefault("engine.delay", cfg.Engine.Delay)
	v.SetDefault("engine.request_timeout", cfg.Engine.RequestTimeout)
	v.SetDefault("engine.run_timeout", cfg.Engine.RunTimeout)
	v.SetDefault("engine.max_retries", cfg.Engine.MaxRetries)
	v.SetDefault("engine.retry_delay", cfg.Engine.RetryDelay)
	v.SetDefault("engine.max_retry_delay", cfg.Engine.MaxRetryDelay)
	v.SetDefault("engine.dedup_articles", cfg.Engine.DedupArticles)

	v.SetDefault("user_agent.mode", cfg.UserAgent.Mode)
	v.SetDefault("user_agent.fixed", cfg.UserAgent.Fixed)
	v.SetDefault("user_agent.pool", cfg.UserAgent.Pool)
	v.SetDefault("user_agent.fallback", cfg.UserAgent.Fallback)

	v.SetDefault("fetcher.follow_redirects", cfg.Fetcher.FollowRedirects)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.tls_insecure", cfg.Fetcher.TLSInsecure)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)

	v.SetDefault("crawl.window", cfg.Crawl.Window)
	v.SetDefault("crawl.timezone", cfg.Crawl.Timezone)
	v.SetDefault("crawl.top_n", cfg.Crawl.TopN)

	for name, sc := range cfg.Sites {
		v.SetDefault("sites."+name+".enabled", sc.Enabled)
		v.SetDefault("sites."+name+".base_url", sc.BaseURL)
		v.SetDefault("sites."+name+".comment_api_url", sc.CommentAPIURL)
	}

	v.SetDefault("report.format", cfg.Report.Format)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)

	v.SetDefault("watch.schedule", cfg.Watch.Schedule)
	v.SetDefault("watch.api_port", cfg.Watch.APIPort)
}
