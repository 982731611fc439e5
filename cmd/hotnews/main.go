package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/IshaanNene/hotnews/internal/config"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hotnews",
		Short: "hotnews: most-liked Vietnamese news of the last hours",
		Long: `hotnews crawls VnExpress and TuoiTre for the articles published in a recent
time window, adds up the likes of every comment under each article, and prints
the most engaging articles per site.

Features:
  • Concurrent crawl with global and per-host caps
  • Retry with exponential backoff on transient failures
  • Table, JSON and menu-bar output
  • Watch mode: cron re-crawl with an HTTP API and Prometheus metrics`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(topCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(sitesCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

// loadConfig reads .env, then the config file and environment.
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hotnews %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Engine:\n")
			fmt.Fprintf(out, "  Concurrency:          %d\n", cfg.Engine.Concurrency)
			fmt.Fprintf(out, "  Per-host Concurrency: %d\n", cfg.Engine.ConcurrencyPerHost)
			fmt.Fprintf(out, "  Delay:                %s\n", cfg.Engine.Delay)
			fmt.Fprintf(out, "  Request Timeout:      %s\n", cfg.Engine.RequestTimeout)
			fmt.Fprintf(out, "  Run Timeout:          %s\n", cfg.Engine.RunTimeout)
			fmt.Fprintf(out, "  Max Retries:          %d\n", cfg.Engine.MaxRetries)
			fmt.Fprintf(out, "  Retry Delay:          %s (max %s)\n", cfg.Engine.RetryDelay, cfg.Engine.MaxRetryDelay)
			fmt.Fprintf(out, "  Dedup Articles:       %v\n", cfg.Engine.DedupArticles)
			fmt.Fprintf(out, "\nUser Agent:\n")
			fmt.Fprintf(out, "  Mode:                 %s\n", cfg.UserAgent.Mode)
			fmt.Fprintf(out, "  Pool:                 %d configured\n", len(cfg.UserAgent.Pool))
			fmt.Fprintf(out, "\nFetcher:\n")
			fmt.Fprintf(out, "  Follow Redirects:     %v (max %d)\n", cfg.Fetcher.FollowRedirects, cfg.Fetcher.MaxRedirects)
			fmt.Fprintf(out, "  Max Body Size:        %d bytes\n", cfg.Fetcher.MaxBodySize)
			fmt.Fprintf(out, "\nCrawl:\n")
			fmt.Fprintf(out, "  Window:               %s\n", cfg.Crawl.Window)
			fmt.Fprintf(out, "  Timezone:             %s\n", cfg.Crawl.Timezone)
			fmt.Fprintf(out, "  Top N:                %d\n", cfg.Crawl.TopN)
			fmt.Fprintf(out, "\nSites:\n")
			for _, name := range sortedSiteNames(cfg) {
				sc := cfg.Sites[name]
				fmt.Fprintf(out, "  %-21s enabled=%v base=%s comments=%s\n", name+":", sc.Enabled, orDefault(sc.BaseURL), orDefault(sc.CommentAPIURL))
			}
			fmt.Fprintf(out, "\nReport:\n")
			fmt.Fprintf(out, "  Format:               %s\n", cfg.Report.Format)
			fmt.Fprintf(out, "\nMetrics:\n")
			fmt.Fprintf(out, "  Enabled:              %v\n", cfg.Metrics.Enabled)
			fmt.Fprintf(out, "  Port:                 %d\n", cfg.Metrics.Port)
			fmt.Fprintf(out, "\nWatch:\n")
			fmt.Fprintf(out, "  Schedule:             %s\n", cfg.Watch.Schedule)
			fmt.Fprintf(out, "  API Port:             %d\n", cfg.Watch.APIPort)
			return nil
		},
	}
}

func orDefault(s string) string {
	if s == "" {
		return "(default)"
	}
	return s
}

// setupLogger creates a structured logger from the logging section.
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
