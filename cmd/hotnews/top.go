package main

import (
	"fmt"
	"os"
	"os/signal"
	"slices"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/hotnews/internal/config"
	"github.com/IshaanNene/hotnews/internal/manager"
	"github.com/IshaanNene/hotnews/internal/observability"
	"github.com/IshaanNene/hotnews/internal/report"
	"github.com/IshaanNene/hotnews/internal/site"
)

var (
	outputFormat string
	topN         int
	window       time.Duration
	timezone     string
	siteList     []string
	concurrency  int
	perHost      int
)

// topCmd creates the "top" subcommand.
func topCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "top",
		Short: "Crawl once and print the most liked articles per site",
		Long: `Crawl every enabled site for the articles published in the window ending now,
score each by the total likes of its comments, and print the top articles.`,
		Args: cobra.NoArgs,
		RunE: runTop,
	}

	addCrawlFlags(cmd)
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "", "output format: table, json, bar")
	return cmd
}

// addCrawlFlags registers the flags shared by top and watch.
func addCrawlFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&topN, "top", "n", 0, "articles to list per site")
	cmd.Flags().DurationVarP(&window, "window", "w", 0, "length of the window ending now, e.g. 4h")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA timezone of the window, e.g. Asia/Bangkok")
	cmd.Flags().StringSliceVar(&siteList, "sites", nil, "comma-separated sites to crawl (default: enabled sites)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "global in-flight request cap per site")
	cmd.Flags().IntVar(&perHost, "per-host", 0, "in-flight request cap per host")
}

// runTop executes the top command.
func runTop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyCLIOverrides(cmd, cfg); err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	adapters, err := cfg.Adapters()
	if err != nil {
		return err
	}
	w, err := cfg.Crawl.WindowAt(time.Now())
	if err != nil {
		return err
	}

	var opts []manager.Option
	if cfg.Metrics.Enabled {
		metrics := observability.NewMetrics(logger)
		srv := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path)
		defer srv.Close()
		opts = append(opts, manager.WithMetrics(metrics))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting crawl",
		"sites", cfg.EnabledSites(),
		"window_start", w.Start.Format(time.RFC3339),
		"window_end", w.End.Format(time.RFC3339),
		"concurrency", cfg.Engine.Concurrency,
	)

	mgr := manager.New(cfg, logger, opts...)
	start := time.Now()
	if err := mgr.RunAll(ctx, w, adapters...); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("crawl: %w", err)
		}
		logger.Warn("crawl interrupted, printing partial results", "error", err)
	}

	for _, name := range mgr.Sites() {
		if stats, ok := mgr.Stats(name); ok {
			logger.Info("site crawled",
				"site", name,
				"articles", stats.Completed,
				"dropped", stats.Dropped,
				"requests", stats.RequestsSent,
				"retries", stats.RequestsRetried,
				"timed_out", stats.TimedOut,
			)
		}
	}
	logger.Info("crawl complete", "elapsed", time.Since(start).Round(time.Millisecond))

	return report.Write(cmd.OutOrStdout(), cfg.Report.Format, mgr.Reports(cfg.Crawl.TopN))
}

// applyCLIOverrides applies the flags that were set to the config and
// validates the result.
func applyCLIOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("format") {
		cfg.Report.Format = strings.ToLower(outputFormat)
	}
	if flags.Changed("top") {
		cfg.Crawl.TopN = topN
	}
	if flags.Changed("window") {
		cfg.Crawl.Window = window
	}
	if flags.Changed("timezone") {
		cfg.Crawl.Timezone = timezone
	}
	if flags.Changed("concurrency") {
		cfg.Engine.Concurrency = concurrency
	}
	if flags.Changed("per-host") {
		cfg.Engine.ConcurrencyPerHost = perHost
	}
	if flags.Changed("sites") {
		if err := selectSites(cfg, siteList); err != nil {
			return err
		}
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// selectSites enables exactly the named sites.
func selectSites(cfg *config.Config, names []string) error {
	known := site.Names()
	for i, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if !slices.Contains(known, name) {
			return fmt.Errorf("unknown site %q (known: %s)", name, strings.Join(known, ", "))
		}
		names[i] = name
	}

	if cfg.Sites == nil {
		cfg.Sites = make(map[string]config.SiteConfig)
	}
	for _, name := range known {
		sc := cfg.Sites[name]
		sc.Enabled = slices.Contains(names, name)
		cfg.Sites[name] = sc
	}
	return nil
}

func sortedSiteNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Sites))
	for name := range cfg.Sites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
