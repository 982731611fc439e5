package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/hotnews/internal/api"
	"github.com/IshaanNene/hotnews/internal/config"
	"github.com/IshaanNene/hotnews/internal/manager"
	"github.com/IshaanNene/hotnews/internal/observability"
	"github.com/IshaanNene/hotnews/internal/watch"
)

var (
	schedule string
	apiPort  int
)

// watchCmd creates the "watch" subcommand.
func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-crawl on a schedule and serve the latest results over HTTP",
		Long: `Crawl right away and then on every tick of the schedule. The latest report of
each site is served at /api/sites and Prometheus metrics at /metrics.`,
		Args: cobra.NoArgs,
		RunE: runWatch,
	}

	addCrawlFlags(cmd)
	cmd.Flags().StringVar(&schedule, "schedule", "", `cron schedule, e.g. "@every 15m" or "*/15 * * * *"`)
	cmd.Flags().IntVar(&apiPort, "port", 0, "HTTP API port")
	return cmd
}

// runWatch executes the watch command.
func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("schedule") {
		cfg.Watch.Schedule = schedule
	}
	if cmd.Flags().Changed("port") {
		cfg.Watch.APIPort = apiPort
	}
	if err := applyCLIOverrides(cmd, cfg); err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	adapters, err := cfg.Adapters()
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics(logger)
	if cfg.Metrics.Enabled {
		srv := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path)
		defer srv.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr := manager.New(cfg, logger, manager.WithMetrics(metrics))
	runner := watch.NewRunner(mgr, adapters, cfg.Crawl.WindowAt, cfg.Crawl.TopN, logger)
	if err := runner.Start(ctx, cfg.Watch.Schedule); err != nil {
		return err
	}

	server := api.NewServer(cfg.Watch.APIPort, cfg.Crawl.TopN, runner, logger,
		api.WithMetrics(metrics),
		api.WithVersion(config.Version),
	)
	if err := server.Start(); err != nil {
		runner.Stop()
		return fmt.Errorf("start api: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown", "error", err)
	}
	runner.Stop()
	return nil
}
