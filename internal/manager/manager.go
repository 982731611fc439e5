// Package manager runs one crawl engine per site in parallel and exposes each
// site's ranked articles.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IshaanNene/hotnews/internal/article"
	"github.com/IshaanNene/hotnews/internal/config"
	"github.com/IshaanNene/hotnews/internal/engine"
	"github.com/IshaanNene/hotnews/internal/fetcher"
	"github.com/IshaanNene/hotnews/internal/observability"
	"github.com/IshaanNene/hotnews/internal/report"
	"github.com/IshaanNene/hotnews/internal/site"
)

var (
	// ErrRunning is returned by RunAll while another run is in progress.
	ErrRunning = errors.New("a crawl is already running")

	// ErrUnknownSite is returned for a site that was not part of the last run.
	ErrUnknownSite = errors.New("unknown site")
)

// FetcherFactory builds the fetcher of one site run.
type FetcherFactory func(cfg *config.Config, logger *slog.Logger) (fetcher.Fetcher, error)

// Option customizes a Manager.
type Option func(*Manager)

// WithFetcherFactory replaces the HTTP fetcher.
func WithFetcherFactory(f FetcherFactory) Option {
	return func(m *Manager) { m.newFetcher = f }
}

// WithMetrics records engine and run metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// siteRun is the state of one site in the current or last run.
type siteRun struct {
	tracker *article.Tracker
	engine  *engine.Engine
	err     error
}

// Manager coordinates the per-site crawls. Results of the last run stay
// readable until the next RunAll starts.
type Manager struct {
	cfg        *config.Config
	logger     *slog.Logger
	metrics    *observability.Metrics
	newFetcher FetcherFactory

	running atomic.Bool

	mu    sync.RWMutex
	sites []string
	runs  map[string]*siteRun
}

// New creates a Manager.
func New(cfg *config.Config, logger *slog.Logger, options ...Option) *Manager {
	m := &Manager{
		cfg:    cfg,
		logger: logger.With("component", "manager"),
		newFetcher: func(cfg *config.Config, logger *slog.Logger) (fetcher.Fetcher, error) {
			return fetcher.NewHTTPFetcher(cfg, logger)
		},
		runs: make(map[string]*siteRun),
	}
	for _, o := range options {
		o(m)
	}
	return m
}

// RunAll crawls every adapter's site over the window concurrently and
// returns once all of them have drained. A failing site is recorded and does
// not affect the others; RunAll only fails when ctx is cancelled.
func (m *Manager) RunAll(ctx context.Context, w site.Window, adapters ...site.Adapter) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer m.running.Store(false)

	names := make([]string, 0, len(adapters))
	runs := make(map[string]*siteRun, len(adapters))
	for _, a := range adapters {
		if _, dup := runs[a.Name()]; dup {
			return fmt.Errorf("site %q given twice", a.Name())
		}
		names = append(names, a.Name())
		runs[a.Name()] = &siteRun{tracker: article.NewTracker()}
	}

	m.mu.Lock()
	m.sites = names
	m.runs = runs
	m.mu.Unlock()

	m.logger.Info("run starting", "sites", names)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range adapters {
		a := a
		run := runs[a.Name()]
		g.Go(func() error {
			err := m.runSite(gctx, w, a, run)
			m.mu.Lock()
			run.err = err
			m.mu.Unlock()
			// Site failures stay with the site. Only cancellation of the
			// run stops the group.
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		m.logger.Warn("run cancelled", "sites", names, "duration", time.Since(start), "error", err)
		return err
	}

	m.logger.Info("run finished", "sites", names, "duration", time.Since(start))
	return nil
}

func (m *Manager) runSite(ctx context.Context, w site.Window, a site.Adapter, run *siteRun) (err error) {
	logger := m.logger.With("site", a.Name())
	start := time.Now()
	defer func() {
		m.metrics.RecordRun(a.Name(), time.Since(start), run.tracker.Len(), err)
		if err != nil {
			logger.Error("site run failed", "error", err)
		}
	}()

	f, err := m.newFetcher(m.cfg, logger)
	if err != nil {
		return fmt.Errorf("build fetcher: %w", err)
	}
	defer f.Close()

	e, err := engine.New(engine.OptionsFromConfig(m.cfg.Engine), a, f, run.tracker, m.logger, engine.WithMetrics(m.metrics))
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	m.mu.Lock()
	run.engine = e
	m.mu.Unlock()

	return e.Run(ctx, w)
}

// Sites returns the site names of the current or last run, in the order
// they were given.
func (m *Manager) Sites() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.sites...)
}

// TopArticles returns at most n articles of the site, most liked first.
// While the site is still crawling the list holds what has been scored so far.
func (m *Manager) TopArticles(name string, n int) ([]article.Article, error) {
	run, err := m.run(name)
	if err != nil {
		return nil, err
	}
	return run.tracker.Top(n), nil
}

// Err returns the fatal error of the site's run, if any.
func (m *Manager) Err(name string) error {
	run, err := m.run(name)
	if err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return run.err
}

// Stats returns the engine statistics of the site's run. The second value is
// false when the site's engine was never built.
func (m *Manager) Stats(name string) (engine.StatsSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[name]
	if !ok || run.engine == nil {
		return engine.StatsSnapshot{}, false
	}
	return run.engine.Stats().Snapshot(), true
}

// Reports builds the top-n report of every site, in run order.
func (m *Manager) Reports(n int) []report.Site {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sites := make([]report.Site, 0, len(m.sites))
	for _, name := range m.sites {
		run := m.runs[name]
		sites = append(sites, report.Build(name, run.tracker.Top(n), run.err))
	}
	return sites
}

// Running reports whether a run is in progress.
func (m *Manager) Running() bool { return m.running.Load() }

func (m *Manager) run(name string) (*siteRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSite, name)
	}
	return run, nil
}
