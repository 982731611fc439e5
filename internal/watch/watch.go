// Package watch re-runs the crawl on a cron schedule and keeps the latest
// reports in memory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/IshaanNene/hotnews/internal/manager"
	"github.com/IshaanNene/hotnews/internal/report"
	"github.com/IshaanNene/hotnews/internal/site"
)

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a five-field cron expression or a descriptor such as
// "@every 15m".
func ParseSchedule(spec string) (cron.Schedule, error) {
	s, err := scheduleParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

// WindowFunc resolves the crawl window of a run started at now.
type WindowFunc func(now time.Time) (site.Window, error)

// Snapshot is the outcome of the last finished run.
type Snapshot struct {
	Sites      []report.Site `json:"sites"`
	Window     site.Window   `json:"window"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Runs       int           `json:"runs"`
}

// Runner drives periodic crawls.
type Runner struct {
	mgr      *manager.Manager
	adapters []site.Adapter
	window   WindowFunc
	topN     int
	logger   *slog.Logger
	cron     *cron.Cron
	ctx      context.Context
	inflight sync.WaitGroup

	mu     sync.RWMutex
	latest Snapshot
	ready  bool
}

// NewRunner builds a Runner. Nothing runs until Start or RunOnce.
func NewRunner(mgr *manager.Manager, adapters []site.Adapter, window WindowFunc, topN int, logger *slog.Logger) *Runner {
	logger = logger.With("component", "watch")
	return &Runner{
		mgr:      mgr,
		adapters: adapters,
		window:   window,
		topN:     topN,
		logger:   logger,
		ctx:      context.Background(),
		cron: cron.New(
			cron.WithParser(scheduleParser),
			cron.WithChain(cron.Recover(cronLogger{logger}), cron.SkipIfStillRunning(cronLogger{logger})),
			cron.WithLogger(cronLogger{logger}),
		),
	}
}

// RunOnce crawls every site once and publishes the reports. A run already in
// progress makes it return manager.ErrRunning without waiting.
func (r *Runner) RunOnce(ctx context.Context) error {
	start := time.Now()
	w, err := r.window(start)
	if err != nil {
		return fmt.Errorf("resolve window: %w", err)
	}

	r.logger.Info("crawl run starting",
		"window_start", w.Start.Format(time.RFC3339),
		"window_end", w.End.Format(time.RFC3339),
	)
	if err := r.mgr.RunAll(ctx, w, r.adapters...); err != nil {
		return err
	}

	sites := r.mgr.Reports(r.topN)
	r.mu.Lock()
	r.latest = Snapshot{
		Sites:      sites,
		Window:     w,
		StartedAt:  start,
		FinishedAt: time.Now(),
		Runs:       r.latest.Runs + 1,
	}
	r.ready = true
	r.mu.Unlock()

	r.logger.Info("crawl run published", "duration", time.Since(start))
	return nil
}

// Start runs one crawl in the background right away and then one per tick
// of schedule, until ctx is done or Stop is called.
func (r *Runner) Start(ctx context.Context, schedule string) error {
	if _, err := ParseSchedule(schedule); err != nil {
		return err
	}
	r.ctx = ctx
	if _, err := r.cron.AddFunc(schedule, r.job); err != nil {
		return fmt.Errorf("schedule crawl: %w", err)
	}

	r.cron.Start()
	r.background()

	r.logger.Info("watch started", "schedule", schedule)
	return nil
}

// Refresh starts an unscheduled crawl in the background. It returns
// manager.ErrRunning when a crawl is already in progress.
func (r *Runner) Refresh() error {
	if r.mgr.Running() {
		return manager.ErrRunning
	}
	r.background()
	return nil
}

// Stop halts the schedule and waits for a running crawl to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.inflight.Wait()
	r.logger.Info("watch stopped")
}

func (r *Runner) job() {
	err := r.RunOnce(r.ctx)
	switch {
	case err == nil:
	case errors.Is(err, manager.ErrRunning):
		r.logger.Debug("crawl skipped, previous run still in progress")
	case errors.Is(err, context.Canceled):
		r.logger.Debug("crawl run cancelled", "error", err)
	default:
		r.logger.Error("crawl run failed", "error", err)
	}
}

func (r *Runner) background() {
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		r.job()
	}()
}

// Latest returns the last published snapshot. The second value is false
// until the first run finishes.
func (r *Runner) Latest() (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest, r.ready
}

// Site returns the last published report of one site.
func (r *Runner) Site(name string) (report.Site, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.latest.Sites {
		if s.Name == name {
			return s, true
		}
	}
	return report.Site{}, false
}

// Next returns the time of the next scheduled run, or the zero time when
// the runner is not started.
func (r *Runner) Next() time.Time {
	entries := r.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// cronLogger routes cron's logging into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
