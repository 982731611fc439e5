// Package engine drives the crawl of one site: it seeds listing requests,
// fetches them under concurrency limits, and follows each chain through the
// site adapter until it is scored or dropped.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/hotnews/internal/article"
	"github.com/IshaanNene/hotnews/internal/config"
	"github.com/IshaanNene/hotnews/internal/fetcher"
	"github.com/IshaanNene/hotnews/internal/observability"
	"github.com/IshaanNene/hotnews/internal/site"
	"github.com/IshaanNene/hotnews/internal/types"
)

// Reasons a chain is dropped.
const (
	DropNoThread  = "no_thread"
	DropFetch     = "fetch"
	DropParse     = "parse"
	DropOffsite   = "offsite"
	DropDuplicate = "duplicate"
	DropInvalid   = "invalid"
)

// ErrAlreadyRun is returned by Run on an engine that has been run before.
var ErrAlreadyRun = errors.New("engine has already run")

// Sink receives every scored article.
type Sink interface {
	Add(a article.Article)
}

// Options tune one engine.
type Options struct {
	Concurrency        int
	ConcurrencyPerHost int
	Delay              time.Duration
	RequestTimeout     time.Duration
	RunTimeout         time.Duration
	MaxRetries         int
	RetryDelay         time.Duration
	MaxRetryDelay      time.Duration
	DedupArticles      bool
}

// OptionsFromConfig maps the engine section of the configuration.
func OptionsFromConfig(cfg config.EngineConfig) Options {
	return Options{
		Concurrency:        cfg.Concurrency,
		ConcurrencyPerHost: cfg.ConcurrencyPerHost,
		Delay:              cfg.Delay,
		RequestTimeout:     cfg.RequestTimeout,
		RunTimeout:         cfg.RunTimeout,
		MaxRetries:         cfg.MaxRetries,
		RetryDelay:         cfg.RetryDelay,
		MaxRetryDelay:      cfg.MaxRetryDelay,
		DedupArticles:      cfg.DedupArticles,
	}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithMetrics mirrors the engine's counters to Prometheus.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Stats tracks crawl statistics.
type Stats struct {
	RequestsSent    atomic.Int64
	RequestsFailed  atomic.Int64
	RequestsRetried atomic.Int64
	ResponsesOK     atomic.Int64
	BytesDownloaded atomic.Int64
	Enqueued        atomic.Int64
	Completed       atomic.Int64
	Dropped         atomic.Int64
	ActiveWorkers   atomic.Int32
	TimedOut        atomic.Bool

	mu          sync.Mutex
	startTime   time.Time
	endTime     time.Time
	dropReasons map[string]int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	RequestsSent    int64            `json:"requests_sent"`
	RequestsFailed  int64            `json:"requests_failed"`
	RequestsRetried int64            `json:"requests_retried"`
	ResponsesOK     int64            `json:"responses_ok"`
	BytesDownloaded int64            `json:"bytes_downloaded"`
	Enqueued        int64            `json:"enqueued"`
	Completed       int64            `json:"completed"`
	Dropped         int64            `json:"dropped"`
	DropReasons     map[string]int64 `json:"drop_reasons"`
	ActiveWorkers   int32            `json:"active_workers"`
	TimedOut        bool             `json:"timed_out"`
	StartTime       time.Time        `json:"start_time"`
	Elapsed         time.Duration    `json:"elapsed"`
}

func newStats() *Stats {
	return &Stats{dropReasons: make(map[string]int64)}
}

func (s *Stats) recordDrop(reason string) {
	s.Dropped.Add(1)
	s.mu.Lock()
	s.dropReasons[reason]++
	s.mu.Unlock()
}

func (s *Stats) markStart(t time.Time) {
	s.mu.Lock()
	s.startTime = t
	s.mu.Unlock()
}

func (s *Stats) markEnd(t time.Time) {
	s.mu.Lock()
	s.endTime = t
	s.mu.Unlock()
}

// Snapshot returns a copy of stats safe for reading.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	reasons := make(map[string]int64, len(s.dropReasons))
	for k, v := range s.dropReasons {
		reasons[k] = v
	}
	start, end := s.startTime, s.endTime
	s.mu.Unlock()

	var elapsed time.Duration
	switch {
	case start.IsZero():
	case end.IsZero():
		elapsed = time.Since(start)
	default:
		elapsed = end.Sub(start)
	}

	return StatsSnapshot{
		RequestsSent:    s.RequestsSent.Load(),
		RequestsFailed:  s.RequestsFailed.Load(),
		RequestsRetried: s.RequestsRetried.Load(),
		ResponsesOK:     s.ResponsesOK.Load(),
		BytesDownloaded: s.BytesDownloaded.Load(),
		Enqueued:        s.Enqueued.Load(),
		Completed:       s.Completed.Load(),
		Dropped:         s.Dropped.Load(),
		DropReasons:     reasons,
		ActiveWorkers:   s.ActiveWorkers.Load(),
		TimedOut:        s.TimedOut.Load(),
		StartTime:       start,
		Elapsed:         elapsed,
	}
}

// Engine crawls one site. It is single use: build a new one per run.
type Engine struct {
	opts      Options
	adapter   site.Adapter
	fetcher   fetcher.Fetcher
	sink      Sink
	metrics   *observability.Metrics
	logger    *slog.Logger
	domains   []string
	frontier  *Frontier
	dedup     *Deduplicator
	limiter   *hostLimiter
	scheduler *Scheduler

	pending atomic.Int64
	started atomic.Bool
	stats   *Stats
}

// New creates an Engine for the adapter's site.
func New(opts Options, adapter site.Adapter, f fetcher.Fetcher, sink Sink, logger *slog.Logger, options ...Option) (*Engine, error) {
	switch {
	case adapter == nil:
		return nil, fmt.Errorf("engine: nil adapter")
	case f == nil:
		return nil, fmt.Errorf("engine: nil fetcher")
	case sink == nil:
		return nil, fmt.Errorf("engine: nil sink")
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	e := &Engine{
		opts:     opts,
		adapter:  adapter,
		fetcher:  f,
		sink:     sink,
		logger:   logger.With("component", "engine", "site", adapter.Name()),
		domains:  adapter.AllowedDomains(),
		frontier: NewFrontier(),
		limiter:  newHostLimiter(opts.ConcurrencyPerHost, opts.Delay),
		stats:    newStats(),
	}
	if opts.DedupArticles {
		e.dedup = NewDeduplicator(4096)
	}
	for _, o := range options {
		o(e)
	}
	e.scheduler = NewScheduler(e)
	return e, nil
}

// Site returns the name of the site being crawled.
func (e *Engine) Site() string { return e.adapter.Name() }

// Stats returns the live crawl statistics.
func (e *Engine) Stats() *Stats { return e.stats }

// Pending returns the number of requests queued, in flight or awaiting a retry.
func (e *Engine) Pending() int64 { return e.pending.Load() }

// Run crawls the window and returns once every chain is completed or
// dropped. Hitting the run timeout keeps the articles scored so far and is
// not an error; cancellation of ctx is.
func (e *Engine) Run(ctx context.Context, w site.Window) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}

	seeds, err := e.adapter.SeedRequests(w)
	if err != nil {
		return fmt.Errorf("seed %s: %w", e.adapter.Name(), err)
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if e.opts.RunTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.opts.RunTimeout)
	}
	defer cancel()

	e.logger.Info("crawl starting",
		"window_start", w.Start.Format(time.RFC3339),
		"window_end", w.End.Format(time.RFC3339),
		"seeds", len(seeds),
		"concurrency", e.opts.Concurrency,
		"concurrency_per_host", e.opts.ConcurrencyPerHost,
	)
	e.stats.markStart(time.Now())

	// Held until every seed is queued so that early completions cannot
	// close the frontier.
	e.pending.Add(1)
	for _, req := range seeds {
		e.enqueue(req)
	}
	e.scheduler.Start(runCtx)
	e.release()

	e.scheduler.Wait()
	e.frontier.Close()
	e.stats.markEnd(time.Now())

	if err := ctx.Err(); err != nil {
		e.logger.Warn("crawl cancelled", "error", err, "stats", e.stats.Snapshot())
		return err
	}
	if runCtx.Err() != nil {
		e.stats.TimedOut.Store(true)
		e.logger.Warn("run timeout reached, keeping partial results",
			"run_timeout", e.opts.RunTimeout,
			"pending", e.pending.Load(),
		)
	}

	e.logger.Info("crawl finished", "stats", e.stats.Snapshot())
	return nil
}

// enqueue admits a request into the frontier, or drops its chain.
func (e *Engine) enqueue(req *types.Request) {
	if !allowedHost(req.Domain(), e.domains) {
		e.drop(e.chainLogger(req), DropOffsite, fmt.Errorf("%s: %w", req.Domain(), types.ErrOffsite))
		return
	}
	if req.Stage == types.StageArticle && e.dedup != nil && e.dedup.SeenOrMark(req.URLString()) {
		e.drop(e.chainLogger(req), DropDuplicate, types.ErrDuplicate)
		return
	}

	req.MaxRetries = e.opts.MaxRetries
	e.metrics.SetPending(e.Site(), e.pending.Add(1))
	if err := e.frontier.Push(req); err != nil {
		e.chainLogger(req).Debug("request discarded", "error", err)
		e.release()
		return
	}
	e.stats.Enqueued.Add(1)
}

// release ends one unit of pending work. The frontier closes when none is
// left, which lets the workers exit.
func (e *Engine) release() {
	n := e.pending.Add(-1)
	e.metrics.SetPending(e.Site(), n)
	if n == 0 {
		e.frontier.Close()
	}
}

// complete records a fully aggregated chain.
func (e *Engine) complete(logger *slog.Logger, stub types.ArticleStub, likes int) {
	a, err := article.New(stub.Title, stub.URL, likes)
	if err != nil {
		e.drop(logger, DropInvalid, err)
		return
	}
	e.sink.Add(a)
	e.stats.Completed.Add(1)
	e.metrics.RecordCompleted(e.Site())
	logger.Debug("article scored", "title", a.Title, "total_likes", a.TotalLikes)
}

// drop abandons a chain. Siblings are unaffected.
func (e *Engine) drop(logger *slog.Logger, reason string, err error) {
	e.stats.recordDrop(reason)
	e.metrics.RecordDrop(e.Site(), reason)

	switch reason {
	case DropNoThread, DropDuplicate, DropOffsite:
		logger.Debug("chain dropped", "reason", reason, "error", err)
	default:
		logger.Warn("chain dropped", "reason", reason, "error", err)
	}
}

func (e *Engine) chainLogger(req *types.Request) *slog.Logger {
	return e.logger.With("chain_id", req.ChainID, "stage", req.Stage.String(), "url", req.URLString())
}
