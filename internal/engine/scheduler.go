package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/IshaanNene/hotnews/internal/types"
)

// Scheduler manages worker goroutines that dequeue from the frontier and
// dispatch fetches. The worker count is the engine's global in-flight cap.
type Scheduler struct {
	engine *Engine
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewScheduler creates a new Scheduler.
func NewScheduler(e *Engine) *Scheduler {
	return &Scheduler{
		engine: e,
		logger: e.logger.With("component", "scheduler"),
	}
}

// Start launches the worker pool.
func (s *Scheduler) Start(ctx context.Context) {
	concurrency := s.engine.opts.Concurrency
	s.logger.Debug("starting worker pool", "workers", concurrency)

	for i := 0; i < concurrency; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}
}

// Wait blocks until all workers are done.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// worker is a single crawl worker goroutine. It exits when the frontier is
// closed and drained or ctx is done.
func (s *Scheduler) worker(ctx context.Context, id int) {
	defer s.wg.Done()
	logger := s.logger.With("worker_id", id)

	for {
		req := s.engine.frontier.Pop(ctx)
		if req == nil {
			return
		}

		s.engine.stats.ActiveWorkers.Add(1)
		s.processRequest(ctx, logger, req)
		s.engine.stats.ActiveWorkers.Add(-1)
	}
}

// processRequest fetches one request and hands the response to the adapter
// step its stage names. Follow-up requests are queued before the request's
// own pending unit is released.
func (s *Scheduler) processRequest(ctx context.Context, logger *slog.Logger, req *types.Request) {
	e := s.engine
	defer e.release()

	logger = logger.With("chain_id", req.ChainID, "stage", req.Stage.String(), "url", req.URLString())

	release, err := e.limiter.Acquire(ctx, req.Domain())
	if err != nil {
		logger.Debug("run ended while waiting for host slot", "error", err)
		return
	}

	timeout := e.opts.RequestTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	fetchCtx, fetchCancel := context.WithTimeout(ctx, timeout)

	e.stats.RequestsSent.Add(1)
	start := time.Now()
	resp, err := e.fetcher.Fetch(fetchCtx, req)
	fetchCancel()
	release()
	e.metrics.RecordFetch(e.Site(), req.Stage.String(), err, time.Since(start))

	if err != nil {
		s.handleFetchError(ctx, logger, req, err)
		return
	}

	e.stats.ResponsesOK.Add(1)
	e.stats.BytesDownloaded.Add(int64(len(resp.Body)))
	logger.Debug("fetched", "status", resp.StatusCode, "size", len(resp.Body), "duration", resp.FetchDuration)

	switch req.Stage {
	case types.StageListing:
		s.handleListing(logger, resp)
	case types.StageArticle:
		s.handleArticle(logger, resp)
	case types.StageComments:
		s.handleComments(logger, resp)
	default:
		e.drop(logger, DropInvalid, fmt.Errorf("unknown stage %d", req.Stage))
	}
}

func (s *Scheduler) handleListing(logger *slog.Logger, resp *types.Response) {
	e := s.engine
	listing, err := e.adapter.ParseListing(resp)
	if err != nil {
		e.drop(logger, DropParse, err)
		return
	}

	for _, stub := range listing.Stubs {
		req, err := types.NewRequest(stub.URL, types.StageArticle)
		if err != nil {
			e.drop(logger.With("article_url", stub.URL), DropInvalid, err)
			continue
		}
		req.State = types.ChainState{Stub: stub}
		e.enqueue(req)
	}
	if listing.Next != nil {
		e.enqueue(listing.Next)
	}

	logger.Debug("listing parsed", "articles", len(listing.Stubs), "has_next", listing.Next != nil)
}

func (s *Scheduler) handleArticle(logger *slog.Logger, resp *types.Response) {
	e := s.engine
	next, err := e.adapter.ParseArticlePage(resp, resp.Request.State.Stub)
	switch {
	case err != nil:
		e.drop(logger, DropParse, err)
	case next == nil:
		e.drop(logger, DropNoThread, types.ErrNoThread)
	default:
		e.enqueue(next)
	}
}

func (s *Scheduler) handleComments(logger *slog.Logger, resp *types.Response) {
	e := s.engine
	state := resp.Request.State
	out, err := e.adapter.ParseCommentPage(resp, state)
	switch {
	case err != nil:
		e.drop(logger, DropParse, err)
	case out.Done:
		e.complete(logger, state.Stub, out.Likes)
	case out.Next == nil:
		e.drop(logger, DropParse, errors.New("comment page neither finished nor continued the chain"))
	default:
		logger.Debug("comment page parsed", "page", state.CommentPage, "running_likes", out.Likes)
		e.enqueue(out.Next)
	}
}

// handleFetchError retries retryable failures after a backoff delay and
// drops the chain otherwise. A retry holds its own pending unit until the
// request is back in the frontier.
func (s *Scheduler) handleFetchError(ctx context.Context, logger *slog.Logger, req *types.Request, err error) {
	e := s.engine
	e.stats.RequestsFailed.Add(1)

	if ctx.Err() != nil {
		logger.Debug("run ended during fetch", "error", err)
		return
	}

	var fetchErr *types.FetchError
	if errors.As(err, &fetchErr) && fetchErr.IsRetryable() && req.RetryCount < req.MaxRetries {
		req.RetryCount++
		delay := s.retryDelay(req.RetryCount, fetchErr.RetryAfter)
		e.stats.RequestsRetried.Add(1)
		e.metrics.RecordRetry(e.Site())
		logger.Warn("retrying request",
			"retry", req.RetryCount,
			"max_retries", req.MaxRetries,
			"delay", delay,
			"error", err,
		)

		e.pending.Add(1)
		time.AfterFunc(delay, func() {
			if ctx.Err() != nil {
				e.release()
				return
			}
			if err := e.frontier.Push(req); err != nil {
				e.release()
			}
		})
		return
	}

	e.drop(logger, DropFetch, fmt.Errorf("after %d retries: %w", req.RetryCount, err))
}

// retryDelay is the exponential backoff delay of the given attempt, raised
// to the server's Retry-After when that is longer.
func (s *Scheduler) retryDelay(attempt int, retryAfter time.Duration) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.engine.opts.RetryDelay
	b.MaxInterval = s.engine.opts.MaxRetryDelay
	b.MaxElapsedTime = 0
	b.Reset()

	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}
	if d < 0 {
		d = 0
	}
	return max(d, retryAfter)
}
