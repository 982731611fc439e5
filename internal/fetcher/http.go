package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/IshaanNene/hotnews/internal/config"
	"github.com/IshaanNene/hotnews/internal/types"
)

const maxRetryAfter = 2 * time.Minute

// HTTPFetcher implements Fetcher using net/http.
type HTTPFetcher struct {
	client *http.Client
	cfg    *config.FetcherConfig
	agents *userAgents
	logger *slog.Logger
}

// NewHTTPFetcher creates a new HTTP fetcher.
func NewHTTPFetcher(cfg *config.Config, logger *slog.Logger) (*HTTPFetcher, error) {
	agents, err := newUserAgents(cfg.UserAgent)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.Fetcher.MaxIdleConns,
		MaxIdleConnsPerHost: max(cfg.Fetcher.MaxIdleConns/2, cfg.Engine.ConcurrencyPerHost),
		IdleConnTimeout:     cfg.Fetcher.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.Fetcher.TLSInsecure,
		},
		DisableCompression: true, // decoded below, brotli included
	}

	fetcherCfg := cfg.Fetcher
	client := &http.Client{
		Transport: transport,
		Timeout:   cfg.Engine.RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if !fetcherCfg.FollowRedirects {
				return http.ErrUseLastResponse
			}
			if len(via) >= fetcherCfg.MaxRedirects {
				return fmt.Errorf("max redirects (%d) reached", fetcherCfg.MaxRedirects)
			}
			return nil
		},
	}

	return &HTTPFetcher{
		client: client,
		cfg:    &fetcherCfg,
		agents: agents,
		logger: logger.With("component", "http_fetcher"),
	}, nil
}

// Fetch executes an HTTP request and returns the response.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URLString(), nil)
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Err: err}
	}

	httpReq.Header.Set("User-Agent", f.agents.next())
	httpReq.Header.Set("Accept", acceptFor(req.Stage))
	httpReq.Header.Set("Accept-Language", "vi-VN,vi;q=0.9,en-US;q=0.8,en;q=0.7")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for key, values := range req.Headers {
		for _, v := range values {
			httpReq.Header.Set(key, v)
		}
	}

	start := time.Now()
	httpResp, err := f.client.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		return nil, &types.FetchError{
			URL:       req.URLString(),
			Err:       err,
			Retryable: isRetryableError(err),
		}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, statusError(req, httpResp)
	}

	decoded, err := decompressReader(httpResp, httpResp.Body)
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), StatusCode: httpResp.StatusCode, Err: err}
	}
	defer decoded.Close()

	// The limit applies to the decoded body.
	var reader io.Reader = decoded
	if f.cfg.MaxBodySize > 0 {
		reader = io.LimitReader(reader, f.cfg.MaxBodySize)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &types.FetchError{
			URL:        req.URLString(),
			StatusCode: httpResp.StatusCode,
			Err:        err,
			Retryable:  isRetryableError(err),
		}
	}

	resp := types.NewResponse(req, httpResp, body, duration)

	f.logger.Debug("fetch complete",
		"url", req.URLString(),
		"stage", req.Stage,
		"status", resp.StatusCode,
		"size", len(body),
		"duration", duration,
	)

	return resp, nil
}

// Close releases idle connections.
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

// statusError classifies a non-2xx response. Throttling, timeouts and server
// errors are worth retrying; everything else is final.
func statusError(req *types.Request, resp *http.Response) *types.FetchError {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	fe := &types.FetchError{
		URL:        req.URLString(),
		StatusCode: resp.StatusCode,
		Err:        fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		Retryable:  IsRetryableStatus(resp.StatusCode),
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		fe.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	}
	return fe
}

// IsRetryableStatus reports whether a response status warrants another attempt.
func IsRetryableStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout,
		code == http.StatusTooEarly,
		code == http.StatusTooManyRequests:
		return true
	case code >= 500 && code <= 599:
		return true
	default:
		return false
	}
}

func acceptFor(stage types.Stage) string {
	if stage == types.StageComments {
		return "application/json, text/plain, */*"
	}
	return "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
}

// decompressReader wraps a reader with the appropriate decompressor.
func decompressReader(resp *http.Response, reader io.Reader) (io.ReadCloser, error) {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return io.NopCloser(brotli.NewReader(reader)), nil
	default:
		return io.NopCloser(reader), nil
	}
}

// isRetryableError checks if a network error warrants a retry.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	// The caller gave up; retrying would outlive it.
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNRESET) ||
			errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return true
		}
	}
	return false
}

// parseRetryAfter parses the Retry-After header value.
// Supports both integer seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0
		}
		return min(time.Duration(secs)*time.Second, maxRetryAfter)
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d < 0 {
			return 0
		}
		return min(d, maxRetryAfter)
	}
	return 0
}

// userAgents picks the User-Agent for each request.
type userAgents struct {
	pool  []string
	index atomic.Uint64
}

func newUserAgents(cfg config.UserAgentConfig) (*userAgents, error) {
	var pool []string
	switch cfg.Mode {
	case config.UserAgentFixed:
		if cfg.Fixed != "" {
			pool = []string{cfg.Fixed}
		}
	case config.UserAgentRotate, "":
		for _, ua := range cfg.Pool {
			if ua = strings.TrimSpace(ua); ua != "" {
				pool = append(pool, ua)
			}
		}
	default:
		return nil, fmt.Errorf("unknown user agent mode %q", cfg.Mode)
	}

	if len(pool) == 0 {
		fallback := cfg.Fallback
		if fallback == "" {
			fallback = config.DefaultUserAgent
		}
		pool = []string{fallback}
	}
	return &userAgents{pool: pool}, nil
}

// next returns the next User-Agent in rotation.
func (u *userAgents) next() string {
	idx := u.index.Add(1) - 1
	return u.pool[idx%uint64(len(u.pool))]
}
