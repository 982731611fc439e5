package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/hotnews/internal/config"
	"github.com/IshaanNene/hotnews/internal/fetcher"
	"github.com/IshaanNene/hotnews/internal/observability"
	"github.com/IshaanNene/hotnews/internal/site"
	"github.com/IshaanNene/hotnews/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

var testWindow = site.Window{
	Start: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Engine.Concurrency = 4
	cfg.Engine.ConcurrencyPerHost = 4
	cfg.Engine.RequestTimeout = 5 * time.Second
	cfg.Engine.RetryDelay = time.Millisecond
	cfg.Engine.MaxRetryDelay = 5 * time.Millisecond
	return cfg
}

// vnexpressServer serves one populated category with two articles.
func vnexpressServer(t *testing.T, block chan struct{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/cateid/1001005/") && strings.HasSuffix(r.URL.Path, "/page/1"):
			io.WriteString(w, `<article class="item-news item-news-common"><a href="/a1.html" title="first">first</a></article>`+
				`<article class="item-news item-news-common"><a href="/a2.html" title="second">second</a></article>`)
		case strings.HasPrefix(r.URL.Path, "/category/"):
			io.WriteString(w, `<html></html>`)
		case r.URL.Path == "/a1.html":
			io.WriteString(w, `<span class="number_cmt txt_num_comment num_cmt_detail" data-objectid="1" data-objecttype="1"></span>`)
		case r.URL.Path == "/a2.html":
			io.WriteString(w, `<span class="number_cmt txt_num_comment num_cmt_detail" data-objectid="2" data-objecttype="1"></span>`)
		case r.URL.Path == "/comments" && r.URL.Query().Get("objectid") == "1":
			io.WriteString(w, `{"data":{"items":[{"userlike":10},{"userlike":20}]}}`)
		case r.URL.Path == "/comments" && r.URL.Query().Get("objectid") == "2":
			if block != nil {
				<-block
			}
			io.WriteString(w, `{"data":{"items":[{"userlike":5}]}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newVnExpress(t *testing.T, srv *httptest.Server) site.Adapter {
	t.Helper()
	a, err := site.NewVnExpress(site.Config{BaseURL: srv.URL, CommentAPIURL: srv.URL + "/comments"})
	require.NoError(t, err)
	return a
}

// brokenAdapter fails before any request is made.
type brokenAdapter struct {
	site.Adapter
}

var errSeed = errors.New("listing endpoint unavailable")

func (brokenAdapter) SeedRequests(site.Window) ([]*types.Request, error) { return nil, errSeed }

func TestRunAllRanksEachSite(t *testing.T) {
	srv := vnexpressServer(t, nil)
	m := New(testConfig(), testLogger)

	require.NoError(t, m.RunAll(context.Background(), testWindow, newVnExpress(t, srv)))

	assert.Equal(t, []string{site.VnExpressName}, m.Sites())
	top, err := m.TopArticles(site.VnExpressName, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "first", top[0].Title)
	assert.Equal(t, 30, top[0].TotalLikes)
	assert.Equal(t, srv.URL+"/a2.html", top[1].URL)
	assert.Equal(t, 5, top[1].TotalLikes)
	assert.NoError(t, m.Err(site.VnExpressName))

	stats, ok := m.Stats(site.VnExpressName)
	require.True(t, ok)
	assert.Equal(t, int64(2), stats.Completed)
	assert.False(t, m.Running())
}

func TestRunAllIsolatesSiteFailures(t *testing.T) {
	srv := vnexpressServer(t, nil)
	tuoitre, err := site.NewTuoiTre(site.Config{})
	require.NoError(t, err)

	m := New(testConfig(), testLogger)
	require.NoError(t, m.RunAll(context.Background(), testWindow, newVnExpress(t, srv), brokenAdapter{tuoitre}))

	assert.ErrorIs(t, m.Err(site.TuoiTreName), errSeed)
	top, err := m.TopArticles(site.TuoiTreName, 10)
	require.NoError(t, err)
	assert.Empty(t, top)

	assert.NoError(t, m.Err(site.VnExpressName))
	top, err = m.TopArticles(site.VnExpressName, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, 30, top[0].TotalLikes)
}

func TestReports(t *testing.T) {
	srv := vnexpressServer(t, nil)
	tuoitre, err := site.NewTuoiTre(site.Config{})
	require.NoError(t, err)

	m := New(testConfig(), testLogger)
	assert.Empty(t, m.Reports(10))
	require.NoError(t, m.RunAll(context.Background(), testWindow, newVnExpress(t, srv), brokenAdapter{tuoitre}))

	reports := m.Reports(1)
	require.Len(t, reports, 2)
	assert.Equal(t, site.VnExpressName, reports[0].Name)
	require.Len(t, reports[0].Entries, 1)
	assert.Equal(t, 1, reports[0].Entries[0].Rank)
	assert.Equal(t, "first", reports[0].Entries[0].Title)
	assert.Equal(t, site.TuoiTreName, reports[1].Name)
	assert.Contains(t, reports[1].Error, errSeed.Error())
}

func TestRunAllFetcherFactoryError(t *testing.T) {
	srv := vnexpressServer(t, nil)
	boom := errors.New("no transport")
	m := New(testConfig(), testLogger, WithFetcherFactory(func(*config.Config, *slog.Logger) (fetcher.Fetcher, error) {
		return nil, boom
	}))

	require.NoError(t, m.RunAll(context.Background(), testWindow, newVnExpress(t, srv)))
	assert.ErrorIs(t, m.Err(site.VnExpressName), boom)
	_, ok := m.Stats(site.VnExpressName)
	assert.False(t, ok)
}

func TestTopArticlesDuringRun(t *testing.T) {
	block := make(chan struct{})
	srv := vnexpressServer(t, block)
	m := New(testConfig(), testLogger)

	done := make(chan error, 1)
	go func() { done <- m.RunAll(context.Background(), testWindow, newVnExpress(t, srv)) }()

	require.Eventually(t, func() bool {
		top, err := m.TopArticles(site.VnExpressName, 10)
		return err == nil && len(top) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.True(t, m.Running())
	assert.ErrorIs(t, m.RunAll(context.Background(), testWindow), ErrRunning)

	close(block)
	require.NoError(t, <-done)
	top, err := m.TopArticles(site.VnExpressName, 10)
	require.NoError(t, err)
	assert.Len(t, top, 2)
}

func TestRunAllCancelled(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	srv := vnexpressServer(t, block)
	m := New(testConfig(), testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)
	err := m.RunAll(ctx, testWindow, newVnExpress(t, srv))
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, m.Err(site.VnExpressName), context.Canceled)
	assert.False(t, m.Running())
}

func TestRunAllRejectsDuplicateSites(t *testing.T) {
	srv := vnexpressServer(t, nil)
	a := newVnExpress(t, srv)
	m := New(testConfig(), testLogger)
	assert.Error(t, m.RunAll(context.Background(), testWindow, a, a))
}

func TestUnknownSite(t *testing.T) {
	m := New(testConfig(), testLogger)
	_, err := m.TopArticles("nope", 10)
	assert.ErrorIs(t, err, ErrUnknownSite)
	assert.ErrorIs(t, m.Err("nope"), ErrUnknownSite)
}

func TestRunAllRecordsMetrics(t *testing.T) {
	srv := vnexpressServer(t, nil)
	tuoitre, err := site.NewTuoiTre(site.Config{})
	require.NoError(t, err)
	metrics := observability.NewMetrics(testLogger)
	m := New(testConfig(), testLogger, WithMetrics(metrics))

	require.NoError(t, m.RunAll(context.Background(), testWindow, newVnExpress(t, srv), brokenAdapter{tuoitre}))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues(site.VnExpressName, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues(site.TuoiTreName, "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.LastRunArticles.WithLabelValues(site.VnExpressName)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ChainsCompleted.WithLabelValues(site.VnExpressName)))
}

func ExampleManager_TopArticles() {
	m := New(config.DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := m.TopArticles(site.VnExpressName, 10)
	fmt.Println(errors.Is(err, ErrUnknownSite))
	// Output: true
}
