package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/hotnews/internal/article"
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

// noopFetcher fails every request.
type noopFetcher struct{}

func (noopFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	return nil, &types.FetchError{URL: req.URLString(), Err: types.ErrInvalidURL}
}

func (noopFetcher) Close() error { return nil }

func testOptions() Options {
	return Options{
		Concurrency:        4,
		ConcurrencyPerHost: 4,
		RequestTimeout:     5 * time.Second,
		MaxRetries:         2,
		RetryDelay:         time.Millisecond,
		MaxRetryDelay:      5 * time.Millisecond,
		DedupArticles:      true,
	}
}

// fakeArticle is one article served by fakeVnExpress.
type fakeArticle struct {
	slug     string
	title    string
	objectID string // empty: page has no comment thread
	likes    []int
}

// fakeVnExpress serves one category with the given articles on page 1 and
// empty listings everywhere else.
type fakeVnExpress struct {
	t        *testing.T
	articles []fakeArticle
	extra    string // raw HTML appended to the listing

	// hooks let tests override a response; returning true means handled
	articleHook func(w http.ResponseWriter, slug string) bool
	commentHook func(w http.ResponseWriter, r *http.Request, objectID string) bool

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeVnExpress) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/category/day/cateid/"):
		f.listing(w, path)
	case path == "/comments":
		f.comments(w, r)
	case strings.HasSuffix(path, ".html"):
		f.article(w, strings.TrimSuffix(strings.TrimPrefix(path, "/"), ".html"))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeVnExpress) listing(w http.ResponseWriter, path string) {
	var b strings.Builder
	b.WriteString("<html><body>")
	if strings.Contains(path, "/cateid/1001005/") && strings.HasSuffix(path, "/page/1") {
		for _, a := range f.articles {
			fmt.Fprintf(&b, `<article class="item-news item-news-common"><a href="/%s.html" title="%s">%s</a></article>`, a.slug, a.title, a.title)
		}
		b.WriteString(f.extra)
	}
	b.WriteString("</body></html>")
	io.WriteString(w, b.String())
}

func (f *fakeVnExpress) article(w http.ResponseWriter, slug string) {
	if f.articleHook != nil && f.articleHook(w, slug) {
		return
	}
	for _, a := range f.articles {
		if a.slug != slug {
			continue
		}
		if a.objectID == "" {
			fmt.Fprintf(w, "<html><body><h1>%s</h1></body></html>", a.title)
			return
		}
		fmt.Fprintf(w, `<html><body><h1>%s</h1><span class="number_cmt txt_num_comment num_cmt_detail" data-objectid="%s" data-objecttype="1"></span></body></html>`, a.title, a.objectID)
		return
	}
	http.NotFound(w, nil)
}

func (f *fakeVnExpress) comments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	assert.Equal(f.t, "like", q.Get("sort_by"))
	objectID := q.Get("objectid")
	if f.commentHook != nil && f.commentHook(w, r, objectID) {
		return
	}
	for _, a := range f.articles {
		if a.objectID != objectID {
			continue
		}
		items := make([]string, 0, len(a.likes))
		for _, n := range a.likes {
			items = append(items, fmt.Sprintf(`{"userlike":%d}`, n))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"data":{"items":[%s]}}`, strings.Join(items, ","))
		return
	}
	http.NotFound(w, r)
}

// runVnExpress crawls the fake site and returns the tracker and engine.
func runVnExpress(t *testing.T, fake *fakeVnExpress, opts Options, options ...Option) (*article.Tracker, *Engine) {
	t.Helper()
	fake.t = t
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	adapter, err := site.NewVnExpress(site.Config{BaseURL: srv.URL, CommentAPIURL: srv.URL + "/comments"})
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Engine.RequestTimeout = opts.RequestTimeout
	f, err := fetcher.NewHTTPFetcher(cfg, testLogger)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	tracker := article.NewTracker()
	e, err := New(opts, adapter, f, tracker, testLogger, options...)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, e.Run(ctx, testWindow))
	return tracker, e
}

func TestCrawlEndToEnd(t *testing.T) {
	fake := &fakeVnExpress{articles: []fakeArticle{
		{slug: "bai-mot", title: "title1", objectID: "1", likes: []int{10, 20}},
		{slug: "bai-hai", title: "title2", objectID: "2", likes: []int{5}},
	}}
	tracker, e := runVnExpress(t, fake, testOptions())

	top := tracker.Top(10)
	require.Len(t, top, 2)
	assert.Equal(t, "title1", top[0].Title)
	assert.True(t, strings.HasSuffix(top[0].URL, "/bai-mot.html"))
	assert.Equal(t, 30, top[0].TotalLikes)
	assert.Equal(t, "title2", top[1].Title)
	assert.Equal(t, 5, top[1].TotalLikes)

	snap := e.Stats().Snapshot()
	assert.Equal(t, int64(2), snap.Completed)
	assert.Zero(t, snap.Dropped)
	// 20 category seeds + page 2 of the populated category + 2 articles + 2 comment calls
	assert.Equal(t, int64(25), snap.RequestsSent)
	assert.Zero(t, e.Pending())
	assert.False(t, snap.TimedOut)
}

func TestCrawlPartialFailureIsolation(t *testing.T) {
	fake := &fakeVnExpress{articles: []fakeArticle{
		{slug: "a1", title: "one", objectID: "1", likes: []int{1}},
		{slug: "a2", title: "two"},
		{slug: "a3", title: "three", objectID: "3", likes: []int{3}},
	}}
	tracker, e := runVnExpress(t, fake, testOptions())

	top := tracker.Top(-1)
	require.Len(t, top, 2)
	assert.Equal(t, []string{"three", "one"}, []string{top[0].Title, top[1].Title})

	snap := e.Stats().Snapshot()
	assert.Equal(t, int64(1), snap.DropReasons[DropNoThread])
}

func TestCrawlTerminalStatusDropsChain(t *testing.T) {
	fake := &fakeVnExpress{articles: []fakeArticle{
		{slug: "ok", title: "ok", objectID: "1", likes: []int{4}},
		{slug: "gone", title: "gone", objectID: "2", likes: []int{9}},
	}}
	var hits atomic.Int32
	fake.articleHook = func(w http.ResponseWriter, slug string) bool {
		if slug != "gone" {
			return false
		}
		hits.Add(1)
		http.Error(w, "gone", http.StatusNotFound)
		return true
	}
	tracker, e := runVnExpress(t, fake, testOptions())

	assert.Equal(t, 1, tracker.Len())
	assert.Equal(t, int32(1), hits.Load(), "404 must not be retried")
	assert.Equal(t, int64(1), e.Stats().Snapshot().DropReasons[DropFetch])
}

func TestCrawlRetriesTransientErrors(t *testing.T) {
	fake := &fakeVnExpress{articles: []fakeArticle{
		{slug: "flaky", title: "flaky", objectID: "1", likes: []int{2, 2}},
	}}
	var attempts atomic.Int32
	fake.commentHook = func(w http.ResponseWriter, r *http.Request, objectID string) bool {
		if attempts.Add(1) <= 2 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return true
		}
		return false
	}
	tracker, e := runVnExpress(t, fake, testOptions())

	top := tracker.Top(1)
	require.Len(t, top, 1)
	assert.Equal(t, 4, top[0].TotalLikes)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, int64(2), e.Stats().Snapshot().RequestsRetried)
}

func TestCrawlRetriesExhausted(t *testing.T) {
	fake := &fakeVnExpress{articles: []fakeArticle{
		{slug: "down", title: "down", objectID: "1", likes: []int{1}},
	}}
	var attempts atomic.Int32
	fake.commentHook = func(w http.ResponseWriter, r *http.Request, objectID string) bool {
		attempts.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
		return true
	}
	opts := testOptions()
	opts.MaxRetries = 1
	tracker, e := runVnExpress(t, fake, opts)

	assert.Zero(t, tracker.Len())
	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, int64(1), e.Stats().Snapshot().DropReasons[DropFetch])
}

func TestCrawlOffsiteAndDuplicateLinks(t *testing.T) {
	fake := &fakeVnExpress{
		articles: []fakeArticle{{slug: "a1", title: "one", objectID: "1", likes: []int{7}}},
		extra: `<article class="item-news item-news-common"><a href="https://elsewhere.example/x.html" title="x">x</a></article>` +
			`<article class="item-news item-news-common"><a href="/a1.html#box_comment" title="one again">one</a></article>`,
	}
	tracker, e := runVnExpress(t, fake, testOptions())

	assert.Equal(t, 1, tracker.Len())
	snap := e.Stats().Snapshot()
	assert.Equal(t, int64(1), snap.DropReasons[DropOffsite])
	assert.Equal(t, int64(1), snap.DropReasons[DropDuplicate])
}

func TestCrawlDedupDisabled(t *testing.T) {
	fake := &fakeVnExpress{
		articles: []fakeArticle{{slug: "a1", title: "one", objectID: "1", likes: []int{7}}},
		extra:    `<article class="item-news item-news-common"><a href="/a1.html" title="one">one</a></article>`,
	}
	opts := testOptions()
	opts.DedupArticles = false
	tracker, _ := runVnExpress(t, fake, opts)

	assert.Equal(t, 2, tracker.Len())
}

func TestCrawlRespectsPerHostCap(t *testing.T) {
	var articles []fakeArticle
	for i := 0; i < 30; i++ {
		articles = append(articles, fakeArticle{
			slug: fmt.Sprintf("a%d", i), title: fmt.Sprintf("t%d", i), objectID: fmt.Sprint(i + 1), likes: []int{i},
		})
	}
	fake := &fakeVnExpress{articles: articles}
	fake.articleHook = func(w http.ResponseWriter, slug string) bool {
		time.Sleep(5 * time.Millisecond)
		return false
	}

	opts := testOptions()
	opts.Concurrency = 8
	opts.ConcurrencyPerHost = 2
	tracker, _ := runVnExpress(t, fake, opts)

	assert.Equal(t, 30, tracker.Len())
	assert.LessOrEqual(t, fake.maxInFlight.Load(), int32(2))
	assert.Equal(t, 29, tracker.Top(1)[0].TotalLikes)
}

func TestCrawlSingleWorker(t *testing.T) {
	fake := &fakeVnExpress{articles: []fakeArticle{
		{slug: "a1", title: "one", objectID: "1", likes: []int{1, 1}},
		{slug: "a2", title: "two", objectID: "2", likes: []int{5}},
	}}
	opts := testOptions()
	opts.Concurrency = 1
	opts.ConcurrencyPerHost = 1
	tracker, _ := runVnExpress(t, fake, opts)

	assert.Equal(t, 2, tracker.Len())
}

func TestCrawlRunTimeoutKeepsPartialResults(t *testing.T) {
	fake := &fakeVnExpress{articles: []fakeArticle{
		{slug: "fast", title: "fast", objectID: "1", likes: []int{3}},
		{slug: "slow", title: "slow", objectID: "2", likes: []int{9}},
	}}
	fake.commentHook = func(w http.ResponseWriter, r *http.Request, objectID string) bool {
		if objectID != "2" {
			return false
		}
		<-r.Context().Done()
		return true
	}
	opts := testOptions()
	opts.RunTimeout = 500 * time.Millisecond
	tracker, e := runVnExpress(t, fake, opts)

	top := tracker.Top(10)
	require.Len(t, top, 1)
	assert.Equal(t, "fast", top[0].Title)
	assert.True(t, e.Stats().Snapshot().TimedOut)
}

func TestCrawlCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	adapter, err := site.NewVnExpress(site.Config{BaseURL: srv.URL, CommentAPIURL: srv.URL})
	require.NoError(t, err)
	f, err := fetcher.NewHTTPFetcher(config.DefaultConfig(), testLogger)
	require.NoError(t, err)
	defer f.Close()

	e, err := New(testOptions(), adapter, f, article.NewTracker(), testLogger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	assert.ErrorIs(t, e.Run(ctx, testWindow), context.Canceled)
	assert.ErrorIs(t, e.Run(context.Background(), testWindow), ErrAlreadyRun)
}

func TestCrawlEmptyWindow(t *testing.T) {
	adapter, err := site.NewVnExpress(site.Config{})
	require.NoError(t, err)
	e, err := New(testOptions(), adapter, noopFetcher{}, article.NewTracker(), testLogger)
	require.NoError(t, err)

	err = e.Run(context.Background(), site.Window{Start: testWindow.Start, End: testWindow.Start})
	assert.ErrorIs(t, err, site.ErrEmptyWindow)
}

func TestCrawlMetrics(t *testing.T) {
	fake := &fakeVnExpress{articles: []fakeArticle{
		{slug: "a1", title: "one", objectID: "1", likes: []int{1}},
		{slug: "a2", title: "two"},
	}}
	m := observability.NewMetrics(testLogger)
	runVnExpress(t, fake, testOptions(), WithMetrics(m))

	completed := m.ChainsCompleted.WithLabelValues(site.VnExpressName)
	dropped := m.ChainsDropped.WithLabelValues(site.VnExpressName, DropNoThread)
	pending := m.PendingRequests.WithLabelValues(site.VnExpressName)
	assert.Equal(t, 1.0, testutil.ToFloat64(completed))
	assert.Equal(t, 1.0, testutil.ToFloat64(dropped))
	assert.Equal(t, 0.0, testutil.ToFloat64(pending))
}

func TestNewValidatesDependencies(t *testing.T) {
	adapter, err := site.NewTuoiTre(site.Config{})
	require.NoError(t, err)

	_, err = New(testOptions(), nil, noopFetcher{}, article.NewTracker(), testLogger)
	assert.Error(t, err)
	_, err = New(testOptions(), adapter, nil, article.NewTracker(), testLogger)
	assert.Error(t, err)
	_, err = New(testOptions(), adapter, noopFetcher{}, nil, testLogger)
	assert.Error(t, err)
}

// --- TuoiTre ---

func TestCrawlTuoiTreCommentPaging(t *testing.T) {
	var mu sync.Mutex
	pagesSeen := map[string]int{}

	mux := http.NewServeMux()
	mux.HandleFunc("/timeline-xem-theo-ngay/0/01-05-2024/trang-1.htm", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<ul><li class="news-item"><a href="/bai-mot.htm" title="Bai mot">Bai mot</a></li></ul>`)
	})
	mux.HandleFunc("/timeline-xem-theo-ngay/0/01-05-2024/trang-2.htm", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<ul></ul>`)
	})
	mux.HandleFunc("/bai-mot.htm", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<section class="comment-wrapper" data-objectid="99" data-objecttype="1"></section>`)
	})
	mux.HandleFunc("/api/getlist-comment.api", func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("pageindex")
		mu.Lock()
		pagesSeen[page]++
		mu.Unlock()

		data := map[string]string{
			"1": `[{"reactions":{"like":2,"love":1}}]`,
			"2": `[{"reactions":{"like":5}}]`,
		}[page]
		if data == "" {
			data = "[]"
		}
		fmt.Fprintf(w, `{"Data":%q}`, data)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	adapter, err := site.NewTuoiTre(site.Config{BaseURL: srv.URL, CommentAPIURL: srv.URL + "/api/getlist-comment.api"})
	require.NoError(t, err)
	f, err := fetcher.NewHTTPFetcher(config.DefaultConfig(), testLogger)
	require.NoError(t, err)
	defer f.Close()

	tracker := article.NewTracker()
	e, err := New(testOptions(), adapter, f, tracker, testLogger)
	require.NoError(t, err)
	require.NoError(t, e.Run(context.Background(), testWindow))

	top := tracker.Top(10)
	require.Len(t, top, 1)
	assert.Equal(t, "Bai mot", top[0].Title)
	assert.Equal(t, srv.URL+"/bai-mot.htm", top[0].URL)
	assert.Equal(t, 8, top[0].TotalLikes)
	assert.Equal(t, map[string]int{"1": 1, "2": 1, "3": 1}, pagesSeen)
}
