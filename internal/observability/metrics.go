// Package observability exposes crawl metrics in Prometheus format.
package observability

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// MetricsNamespace is the namespace for all hotnews metrics.
	MetricsNamespace = "hotnews"

	// MetricsSubsystem is the subsystem for crawl metrics.
	MetricsSubsystem = "crawl"
)

// Metrics holds the Prometheus collectors of every site crawl. All methods
// are safe to call on a nil *Metrics, which records nothing.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestsRetried *prometheus.CounterVec
	FetchDuration   *prometheus.HistogramVec
	ChainsCompleted *prometheus.CounterVec
	ChainsDropped   *prometheus.CounterVec
	PendingRequests *prometheus.GaugeVec
	RunDuration     *prometheus.HistogramVec
	RunsTotal       *prometheus.CounterVec
	LastRunArticles *prometheus.GaugeVec

	registry *prometheus.Registry
	logger   *slog.Logger
}

// NewMetrics creates the collectors on a private registry that also carries
// the Go runtime and process collectors.
func NewMetrics(logger *slog.Logger) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	m := &Metrics{
		registry: reg,
		logger:   logger.With("component", "metrics"),
	}

	m.RequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystem,
		Name:      "requests_total",
		Help:      "Total fetches by site, stage and outcome",
	}, []string{"site", "stage", "outcome"})

	m.RequestsRetried = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystem,
		Name:      "requests_retried_total",
		Help:      "Total fetches scheduled for another attempt",
	}, []string{"site"})

	m.FetchDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystem,
		Name:      "fetch_duration_seconds",
		Help:      "Fetch latency by site and stage",
		Buckets:   prometheus.DefBuckets,
	}, []string{"site", "stage"})

	m.ChainsCompleted = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystem,
		Name:      "chains_completed_total",
		Help:      "Articles scored and added to the leaderboard",
	}, []string{"site"})

	m.ChainsDropped = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystem,
		Name:      "chains_dropped_total",
		Help:      "Chains abandoned, by reason",
	}, []string{"site", "reason"})

	m.PendingRequests = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystem,
		Name:      "pending_requests",
		Help:      "Requests queued, in flight or waiting to retry",
	}, []string{"site"})

	m.RunDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystem,
		Name:      "run_duration_seconds",
		Help:      "Wall time of a full site crawl",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"site"})

	m.RunsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystem,
		Name:      "runs_total",
		Help:      "Site crawls by result",
	}, []string{"site", "result"})

	m.LastRunArticles = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystem,
		Name:      "last_run_articles",
		Help:      "Articles collected by the most recent crawl of the site",
	}, []string{"site"})

	return m
}

// RecordFetch counts one fetch attempt and its latency.
func (m *Metrics) RecordFetch(site, stage string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.RequestsTotal.WithLabelValues(site, stage, outcome).Inc()
	m.FetchDuration.WithLabelValues(site, stage).Observe(d.Seconds())
}

// RecordRetry counts a rescheduled fetch.
func (m *Metrics) RecordRetry(site string) {
	if m == nil {
		return
	}
	m.RequestsRetried.WithLabelValues(site).Inc()
}

// RecordCompleted counts a scored article.
func (m *Metrics) RecordCompleted(site string) {
	if m == nil {
		return
	}
	m.ChainsCompleted.WithLabelValues(site).Inc()
}

// RecordDrop counts an abandoned chain.
func (m *Metrics) RecordDrop(site, reason string) {
	if m == nil {
		return
	}
	m.ChainsDropped.WithLabelValues(site, reason).Inc()
}

// SetPending reports the site's outstanding work.
func (m *Metrics) SetPending(site string, n int64) {
	if m == nil {
		return
	}
	m.PendingRequests.WithLabelValues(site).Set(float64(n))
}

// RecordRun records the end of a site crawl.
func (m *Metrics) RecordRun(site string, d time.Duration, articles int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RunsTotal.WithLabelValues(site, result).Inc()
	m.RunDuration.WithLabelValues(site).Observe(d.Seconds())
	m.LastRunArticles.WithLabelValues(site).Set(float64(articles))
}

// Gatherer exposes the registry, mostly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer serves the metrics on their own port until the returned
// server is shut down.
func (m *Metrics) StartServer(port int, path string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.logger.Info("metrics server starting", "addr", srv.Addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()
	return srv
}
