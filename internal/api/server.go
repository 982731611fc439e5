// Package api serves the latest crawl reports over HTTP in watch mode.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/IshaanNene/hotnews/internal/manager"
	"github.com/IshaanNene/hotnews/internal/observability"
	"github.com/IshaanNene/hotnews/internal/report"
	"github.com/IshaanNene/hotnews/internal/watch"
)

// Watcher is the part of the watch runner the API reads from.
type Watcher interface {
	Latest() (watch.Snapshot, bool)
	Site(name string) (report.Site, bool)
	Next() time.Time
	Refresh() error
}

// Server provides a REST API over the latest reports.
type Server struct {
	router  *gin.Engine
	port    int
	topN    int
	version string
	logger  *slog.Logger
	watcher Watcher
	metrics *observability.Metrics
	srv     *http.Server
}

// Option customizes a Server.
type Option func(*Server)

// WithMetrics serves the Prometheus registry at /metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithVersion sets the version reported by /api/health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a new API server. topN is the default list length of
// the top endpoint.
func NewServer(port, topN int, watcher Watcher, logger *slog.Logger, options ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		router:  gin.New(),
		port:    port,
		topN:    topN,
		version: "dev",
		logger:  logger.With("component", "api_server"),
		watcher: watcher,
	}
	for _, o := range options {
		o(s)
	}

	s.router.Use(s.requestLogger(), gin.Recovery())
	s.registerRoutes()
	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the API server in the background.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("API server starting", "addr", addr)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.GET("/", s.handleDashboard)
	s.router.GET("/api/health", s.handleHealth)

	sites := s.router.Group("/api/sites")
	sites.GET("", s.handleListSites)
	sites.GET("/:site", s.handleGetSite)
	sites.GET("/:site/top", s.handleTop)

	s.router.POST("/api/refresh", s.handleRefresh)

	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":  "ok",
		"version": s.version,
	}
	if snap, ok := s.watcher.Latest(); ok {
		body["last_run"] = snap.FinishedAt
		body["runs"] = snap.Runs
	}
	if next := s.watcher.Next(); !next.IsZero() {
		body["next_run"] = next
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleListSites(c *gin.Context) {
	snap, ok := s.watcher.Latest()
	if !ok {
		s.notReady(c)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleGetSite(c *gin.Context) {
	if _, ok := s.watcher.Latest(); !ok {
		s.notReady(c)
		return
	}
	rep, ok := s.watcher.Site(c.Param("site"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown site %q", c.Param("site"))})
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) handleTop(c *gin.Context) {
	n := s.topN
	if raw := c.Query("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "n must be a non-negative integer"})
			return
		}
		n = v
	}

	if _, ok := s.watcher.Latest(); !ok {
		s.notReady(c)
		return
	}
	rep, ok := s.watcher.Site(c.Param("site"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown site %q", c.Param("site"))})
		return
	}
	if n < len(rep.Entries) {
		rep.Entries = rep.Entries[:n]
	}
	c.JSON(http.StatusOK, rep)
}

func (s *Server) handleRefresh(c *gin.Context) {
	if err := s.watcher.Refresh(); err != nil {
		if errors.Is(err, manager.ErrRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (s *Server) notReady(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "first crawl has not finished yet"})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"client_ip", c.ClientIP(),
			"duration", time.Since(start),
		)
	}
}
