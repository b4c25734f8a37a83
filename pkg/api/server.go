// Package api exposes the operational HTTP surface: liveness, readiness,
// the metrics snapshot, and read access to stored digests.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/inboxly/maildigest/pkg/config"
	"github.com/inboxly/maildigest/pkg/metrics"
	"github.com/inboxly/maildigest/pkg/store"
	"github.com/inboxly/maildigest/pkg/version"
)

// ReadyCheck reports whether one dependency is ready to serve.
type ReadyCheck func(ctx context.Context) error

// Server is the operational HTTP listener.
type Server struct {
	cfg    config.ServerConfig
	reg    *metrics.Registry
	store  *store.Store
	checks map[string]ReadyCheck

	httpServer *http.Server
}

// NewServer builds the server and its routes. Store may be nil when the
// digest read endpoint is not wanted.
func NewServer(cfg config.ServerConfig, reg *metrics.Registry, st *store.Store, checks map[string]ReadyCheck) *Server {
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	s := &Server{cfg: cfg, reg: reg, store: st, checks: checks}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", s.handleHealth)
	router.GET("/readyz", s.handleReady)
	router.GET("/metrics", s.handleMetrics)
	if st != nil {
		router.GET("/digests/:date", s.handleDigest)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("HTTP server listening", "addr", s.cfg.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func (s *Server) handleReady(c *gin.Context) {
	failures := gin.H{}
	for name, check := range s.checks {
		if err := check(c.Request.Context()); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "failures": failures})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.reg.Snapshot())
}

// handleDigest serves the stored envelope for a date (YYYY-MM-DD).
func (s *Server) handleDigest(c *gin.Context) {
	date := c.Param("date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	data, err := os.ReadFile(s.store.JSONPath(date))
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no digest for " + date})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "digest unreadable"})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

// requestLogger logs each request through slog, one line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}
