// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package server exposes the engine over HTTP: registry lookups, cost
// estimation, analysis execution with archival, and a WebSocket stream of
// analysis progress events.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"github.com/rankforge/rankforge/services/engine/analysis"
	"github.com/rankforge/rankforge/services/engine/archive"
	"github.com/rankforge/rankforge/services/engine/registry"
	"github.com/rankforge/rankforge/services/engine/telemetry"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Addr is the listen address, host:port.
	Addr string

	// ShutdownTimeout bounds graceful shutdown once the context is
	// cancelled.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":12310",
		ShutdownTimeout: 10 * time.Second,
	}
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics installs HTTP and analysis instrumentation. Without it the
// server runs uninstrumented; /metrics still serves whatever the default
// Prometheus registry holds.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the request logger. Default slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithAnalysisOptions sets base options applied to every analyzer the
// server builds, before per-request options.
func WithAnalysisOptions(opts ...analysis.Option) Option {
	return func(s *Server) { s.analysisOpts = opts }
}

// Server is the engine's HTTP API.
type Server struct {
	cfg          Config
	registry     *registry.Registry
	store        *archive.Store
	metrics      *telemetry.Metrics
	logger       *slog.Logger
	hub          *Hub
	router       *gin.Engine
	analysisOpts []analysis.Option

	mu   sync.Mutex
	addr string
}

// New builds a Server around a loaded registry and an open archive store.
func New(cfg Config, reg *registry.Registry, store *archive.Store, opts ...Option) (*Server, error) {
	if reg == nil {
		return nil, errors.New("registry must not be nil")
	}
	if store == nil {
		return nil, errors.New("archive store must not be nil")
	}

	s := &Server{
		cfg:      cfg,
		registry: reg,
		store:    store,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.hub = NewHub(s.logger)
	s.router = s.buildRouter()
	return s, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the bound listen address once Run has started listening,
// empty before that. Useful when the configured port is 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Run listens and serves until the context is cancelled, then shuts down
// gracefully within ShutdownTimeout. Returns nil on a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("engine API listening", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		s.logger.Info("shutting down engine API")
		s.hub.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// observe times every request, feeding the HTTP metrics and the request
// log. Runs after otelgin so log lines carry trace context via the
// exported spans, not duplicated fields.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		duration := time.Since(start)
		status := c.Writer.Status()

		s.metrics.ObserveHTTP(c.Request.Method, route, status, duration)
		s.logger.Info("http request",
			slog.String("method", c.Request.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("duration", duration))
	}
}

// buildRouter assembles the gin engine: recovery, tracing, observation,
// then the route tree.
func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("rankforge-engine"))
	router.Use(s.observe())

	s.setupRoutes(router)
	return router
}
