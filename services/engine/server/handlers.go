// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rankforge/rankforge/services/engine/analysis"
	"github.com/rankforge/rankforge/services/engine/archive"
	"github.com/rankforge/rankforge/services/engine/costmodel"
	"github.com/rankforge/rankforge/services/engine/discovery"
	"github.com/rankforge/rankforge/services/engine/registry"
	"github.com/rankforge/rankforge/services/engine/runio"
	"github.com/rankforge/rankforge/services/engine/stats"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

func (s *Server) handleListMetrics(c *gin.Context) {
	var defs []registry.MetricDefinition
	if category := c.Query("category"); category != "" {
		defs = s.registry.ByCategory(category)
	} else {
		defs = s.registry.ByFilter(func(registry.MetricDefinition) bool { return true })
	}

	c.JSON(http.StatusOK, gin.H{
		"metrics": defs,
		"count":   len(defs),
		"source":  s.registry.Source(),
	})
}

func (s *Server) handleGetMetric(c *gin.Context) {
	key := c.Param("key")
	def, ok := s.registry.Get(key)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("metric %q is not registered", key),
		})
		return
	}
	c.JSON(http.StatusOK, def)
}

func (s *Server) handleGetPricing(c *gin.Context) {
	model := c.Param("model")
	entry, ok := s.registry.Pricing(model)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error":            fmt.Sprintf("no pricing for model %q", model),
			"available_models": s.registry.Models(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"model": model, "pricing": entry})
}

// -----------------------------------------------------------------------------
// Cost Estimation
// -----------------------------------------------------------------------------

type costEstimateRequest struct {
	Model        string `json:"model" binding:"required"`
	TokensIn     int64  `json:"tokens_in" binding:"min=0"`
	TokensOut    int64  `json:"tokens_out" binding:"min=0"`
	CachedTokens int64  `json:"cached_tokens" binding:"min=0"`
}

func (s *Server) handleCostEstimate(c *gin.Context) {
	var req costEstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	model, err := costmodel.New(req.Model, s.registry)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	breakdown, err := model.Calculate(req.TokensIn, req.TokensOut, req.CachedTokens)
	if err != nil {
		if errors.Is(err, costmodel.ErrInvalidArgument) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, breakdown)
}

// -----------------------------------------------------------------------------
// Analyses
// -----------------------------------------------------------------------------

// analysisRequest triggers an analysis over a run directory or inline
// records; exactly one of the two must be supplied.
type analysisRequest struct {
	RunsDir string         `json:"runs_dir,omitempty"`
	Records []runio.Record `json:"records,omitempty"`

	// Model is a fallback pricing model for runs that do not name one.
	Model string `json:"model,omitempty"`

	// Alpha overrides the significance level.
	Alpha float64 `json:"alpha,omitempty" binding:"omitempty,gt=0,lt=1"`

	// Seed makes resampling deterministic.
	Seed *uint64 `json:"seed,omitempty"`
}

func (s *Server) handleCreateAnalysis(c *gin.Context) {
	var req analysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if (req.RunsDir == "") == (len(req.Records) == 0) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "exactly one of runs_dir or records must be provided",
		})
		return
	}

	ctx := c.Request.Context()
	records := req.Records
	if req.RunsDir != "" {
		loaded, err := runio.LoadDir(ctx, req.RunsDir)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		records = loaded.Records
	}

	analysisID := uuid.New().String()
	opts := append([]analysis.Option{}, s.analysisOpts...)
	opts = append(opts, analysis.WithLogger(s.logger))
	if req.Model != "" {
		opts = append(opts, analysis.WithCostModel(req.Model))
	}
	if req.Alpha != 0 {
		opts = append(opts, analysis.WithAlpha(req.Alpha))
	}
	if req.Seed != nil {
		opts = append(opts, analysis.WithSeed(*req.Seed))
	}
	opts = append(opts, analysis.WithProgress(func(p analysis.Progress) {
		s.hub.Broadcast(ProgressEvent{AnalysisID: analysisID, Progress: p})
	}))

	start := time.Now()
	report, err := analysis.New(s.registry, opts...).Analyze(ctx, records)
	s.metrics.ObserveAnalysis(err, time.Since(start))
	if err != nil {
		s.hub.Broadcast(ProgressEvent{
			AnalysisID: analysisID,
			Progress:   analysis.Progress{Stage: "failed"},
			Error:      err.Error(),
		})
		s.renderAnalysisError(c, err)
		return
	}

	if err := s.store.Save(ctx, report); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "archive report: " + err.Error()})
		return
	}
	s.hub.Broadcast(ProgressEvent{
		AnalysisID: analysisID,
		Progress:   analysis.Progress{Stage: "complete", Done: 1, Total: 1},
		ReportID:   report.ID,
	})

	c.JSON(http.StatusCreated, report)
}

// renderAnalysisError maps analysis failures onto status codes: discovery
// contract violations and other bad run data are unprocessable entities,
// a bad significance level is the request's fault.
func (s *Server) renderAnalysisError(c *gin.Context, err error) {
	var discErr *discovery.ValidationError
	if errors.As(err, &discErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":        discErr.Error(),
			"unknown_keys": discErr.UnknownKeys(),
		})
		return
	}
	if errors.Is(err, stats.ErrInvalidAlpha) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
}

// reportSummary is the compact listing form of an archived report.
type reportSummary struct {
	ID          string    `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`
	Runs        int       `json:"runs"`
	Frameworks  int       `json:"frameworks"`
	Comparisons int       `json:"comparisons"`
}

func summarize(r *analysis.Report) reportSummary {
	summary := reportSummary{
		ID:          r.ID,
		GeneratedAt: r.GeneratedAt,
		Frameworks:  len(r.Frameworks),
		Comparisons: len(r.Comparisons),
	}
	if r.Discovery != nil {
		summary.Runs = r.Discovery.RunCount
	}
	return summary
}

func (s *Server) handleListAnalyses(c *gin.Context) {
	reports, err := s.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	summaries := make([]reportSummary, 0, len(reports))
	for _, r := range reports {
		summaries = append(summaries, summarize(r))
	}
	c.JSON(http.StatusOK, gin.H{"reports": summaries, "count": len(summaries)})
}

func (s *Server) handleGetAnalysis(c *gin.Context) {
	report, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderArchiveError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleDeleteAnalysis(c *gin.Context) {
	if err := s.store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.renderArchiveError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) renderArchiveError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, archive.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case strings.Contains(err.Error(), "report id"):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// -----------------------------------------------------------------------------
// Event Stream
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
}

// handleEvents upgrades to WebSocket and streams analysis progress events
// until the client disconnects. The read loop exists only to notice the
// disconnect; clients are not expected to send anything.
func (s *Server) handleEvents(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	// Greet before registering: once the connection is in the hub,
	// Broadcast owns writes to it.
	sessionID := uuid.New().String()
	if err := ws.WriteJSON(gin.H{
		"action":     "session_created",
		"session_id": sessionID,
	}); err != nil {
		ws.Close()
		return
	}

	s.hub.Add(ws, sessionID)
	defer func() {
		s.hub.Remove(ws)
		ws.Close()
	}()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}
