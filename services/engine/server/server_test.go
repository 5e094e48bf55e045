// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rankforge/rankforge/services/engine/analysis"
	"github.com/rankforge/rankforge/services/engine/archive"
	"github.com/rankforge/rankforge/services/engine/registry"
	"github.com/rankforge/rankforge/services/engine/runio"
	"github.com/rankforge/rankforge/services/engine/telemetry"
)

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

const serverRegistryDoc = `
metrics:
  tokens_in:
    name: Input Tokens
    category: cost
    ideal_direction: minimize
    statistical_test: true
  tokens_out:
    name: Output Tokens
    category: cost
    ideal_direction: minimize
  cached_tokens:
    name: Cached Input Tokens
    category: cost
    ideal_direction: maximize
  duration_seconds:
    name: Wall Clock Duration
    category: performance
    ideal_direction: minimize
    statistical_test: true
  total_cost_usd:
    name: Total Cost (USD)
    category: cost
    ideal_direction: minimize
    status: derived
    reason: Computed from token counts and the pricing table.
pricing:
  models:
    gpt-4o-mini:
      input_price: 0.150
      cached_price: 0.075
      output_price: 0.600
`

func newTestServer(t *testing.T) *Server {
	t.Helper()

	reg, err := registry.Parse(context.Background(), []byte(serverRegistryDoc))
	require.NoError(t, err)

	store, err := archive.OpenStore(archive.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())

	s, err := New(DefaultConfig(), reg, store,
		WithLogger(logger),
		WithMetrics(metrics))
	require.NoError(t, err)
	return s
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), into))
}

// analysisRecords builds three frameworks with three runs each; fastkit
// runs carry token counts and a model so costs come out.
func analysisRecords() []runio.Record {
	mkRun := func(id, framework string, duration float64, withModel bool) runio.Record {
		rec := runio.Record{
			RunID:     id,
			Framework: framework,
			AggregateMetrics: map[string]any{
				"duration_seconds": duration,
			},
		}
		if withModel {
			rec.Model = "gpt-4o-mini"
			rec.AggregateMetrics["tokens_in"] = 100000
			rec.AggregateMetrics["tokens_out"] = 50000
			rec.AggregateMetrics["cached_tokens"] = 20000
		}
		return rec
	}
	return []runio.Record{
		mkRun("fk-1", "fastkit", 1000, true),
		mkRun("fk-2", "fastkit", 1100, true),
		mkRun("fk-3", "fastkit", 1050, true),
		mkRun("hw-1", "heavyweight", 5000, false),
		mkRun("hw-2", "heavyweight", 5200, false),
		mkRun("hw-3", "heavyweight", 4900, false),
		mkRun("sl-1", "steadylab", 1020, false),
		mkRun("sl-2", "steadylab", 980, false),
		mkRun("sl-3", "steadylab", 1010, false),
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegistryRoutes(t *testing.T) {
	s := newTestServer(t)

	t.Run("list all metrics", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/v1/registry/metrics", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Metrics []registry.MetricDefinition `json:"metrics"`
			Count   int                         `json:"count"`
			Source  string                      `json:"source"`
		}
		decodeJSON(t, w, &resp)
		assert.Equal(t, 5, resp.Count)
		assert.Equal(t, "inline", resp.Source)
	})

	t.Run("filter by category", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/v1/registry/metrics?category=performance", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Metrics []registry.MetricDefinition `json:"metrics"`
			Count   int                         `json:"count"`
		}
		decodeJSON(t, w, &resp)
		require.Equal(t, 1, resp.Count)
		assert.Equal(t, "duration_seconds", resp.Metrics[0].Key)
	})

	t.Run("unknown category is empty not an error", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/v1/registry/metrics?category=vibes", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"count":0`)
	})

	t.Run("get metric", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/v1/registry/metrics/tokens_in", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var def registry.MetricDefinition
		decodeJSON(t, w, &def)
		assert.Equal(t, "tokens_in", def.Key)
		assert.True(t, def.StatisticalTest)
	})

	t.Run("get unknown metric", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/v1/registry/metrics/nope", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "not registered")
	})

	t.Run("get pricing", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/v1/registry/pricing/gpt-4o-mini", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"input_price":0.15`)
	})

	t.Run("get unknown pricing", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/v1/registry/pricing/gpt-99", nil)
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "gpt-4o-mini")
	})
}

func TestCostEstimate(t *testing.T) {
	s := newTestServer(t)

	t.Run("valid request", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/v1/cost/estimate", gin.H{
			"model":         "gpt-4o-mini",
			"tokens_in":     100000,
			"tokens_out":    50000,
			"cached_tokens": 20000,
		})
		require.Equal(t, http.StatusOK, w.Code)

		var breakdown struct {
			TotalCost    float64 `json:"total_cost_usd"`
			CacheSavings float64 `json:"cache_savings_usd"`
		}
		decodeJSON(t, w, &breakdown)
		assert.InDelta(t, 0.0435, breakdown.TotalCost, 1e-6)
		assert.InDelta(t, 0.0015, breakdown.CacheSavings, 1e-6)
	})

	t.Run("unknown model", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/v1/cost/estimate", gin.H{
			"model":     "gpt-99",
			"tokens_in": 1000,
		})
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "available models")
	})

	t.Run("cached exceeds input", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/v1/cost/estimate", gin.H{
			"model":         "gpt-4o-mini",
			"tokens_in":     100,
			"cached_tokens": 150,
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "exceeds")
	})

	t.Run("negative tokens rejected by binding", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/v1/cost/estimate", gin.H{
			"model":     "gpt-4o-mini",
			"tokens_in": -5,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing model rejected by binding", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/v1/cost/estimate", gin.H{
			"tokens_in": 1000,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAnalysisLifecycle(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(t, s, http.MethodPost, "/v1/analyses", gin.H{
		"records": analysisRecords(),
	})
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())

	var report analysis.Report
	decodeJSON(t, w, &report)
	_, err := uuid.Parse(report.ID)
	require.NoError(t, err, "report id %q is not a UUID", report.ID)
	require.Len(t, report.Frameworks, 3)
	require.NotNil(t, report.Discovery)
	assert.Equal(t, 9, report.Discovery.RunCount)

	fk, found := report.Framework("fastkit")
	require.True(t, found, "report has no fastkit aggregate")
	require.NotNil(t, fk.Cost, "fastkit runs carry a model, cost expected")

	t.Run("list", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/v1/analyses", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Reports []reportSummary `json:"reports"`
			Count   int             `json:"count"`
		}
		decodeJSON(t, w, &resp)
		require.Equal(t, 1, resp.Count)
		assert.Equal(t, report.ID, resp.Reports[0].ID)
		assert.Equal(t, 9, resp.Reports[0].Runs)
	})

	t.Run("get", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/v1/analyses/"+report.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var got analysis.Report
		decodeJSON(t, w, &got)
		assert.Equal(t, report.ID, got.ID)
	})

	t.Run("get missing", func(t *testing.T) {
		w := doRequest(t, s, http.MethodGet, "/v1/analyses/"+uuid.New().String(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("delete", func(t *testing.T) {
		w := doRequest(t, s, http.MethodDelete, "/v1/analyses/"+report.ID, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = doRequest(t, s, http.MethodGet, "/v1/analyses/"+report.ID, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = doRequest(t, s, http.MethodDelete, "/v1/analyses/"+report.ID, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCreateAnalysis_Validation(t *testing.T) {
	s := newTestServer(t)

	t.Run("neither source", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/v1/analyses", gin.H{})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "exactly one")
	})

	t.Run("both sources", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/v1/analyses", gin.H{
			"runs_dir": "/tmp/runs",
			"records":  analysisRecords(),
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown metric keys map to 422", func(t *testing.T) {
		records := []runio.Record{{
			RunID:            "r-1",
			Framework:        "fastkit",
			AggregateMetrics: map[string]any{"vibes": 11, "tokens_in": 1000},
		}}
		w := doRequest(t, s, http.MethodPost, "/v1/analyses", gin.H{"records": records})
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)

		var resp struct {
			Error       string   `json:"error"`
			UnknownKeys []string `json:"unknown_keys"`
		}
		decodeJSON(t, w, &resp)
		assert.Equal(t, []string{"vibes"}, resp.UnknownKeys)
		assert.Contains(t, resp.Error, "vibes")
	})

	t.Run("alpha out of range rejected by binding", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/v1/analyses", gin.H{
			"records": analysisRecords(),
			"alpha":   1.5,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCreateAnalysis_RunsDir(t *testing.T) {
	s := newTestServer(t)
	dir := t.TempDir()

	writeRun := func(name string, doc string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(doc), 0o644))
	}
	writeRun("run1.json", `{"run_id":"run-1","framework":"fastkit","aggregate_metrics":{"duration_seconds":12.5}}`)
	writeRun("run2.json", `{"run_id":"run-2","framework":"fastkit","aggregate_metrics":{"duration_seconds":14.0}}`)
	writeRun("broken.json", `{"run_id": truncated`)

	w := doRequest(t, s, http.MethodPost, "/v1/analyses", gin.H{"runs_dir": dir})
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())

	var report analysis.Report
	decodeJSON(t, w, &report)
	require.Len(t, report.Frameworks, 1)
	assert.Equal(t, "fastkit", report.Frameworks[0].Framework)
	assert.Equal(t, 2, report.Frameworks[0].Runs)

	t.Run("missing directory", func(t *testing.T) {
		w := doRequest(t, s, http.MethodPost, "/v1/analyses", gin.H{
			"runs_dir": filepath.Join(dir, "nope"),
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestEventsStream(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/analyses/events"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	var greeting struct {
		Action    string `json:"action"`
		SessionID string `json:"session_id"`
	}
	require.NoError(t, ws.ReadJSON(&greeting))
	assert.Equal(t, "session_created", greeting.Action)
	_, err = uuid.Parse(greeting.SessionID)
	assert.NoError(t, err)
	assert.Equal(t, 1, s.hub.Count())

	body, err := json.Marshal(gin.H{"records": analysisRecords()})
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/v1/analyses", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var report analysis.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	stages := make(map[string]bool)
	var analysisID, reportID string
	for {
		var ev ProgressEvent
		require.NoError(t, ws.ReadJSON(&ev))
		require.NotEmpty(t, ev.AnalysisID)
		if analysisID == "" {
			analysisID = ev.AnalysisID
		}
		assert.Equal(t, analysisID, ev.AnalysisID, "events from one analysis share an id")

		stages[ev.Stage] = true
		if ev.Stage == "complete" {
			reportID = ev.ReportID
			break
		}
	}

	for _, stage := range []string{"discovery", "aggregate", "compare", "report", "complete"} {
		assert.True(t, stages[stage], "missing stage %q", stage)
	}
	assert.Equal(t, report.ID, reportID)
}

func TestRun_GracefulShutdown(t *testing.T) {
	s := newTestServer(t)
	s.cfg.Addr = "127.0.0.1:0"
	s.cfg.ShutdownTimeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	// Wait for the listener to come up.
	deadline := time.Now().Add(5 * time.Second)
	for s.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("server never started listening")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get("http://" + s.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down after context cancellation")
	}
}
