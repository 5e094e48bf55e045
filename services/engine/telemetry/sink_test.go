// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestNopSink verifies the no-op sink accepts everything and reports no
// errors, so it can stand in wherever no telemetry backend is configured.
func TestNopSink(t *testing.T) {
	sink := NewNopSink()
	ctx := context.Background()

	if err := sink.RecordAnalysis(ctx, &AnalysisData{}); err != nil {
		t.Errorf("RecordAnalysis() error = %v", err)
	}
	if err := sink.RecordComparison(ctx, nil); err != nil {
		t.Errorf("RecordComparison() error = %v", err)
	}
	if err := sink.RecordError(ctx, nil); err != nil {
		t.Errorf("RecordError() error = %v", err)
	}
	if err := sink.Flush(ctx); err != nil {
		t.Errorf("Flush() error = %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	var _ Sink = sink
}

// TestNewMetrics verifies the engine instruments register on an isolated
// registry and the observe helpers drive the expected series.
func TestNewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveAnalysis(nil, 120*time.Millisecond)
	m.ObserveAnalysis(errors.New("boom"), 5*time.Millisecond)
	m.ObserveHTTP("POST", "/v1/analyses", 201, 40*time.Millisecond)
	m.ObserveHTTP("POST", "/v1/analyses", 201, 10*time.Millisecond)

	if got := testutil.ToFloat64(m.AnalysesTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("analyses_total{status=ok} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.AnalysesTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("analyses_total{status=error} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/v1/analyses", "201")); got != 2 {
		t.Errorf("http_requests_total = %v, want 2", got)
	}

	if n, err := testutil.GatherAndCount(reg); err != nil || n == 0 {
		t.Errorf("GatherAndCount() = %d, %v; want registered series", n, err)
	}
}

// TestMetrics_NilReceiver verifies the observe helpers tolerate a nil
// Metrics so callers can leave instrumentation unconfigured.
func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	m.ObserveAnalysis(nil, time.Second)
	m.ObserveHTTP("GET", "/health", 200, time.Millisecond)
}
