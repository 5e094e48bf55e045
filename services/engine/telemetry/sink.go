// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package telemetry provides observability infrastructure for the engine:
// OpenTelemetry provider bootstrap, the Sink abstraction the analyzer
// reports through, and the engine-wide Prometheus instruments.
//
// # Sink Interface
//
// The Sink interface is the primary abstraction for analysis telemetry:
//
//	sink, err := telemetry.NewOTelSink(telemetry.DefaultOTelConfig())
//	if err != nil {
//	    return fmt.Errorf("create sink: %w", err)
//	}
//	defer sink.Close()
//
//	sink.RecordAnalysis(ctx, data)
//
// NopSink discards everything and is the default for library callers that
// do not configure telemetry.
package telemetry

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for sink operations.
var (
	// ErrNilContext is returned when a nil context is passed to a sink.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNilData is returned when nil telemetry data is passed to a sink.
	ErrNilData = errors.New("telemetry data must not be nil")

	// ErrSinkClosed is returned when recording against a closed sink.
	ErrSinkClosed = errors.New("telemetry sink closed")
)

// Sink receives analysis telemetry. Implementations must be safe for
// concurrent use; recording must never block analysis for longer than the
// underlying exporter's buffering allows.
type Sink interface {
	// RecordAnalysis records one completed analysis.
	RecordAnalysis(ctx context.Context, data *AnalysisData) error

	// RecordComparison records one per-metric statistical comparison.
	RecordComparison(ctx context.Context, data *ComparisonData) error

	// RecordError records a failure in a named component and operation.
	RecordError(ctx context.Context, data *ErrorData) error

	// Flush forces export of any buffered telemetry.
	Flush(ctx context.Context) error

	// Close releases sink resources. Idempotent.
	Close() error
}

// AnalysisData describes one completed analysis pass.
type AnalysisData struct {
	// ReportID is the UUID of the produced report.
	ReportID string

	// Duration is the wall time of the analysis.
	Duration time.Duration

	// Runs is the number of run records analyzed.
	Runs int

	// Frameworks is the number of distinct frameworks in the run set.
	Frameworks int

	// MetricsWithData is the number of registry metrics that had data.
	MetricsWithData int

	// Timestamp is when the analysis completed.
	Timestamp time.Time

	// Labels carries optional caller attributes.
	Labels map[string]string
}

// ComparisonData describes one per-metric Kruskal-Wallis comparison and
// its pairwise follow-ups.
type ComparisonData struct {
	// Metric is the registry key the comparison was computed for.
	Metric string

	// PValue is the omnibus test p-value.
	PValue float64

	// Significant reports whether the omnibus test rejected at alpha.
	Significant bool

	// NGroups is the number of framework groups compared.
	NGroups int

	// Pairs is the number of pairwise comparisons performed.
	Pairs int

	// SignificantPairs counts pairs significant at the corrected alpha.
	SignificantPairs int

	// Timestamp is when the comparison was computed.
	Timestamp time.Time

	// Labels carries optional caller attributes.
	Labels map[string]string
}

// ErrorData describes a recorded failure.
type ErrorData struct {
	// Component is the failing component (e.g. "analysis", "archive").
	Component string

	// Operation is the failing operation within the component.
	Operation string

	// ErrorType classifies the failure for aggregation.
	ErrorType string

	// Message is the human-readable error text.
	Message string

	// Timestamp is when the failure occurred.
	Timestamp time.Time

	// Labels carries optional caller attributes.
	Labels map[string]string
}

// NopSink discards all telemetry. Useful as a default when no backend is
// configured.
type NopSink struct{}

// NewNopSink returns a sink that records nothing.
func NewNopSink() *NopSink { return &NopSink{} }

func (*NopSink) RecordAnalysis(ctx context.Context, data *AnalysisData) error     { return nil }
func (*NopSink) RecordComparison(ctx context.Context, data *ComparisonData) error { return nil }
func (*NopSink) RecordError(ctx context.Context, data *ErrorData) error           { return nil }
func (*NopSink) Flush(ctx context.Context) error                                  { return nil }
func (*NopSink) Close() error                                                     { return nil }
