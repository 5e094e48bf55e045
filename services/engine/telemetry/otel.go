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
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrOTelInitFailed is returned when OpenTelemetry initialization fails.
	ErrOTelInitFailed = errors.New("opentelemetry initialization failed")

	// ErrInvalidOTelConfig is returned when the OTel configuration is invalid.
	ErrInvalidOTelConfig = errors.New("invalid opentelemetry configuration")
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// OTelConfig configures the OpenTelemetry sink.
//
// Thread Safety: Immutable after creation; safe for concurrent read access.
type OTelConfig struct {
	// ServiceName is the service name for telemetry.
	// Required.
	ServiceName string

	// ServiceVersion is the service version for telemetry.
	// Optional.
	ServiceVersion string

	// TracerProvider is the tracer provider to use.
	// If nil, uses the global tracer provider.
	TracerProvider trace.TracerProvider

	// MeterProvider is the meter provider to use.
	// If nil, uses the global meter provider.
	MeterProvider metric.MeterProvider

	// TraceEnabled enables trace span creation.
	// Default: true.
	TraceEnabled bool

	// MetricsEnabled enables metric recording.
	// Default: true.
	MetricsEnabled bool
}

// DefaultOTelConfig returns a configuration with sensible defaults.
func DefaultOTelConfig() *OTelConfig {
	return &OTelConfig{
		ServiceName:    "rankforge-engine",
		ServiceVersion: "1.0.0",
		TraceEnabled:   true,
		MetricsEnabled: true,
	}
}

// Validate checks that the configuration is valid.
func (c *OTelConfig) Validate() error {
	if c.ServiceName == "" {
		return errors.New("service name is required")
	}
	return nil
}

// -----------------------------------------------------------------------------
// OpenTelemetry Sink
// -----------------------------------------------------------------------------

// OTelSink exports analysis telemetry via OpenTelemetry.
//
// Description:
//
//	OTelSink creates trace spans for recorded operations and records
//	metrics using the OpenTelemetry SDK. It integrates with the standard
//	OTel providers for flexible backend configuration; without configured
//	providers, telemetry is discarded.
//
// Thread Safety: Safe for concurrent use.
//
// Example:
//
//	config := telemetry.DefaultOTelConfig()
//	config.ServiceName = "rankforge-serve"
//
//	sink, err := telemetry.NewOTelSink(config)
//	if err != nil {
//	    return fmt.Errorf("create otel sink: %w", err)
//	}
//	defer sink.Close()
type OTelSink struct {
	config *OTelConfig
	tracer trace.Tracer
	meter  metric.Meter

	// Metrics instruments
	analysisDuration      metric.Float64Histogram
	analysisRuns          metric.Int64Counter
	analysisTotal         metric.Int64Counter
	comparisonPValue      metric.Float64Gauge
	comparisonTotal       metric.Int64Counter
	comparisonSignificant metric.Int64Counter
	errorsTotal           metric.Int64Counter

	mu     sync.RWMutex
	closed bool
}

// compile-time interface check
var _ Sink = (*OTelSink)(nil)

// NewOTelSink creates a new OpenTelemetry telemetry sink.
//
// Inputs:
//   - config: OpenTelemetry configuration. Must not be nil.
//
// Outputs:
//   - *OTelSink: The created sink. Never nil on success.
//   - error: Non-nil if configuration is invalid or initialization fails.
//
// Assumptions:
//   - TracerProvider and MeterProvider are properly initialized.
//   - Caller is responsible for shutting down the providers.
func NewOTelSink(config *OTelConfig) (*OTelSink, error) {
	if config == nil {
		return nil, ErrInvalidOTelConfig
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Join(ErrInvalidOTelConfig, err)
	}

	// Copy config to avoid mutation
	cfg := *config

	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	mp := cfg.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	tracer := tp.Tracer(
		"github.com/rankforge/rankforge/services/engine/telemetry",
		trace.WithInstrumentationVersion(cfg.ServiceVersion),
	)

	meter := mp.Meter(
		"github.com/rankforge/rankforge/services/engine/telemetry",
		metric.WithInstrumentationVersion(cfg.ServiceVersion),
	)

	sink := &OTelSink{
		config: &cfg,
		tracer: tracer,
		meter:  meter,
	}

	if cfg.MetricsEnabled {
		if err := sink.initializeMetrics(); err != nil {
			return nil, errors.Join(ErrOTelInitFailed, err)
		}
	}

	return sink, nil
}

// initializeMetrics creates all metric instruments.
func (s *OTelSink) initializeMetrics() error {
	var err error

	s.analysisDuration, err = s.meter.Float64Histogram(
		"analysis.duration",
		metric.WithDescription("Total analysis duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	s.analysisRuns, err = s.meter.Int64Counter(
		"analysis.runs",
		metric.WithDescription("Total run records analyzed"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return err
	}

	s.analysisTotal, err = s.meter.Int64Counter(
		"analysis.total",
		metric.WithDescription("Total analyses performed"),
		metric.WithUnit("{analysis}"),
	)
	if err != nil {
		return err
	}

	s.comparisonPValue, err = s.meter.Float64Gauge(
		"comparison.p_value",
		metric.WithDescription("Most recent omnibus p-value per metric"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	s.comparisonTotal, err = s.meter.Int64Counter(
		"comparison.total",
		metric.WithDescription("Total statistical comparisons performed"),
		metric.WithUnit("{comparison}"),
	)
	if err != nil {
		return err
	}

	s.comparisonSignificant, err = s.meter.Int64Counter(
		"comparison.significant",
		metric.WithDescription("Comparisons significant at the tested alpha"),
		metric.WithUnit("{comparison}"),
	)
	if err != nil {
		return err
	}

	s.errorsTotal, err = s.meter.Int64Counter(
		"errors.total",
		metric.WithDescription("Total errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// RecordAnalysis records analysis telemetry.
//
// Creates a trace span for the analysis and records duration, run count,
// and analysis count metrics.
//
// Thread Safety: Safe for concurrent use.
func (s *OTelSink) RecordAnalysis(ctx context.Context, data *AnalysisData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrSinkClosed
	}
	s.mu.RUnlock()

	attrs := []attribute.KeyValue{
		attribute.String("analysis.report_id", data.ReportID),
		attribute.Int("analysis.runs", data.Runs),
		attribute.Int("analysis.frameworks", data.Frameworks),
		attribute.Int("analysis.metrics_with_data", data.MetricsWithData),
	}
	for k, v := range data.Labels {
		attrs = append(attrs, attribute.String("label."+k, v))
	}

	if s.config.TraceEnabled {
		_, span := s.tracer.Start(ctx, "analysis.record",
			trace.WithAttributes(attrs...),
			trace.WithTimestamp(data.Timestamp),
		)
		span.SetAttributes(attribute.Float64("analysis.duration_seconds", data.Duration.Seconds()))
		span.End()
	}

	if s.config.MetricsEnabled {
		attrSet := metric.WithAttributes(attrs...)
		s.analysisDuration.Record(ctx, data.Duration.Seconds(), attrSet)
		s.analysisRuns.Add(ctx, int64(data.Runs), attrSet)
		s.analysisTotal.Add(ctx, 1, attrSet)
	}

	return nil
}

// RecordComparison records comparison telemetry.
//
// Creates a trace span for the comparison and records the omnibus p-value
// and significance counters.
//
// Thread Safety: Safe for concurrent use.
func (s *OTelSink) RecordComparison(ctx context.Context, data *ComparisonData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrSinkClosed
	}
	s.mu.RUnlock()

	metricName := data.Metric
	if metricName == "" {
		metricName = "unknown"
	}

	attrs := []attribute.KeyValue{
		attribute.String("comparison.metric", metricName),
		attribute.Bool("comparison.significant", data.Significant),
		attribute.Float64("comparison.p_value", data.PValue),
		attribute.Int("comparison.groups", data.NGroups),
		attribute.Int("comparison.pairs", data.Pairs),
		attribute.Int("comparison.significant_pairs", data.SignificantPairs),
	}
	for k, v := range data.Labels {
		attrs = append(attrs, attribute.String("label."+k, v))
	}

	if s.config.TraceEnabled {
		_, span := s.tracer.Start(ctx, "comparison.record",
			trace.WithAttributes(attrs...),
			trace.WithTimestamp(data.Timestamp),
		)
		span.End()
	}

	if s.config.MetricsEnabled {
		attrSet := metric.WithAttributes(
			attribute.String("metric", metricName),
			attribute.Bool("significant", data.Significant),
		)
		s.comparisonPValue.Record(ctx, data.PValue, attrSet)
		s.comparisonTotal.Add(ctx, 1, attrSet)
		if data.Significant {
			s.comparisonSignificant.Add(ctx, 1, attrSet)
		}
	}

	return nil
}

// RecordError records error telemetry.
//
// Creates an error-status trace span and increments the error counter.
//
// Thread Safety: Safe for concurrent use.
func (s *OTelSink) RecordError(ctx context.Context, data *ErrorData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrSinkClosed
	}
	s.mu.RUnlock()

	component := data.Component
	if component == "" {
		component = "unknown"
	}
	operation := data.Operation
	if operation == "" {
		operation = "unknown"
	}
	errorType := data.ErrorType
	if errorType == "" {
		errorType = "unknown"
	}

	attrs := []attribute.KeyValue{
		attribute.String("error.component", component),
		attribute.String("error.operation", operation),
		attribute.String("error.type", errorType),
		attribute.String("error.message", data.Message),
	}
	for k, v := range data.Labels {
		attrs = append(attrs, attribute.String("label."+k, v))
	}

	if s.config.TraceEnabled {
		_, span := s.tracer.Start(ctx, "error.record",
			trace.WithAttributes(attrs...),
			trace.WithTimestamp(data.Timestamp),
		)
		span.SetStatus(codes.Error, data.Message)
		span.End()
	}

	if s.config.MetricsEnabled {
		attrSet := metric.WithAttributes(
			attribute.String("component", component),
			attribute.String("operation", operation),
			attribute.String("error_type", errorType),
		)
		s.errorsTotal.Add(ctx, 1, attrSet)
	}

	return nil
}

// Flush forces export of any buffered telemetry.
//
// For the OTel sink this is a no-op: batching and export are handled by
// the providers, which this sink does not own. Callers needing a hard
// flush should use the providers' ForceFlush directly.
func (s *OTelSink) Flush(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrSinkClosed
	}
	return nil
}

// Close marks the sink as closed. It does not shut down the providers, as
// they may be shared and are managed by the caller. Idempotent.
func (s *OTelSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return nil
}
