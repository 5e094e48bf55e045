// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package discovery partitions the registry's metric keys by whether run
// data actually exists for them, and rejects run sets that reference
// metrics the registry does not define.
//
// Discovery is the gate between raw run records and analysis: a metric key
// that appears in a run but not in the registry is a configuration error,
// not data to be silently dropped. The scan covers every run before
// failing, so the resulting error names all unknown keys at once instead of
// stopping at the first.
package discovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rankforge/rankforge/services/engine/registry"
	"github.com/rankforge/rankforge/services/engine/runio"
)

var (
	discoveryRunsScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rankforge_discovery_runs_scanned_total",
		Help: "Total number of run records scanned during metric discovery",
	})
	discoveryFilesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rankforge_discovery_files_skipped_total",
		Help: "Total number of unparseable run files skipped during metric discovery",
	})
)

var discoveryTracer = otel.Tracer("engine.discovery")

// Result is the outcome of a completed discovery pass. The three key sets
// are disjoint and sorted; MetricsWithData and MetricsWithoutData together
// cover every key in the registry. UnknownMetrics is always empty on a
// returned Result because unknown keys abort discovery with a
// ValidationError instead.
type Result struct {
	// MetricsWithData lists registry keys with at least one non-null
	// numeric value across the scanned runs.
	MetricsWithData []string `json:"metrics_with_data"`

	// MetricsWithoutData lists registry keys no scanned run reported a
	// usable value for. Derived and unmeasured metrics normally land here.
	MetricsWithoutData []string `json:"metrics_without_data"`

	// UnknownMetrics lists keys seen in run data but absent from the
	// registry. Kept in the shape for serialized reports; non-empty sets
	// surface as errors, never as results.
	UnknownMetrics []string `json:"unknown_metrics"`

	// RunCount is the number of runs considered. For directory scans this
	// counts every candidate file, including ones that failed to parse.
	RunCount int `json:"run_count"`
}

// HasData reports whether key landed in MetricsWithData.
func (r *Result) HasData(key string) bool {
	if r == nil {
		return false
	}
	for _, k := range r.MetricsWithData {
		if k == key {
			return true
		}
	}
	return false
}

// Discover scans in-memory run records against the registry.
//
// Description:
//
//	Each record must carry an aggregate-metrics object; a record without
//	one fails immediately with a ValidationError naming the run. Metric
//	keys not present in the registry are accumulated across the whole
//	scan and reported together in a single ValidationError. On success
//	every registry key is classified into MetricsWithData or
//	MetricsWithoutData based on whether any run reported a non-null
//	numeric value for it.
//
// Inputs:
//
//	ctx - context for tracing.
//	records - parsed run records, scanned in slice order.
//	reg - the metric registry to classify against. Must not be nil.
//
// Outputs:
//
//	*Result - the partitioned key sets with RunCount = len(records).
//	error - *ValidationError on contract violations.
func Discover(ctx context.Context, records []runio.Record, reg *registry.Registry) (*Result, error) {
	_, span := discoveryTracer.Start(ctx, "discovery.Discover",
		trace.WithAttributes(attribute.Int("discovery.records", len(records))))
	defer span.End()

	result, err := scan(records, reg, len(records))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "discovery failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("discovery.metrics_with_data", len(result.MetricsWithData)),
		attribute.Int("discovery.metrics_without_data", len(result.MetricsWithoutData)),
	)
	return result, nil
}

// DiscoverDir loads every run record under dir and scans it against the
// registry. Unparseable files are skipped with a warning by the loader and
// counted in RunCount, which reflects files considered rather than files
// parsed. The loaded records are returned alongside the result so callers
// can analyze them without reading the directory twice.
func DiscoverDir(ctx context.Context, dir string, reg *registry.Registry) (*Result, []runio.Record, error) {
	ctx, span := discoveryTracer.Start(ctx, "discovery.DiscoverDir",
		trace.WithAttributes(attribute.String("discovery.dir", dir)))
	defer span.End()

	loaded, err := runio.LoadDir(ctx, dir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run directory load failed")
		return nil, nil, err
	}
	discoveryFilesSkipped.Add(float64(len(loaded.Skipped)))

	result, err := scan(loaded.Records, reg, loaded.FilesConsidered)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "discovery failed")
		return nil, nil, err
	}

	span.SetAttributes(
		attribute.Int("discovery.metrics_with_data", len(result.MetricsWithData)),
		attribute.Int("discovery.metrics_without_data", len(result.MetricsWithoutData)),
	)
	slog.Info("metric discovery complete",
		slog.String("dir", dir),
		slog.Int("runs", result.RunCount),
		slog.Int("skipped", len(loaded.Skipped)),
		slog.Int("metrics_with_data", len(result.MetricsWithData)),
		slog.Int("metrics_without_data", len(result.MetricsWithoutData)))
	return result, loaded.Records, nil
}

// scan walks the records once, failing fast on structural violations and
// collecting unknown keys until the end so the error covers all of them.
func scan(records []runio.Record, reg *registry.Registry, runCount int) (*Result, error) {
	if reg == nil {
		return nil, fmt.Errorf("discovery: registry must not be nil")
	}

	withData := make(map[string]bool)
	unknown := make(map[string]string)

	for i := range records {
		rec := &records[i]
		if rec.AggregateMetrics == nil {
			return nil, &ValidationError{Run: rec.Ref(), Missing: "aggregate_metrics"}
		}
		discoveryRunsScanned.Inc()

		for _, key := range rec.MetricKeys() {
			if _, ok := reg.Get(key); !ok {
				if _, seen := unknown[key]; !seen {
					unknown[key] = rec.Ref()
				}
				continue
			}
			if _, ok := rec.Metric(key); ok {
				withData[key] = true
			}
		}
	}

	if len(unknown) > 0 {
		return nil, &ValidationError{Unknown: unknown}
	}

	result := &Result{
		MetricsWithData:    []string{},
		MetricsWithoutData: []string{},
		UnknownMetrics:     []string{},
		RunCount:           runCount,
	}
	for _, key := range reg.Keys() {
		if withData[key] {
			result.MetricsWithData = append(result.MetricsWithData, key)
		} else {
			result.MetricsWithoutData = append(result.MetricsWithoutData, key)
		}
	}
	return result, nil
}
