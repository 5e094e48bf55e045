// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package export pushes analysis reports to external systems: InfluxDB
// time-series export, CSV files, and the secure credential handling the
// exporters share.
//
// Exports are write-only projections of a report. The report artifact in
// the archive stays the source of truth; re-exporting is always safe.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"golang.org/x/time/rate"

	"github.com/rankforge/rankforge/pkg/validation"
	"github.com/rankforge/rankforge/services/engine/analysis"
)

const (
	// measurementMetrics holds one point per framework and metric.
	measurementMetrics = "framework_metrics"

	// measurementCosts holds one point per framework with cost data.
	measurementCosts = "framework_costs"

	// DefaultPointsPerSecond caps the blocking write rate so a large
	// backfill cannot saturate a shared InfluxDB instance.
	DefaultPointsPerSecond = 500

	// DefaultWriteBurst is the largest batch the limiter admits at once.
	DefaultWriteBurst = 100
)

// InfluxConfig configures an InfluxExporter.
type InfluxConfig struct {
	URL    string
	Org    string
	Bucket string

	// Token is revealed once during construction and destroyed
	// immediately after; the client keeps its own copy for request auth.
	Token *SecureToken

	// PointsPerSecond throttles writes; zero or negative disables
	// throttling entirely.
	PointsPerSecond float64

	// Burst is the largest write batch the limiter admits at once.
	// Zero means DefaultWriteBurst.
	Burst int

	Logger *slog.Logger
}

// InfluxExporter writes framework aggregates from an analysis report to
// an InfluxDB bucket using the blocking write API.
type InfluxExporter struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	bucket   string
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewInfluxExporter builds an exporter from cfg. The configured token is
// consumed: revealed for client construction and wiped before return.
func NewInfluxExporter(cfg InfluxConfig) (*InfluxExporter, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx url, org, and bucket are required")
	}
	if cfg.Token == nil {
		return nil, fmt.Errorf("influx token is required")
	}

	token, err := cfg.Token.Reveal()
	if err != nil {
		return nil, fmt.Errorf("reveal influx token: %w", err)
	}
	client := influxdb2.NewClient(cfg.URL, token)
	cfg.Token.Destroy()

	limit := rate.Inf
	if cfg.PointsPerSecond > 0 {
		limit = rate.Limit(cfg.PointsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = DefaultWriteBurst
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &InfluxExporter{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		queryAPI: client.QueryAPI(cfg.Org),
		bucket:   cfg.Bucket,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger,
	}, nil
}

// Close releases the underlying HTTP client.
func (e *InfluxExporter) Close() {
	e.client.Close()
}

// Ping reports whether the InfluxDB instance is up and healthy.
func (e *InfluxExporter) Ping(ctx context.Context) error {
	health, err := e.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("influx health check: %w", err)
	}
	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("influx unhealthy: %s %s", health.Status, msg)
	}
	return nil
}

// Export writes one point per framework and metric plus one cost point
// per framework carrying cost data, all timestamped at the report's
// GeneratedAt. Writes go out in rate-limited batches. Returns the number
// of points written.
func (e *InfluxExporter) Export(ctx context.Context, report *analysis.Report) (int, error) {
	if report == nil {
		return 0, fmt.Errorf("report must not be nil")
	}

	points, err := buildPoints(report)
	if err != nil {
		return 0, err
	}
	if len(points) == 0 {
		return 0, nil
	}

	batch := min(DefaultWriteBurst, e.limiter.Burst())
	written := 0
	for start := 0; start < len(points); start += batch {
		end := min(start+batch, len(points))
		chunk := points[start:end]
		if err := e.limiter.WaitN(ctx, len(chunk)); err != nil {
			return written, fmt.Errorf("rate limit wait: %w", err)
		}
		if err := e.writeAPI.WritePoint(ctx, chunk...); err != nil {
			return written, fmt.Errorf("write points: %w", err)
		}
		written += len(chunk)
	}

	e.logger.Info("report exported to influx",
		"report_id", report.ID,
		"points", written,
		"bucket", e.bucket)
	return written, nil
}

// VerifyExport counts the metric points stored for a report. The id is
// validated before it is interpolated into Flux.
func (e *InfluxExporter) VerifyExport(ctx context.Context, reportID string) (int64, error) {
	if err := validation.ValidateRunID(reportID); err != nil {
		return 0, fmt.Errorf("invalid report id: %w", err)
	}

	query := fmt.Sprintf(`
		from(bucket: "%s")
		  |> range(start: -30d)
		  |> filter(fn: (r) => r._measurement == "%s")
		  |> filter(fn: (r) => r.report_id == "%s")
		  |> count()
	`, e.bucket, measurementMetrics, reportID)

	result, err := e.queryAPI.Query(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("influx query failed: %w", err)
	}

	var total int64
	for result.Next() {
		if v, ok := result.Record().Value().(int64); ok {
			total += v
		}
	}
	if result.Err() != nil {
		return 0, fmt.Errorf("error reading influx results: %w", result.Err())
	}
	return total, nil
}

// buildPoints turns a report into line-protocol points. Framework
// labels, metric keys, and the report id become tags that later feed
// Flux filters, so each is validated before it enters the bucket.
func buildPoints(report *analysis.Report) ([]*write.Point, error) {
	if err := validation.ValidateRunID(report.ID); err != nil {
		return nil, fmt.Errorf("report id: %w", err)
	}

	var points []*write.Point
	for i := range report.Frameworks {
		fw := &report.Frameworks[i]
		if err := validation.ValidateFrameworkLabel(fw.Framework); err != nil {
			return nil, fmt.Errorf("framework %q: %w", fw.Framework, err)
		}

		keys := make([]string, 0, len(fw.Stats))
		for key := range fw.Stats {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			if err := validation.ValidateMetricKey(key); err != nil {
				return nil, fmt.Errorf("metric %q: %w", key, err)
			}
			st := fw.Stats[key]
			points = append(points, influxdb2.NewPoint(
				measurementMetrics,
				map[string]string{
					"framework": fw.Framework,
					"metric":    key,
					"report_id": report.ID,
				},
				map[string]interface{}{
					"mean":     st.Mean,
					"median":   st.Median,
					"std":      st.Std,
					"ci_lower": st.CILower,
					"ci_upper": st.CIUpper,
					"min":      st.Min,
					"max":      st.Max,
					"n":        int64(st.N),
				},
				report.GeneratedAt,
			))
		}

		if fw.Cost != nil {
			tags := map[string]string{
				"framework": fw.Framework,
				"report_id": report.ID,
			}
			// Model names come from the pricing table and may use
			// characters outside the identifier set; the line-protocol
			// encoder escapes tag values, and models never feed Flux
			// filters here.
			if fw.Cost.Model != "" {
				tags["model"] = fw.Cost.Model
			}
			points = append(points, influxdb2.NewPoint(
				measurementCosts,
				tags,
				map[string]interface{}{
					"total_cost_usd":    fw.Cost.TotalCost,
					"cache_savings_usd": fw.Cost.CacheSavings,
					"tokens_in":         fw.Cost.TokensIn,
					"tokens_out":        fw.Cost.TokensOut,
					"cached_tokens":     fw.Cost.CachedTokens,
					"cache_hit_rate":    fw.Cost.CacheHitRate(),
				},
				report.GeneratedAt,
			))
		}
	}
	return points, nil
}
