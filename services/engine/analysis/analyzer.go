// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package analysis orchestrates the benchmarking pipeline: metric
// discovery, per-framework aggregation with bootstrap intervals, outlier
// flagging, nonparametric across-framework comparisons, and token cost
// accounting, assembled into a single Report.
//
// The Analyzer is built by dependency injection around a loaded registry
// and holds no mutable state across calls, so one instance may serve
// concurrent goroutines. All computation inside Analyze is synchronous;
// long-running callers observe progress through the optional callback.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rankforge/rankforge/pkg/validation"
	"github.com/rankforge/rankforge/services/engine/costmodel"
	"github.com/rankforge/rankforge/services/engine/discovery"
	"github.com/rankforge/rankforge/services/engine/registry"
	"github.com/rankforge/rankforge/services/engine/runio"
	"github.com/rankforge/rankforge/services/engine/stats"
	"github.com/rankforge/rankforge/services/engine/telemetry"
)

var analysisTracer = otel.Tracer("engine.analysis")

// DefaultAlpha is the significance level used when no option overrides it.
const DefaultAlpha = 0.05

// Metric keys the cost step reads from run data.
const (
	metricTokensIn     = "tokens_in"
	metricTokensOut    = "tokens_out"
	metricCachedTokens = "cached_tokens"
)

// Progress is one pipeline progress event. Stages arrive in order:
// "discovery", "aggregate" (per framework, with Framework set), "compare"
// (per tested metric, with Metric set), "report".
type Progress struct {
	Stage     string `json:"stage"`
	Done      int    `json:"done"`
	Total     int    `json:"total"`
	Framework string `json:"framework,omitempty"`
	Metric    string `json:"metric,omitempty"`
}

// ProgressFunc receives pipeline progress events. Callbacks run
// synchronously on the analyzing goroutine.
type ProgressFunc func(p Progress)

type options struct {
	alpha            float64
	confidence       float64
	resamples        int
	seed             uint64
	seeded           bool
	outlierThreshold float64
	costModel        string
	sink             telemetry.Sink
	progress         ProgressFunc
	logger           *slog.Logger
}

// Option configures an Analyzer.
type Option func(*options)

// WithAlpha sets the significance level for the omnibus and pairwise
// tests. Default DefaultAlpha.
func WithAlpha(alpha float64) Option {
	return func(o *options) { o.alpha = alpha }
}

// WithConfidence sets the bootstrap confidence level. Default
// stats.DefaultConfidence.
func WithConfidence(confidence float64) Option {
	return func(o *options) { o.confidence = confidence }
}

// WithResamples sets the bootstrap resample count. Default
// stats.DefaultResamples.
func WithResamples(n int) Option {
	return func(o *options) { o.resamples = n }
}

// WithSeed makes resampling deterministic. Each (framework, metric) pair
// draws from its own sub-seed derived from the base, so a single seed
// reproduces every interval in the report.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
		o.seeded = true
	}
}

// WithOutlierThreshold sets the outlier flagging threshold in sample
// standard deviations. Default stats.DefaultOutlierThreshold.
func WithOutlierThreshold(threshold float64) Option {
	return func(o *options) { o.outlierThreshold = threshold }
}

// WithCostModel sets a fallback pricing model for runs that do not name
// one. Without it such runs simply produce no cost entry.
func WithCostModel(model string) Option {
	return func(o *options) { o.costModel = model }
}

// WithSink routes analysis telemetry to the given sink. Default is the
// no-op sink.
func WithSink(sink telemetry.Sink) Option {
	return func(o *options) { o.sink = sink }
}

// WithProgress installs a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *options) { o.progress = fn }
}

// WithLogger sets the structured logger. Default slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Analyzer runs the full pipeline against one registry. Safe for
// concurrent use.
type Analyzer struct {
	registry *registry.Registry
	opts     options
}

// New builds an Analyzer. A nil registry is a programming error and
// panics; every other misconfiguration surfaces as an error from Analyze.
func New(reg *registry.Registry, opts ...Option) *Analyzer {
	if reg == nil {
		panic("analysis: registry must not be nil")
	}
	o := options{
		alpha:            DefaultAlpha,
		confidence:       stats.DefaultConfidence,
		resamples:        stats.DefaultResamples,
		outlierThreshold: stats.DefaultOutlierThreshold,
		sink:             telemetry.NewNopSink(),
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sink == nil {
		o.sink = telemetry.NewNopSink()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Analyzer{registry: reg, opts: o}
}

// Analyze runs discovery, aggregation, comparison and cost accounting over
// the records and assembles the Report.
//
// Failures are loud: discovery contract violations, invalid framework
// labels, and runs naming a model the registry does not price all abort
// the analysis with a descriptive error rather than producing a silently
// incomplete report.
func (a *Analyzer) Analyze(ctx context.Context, records []runio.Record) (*Report, error) {
	start := time.Now()
	ctx, span := analysisTracer.Start(ctx, "analysis.Analyze",
		trace.WithAttributes(attribute.Int("analysis.records", len(records))))
	defer span.End()

	report, err := a.analyze(ctx, records)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "analysis failed")
		a.recordError(ctx, "analyze", err)
		return nil, err
	}

	duration := time.Since(start)
	span.SetAttributes(
		attribute.String("analysis.report_id", report.ID),
		attribute.Int("analysis.frameworks", len(report.Frameworks)),
		attribute.Int("analysis.comparisons", len(report.Comparisons)),
	)

	if sinkErr := a.opts.sink.RecordAnalysis(ctx, &telemetry.AnalysisData{
		ReportID:        report.ID,
		Duration:        duration,
		Runs:            report.Discovery.RunCount,
		Frameworks:      len(report.Frameworks),
		MetricsWithData: len(report.Discovery.MetricsWithData),
		Timestamp:       report.GeneratedAt,
	}); sinkErr != nil {
		a.opts.logger.Warn("record analysis telemetry", slog.String("error", sinkErr.Error()))
	}

	a.opts.logger.Info("analysis complete",
		slog.String("report_id", report.ID),
		slog.Int("runs", report.Discovery.RunCount),
		slog.Int("frameworks", len(report.Frameworks)),
		slog.Int("comparisons", len(report.Comparisons)),
		slog.Duration("duration", duration))
	return report, nil
}

func (a *Analyzer) analyze(ctx context.Context, records []runio.Record) (*Report, error) {
	disc, err := discovery.Discover(ctx, records, a.registry)
	if err != nil {
		return nil, err
	}
	a.progress(Progress{Stage: "discovery", Done: 1, Total: 1})

	groups, labels, err := groupByFramework(records)
	if err != nil {
		return nil, err
	}

	frameworks := make([]FrameworkAggregate, 0, len(labels))
	models := make(map[string]*costmodel.Model)
	for i, label := range labels {
		fa, err := a.aggregateFramework(label, groups[label], disc.MetricsWithData, models)
		if err != nil {
			return nil, err
		}
		frameworks = append(frameworks, fa)
		a.progress(Progress{Stage: "aggregate", Done: i + 1, Total: len(labels), Framework: label})
	}

	comparisons, err := a.compareMetrics(ctx, disc.MetricsWithData, groups, labels)
	if err != nil {
		return nil, err
	}

	report := &Report{
		ID:             uuid.New().String(),
		GeneratedAt:    time.Now().UTC(),
		RegistrySource: a.registry.Source(),
		Alpha:          a.opts.alpha,
		Confidence:     a.opts.confidence,
		Resamples:      a.opts.resamples,
		Seed:           a.opts.seed,
		Seeded:         a.opts.seeded,
		Discovery:      disc,
		Frameworks:     frameworks,
		Comparisons:    comparisons,
	}
	a.progress(Progress{Stage: "report", Done: 1, Total: 1})
	return report, nil
}

// groupByFramework buckets records under their sanitized framework label.
// Labels differing only in case or surrounding space merge into one group.
func groupByFramework(records []runio.Record) (map[string][]runio.Record, []string, error) {
	groups := make(map[string][]runio.Record)
	for i := range records {
		label, err := validation.SanitizeFrameworkLabel(records[i].Framework)
		if err != nil {
			return nil, nil, fmt.Errorf("run %q: %w", records[i].Ref(), err)
		}
		groups[label] = append(groups[label], records[i])
	}

	labels := make([]string, 0, len(groups))
	for label := range groups {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return groups, labels, nil
}

func (a *Analyzer) aggregateFramework(label string, runs []runio.Record, metricsWithData []string, models map[string]*costmodel.Model) (FrameworkAggregate, error) {
	valuesByMetric := make(map[string][]float64, len(metricsWithData))
	for _, key := range metricsWithData {
		var values []float64
		for i := range runs {
			if v, ok := runs[i].Metric(key); ok {
				values = append(values, v)
			}
		}
		if len(values) > 0 {
			valuesByMetric[key] = values
		}
	}

	aggOpts := stats.AggregateOptions{
		Confidence: a.opts.confidence,
		Resamples:  a.opts.resamples,
	}
	if a.opts.seeded {
		aggOpts.Seeded = true
		aggOpts.Seed = stats.DeriveSeed(a.opts.seed, label)
	}

	fa := FrameworkAggregate{
		Framework: label,
		Runs:      len(runs),
		Stats:     stats.AggregateWithCI(valuesByMetric, aggOpts),
	}

	for _, key := range metricsWithData {
		indices, outliers := stats.IdentifyOutliers(valuesByMetric[key], a.opts.outlierThreshold)
		if len(indices) > 0 {
			if fa.Outliers == nil {
				fa.Outliers = make(map[string]OutlierSet)
			}
			fa.Outliers[key] = OutlierSet{Indices: indices, Values: outliers}
		}
	}

	for i := range runs {
		rc, ok, err := a.runCost(&runs[i], models)
		if err != nil {
			return FrameworkAggregate{}, err
		}
		if ok {
			fa.RunCosts = append(fa.RunCosts, rc)
		}
	}
	if len(fa.RunCosts) > 0 {
		breakdowns := make([]costmodel.Breakdown, len(fa.RunCosts))
		for i, rc := range fa.RunCosts {
			breakdowns[i] = rc.Breakdown
		}
		total := costmodel.Sum(breakdowns)
		fa.Cost = &total
	}
	return fa, nil
}

// runCost prices one run. Runs with no model (after the configured
// fallback) or no tokens_in value produce no entry, which is an expected
// state; a named model missing from the pricing table is an error.
func (a *Analyzer) runCost(rec *runio.Record, models map[string]*costmodel.Model) (RunCost, bool, error) {
	modelName := rec.Model
	if modelName == "" {
		modelName = a.opts.costModel
	}
	if modelName == "" {
		return RunCost{}, false, nil
	}
	tokensIn, ok := rec.Metric(metricTokensIn)
	if !ok {
		return RunCost{}, false, nil
	}

	model, cached := models[modelName]
	if !cached {
		m, err := costmodel.New(modelName, a.registry)
		if err != nil {
			return RunCost{}, false, fmt.Errorf("run %q: %w", rec.Ref(), err)
		}
		models[modelName] = m
		model = m
	}

	tokensOut, _ := rec.Metric(metricTokensOut)
	cachedTokens, _ := rec.Metric(metricCachedTokens)

	breakdown, err := model.Calculate(roundTokens(tokensIn), roundTokens(tokensOut), roundTokens(cachedTokens))
	if err != nil {
		return RunCost{}, false, fmt.Errorf("run %q: cost calculation: %w", rec.Ref(), err)
	}
	return RunCost{RunID: rec.Ref(), Breakdown: breakdown}, true, nil
}

func (a *Analyzer) compareMetrics(ctx context.Context, metricsWithData []string, groups map[string][]runio.Record, labels []string) ([]MetricComparison, error) {
	var testKeys []string
	for _, key := range metricsWithData {
		if def, ok := a.registry.Get(key); ok && def.StatisticalTest {
			testKeys = append(testKeys, key)
		}
	}

	comparisons := make([]MetricComparison, 0, len(testKeys))
	for i, key := range testKeys {
		metricGroups := make(map[string][]float64)
		for _, label := range labels {
			var values []float64
			for j := range groups[label] {
				if v, ok := groups[label][j].Metric(key); ok {
					values = append(values, v)
				}
			}
			if len(values) > 0 {
				metricGroups[label] = values
			}
		}

		kw, err := stats.KruskalWallis(metricGroups, a.opts.alpha)
		if err != nil {
			return nil, fmt.Errorf("kruskal-wallis for %s: %w", key, err)
		}
		pairwise, err := stats.PairwiseComparisons(metricGroups, a.opts.alpha)
		if err != nil {
			return nil, fmt.Errorf("pairwise comparisons for %s: %w", key, err)
		}
		comparisons = append(comparisons, MetricComparison{
			Metric:        key,
			KruskalWallis: kw,
			Pairwise:      pairwise,
		})

		significantPairs := 0
		for _, p := range pairwise {
			if p.Significant {
				significantPairs++
			}
		}
		if sinkErr := a.opts.sink.RecordComparison(ctx, &telemetry.ComparisonData{
			Metric:           key,
			PValue:           kw.PValue,
			Significant:      kw.Significant,
			NGroups:          kw.NGroups,
			Pairs:            len(pairwise),
			SignificantPairs: significantPairs,
			Timestamp:        time.Now().UTC(),
		}); sinkErr != nil {
			a.opts.logger.Warn("record comparison telemetry",
				slog.String("metric", key), slog.String("error", sinkErr.Error()))
		}
		a.progress(Progress{Stage: "compare", Done: i + 1, Total: len(testKeys), Metric: key})
	}
	return comparisons, nil
}

func (a *Analyzer) progress(p Progress) {
	if a.opts.progress != nil {
		a.opts.progress(p)
	}
}

func (a *Analyzer) recordError(ctx context.Context, operation string, err error) {
	data := &telemetry.ErrorData{
		Component: "analysis",
		Operation: operation,
		ErrorType: classifyError(err),
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
	}
	if sinkErr := a.opts.sink.RecordError(ctx, data); sinkErr != nil {
		a.opts.logger.Warn("record error telemetry", slog.String("error", sinkErr.Error()))
	}
}

func classifyError(err error) string {
	var discErr *discovery.ValidationError
	switch {
	case errors.As(err, &discErr):
		return "validation"
	case errors.Is(err, costmodel.ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "internal"
	}
}

// roundTokens converts a JSON metric value to a whole token count.
func roundTokens(v float64) int64 {
	return int64(math.Round(v))
}
