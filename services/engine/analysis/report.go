// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"time"

	"github.com/rankforge/rankforge/services/engine/costmodel"
	"github.com/rankforge/rankforge/services/engine/discovery"
	"github.com/rankforge/rankforge/services/engine/stats"
)

// Report is the complete output of one analysis pass: discovery, per-
// framework aggregates, per-metric comparisons, and the parameters they
// were computed with. Reports serialize to JSON deterministically: slices
// are sorted at assembly and maps marshal with sorted keys.
type Report struct {
	// ID is the UUID assigned at assembly.
	ID string `json:"id"`

	// GeneratedAt is the UTC completion time.
	GeneratedAt time.Time `json:"generated_at"`

	// RegistrySource identifies the registry document the analysis ran
	// against (file path, "embedded", or "inline").
	RegistrySource string `json:"registry_source"`

	// Alpha, Confidence and Resamples echo the statistical parameters.
	Alpha      float64 `json:"alpha"`
	Confidence float64 `json:"confidence"`
	Resamples  int     `json:"resamples"`

	// Seed is the base resampling seed; meaningful only when Seeded.
	Seed   uint64 `json:"seed"`
	Seeded bool   `json:"seeded"`

	// Discovery is the metric partition the analysis was based on.
	Discovery *discovery.Result `json:"discovery"`

	// Frameworks holds per-framework aggregates, sorted by label.
	Frameworks []FrameworkAggregate `json:"frameworks"`

	// Comparisons holds per-metric statistical comparisons, sorted by
	// metric key. Only metrics flagged for statistical testing appear.
	Comparisons []MetricComparison `json:"comparisons"`
}

// FrameworkAggregate summarizes every run of one framework.
type FrameworkAggregate struct {
	// Framework is the sanitized (lowercased) framework label.
	Framework string `json:"framework"`

	// Runs is the number of run records grouped under this framework.
	Runs int `json:"runs"`

	// Stats maps metric key to its aggregate summary. Metrics with no
	// observations for this framework are absent.
	Stats map[string]stats.AggregateStat `json:"stats"`

	// Outliers maps metric key to flagged observations. Only metrics
	// with at least one outlier appear.
	Outliers map[string]OutlierSet `json:"outliers,omitempty"`

	// Cost is the summed cost breakdown over RunCosts, nil when no run
	// produced a cost entry.
	Cost *costmodel.Breakdown `json:"cost,omitempty"`

	// RunCosts holds per-run breakdowns in record order.
	RunCosts []RunCost `json:"run_costs,omitempty"`
}

// OutlierSet lists the observations flagged by the outlier detector for
// one metric, as parallel index/value slices.
type OutlierSet struct {
	Indices []int     `json:"indices"`
	Values  []float64 `json:"values"`
}

// RunCost ties a cost breakdown to the run it was computed for.
type RunCost struct {
	RunID     string              `json:"run_id"`
	Breakdown costmodel.Breakdown `json:"breakdown"`
}

// MetricComparison holds the omnibus test and pairwise follow-ups for one
// metric across frameworks.
type MetricComparison struct {
	// Metric is the registry key compared.
	Metric string `json:"metric"`

	// KruskalWallis is the omnibus across-group test. Degenerate is set
	// when fewer than three frameworks had data.
	KruskalWallis stats.KruskalWallisResult `json:"kruskal_wallis"`

	// Pairwise holds one entry per unordered framework pair, in
	// lexicographic order.
	Pairwise []stats.PairwiseResult `json:"pairwise"`
}

// Framework returns the aggregate for the given sanitized label.
func (r *Report) Framework(label string) (FrameworkAggregate, bool) {
	if r == nil {
		return FrameworkAggregate{}, false
	}
	for _, fa := range r.Frameworks {
		if fa.Framework == label {
			return fa, true
		}
	}
	return FrameworkAggregate{}, false
}

// Comparison returns the comparison for the given metric key.
func (r *Report) Comparison(metric string) (MetricComparison, bool) {
	if r == nil {
		return MetricComparison{}, false
	}
	for _, mc := range r.Comparisons {
		if mc.Metric == metric {
			return mc, true
		}
	}
	return MetricComparison{}, false
}

// TotalCost sums the framework-level cost breakdowns.
func (r *Report) TotalCost() costmodel.Breakdown {
	if r == nil {
		return costmodel.Breakdown{}
	}
	var breakdowns []costmodel.Breakdown
	for _, fa := range r.Frameworks {
		if fa.Cost != nil {
			breakdowns = append(breakdowns, *fa.Cost)
		}
	}
	return costmodel.Sum(breakdowns)
}
