// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stats

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"time"
)

// -----------------------------------------------------------------------------
// Seeded Resampling
// -----------------------------------------------------------------------------

// Linear congruential generator constants (Knuth MMIX). The generator is
// deliberately simple: resampling needs stable cross-platform streams, not
// cryptographic quality.
const (
	lcgMultiplier uint64 = 6364136223846793005
	lcgIncrement  uint64 = 1442695040888963407
)

// DeriveSeed mixes a label into a base seed, giving each (seed, label) pair
// its own deterministic resampling stream. Used to fan one report-level seed
// out across metrics and frameworks without correlating their resamples.
func DeriveSeed(base uint64, label string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(label))
	return h.Sum64() ^ (base*lcgMultiplier + lcgIncrement)
}

// -----------------------------------------------------------------------------
// Bootstrap Confidence Intervals
// -----------------------------------------------------------------------------

// Estimate holds a bootstrap point estimate with its confidence interval.
type Estimate struct {
	// Point is the mean of the original sample.
	Point float64 `json:"point"`

	// Lower and Upper are the percentile bounds of the resampled-mean
	// distribution.
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`

	// Confidence is the interval level, e.g. 0.95.
	Confidence float64 `json:"confidence"`

	// Resamples is the number of bootstrap iterations performed.
	Resamples int `json:"resamples"`
}

// BootstrapCI computes a bootstrap percentile confidence interval for the
// sample mean.
//
// Description:
//
//	Draws resamples samples of size len(values) with replacement, computes
//	the mean of each, and returns the empirical (1-confidence)/2 and
//	1-(1-confidence)/2 percentiles of the resampled-mean distribution as
//	interval bounds. The seed comes from the clock, so repeated calls give
//	different intervals; use BootstrapCISeeded for reproducible output.
//
// Inputs:
//   - values: Observations. Must not be empty.
//   - resamples: Bootstrap iterations. Must be >= 1; 1000 is typical.
//   - confidence: Interval level in (0, 1), e.g. 0.95.
//
// Outputs:
//   - Estimate: Point estimate and interval bounds.
//   - error: Non-nil on an empty sample or invalid arguments.
//
// Thread Safety: This function is stateless and safe for concurrent use.
func BootstrapCI(values []float64, resamples int, confidence float64) (Estimate, error) {
	return BootstrapCISeeded(values, resamples, confidence, uint64(time.Now().UnixNano()))
}

// BootstrapCISeeded is BootstrapCI with an explicit resampling seed.
//
// Identical inputs and seed produce bit-identical intervals on every
// platform. A constant input of any length yields Lower == Upper == Point.
func BootstrapCISeeded(values []float64, resamples int, confidence float64, seed uint64) (Estimate, error) {
	if len(values) == 0 {
		return Estimate{}, ErrEmptySample
	}
	if resamples < 1 {
		return Estimate{}, fmt.Errorf("%w: got %d", ErrInvalidResamples, resamples)
	}
	if confidence <= 0 || confidence >= 1 {
		return Estimate{}, fmt.Errorf("%w: got %g", ErrInvalidConfidence, confidence)
	}
	return bootstrapEstimate(values, resamples, confidence, seed), nil
}

// bootstrapEstimate is the validated core of the bootstrap. Callers must
// guarantee a non-empty sample, resamples >= 1 and confidence in (0, 1).
func bootstrapEstimate(values []float64, resamples int, confidence float64, seed uint64) Estimate {
	n := len(values)

	state := seed
	next := func() uint64 {
		state = state*lcgMultiplier + lcgIncrement
		return state
	}

	means := make([]float64, resamples)
	for i := range means {
		var sum float64
		for j := 0; j < n; j++ {
			// Index from the high bits only. The low k bits of a mod-2^64
			// LCG cycle with period 2^k, so next()%n at a power-of-two n
			// would permute the sample instead of drawing with replacement.
			sum += values[(next()>>33)%uint64(n)]
		}
		means[i] = sum / float64(n)
	}
	sort.Float64s(means)

	tail := (1 - confidence) / 2
	return Estimate{
		Point:      mean(values),
		Lower:      percentile(means, tail),
		Upper:      percentile(means, 1-tail),
		Confidence: confidence,
		Resamples:  resamples,
	}
}

// -----------------------------------------------------------------------------
// Aggregate Summary Statistics
// -----------------------------------------------------------------------------

// Defaults applied by AggregateWithCI when options leave fields unset.
const (
	DefaultConfidence = 0.95
	DefaultResamples  = 1000
)

// AggregateStat summarizes one metric's observations for one framework.
type AggregateStat struct {
	// Mean is the arithmetic mean.
	Mean float64 `json:"mean"`

	// Median is the middle value, averaging the two central values for
	// even-length samples.
	Median float64 `json:"median"`

	// Std is the sample standard deviation (n-1 denominator), 0 when n <= 1.
	Std float64 `json:"std"`

	// CILower and CIUpper are the bootstrap confidence bounds on the mean.
	CILower float64 `json:"ci_lower"`
	CIUpper float64 `json:"ci_upper"`

	// Min and Max are the observed extremes.
	Min float64 `json:"min"`
	Max float64 `json:"max"`

	// N is the observation count.
	N int `json:"n"`
}

// AggregateOptions configures AggregateWithCI.
type AggregateOptions struct {
	// Confidence is the CI level in (0, 1). Zero means DefaultConfidence.
	Confidence float64

	// Resamples is the bootstrap resample count. Zero means DefaultResamples.
	Resamples int

	// Seed is the base resampling seed, honored when Seeded is true.
	Seed uint64

	// Seeded selects deterministic resampling. When false the seed comes
	// from the clock.
	Seeded bool
}

// AggregateWithCI computes summary statistics with bootstrap confidence
// intervals for every metric.
//
// Description:
//
//	For each metric key: mean, median, sample standard deviation,
//	bootstrap CI on the mean, min, max and count. Each metric resamples
//	from its own derived seed, so one report-level seed reproduces every
//	interval. Metrics with no observations are omitted from the result.
//
// Inputs:
//   - valuesByMetric: Observations keyed by metric name.
//   - opts: Confidence, resample count and seeding. Zero values take the
//     package defaults.
//
// Outputs:
//   - map[string]AggregateStat: One summary per metric with observations.
//
// Thread Safety: This function is stateless and safe for concurrent use.
func AggregateWithCI(valuesByMetric map[string][]float64, opts AggregateOptions) map[string]AggregateStat {
	if opts.Confidence <= 0 || opts.Confidence >= 1 {
		opts.Confidence = DefaultConfidence
	}
	if opts.Resamples < 1 {
		opts.Resamples = DefaultResamples
	}
	base := opts.Seed
	if !opts.Seeded {
		base = uint64(time.Now().UnixNano())
	}

	out := make(map[string]AggregateStat, len(valuesByMetric))
	for key, values := range valuesByMetric {
		if len(values) == 0 {
			continue
		}

		est := bootstrapEstimate(values, opts.Resamples, opts.Confidence, DeriveSeed(base, key))
		lo, hi := minMax(values)

		out[key] = AggregateStat{
			Mean:    est.Point,
			Median:  median(values),
			Std:     sampleStd(values),
			CILower: est.Lower,
			CIUpper: est.Upper,
			Min:     lo,
			Max:     hi,
			N:       len(values),
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Descriptive Helpers
// -----------------------------------------------------------------------------

// mean returns the arithmetic mean, 0 for an empty sample.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// median returns the middle value, averaging the two central values for
// even-length samples. 0 for an empty sample.
func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// sampleStd returns the sample standard deviation (n-1 denominator),
// 0 when n <= 1.
func sampleStd(values []float64) float64 {
	n := len(values)
	if n <= 1 {
		return 0
	}

	m := mean(values)
	var sumSq float64
	for _, v := range values {
		diff := v - m
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// minMax returns the smallest and largest values in one pass. The sample
// must not be empty.
func minMax(values []float64) (float64, float64) {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// percentile returns the p-th percentile (p in [0, 1]) of sorted values,
// linearly interpolating between adjacent order statistics.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	rank := p * float64(n-1)
	lo := int(math.Floor(rank))
	if lo < 0 {
		return sorted[0]
	}
	if lo >= n-1 {
		return sorted[n-1]
	}

	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
