// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stats

import (
	"fmt"
	"math"
	"sort"
)

// -----------------------------------------------------------------------------
// Result Types
// -----------------------------------------------------------------------------

// KruskalWallisResult holds the outcome of a Kruskal-Wallis H-test.
type KruskalWallisResult struct {
	// H is the Kruskal-Wallis test statistic. Always >= 0.
	H float64 `json:"h"`

	// PValue is the upper-tail chi-square probability of H. In [0, 1].
	PValue float64 `json:"p_value"`

	// Significant is true if PValue < Alpha.
	Significant bool `json:"significant"`

	// Degenerate is true when fewer than three non-empty groups were
	// supplied, in which case H and PValue carry their neutral values.
	Degenerate bool `json:"degenerate"`

	// NGroups is the number of non-empty groups tested.
	NGroups int `json:"n_groups"`

	// NTotal is the pooled observation count across non-empty groups.
	NTotal int `json:"n_total"`

	// Alpha is the significance level tested against.
	Alpha float64 `json:"alpha"`
}

// PairwiseResult holds one pairwise group comparison.
type PairwiseResult struct {
	// Group1 and Group2 are the compared labels, Group1 < Group2
	// lexicographically.
	Group1 string `json:"group1"`
	Group2 string `json:"group2"`

	// PValue is the Mann-Whitney U two-tailed p-value.
	PValue float64 `json:"p_value"`

	// CorrectedAlpha is the Dunn-Šidák-corrected significance level the
	// p-value was compared against.
	CorrectedAlpha float64 `json:"corrected_alpha"`

	// Significant is true if PValue < CorrectedAlpha.
	Significant bool `json:"significant"`

	// CliffDelta is the Cliff's delta effect size for Group1 vs Group2.
	// In [-1, 1]; positive means Group1 values tend to exceed Group2.
	CliffDelta float64 `json:"cliff_delta"`

	// Effect is the magnitude category of CliffDelta.
	Effect EffectCategory `json:"effect"`
}

// EffectCategory classifies the magnitude of a Cliff's delta value.
type EffectCategory string

const (
	// EffectNegligible indicates |delta| < 0.147.
	EffectNegligible EffectCategory = "negligible"

	// EffectSmall indicates 0.147 <= |delta| < 0.330.
	EffectSmall EffectCategory = "small"

	// EffectMedium indicates 0.330 <= |delta| < 0.474.
	EffectMedium EffectCategory = "medium"

	// EffectLarge indicates |delta| >= 0.474.
	EffectLarge EffectCategory = "large"
)

// CategorizeEffect returns the magnitude category for a Cliff's delta value,
// using the thresholds of Romano et al. (2006).
func CategorizeEffect(delta float64) EffectCategory {
	abs := math.Abs(delta)
	switch {
	case abs < 0.147:
		return EffectNegligible
	case abs < 0.330:
		return EffectSmall
	case abs < 0.474:
		return EffectMedium
	default:
		return EffectLarge
	}
}

// -----------------------------------------------------------------------------
// Kruskal-Wallis H-Test
// -----------------------------------------------------------------------------

// KruskalWallis performs the Kruskal-Wallis H-test across labeled groups.
//
// Description:
//
//	The Kruskal-Wallis test is the rank-based generalization of one-way
//	ANOVA: it tests whether any of three or more groups stochastically
//	dominates another, without assuming normality. All observations are
//	pooled and ranked (ties share the mean of the ranks they occupy), then
//
//	    H = 12/(N(N+1)) * sum_i n_i*(meanRank_i - (N+1)/2)^2
//
//	and the p-value is the exact upper-tail chi-square probability of H
//	with k-1 degrees of freedom.
//
//	Fewer than three non-empty groups is an expected analysis outcome, not
//	an error: callers routinely test two-framework subsets. The result then
//	carries H=0, PValue=1, Significant=false and Degenerate=true.
//
// Inputs:
//   - groups: Observations keyed by group label. Empty groups are ignored.
//   - alpha: Significance level in (0, 1), e.g. 0.05.
//
// Outputs:
//   - KruskalWallisResult: Test statistic, p-value and significance flags.
//   - error: Non-nil only when alpha is outside (0, 1).
//
// Thread Safety: This function is stateless and safe for concurrent use.
func KruskalWallis(groups map[string][]float64, alpha float64) (KruskalWallisResult, error) {
	if alpha <= 0 || alpha >= 1 {
		return KruskalWallisResult{}, fmt.Errorf("%w: got %g", ErrInvalidAlpha, alpha)
	}

	labels := make([]string, 0, len(groups))
	total := 0
	for label, values := range groups {
		if len(values) == 0 {
			continue
		}
		labels = append(labels, label)
		total += len(values)
	}
	sort.Strings(labels)

	if len(labels) < 3 {
		return KruskalWallisResult{
			H:           0,
			PValue:      1,
			Significant: false,
			Degenerate:  true,
			NGroups:     len(labels),
			NTotal:      total,
			Alpha:       alpha,
		}, nil
	}

	ordered := make([][]float64, len(labels))
	for i, label := range labels {
		ordered[i] = groups[label]
	}

	pooled := poolGroups(ordered)
	sums := rankSums(pooled, len(labels))

	n := float64(total)
	expected := (n + 1) / 2

	var spread float64
	for i, label := range labels {
		ni := float64(len(groups[label]))
		meanRank := sums[i] / ni
		dev := meanRank - expected
		spread += ni * dev * dev
	}
	h := 12 / (n * (n + 1)) * spread

	p := ChiSquareSurvival(h, len(labels)-1)

	return KruskalWallisResult{
		H:           h,
		PValue:      p,
		Significant: p < alpha,
		Degenerate:  false,
		NGroups:     len(labels),
		NTotal:      total,
		Alpha:       alpha,
	}, nil
}

// -----------------------------------------------------------------------------
// Mann-Whitney U Test
// -----------------------------------------------------------------------------

// MannWhitneyU performs a two-tailed Mann-Whitney U rank-sum test.
//
// Description:
//
//	Ranks the pooled observations of both groups (ties share mid-ranks),
//	computes the U statistic of the first group and approximates its
//	two-tailed p-value with the normal approximation
//
//	    z = (U - n1*n2/2) / sqrt(n1*n2*(n1+n2+1)/12)
//
//	No tie or continuity correction is applied, so p-values under heavy
//	ties are approximate.
//
// Inputs:
//   - a: First group of observations.
//   - b: Second group of observations.
//
// Outputs:
//   - float64: Two-tailed p-value in [0, 1]. Returns 1.0 when either group
//     is empty or every pooled observation is identical, since no evidence
//     of a difference exists in either case.
//
// Thread Safety: This function is stateless and safe for concurrent use.
func MannWhitneyU(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 1
	}
	if constantPool(a, b) {
		return 1
	}

	pooled := poolGroups([][]float64{a, b})
	sums := rankSums(pooled, 2)

	n1 := float64(len(a))
	n2 := float64(len(b))

	u := sums[0] - n1*(n1+1)/2
	mu := n1 * n2 / 2
	sigma := math.Sqrt(n1 * n2 * (n1 + n2 + 1) / 12)
	if sigma == 0 {
		return 1
	}

	z := (u - mu) / sigma
	p := 2 * (1 - normalCDF(math.Abs(z)))

	// Guard against floating-point excursions outside [0, 1].
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p
}

// constantPool reports whether every observation in both groups is identical.
func constantPool(a, b []float64) bool {
	first := a[0]
	for _, v := range a {
		if v != first {
			return false
		}
	}
	for _, v := range b {
		if v != first {
			return false
		}
	}
	return true
}

// -----------------------------------------------------------------------------
// Multiple Comparisons
// -----------------------------------------------------------------------------

// DunnSidak returns the Dunn-Šidák-corrected significance level for m
// comparisons:
//
//	corrected = 1 - (1-alpha)^(1/m)
//
// The correction is the identity at m=1 (m < 1 is treated as 1) and
// strictly decreases as m grows.
func DunnSidak(m int, alpha float64) float64 {
	if m <= 1 {
		return alpha
	}
	return 1 - math.Pow(1-alpha, 1/float64(m))
}

// PairwiseComparisons runs Mann-Whitney U and Cliff's delta for every group
// pair.
//
// Description:
//
//	Enumerates every unordered pair of group labels in lexicographic order.
//	Each pair gets a Mann-Whitney p-value and a Cliff's delta effect size;
//	significance is judged against the Dunn-Šidák-corrected alpha for the
//	total number of pairs, controlling the family-wise error rate.
//
// Inputs:
//   - groups: Observations keyed by group label. Pairs involving an empty
//     group yield p=1 and delta=0.
//   - alpha: Uncorrected significance level in (0, 1).
//
// Outputs:
//   - []PairwiseResult: One entry per pair in deterministic label order.
//     Empty (non-nil) when fewer than two groups are supplied.
//   - error: Non-nil only when alpha is outside (0, 1).
//
// Thread Safety: This function is stateless and safe for concurrent use.
func PairwiseComparisons(groups map[string][]float64, alpha float64) ([]PairwiseResult, error) {
	if alpha <= 0 || alpha >= 1 {
		return nil, fmt.Errorf("%w: got %g", ErrInvalidAlpha, alpha)
	}

	labels := make([]string, 0, len(groups))
	for label := range groups {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	totalPairs := len(labels) * (len(labels) - 1) / 2
	corrected := DunnSidak(totalPairs, alpha)

	results := make([]PairwiseResult, 0, totalPairs)
	for i := 0; i < len(labels); i++ {
		for j := i + 1; j < len(labels); j++ {
			a := groups[labels[i]]
			b := groups[labels[j]]

			p := MannWhitneyU(a, b)
			delta := CliffsDelta(a, b)

			results = append(results, PairwiseResult{
				Group1:         labels[i],
				Group2:         labels[j],
				PValue:         p,
				CorrectedAlpha: corrected,
				Significant:    p < corrected,
				CliffDelta:     delta,
				Effect:         CategorizeEffect(delta),
			})
		}
	}
	return results, nil
}

// -----------------------------------------------------------------------------
// Effect Size
// -----------------------------------------------------------------------------

// CliffsDelta computes the Cliff's delta effect size between two groups.
//
// Description:
//
//	For every pair (x in a, y in b) the comparison scores +1 if x > y,
//	-1 if x < y and 0 on a tie; delta is the score sum divided by
//	|a|*|b|. The result measures stochastic dominance: +1 means every a
//	exceeds every b, -1 the reverse, 0 complete overlap.
//
// Inputs:
//   - a: First group of observations.
//   - b: Second group of observations.
//
// Outputs:
//   - float64: Delta in [-1, 1]. Antisymmetric in its arguments. Returns 0
//     when either group is empty.
//
// Complexity: O(|a|*|b|).
//
// Thread Safety: This function is stateless and safe for concurrent use.
func CliffsDelta(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	var score int
	for _, x := range a {
		for _, y := range b {
			switch {
			case x > y:
				score++
			case x < y:
				score--
			}
		}
	}
	return float64(score) / float64(len(a)*len(b))
}

// -----------------------------------------------------------------------------
// Ranking Helpers
// -----------------------------------------------------------------------------

// obs pairs one pooled observation with its source group index.
type obs struct {
	value float64
	group int
}

// poolGroups flattens groups into a single slice sorted by value, with the
// group index as a deterministic tie-break.
func poolGroups(groups [][]float64) []obs {
	total := 0
	for _, g := range groups {
		total += len(g)
	}

	pooled := make([]obs, 0, total)
	for gi, g := range groups {
		for _, v := range g {
			pooled = append(pooled, obs{value: v, group: gi})
		}
	}

	sort.Slice(pooled, func(i, j int) bool {
		if pooled[i].value != pooled[j].value {
			return pooled[i].value < pooled[j].value
		}
		return pooled[i].group < pooled[j].group
	})
	return pooled
}

// rankSums assigns mid-ranks over pooled observations, which must be sorted
// by value, and returns the per-group rank sums. Tied values share the
// average of the ranks they would otherwise occupy.
func rankSums(pooled []obs, nGroups int) []float64 {
	sums := make([]float64, nGroups)

	i := 0
	for i < len(pooled) {
		j := i
		for j < len(pooled) && pooled[j].value == pooled[i].value {
			j++
		}
		// Ranks are 1-based: positions i..j-1 hold ranks i+1..j, whose
		// average is (i+j+1)/2.
		r := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			sums[pooled[k].group] += r
		}
		i = j
	}
	return sums
}

// normalCDF evaluates the standard normal CDF.
func normalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}
