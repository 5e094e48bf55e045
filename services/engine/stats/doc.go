// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stats implements the non-parametric statistics suite used to
// compare framework benchmark runs.
//
// # Architecture
//
// The package takes per-framework observation groups and produces omnibus
// and pairwise significance results plus resampling-based interval
// estimates:
//
//	┌─────────────────────────────────────────────────────────────────────┐
//	│                        STATISTICS PIPELINE                           │
//	├─────────────────────────────────────────────────────────────────────┤
//	│                                                                      │
//	│   groups ──► mid-rank pooling ──► Kruskal-Wallis H ──► chi-square   │
//	│                    │                                   upper tail    │
//	│                    │                                                 │
//	│                    └─► pairwise comparisons                          │
//	│                        • Mann-Whitney U (normal approximation)       │
//	│                        • Cliff's delta effect size                   │
//	│                        • Dunn-Šidák corrected significance           │
//	│                                                                      │
//	│   samples ──► bootstrap resampling ──► percentile CI + summary      │
//	│   samples ──► median/σ deviation   ──► outlier indices              │
//	│                                                                      │
//	└─────────────────────────────────────────────────────────────────────┘
//
// # Components
//
//   - KruskalWallis: omnibus rank test across three or more groups
//   - PairwiseComparisons: Mann-Whitney U + Cliff's delta per group pair
//   - ChiSquareSurvival: exact upper-tail chi-square probability
//   - BootstrapCI / AggregateWithCI: resampled confidence intervals
//   - IdentifyOutliers: median/σ-threshold outlier flagging
//
// # Usage
//
// Compare three frameworks on one metric:
//
//	groups := map[string][]float64{
//	    "baseline":  {1000, 1100, 1050},
//	    "candidate": {5000, 5200, 4900},
//	    "control":   {1020, 980, 1010},
//	}
//
//	kw, err := stats.KruskalWallis(groups, 0.05)
//	if err != nil {
//	    return err
//	}
//	if kw.Significant {
//	    pairs, _ := stats.PairwiseComparisons(groups, 0.05)
//	    for _, pair := range pairs {
//	        fmt.Printf("%s vs %s: p=%.4f delta=%+.3f (%s)\n",
//	            pair.Group1, pair.Group2, pair.PValue, pair.CliffDelta, pair.Effect)
//	    }
//	}
//
// # Statistical Methodology
//
// Benchmark metric distributions are routinely skewed and heavy-tailed, so
// the package is deliberately non-parametric:
//
//   - Kruskal-Wallis H-test with mid-rank tie handling for the omnibus test
//   - Mann-Whitney U with normal approximation for pairwise tests
//   - Dunn-Šidák correction to control the family-wise error rate
//   - Cliff's delta for effect size (no normality assumption)
//   - Bootstrap percentile intervals instead of t-intervals
//
// The chi-square upper tail behind Kruskal-Wallis is evaluated exactly via
// the regularized incomplete gamma function rather than a normal
// approximation, so p-values stay accurate at the small group counts typical
// of benchmark comparisons.
//
// # Determinism
//
// All functions are pure. Bootstrap resampling uses a fixed linear
// congruential generator, so seeded runs produce identical intervals across
// platforms; unseeded runs derive the seed from the clock.
//
// # Thread Safety
//
// All functions are stateless and safe for concurrent use.
package stats
