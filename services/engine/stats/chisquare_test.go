// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stats

import (
	"math"
	"testing"
)

// -----------------------------------------------------------------------------
// Chi-Square Survival Tests
// -----------------------------------------------------------------------------

func TestChiSquareSurvival(t *testing.T) {
	t.Run("known critical values", func(t *testing.T) {
		cases := []struct {
			x    float64
			df   int
			want float64
		}{
			{3.841459, 1, 0.05},
			{5.991465, 2, 0.05},
			{7.814728, 3, 0.05},
			{9.487729, 4, 0.05},
			{18.307038, 10, 0.05},
			{6.634897, 1, 0.01},
			{9.210340, 2, 0.01},
		}

		for _, c := range cases {
			got := ChiSquareSurvival(c.x, c.df)
			if math.Abs(got-c.want) > 1e-4 {
				t.Errorf("Q(%v, df=%d): expected %v, got %v", c.x, c.df, c.want, got)
			}
		}
	})

	t.Run("df two closed form", func(t *testing.T) {
		// For df=2 the survival function is exactly exp(-x/2).
		for _, x := range []float64{0.5, 1, 2, 4, 8, 20} {
			got := ChiSquareSurvival(x, 2)
			want := math.Exp(-x / 2)
			if math.Abs(got-want) > 1e-12 {
				t.Errorf("Q(%v, df=2): expected %v, got %v", x, want, got)
			}
		}
	})

	t.Run("df one closed form", func(t *testing.T) {
		// For df=1 the survival function is exactly erfc(sqrt(x/2)).
		for _, x := range []float64{0.5, 1, 4} {
			got := ChiSquareSurvival(x, 1)
			want := math.Erfc(math.Sqrt(x / 2))
			if math.Abs(got-want) > 1e-12 {
				t.Errorf("Q(%v, df=1): expected %v, got %v", x, want, got)
			}
		}
	})

	t.Run("median of df two", func(t *testing.T) {
		got := ChiSquareSurvival(2*math.Ln2, 2)
		if math.Abs(got-0.5) > 1e-12 {
			t.Errorf("expected 0.5 at the df=2 median, got %v", got)
		}
	})

	t.Run("non positive statistic", func(t *testing.T) {
		if got := ChiSquareSurvival(0, 5); got != 1 {
			t.Errorf("expected 1 at x=0, got %v", got)
		}
		if got := ChiSquareSurvival(-3, 2); got != 1 {
			t.Errorf("expected 1 at negative x, got %v", got)
		}
	})

	t.Run("invalid degrees of freedom", func(t *testing.T) {
		if got := ChiSquareSurvival(5, 0); got != 1 {
			t.Errorf("expected 1 for df=0, got %v", got)
		}
		if got := ChiSquareSurvival(5, -2); got != 1 {
			t.Errorf("expected 1 for negative df, got %v", got)
		}
	})

	t.Run("monotone decreasing in x", func(t *testing.T) {
		prev := 1.0
		for _, x := range []float64{0.5, 1, 2, 5, 10, 25} {
			got := ChiSquareSurvival(x, 3)
			if got >= prev {
				t.Errorf("expected strict decrease at x=%v: %v >= %v", x, got, prev)
			}
			prev = got
		}
	})

	t.Run("increasing in df at fixed x", func(t *testing.T) {
		q1 := ChiSquareSurvival(5, 1)
		q3 := ChiSquareSurvival(5, 3)
		q8 := ChiSquareSurvival(5, 8)

		if !(q1 < q3 && q3 < q8) {
			t.Errorf("expected increase with df: df=1 %v, df=3 %v, df=8 %v", q1, q3, q8)
		}
	})

	t.Run("extreme tail stays in range", func(t *testing.T) {
		got := ChiSquareSurvival(100, 2)
		want := math.Exp(-50)
		if math.Abs(got-want) > want*1e-9 {
			t.Errorf("expected %v deep in the tail, got %v", want, got)
		}
		if got <= 0 || got > 1 {
			t.Errorf("tail probability %v outside (0, 1]", got)
		}
	})

	t.Run("continuous across expansion branches", func(t *testing.T) {
		// The series/continued-fraction crossover for df=6 sits at x=8.
		below := ChiSquareSurvival(7.999, 6)
		above := ChiSquareSurvival(8.001, 6)

		if below <= above {
			t.Errorf("expected decrease across branch point: %v then %v", below, above)
		}
		if math.Abs(below-above) > 1e-3 {
			t.Errorf("discontinuity across branch point: %v vs %v", below, above)
		}
	})
}
