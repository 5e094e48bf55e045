// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stats

import "testing"

// -----------------------------------------------------------------------------
// Outlier Detection Tests
// -----------------------------------------------------------------------------

func TestIdentifyOutliers(t *testing.T) {
	t.Run("flags extreme value", func(t *testing.T) {
		indices, outliers := IdentifyOutliers([]float64{1, 2, 3, 4, 100}, 1.0)

		if len(indices) != 1 || indices[0] != 4 {
			t.Errorf("expected index 4 flagged, got %v", indices)
		}
		if len(outliers) != 1 || outliers[0] != 100 {
			t.Errorf("expected value 100 flagged, got %v", outliers)
		}
	})

	t.Run("short input returns empty lists", func(t *testing.T) {
		for _, values := range [][]float64{nil, {5}, {1, 2}} {
			indices, outliers := IdentifyOutliers(values, 1.0)

			if indices == nil || outliers == nil {
				t.Errorf("%v: expected non-nil empty lists, got %v %v",
					values, indices, outliers)
				continue
			}
			if len(indices) != 0 || len(outliers) != 0 {
				t.Errorf("%v: expected empty lists, got %v %v",
					values, indices, outliers)
			}
		}
	})

	t.Run("tight data has no outliers", func(t *testing.T) {
		indices, _ := IdentifyOutliers([]float64{10, 11, 12, 13}, 3.0)
		if len(indices) != 0 {
			t.Errorf("expected no outliers, got indices %v", indices)
		}
	})

	t.Run("constant data has no outliers", func(t *testing.T) {
		indices, _ := IdentifyOutliers([]float64{5, 5, 5, 5}, 1.0)
		if len(indices) != 0 {
			t.Errorf("expected no outliers in constant data, got indices %v", indices)
		}
	})

	t.Run("flags both tails", func(t *testing.T) {
		values := []float64{0, 100, 0, 0, 0, 0, 0, 0, 0, -100}
		indices, outliers := IdentifyOutliers(values, 1.0)

		if len(indices) != 2 || indices[0] != 1 || indices[1] != 9 {
			t.Errorf("expected indices [1 9], got %v", indices)
		}
		if len(outliers) != 2 || outliers[0] != 100 || outliers[1] != -100 {
			t.Errorf("expected values [100 -100], got %v", outliers)
		}
	})

	t.Run("threshold widens the band", func(t *testing.T) {
		// The same spike that trips a 1-sigma band survives a 3-sigma band.
		values := []float64{1, 2, 3, 4, 100}

		indices, _ := IdentifyOutliers(values, 3.0)
		if len(indices) != 0 {
			t.Errorf("expected no outliers at threshold 3, got indices %v", indices)
		}
	})

	t.Run("default threshold", func(t *testing.T) {
		if DefaultOutlierThreshold != 3.0 {
			t.Errorf("expected default threshold 3.0, got %v", DefaultOutlierThreshold)
		}
	})
}
