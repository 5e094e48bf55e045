// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stats

import "math"

// -----------------------------------------------------------------------------
// Outlier Detection
// -----------------------------------------------------------------------------

// DefaultOutlierThreshold is the standard-deviation multiplier used when no
// explicit threshold is configured.
const DefaultOutlierThreshold = 3.0

// IdentifyOutliers flags observations far from the sample median.
//
// Description:
//
//	An observation is an outlier when its absolute deviation from the
//	sample median exceeds thresholdStd times the sample standard deviation
//	(n-1 denominator). The median anchor keeps the detector stable when
//	the outliers themselves drag the mean.
//
// Inputs:
//   - values: Observations in original order.
//   - thresholdStd: Standard-deviation multiplier, e.g. 3.0.
//
// Outputs:
//   - []int: Indices of flagged observations, ascending. Never nil.
//   - []float64: Flagged values, parallel to the indices. Never nil.
//
// Fewer than three observations returns two empty lists regardless of
// threshold: deviation from a median of one or two points is meaningless.
//
// Thread Safety: This function is stateless and safe for concurrent use.
func IdentifyOutliers(values []float64, thresholdStd float64) ([]int, []float64) {
	indices := make([]int, 0)
	outliers := make([]float64, 0)

	if len(values) < 3 {
		return indices, outliers
	}

	center := median(values)
	spread := sampleStd(values)
	limit := thresholdStd * spread

	for i, v := range values {
		if math.Abs(v-center) > limit {
			indices = append(indices, i)
			outliers = append(outliers, v)
		}
	}
	return indices, outliers
}
