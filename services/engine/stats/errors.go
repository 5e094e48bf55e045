// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stats

import "errors"

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrEmptySample indicates a statistic was requested over zero observations.
	ErrEmptySample = errors.New("empty sample")

	// ErrInvalidAlpha indicates a significance level outside (0, 1).
	ErrInvalidAlpha = errors.New("significance level must be in (0, 1)")

	// ErrInvalidConfidence indicates a confidence level outside (0, 1).
	ErrInvalidConfidence = errors.New("confidence level must be in (0, 1)")

	// ErrInvalidResamples indicates a non-positive bootstrap resample count.
	ErrInvalidResamples = errors.New("resample count must be at least 1")
)
