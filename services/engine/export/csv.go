// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/rankforge/rankforge/services/engine/analysis"
)

var csvHeader = []string{
	"framework", "metric", "n",
	"mean", "median", "std",
	"ci_lower", "ci_upper", "min", "max",
	"outliers",
}

var costHeader = []string{
	"framework", "model",
	"tokens_in", "tokens_out", "cached_tokens", "cache_hit_rate",
	"total_cost_usd", "cache_savings_usd",
}

// WriteCSV writes one row per framework and metric aggregate. Ordering
// is deterministic: frameworks in report order, metric keys sorted.
func WriteCSV(w io.Writer, report *analysis.Report) error {
	if report == nil {
		return fmt.Errorf("report must not be nil")
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i := range report.Frameworks {
		fw := &report.Frameworks[i]

		keys := make([]string, 0, len(fw.Stats))
		for key := range fw.Stats {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			st := fw.Stats[key]
			outliers := 0
			if set, ok := fw.Outliers[key]; ok {
				outliers = len(set.Indices)
			}
			row := []string{
				fw.Framework,
				key,
				strconv.Itoa(st.N),
				formatFloat(st.Mean),
				formatFloat(st.Median),
				formatFloat(st.Std),
				formatFloat(st.CILower),
				formatFloat(st.CIUpper),
				formatFloat(st.Min),
				formatFloat(st.Max),
				strconv.Itoa(outliers),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCostCSV writes one row per framework that carries cost data, in
// report order.
func WriteCostCSV(w io.Writer, report *analysis.Report) error {
	if report == nil {
		return fmt.Errorf("report must not be nil")
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(costHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i := range report.Frameworks {
		fw := &report.Frameworks[i]
		if fw.Cost == nil {
			continue
		}
		row := []string{
			fw.Framework,
			fw.Cost.Model,
			strconv.FormatInt(fw.Cost.TokensIn, 10),
			strconv.FormatInt(fw.Cost.TokensOut, 10),
			strconv.FormatInt(fw.Cost.CachedTokens, 10),
			formatFloat(fw.Cost.CacheHitRate()),
			formatFloat(fw.Cost.TotalCost),
			formatFloat(fw.Cost.CacheSavings),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
