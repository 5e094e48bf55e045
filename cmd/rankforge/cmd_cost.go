// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rankforge/rankforge/pkg/ux"
	"github.com/rankforge/rankforge/services/engine/costmodel"
	"github.com/spf13/cobra"
)

func runCost(cmd *cobra.Command, _ []string) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// 1. Load the registry pricing table
	reg, err := loadRegistry(ctx, analyzeRegistry)
	if err != nil {
		slog.Error("Failed to load the metric registry", "error", err)
		return
	}

	// 2. Resolve the pricing model
	if costModelName == "" {
		ux.Error(fmt.Sprintf("No model. Pass --model with one of: %s.",
			strings.Join(reg.Models(), ", ")))
		return
	}
	model, err := costmodel.New(costModelName, reg)
	if err != nil {
		ux.Error(err.Error())
		return
	}

	// 3. Compute one run's breakdown
	breakdown, err := model.Calculate(costTokensIn, costTokensOut, costCachedTokens)
	if err != nil {
		ux.Error(err.Error())
		return
	}

	// 4. Project over the requested run count
	runs := costRuns
	if runs < 1 {
		runs = 1
	}
	if runs > 1 {
		all := make([]costmodel.Breakdown, runs)
		for i := range all {
			all[i] = breakdown
		}
		breakdown = costmodel.Sum(all)
	}

	// 5. Print the estimate
	pricing := model.Pricing()
	ux.Title(fmt.Sprintf("Cost estimate: %s", model.Name()))
	ux.Muted(fmt.Sprintf("input %s, cached %s, output %s per 1M tokens",
		formatUSD(pricing.InputPrice), formatUSD(pricing.CachedPrice), formatUSD(pricing.OutputPrice)))
	if runs > 1 {
		ux.Muted(fmt.Sprintf("projected over %d runs", runs))
	}
	ux.MetricLine("tokens_in", formatCount(breakdown.TokensIn),
		fmt.Sprintf("%s cached", formatCount(breakdown.CachedTokens)))
	ux.MetricLine("tokens_out", formatCount(breakdown.TokensOut), "")
	ux.MetricLine("uncached_input", formatUSD(breakdown.UncachedInputCost), "")
	ux.MetricLine("cached_input", formatUSD(breakdown.CachedInputCost), "")
	ux.MetricLine("output", formatUSD(breakdown.OutputCost), "")
	ux.MetricLine("total", formatUSD(breakdown.TotalCost),
		fmt.Sprintf("saved %s via cache (hit rate %.0f%%)",
			formatUSD(breakdown.CacheSavings), breakdown.CacheHitRate()*100))
}
