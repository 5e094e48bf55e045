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
	"os"

	"github.com/rankforge/rankforge/pkg/ux"
	"github.com/rankforge/rankforge/services/engine/registry"
	"github.com/rankforge/rankforge/services/engine/runio"
	"github.com/spf13/cobra"
)

func runRegistryMetrics(cmd *cobra.Command, _ []string) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	reg, err := loadRegistry(ctx, analyzeRegistry)
	if err != nil {
		slog.Error("Failed to load the metric registry", "error", err)
		return
	}

	category, _ := cmd.Flags().GetString("category")
	var defs []registry.MetricDefinition
	if category != "" {
		defs = reg.ByCategory(category)
	} else {
		for _, key := range reg.Keys() {
			def, _ := reg.Get(key)
			defs = append(defs, def)
		}
	}
	if len(defs) == 0 {
		ux.Warning("No metrics matched.")
		return
	}

	ux.Title(fmt.Sprintf("Registry: %s (%d metrics)", reg.Source(), len(defs)))
	for _, def := range defs {
		direction := def.IdealDirection
		if def.StatisticalTest {
			direction += ", tested"
		}
		if !def.Measured() {
			direction += fmt.Sprintf(", %s: %s", def.Status, def.Reason)
		}
		ux.MetricLine(def.Key, def.Name, direction)
	}
}

func runRegistryPricing(cmd *cobra.Command, _ []string) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	reg, err := loadRegistry(ctx, analyzeRegistry)
	if err != nil {
		slog.Error("Failed to load the metric registry", "error", err)
		return
	}

	models := reg.Models()
	if len(models) == 0 {
		ux.Warning("The registry carries no pricing table.")
		return
	}

	ux.Title(fmt.Sprintf("Pricing (%d models, USD per 1M tokens)", len(models)))
	for _, model := range models {
		entry, _ := reg.Pricing(model)
		ux.MetricLine(model,
			fmt.Sprintf("in %s / cached %s / out %s",
				formatUSD(entry.InputPrice), formatUSD(entry.CachedPrice), formatUSD(entry.OutputPrice)),
			"")
	}
}

func runRegistryValidate(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// 1. Load the registry
	reg, err := loadRegistry(ctx, analyzeRegistry)
	if err != nil {
		slog.Error("Failed to load the metric registry", "error", err)
		return
	}

	// 2. Parse the run record
	recordPath := args[0]
	data, err := os.ReadFile(recordPath)
	if err != nil {
		slog.Error("Failed to read the run record", "path", recordPath, "error", err)
		return
	}
	record, err := runio.ParseRecord(data)
	if err != nil {
		ux.Error(fmt.Sprintf("Record does not parse: %v", err))
		return
	}

	// 3. Check the metrics against the registry
	findings := reg.Validate(record.AggregateMetrics)
	if len(findings) == 0 {
		ux.Success(fmt.Sprintf("%s: %d metrics, all registered", record.Ref(), len(record.AggregateMetrics)))
		return
	}
	ux.Warning(fmt.Sprintf("%s: %d findings", record.Ref(), len(findings)))
	for _, finding := range findings {
		ux.Muted("  " + finding)
	}
}
