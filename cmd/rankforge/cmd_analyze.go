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
	"strconv"

	"github.com/rankforge/rankforge/cmd/rankforge/config"
	"github.com/rankforge/rankforge/pkg/ux"
	"github.com/rankforge/rankforge/services/engine/analysis"
	"github.com/rankforge/rankforge/services/engine/runio"
	"github.com/spf13/cobra"
)

func runAnalyze(cmd *cobra.Command, _ []string) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// 1. Resolve the run directory
	runsDir := analyzeRuns
	if runsDir == "" {
		runsDir = config.Global.Runs.Dir
	}
	if runsDir == "" {
		ux.Error("No run directory. Pass --runs DIR or set runs.dir in the config.")
		return
	}
	runsDir = expandHome(runsDir)

	// 2. Load the registry
	reg, err := loadRegistry(ctx, analyzeRegistry)
	if err != nil {
		slog.Error("Failed to load the metric registry", "error", err)
		return
	}

	// 3. Load the run records
	loaded, err := runio.LoadDir(ctx, runsDir)
	if err != nil {
		slog.Error("Failed to load run records", "dir", runsDir, "error", err)
		return
	}
	ux.Summary(len(loaded.Records), len(loaded.Skipped), loaded.FilesConsidered)
	if len(loaded.Records) == 0 {
		ux.Error(fmt.Sprintf("No parsable run records under %s.", runsDir))
		return
	}

	// 4. Build the analyzer from flags and config defaults
	opts := analysisOptions(cmd)

	var spinner *ux.Spinner
	if ux.ShouldShowProgress() {
		spinner = ux.NewSpinner("Analyzing runs")
		spinner.Start()
		opts = append(opts, analysis.WithProgress(func(p analysis.Progress) {
			spinner.UpdateMessage(progressMessage(p))
		}))
	}
	analyzer := analysis.New(reg, opts...)

	// 5. Run the pipeline
	report, err := analyzer.Analyze(ctx, loaded.Records)
	if err != nil {
		if spinner != nil {
			spinner.StopWithError("Analysis failed")
		}
		slog.Error("Analysis failed", "error", err)
		return
	}
	if spinner != nil {
		spinner.StopWithSuccess(fmt.Sprintf("Analyzed %d runs across %d frameworks",
			report.Discovery.RunCount, len(report.Frameworks)))
	}

	// 6. Print the terminal summary
	printReportSummary(report)

	// 7. Write the report artifact
	if analyzeOut != "" {
		outPath := resolveOutPath(analyzeOut, fmt.Sprintf("rankforge_%s.json", report.ID))
		if err := writeReportFile(report, outPath); err != nil {
			slog.Error("Failed to write the report", "path", outPath, "error", err)
			return
		}
		ux.Success(fmt.Sprintf("Report written to %s", outPath))
	}

	// 8. Archive the report
	if analyzeArchive {
		store, err := openArchive("")
		if err != nil {
			slog.Error("Failed to open the report archive", "error", err)
			return
		}
		defer store.Close()
		if err := store.Save(ctx, report); err != nil {
			slog.Error("Failed to archive the report", "error", err)
			return
		}
		ux.Success(fmt.Sprintf("Report %s archived", report.ID))
	}
}

// analysisOptions assembles analyzer options from the command flags, falling
// back to the runtime config for parameters left at their zero value.
func analysisOptions(cmd *cobra.Command) []analysis.Option {
	var opts []analysis.Option

	alpha := analyzeAlpha
	if alpha == 0 {
		alpha = config.Global.Analysis.Alpha
	}
	if alpha != 0 {
		opts = append(opts, analysis.WithAlpha(alpha))
	}

	confidence := analyzeConfidence
	if confidence == 0 {
		confidence = config.Global.Analysis.Confidence
	}
	if confidence != 0 {
		opts = append(opts, analysis.WithConfidence(confidence))
	}

	resamples := analyzeResamples
	if resamples == 0 {
		resamples = config.Global.Analysis.Resamples
	}
	if resamples != 0 {
		opts = append(opts, analysis.WithResamples(resamples))
	}

	threshold := analyzeOutlierThreshold
	if threshold == 0 {
		threshold = config.Global.Analysis.OutlierThreshold
	}
	if threshold != 0 {
		opts = append(opts, analysis.WithOutlierThreshold(threshold))
	}

	if cmd != nil && cmd.Flags().Changed("seed") {
		opts = append(opts, analysis.WithSeed(analyzeSeed))
	}
	if analyzeCostModel != "" {
		opts = append(opts, analysis.WithCostModel(analyzeCostModel))
	}
	return opts
}

func progressMessage(p analysis.Progress) string {
	switch p.Stage {
	case "discovery":
		return "Discovering metrics"
	case "aggregate":
		if p.Framework != "" {
			return fmt.Sprintf("Aggregating %s (%d/%d)", p.Framework, p.Done, p.Total)
		}
		return "Aggregating frameworks"
	case "compare":
		if p.Metric != "" {
			return fmt.Sprintf("Comparing %s (%d/%d)", p.Metric, p.Done, p.Total)
		}
		return "Comparing metrics"
	case "report":
		return "Assembling the report"
	default:
		return "Analyzing runs"
	}
}

// printReportSummary renders the headline numbers. The JSON artifact is the
// structured surface; this is orientation only.
func printReportSummary(report *analysis.Report) {
	ux.Title(fmt.Sprintf("Analysis %s", report.ID))
	ux.Info(fmt.Sprintf("%d runs, %d frameworks, %d metrics with data",
		report.Discovery.RunCount, len(report.Frameworks), len(report.Discovery.MetricsWithData)))

	for _, fw := range report.Frameworks {
		ux.Muted(fmt.Sprintf("%s (%d runs)", fw.Framework, fw.Runs))
		if fw.Cost != nil {
			ux.MetricLine("cost", formatUSD(fw.Cost.TotalCost),
				fmt.Sprintf("savings %s, cache hit %.0f%%",
					formatUSD(fw.Cost.CacheSavings), fw.Cost.CacheHitRate()*100))
		}
		if n := outlierCount(fw); n > 0 {
			ux.MetricLine("outliers", strconv.Itoa(n), "flagged observations")
		}
	}

	if len(report.Comparisons) > 0 {
		ux.Title("Comparisons")
	}
	for _, cmp := range report.Comparisons {
		ux.MetricLine(cmp.Metric, comparisonVerdict(cmp),
			fmt.Sprintf("H=%.3f p=%.4f", cmp.KruskalWallis.H, cmp.KruskalWallis.PValue))
		for _, pw := range cmp.Pairwise {
			if !pw.Significant {
				continue
			}
			ux.Muted(fmt.Sprintf("    %s vs %s: p=%.4f, delta=%.2f (%s)",
				pw.Group1, pw.Group2, pw.PValue, pw.CliffDelta, pw.Effect))
		}
	}
}

func comparisonVerdict(cmp analysis.MetricComparison) string {
	switch {
	case cmp.KruskalWallis.Degenerate:
		return "not comparable"
	case cmp.KruskalWallis.Significant:
		return "significant"
	default:
		return "no significant difference"
	}
}

func outlierCount(fw analysis.FrameworkAggregate) int {
	n := 0
	for _, set := range fw.Outliers {
		n += len(set.Indices)
	}
	return n
}
