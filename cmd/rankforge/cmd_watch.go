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
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rankforge/rankforge/cmd/rankforge/config"
	"github.com/rankforge/rankforge/pkg/ux"
	"github.com/rankforge/rankforge/services/engine/analysis"
	"github.com/rankforge/rankforge/services/engine/registry"
	"github.com/rankforge/rankforge/services/engine/runio"
	"github.com/spf13/cobra"
)

func runWatch(cmd *cobra.Command, _ []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Resolve the run directory
	runsDir := watchRuns
	if runsDir == "" {
		runsDir = config.Global.Runs.Dir
	}
	if runsDir == "" {
		ux.Error("No run directory. Pass --runs DIR or set runs.dir in the config.")
		return
	}
	runsDir = expandHome(runsDir)
	if info, err := os.Stat(runsDir); err != nil || !info.IsDir() {
		ux.Error(fmt.Sprintf("%s is not a watchable directory.", runsDir))
		return
	}

	// 2. Load the registry once; a watch session analyzes against one
	// registry instance
	reg, err := loadRegistry(ctx, analyzeRegistry)
	if err != nil {
		slog.Error("Failed to load the metric registry", "error", err)
		return
	}

	// 3. Watcher options
	watchOpts := runio.DefaultWatcherOptions()
	if watchDebounce != "" {
		d, err := time.ParseDuration(watchDebounce)
		if err != nil || d <= 0 {
			ux.Error(fmt.Sprintf("Invalid --debounce %q; use a positive duration like 500ms or 2s.", watchDebounce))
			return
		}
		watchOpts.DebounceWindow = d
	}

	analyzer := analysis.New(reg, analysisOptions(cmd)...)

	if ux.IsInteractive() && ux.ShouldShowProgress() {
		runWatchInteractive(ctx, runsDir, watchOpts, analyzer)
		return
	}
	runWatchPlain(ctx, runsDir, watchOpts, analyzer, reg)
}

// reanalyze loads the run directory and pushes it through the analyzer.
func reanalyze(ctx context.Context, analyzer *analysis.Analyzer, runsDir string) (*analysis.Report, *runio.LoadResult, error) {
	loaded, err := runio.LoadDir(ctx, runsDir)
	if err != nil {
		return nil, nil, err
	}
	if len(loaded.Records) == 0 {
		return nil, loaded, fmt.Errorf("no parsable run records under %s", runsDir)
	}
	report, err := analyzer.Analyze(ctx, loaded.Records)
	if err != nil {
		return nil, loaded, err
	}
	return report, loaded, nil
}

// runWatchInteractive drives the bubbletea status view. The watcher's
// debounce goroutine feeds change batches into the program as messages.
func runWatchInteractive(ctx context.Context, runsDir string, opts runio.WatcherOptions, analyzer *analysis.Analyzer) {
	model := newWatchModel(ctx, runsDir, opts.DebounceWindow, analyzer)
	program := tea.NewProgram(model, tea.WithOutput(os.Stderr))

	watcher, err := runio.NewWatcher(runsDir, func(changes []runio.Change) {
		program.Send(changesMsg{changes: changes})
	}, &opts)
	if err != nil {
		slog.Error("Failed to create the watcher", "error", err)
		return
	}
	if err := watcher.Start(ctx); err != nil {
		slog.Error("Failed to start watching", "dir", runsDir, "error", err)
		return
	}
	defer watcher.Stop()

	// Signal cancellation must unblock the program too.
	go func() {
		<-ctx.Done()
		program.Send(shutdownMsg{})
	}()

	if _, err := program.Run(); err != nil {
		slog.Error("Watch view failed", "error", err)
	}
}

// runWatchPlain is the non-TTY path: one log line per event, suitable for
// scripts and service units.
func runWatchPlain(ctx context.Context, runsDir string, opts runio.WatcherOptions, analyzer *analysis.Analyzer, reg *registry.Registry) {
	logger := slog.Default()
	logger.Info("Watching run directory", "dir", runsDir, "debounce", opts.DebounceWindow, "registry", reg.Source())

	analyzeAndLog := func(trigger string, changed int) {
		start := time.Now()
		report, loaded, err := reanalyze(ctx, analyzer, runsDir)
		if err != nil {
			logger.Error("Re-analysis failed", "trigger", trigger, "error", err)
			return
		}
		logger.Info("Analysis complete",
			"trigger", trigger,
			"changed", changed,
			"report", report.ID,
			"runs", report.Discovery.RunCount,
			"frameworks", len(report.Frameworks),
			"significant", significantCount(report),
			"skipped", len(loaded.Skipped),
			"duration", time.Since(start).Round(time.Millisecond),
		)
	}

	analyzeAndLog("startup", 0)

	watcher, err := runio.NewWatcher(runsDir, func(changes []runio.Change) {
		analyzeAndLog("fsevent", len(changes))
	}, &opts)
	if err != nil {
		logger.Error("Failed to create the watcher", "error", err)
		return
	}
	if err := watcher.Start(ctx); err != nil {
		logger.Error("Failed to start watching", "dir", runsDir, "error", err)
		return
	}
	defer watcher.Stop()

	<-ctx.Done()
	logger.Info("Watch stopped")
}

func significantCount(report *analysis.Report) int {
	n := 0
	for _, cmp := range report.Comparisons {
		if cmp.KruskalWallis.Significant {
			n++
		}
	}
	return n
}
