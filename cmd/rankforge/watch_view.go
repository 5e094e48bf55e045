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
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rankforge/rankforge/pkg/ux"
	"github.com/rankforge/rankforge/services/engine/analysis"
	"github.com/rankforge/rankforge/services/engine/runio"
)

// =============================================================================
// Messages
// =============================================================================

// changesMsg carries one debounced batch of record changes from the watcher.
type changesMsg struct {
	changes []runio.Change
}

// analysisDoneMsg carries the outcome of one re-analysis pass.
type analysisDoneMsg struct {
	report  *analysis.Report
	skipped int
	took    time.Duration
	err     error
}

// shutdownMsg asks the view to exit; sent on signal cancellation.
type shutdownMsg struct{}

// =============================================================================
// Model
// =============================================================================

// watchModel is the bubbletea model for the watch status view. Analysis runs
// inside tea commands; the model itself only tracks display state.
type watchModel struct {
	ctx      context.Context
	runsDir  string
	debounce time.Duration
	analyzer *analysis.Analyzer

	spinner   spinner.Model
	analyzing bool

	// dirty marks changes that arrived while an analysis was running; the
	// next pass starts as soon as the current one finishes.
	dirty   bool
	pending int

	passes   int
	report   *analysis.Report
	skipped  int
	lastTook time.Duration
	lastAt   time.Time
	lastErr  error

	quitting bool
}

func newWatchModel(ctx context.Context, runsDir string, debounce time.Duration, analyzer *analysis.Analyzer) watchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = ux.Styles.Subtitle
	return watchModel{
		ctx:      ctx,
		runsDir:  runsDir,
		debounce: debounce,
		analyzer: analyzer,
		spinner:  s,
		// The startup pass begins from Init; the view must not show the
		// idle state before its result lands.
		analyzing: true,
	}
}

// analyzeCmd runs one analysis pass off the event loop.
func (m watchModel) analyzeCmd() tea.Cmd {
	ctx, analyzer, runsDir := m.ctx, m.analyzer, m.runsDir
	return func() tea.Msg {
		start := time.Now()
		report, loaded, err := reanalyze(ctx, analyzer, runsDir)
		msg := analysisDoneMsg{report: report, took: time.Since(start), err: err}
		if loaded != nil {
			msg.skipped = len(loaded.Skipped)
		}
		return msg
	}
}

// Init starts the spinner and kicks off the startup analysis.
func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.analyzeCmd())
}

// Update handles watcher batches, analysis results, and key presses.
func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case shutdownMsg:
		m.quitting = true
		return m, tea.Quit

	case changesMsg:
		m.pending += len(msg.changes)
		if m.analyzing {
			// Coalesce: one follow-up pass covers every batch that
			// arrived mid-analysis.
			m.dirty = true
			return m, nil
		}
		m.analyzing = true
		return m, tea.Batch(m.spinner.Tick, m.analyzeCmd())

	case analysisDoneMsg:
		m.passes++
		m.lastTook = msg.took
		m.lastAt = time.Now()
		m.lastErr = msg.err
		if msg.err == nil {
			m.report = msg.report
			m.skipped = msg.skipped
		}
		m.pending = 0
		if m.dirty {
			m.dirty = false
			return m, tea.Batch(m.spinner.Tick, m.analyzeCmd())
		}
		m.analyzing = false
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the status panel.
func (m watchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(ux.Styles.Title.Render("rankforge watch"))
	b.WriteString("\n")
	b.WriteString(ux.Styles.Muted.Render(fmt.Sprintf("%s (debounce %s)", m.runsDir, m.debounce)))
	b.WriteString("\n\n")

	switch {
	case m.analyzing && m.pending > 0:
		b.WriteString(fmt.Sprintf("%s Analyzing %d changed records...\n", m.spinner.View(), m.pending))
	case m.analyzing:
		b.WriteString(fmt.Sprintf("%s Analyzing...\n", m.spinner.View()))
	default:
		b.WriteString(fmt.Sprintf("%s Waiting for changes\n", ux.Styles.StatusPending.String()))
	}

	if m.lastErr != nil {
		b.WriteString(fmt.Sprintf("%s %s\n", ux.Styles.StatusError.String(),
			ux.Styles.Error.Render(m.lastErr.Error())))
	} else if m.report != nil {
		b.WriteString(fmt.Sprintf("%s %s\n", ux.Styles.StatusOK.String(), m.summaryLine()))
		if m.skipped > 0 {
			b.WriteString(ux.Styles.Warning.Render(fmt.Sprintf("  %d unparsable files skipped", m.skipped)))
			b.WriteString("\n")
		}
	}

	if m.passes > 0 {
		b.WriteString(ux.Styles.Muted.Render(fmt.Sprintf("pass %d, last %s at %s",
			m.passes, m.lastTook.Round(time.Millisecond), m.lastAt.Format("15:04:05"))))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(ux.Styles.Muted.Render("q to quit"))
	b.WriteString("\n")
	return b.String()
}

func (m watchModel) summaryLine() string {
	return fmt.Sprintf("%d runs, %d frameworks, %d significant of %d tested metrics",
		m.report.Discovery.RunCount,
		len(m.report.Frameworks),
		significantCount(m.report),
		len(m.report.Comparisons))
}
