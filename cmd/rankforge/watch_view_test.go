// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rankforge/rankforge/services/engine/analysis"
	"github.com/rankforge/rankforge/services/engine/discovery"
	"github.com/rankforge/rankforge/services/engine/runio"
)

func testWatchModel() watchModel {
	return newWatchModel(context.Background(), "/tmp/runs", 500*time.Millisecond, nil)
}

func watchReport() *analysis.Report {
	return &analysis.Report{
		ID:        "report-1",
		Discovery: &discovery.Result{RunCount: 9},
		Frameworks: []analysis.FrameworkAggregate{
			{Framework: "fastkit"}, {Framework: "steadylab"},
		},
	}
}

func TestWatchModelStartsAnalyzing(t *testing.T) {
	m := testWatchModel()
	if !m.analyzing {
		t.Fatal("fresh model should show the startup analysis")
	}
	if m.Init() == nil {
		t.Fatal("Init should schedule the startup pass")
	}
}

func TestWatchModelAnalysisDone(t *testing.T) {
	m := testWatchModel()
	updated, cmd := m.Update(analysisDoneMsg{report: watchReport(), skipped: 1, took: 20 * time.Millisecond})
	m = updated.(watchModel)

	if m.analyzing {
		t.Error("model still analyzing after the result landed")
	}
	if cmd != nil {
		t.Error("no follow-up pass expected without pending changes")
	}
	if m.passes != 1 || m.report == nil || m.skipped != 1 {
		t.Errorf("result not recorded: passes=%d report=%v skipped=%d", m.passes, m.report, m.skipped)
	}

	view := m.View()
	if !strings.Contains(view, "9 runs") || !strings.Contains(view, "2 frameworks") {
		t.Errorf("view missing the summary line:\n%s", view)
	}
	if !strings.Contains(view, "skipped") {
		t.Errorf("view missing the skipped warning:\n%s", view)
	}
}

func TestWatchModelCoalescesChanges(t *testing.T) {
	m := testWatchModel()

	// Changes during an active pass mark the model dirty instead of
	// starting a second concurrent analysis.
	updated, cmd := m.Update(changesMsg{changes: []runio.Change{{Path: "a.json"}, {Path: "b.json"}}})
	m = updated.(watchModel)
	if cmd != nil {
		t.Error("mid-analysis changes must not schedule a pass immediately")
	}
	if !m.dirty || m.pending != 2 {
		t.Errorf("dirty=%v pending=%d, want dirty with 2 pending", m.dirty, m.pending)
	}

	// Finishing the active pass triggers exactly one follow-up.
	updated, cmd = m.Update(analysisDoneMsg{report: watchReport()})
	m = updated.(watchModel)
	if cmd == nil {
		t.Error("dirty model should schedule the follow-up pass")
	}
	if m.dirty || !m.analyzing {
		t.Errorf("dirty=%v analyzing=%v after follow-up scheduled", m.dirty, m.analyzing)
	}
}

func TestWatchModelIdleChangeTriggersAnalysis(t *testing.T) {
	m := testWatchModel()
	updated, _ := m.Update(analysisDoneMsg{report: watchReport()})
	m = updated.(watchModel)

	updated, cmd := m.Update(changesMsg{changes: []runio.Change{{Path: "c.json"}}})
	m = updated.(watchModel)
	if cmd == nil {
		t.Error("idle model should schedule a pass on changes")
	}
	if !m.analyzing {
		t.Error("model should be analyzing after changes")
	}
}

func TestWatchModelErrorShown(t *testing.T) {
	m := testWatchModel()
	updated, _ := m.Update(analysisDoneMsg{err: errors.New("no parsable run records under /tmp/runs")})
	m = updated.(watchModel)

	if m.report != nil {
		t.Error("failed pass must not install a report")
	}
	if !strings.Contains(m.View(), "no parsable run records") {
		t.Errorf("view missing the error:\n%s", m.View())
	}
}

func TestWatchModelQuitKeys(t *testing.T) {
	for _, key := range []string{"q", "ctrl+c", "esc"} {
		m := testWatchModel()
		updated, cmd := m.Update(keyMsgFor(key))
		m = updated.(watchModel)
		if !m.quitting || cmd == nil {
			t.Errorf("key %q: quitting=%v cmd=%v", key, m.quitting, cmd)
		}
		if m.View() != "" {
			t.Errorf("key %q: quitting view should be empty", key)
		}
	}

	m := testWatchModel()
	updated, cmd := m.Update(shutdownMsg{})
	m = updated.(watchModel)
	if !m.quitting || cmd == nil {
		t.Error("shutdownMsg should quit the view")
	}
}

func keyMsgFor(key string) tea.KeyMsg {
	switch key {
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
}
