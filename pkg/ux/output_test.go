// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

// Helper to capture stdout
func captureStdout(f func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// Helper to capture stderr
func captureStderr(f func()) string {
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	f()

	w.Close()
	os.Stderr = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// =============================================================================
// Icon.Render Tests
// =============================================================================

func TestIcon_Render_Success(t *testing.T) {
	result := IconSuccess.Render()
	if result == "" {
		t.Error("expected non-empty result for IconSuccess")
	}
}

func TestIcon_Render_Warning(t *testing.T) {
	result := IconWarning.Render()
	if result == "" {
		t.Error("expected non-empty result for IconWarning")
	}
}

func TestIcon_Render_Error(t *testing.T) {
	result := IconError.Render()
	if result == "" {
		t.Error("expected non-empty result for IconError")
	}
}

func TestIcon_Render_Pending(t *testing.T) {
	result := IconPending.Render()
	if result == "" {
		t.Error("expected non-empty result for IconPending")
	}
}

func TestIcon_Render_Default(t *testing.T) {
	// Test icons that don't have specific styling
	icons := []Icon{IconArrow, IconBullet, IconDelta, IconGauge, IconSpark}
	for _, icon := range icons {
		result := icon.Render()
		if result != string(icon) {
			t.Errorf("expected %q for %q, got %q", string(icon), icon, result)
		}
	}
}

// =============================================================================
// Title Tests
// =============================================================================

func TestTitle_MachineMode(t *testing.T) {
	// Save and restore personality
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Title("Analysis Report")
	})

	if output != "" {
		t.Errorf("expected no output in machine mode, got %q", output)
	}
}

func TestTitle_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Title("Analysis Report")
	})

	if !strings.Contains(output, "Analysis Report") {
		t.Errorf("expected output to contain title, got %q", output)
	}
}

// =============================================================================
// Success Tests
// =============================================================================

func TestSuccess_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Success("analysis archived")
	})

	if !strings.Contains(output, "OK: analysis archived") {
		t.Errorf("expected 'OK: analysis archived', got %q", output)
	}
}

func TestSuccess_MinimalMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityMinimal)

	output := captureStdout(func() {
		Success("analysis archived")
	})

	if !strings.Contains(output, "analysis archived") {
		t.Errorf("expected message in output, got %q", output)
	}
}

func TestSuccess_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Success("analysis archived")
	})

	if !strings.Contains(output, "analysis archived") {
		t.Errorf("expected message in output, got %q", output)
	}
}

// =============================================================================
// Warning Tests
// =============================================================================

func TestWarning_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityMachine)

	output := captureStderr(func() {
		Warning("run file skipped")
	})

	if !strings.Contains(output, "WARN: run file skipped") {
		t.Errorf("expected 'WARN: run file skipped' on stderr, got %q", output)
	}
}

func TestWarning_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Warning("run file skipped")
	})

	if !strings.Contains(output, "run file skipped") {
		t.Errorf("expected message in output, got %q", output)
	}
}

// =============================================================================
// Error Tests
// =============================================================================

func TestError_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityMachine)

	output := captureStderr(func() {
		Error("registry not found")
	})

	if !strings.Contains(output, "ERROR: registry not found") {
		t.Errorf("expected 'ERROR: registry not found' on stderr, got %q", output)
	}
}

func TestError_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Error("registry not found")
	})

	if !strings.Contains(output, "registry not found") {
		t.Errorf("expected message in output, got %q", output)
	}
}

// =============================================================================
// Info / Muted Tests
// =============================================================================

func TestInfo_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Info("loading runs")
	})

	if !strings.Contains(output, "loading runs") {
		t.Errorf("expected plain message, got %q", output)
	}
}

func TestInfo_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Info("loading runs")
	})

	if !strings.Contains(output, "loading runs") {
		t.Errorf("expected message in output, got %q", output)
	}
}

func TestMuted_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Muted("secondary detail")
	})

	if output != "" {
		t.Errorf("expected no output in machine mode, got %q", output)
	}
}

func TestMuted_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Muted("secondary detail")
	})

	if !strings.Contains(output, "secondary detail") {
		t.Errorf("expected message in output, got %q", output)
	}
}

// =============================================================================
// Box Tests
// =============================================================================

func TestBox_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Box("Summary", "3 frameworks compared")
	})

	if !strings.Contains(output, "Summary: 3 frameworks compared") {
		t.Errorf("expected plain 'title: content' output, got %q", output)
	}
}

func TestBox_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Box("Summary", "3 frameworks compared")
	})

	if !strings.Contains(output, "Summary") || !strings.Contains(output, "3 frameworks compared") {
		t.Errorf("expected boxed title and content, got %q", output)
	}
}

func TestWarningBox_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityMachine)

	output := captureStderr(func() {
		WarningBox("Discovery", "2 unknown metrics")
	})

	if !strings.Contains(output, "WARN Discovery: 2 unknown metrics") {
		t.Errorf("expected plain warning on stderr, got %q", output)
	}
}

// =============================================================================
// FileStatus Tests
// =============================================================================

func TestFileStatus_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		FileStatus("runs/a.json", IconSuccess, "parsed")
	})

	if !strings.Contains(output, "runs/a.json") || !strings.Contains(output, "parsed") {
		t.Errorf("expected tab-separated status line, got %q", output)
	}
}

func TestFileStatus_FullMode_WithReason(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		FileStatus("runs/a.json", IconWarning, "missing aggregate_metrics")
	})

	if !strings.Contains(output, "runs/a.json") {
		t.Errorf("expected path in output, got %q", output)
	}
	if !strings.Contains(output, "missing aggregate_metrics") {
		t.Errorf("expected reason in output, got %q", output)
	}
}

func TestFileStatus_FullMode_NoReason(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		FileStatus("runs/a.json", IconSuccess, "")
	})

	if !strings.Contains(output, "runs/a.json") {
		t.Errorf("expected path in output, got %q", output)
	}
	if strings.Contains(output, "()") {
		t.Errorf("empty reason should not render parens, got %q", output)
	}
}

// =============================================================================
// Summary Tests
// =============================================================================

func TestSummary_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Summary(8, 2, 10)
	})

	if !strings.Contains(output, "SUMMARY: parsed=8 skipped=2 total=10") {
		t.Errorf("expected machine summary, got %q", output)
	}
}

func TestSummary_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Summary(8, 2, 10)
	})

	for _, want := range []string{"8", "2", "10", "parsed", "skipped", "total"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in summary output, got %q", want, output)
		}
	}
}

// =============================================================================
// MetricLine Tests
// =============================================================================

func TestMetricLine_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		MetricLine("tokens_in", "104,230", "minimize")
	})

	if !strings.Contains(output, "tokens_in") || !strings.Contains(output, "104,230") {
		t.Errorf("expected metric fields in output, got %q", output)
	}
}

func TestMetricLine_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		MetricLine("total_cost_usd", "$0.0435", "minimize")
	})

	if !strings.Contains(output, "total_cost_usd") || !strings.Contains(output, "$0.0435") {
		t.Errorf("expected metric fields in output, got %q", output)
	}
}

// =============================================================================
// ProgressBar Tests
// =============================================================================

func TestProgressBar_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityMachine)

	result := ProgressBar(5, 10, 20)
	if result != "5/10" {
		t.Errorf("expected '5/10', got %q", result)
	}
}

func TestProgressBar_FullMode_HalfFull(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityFull)

	result := ProgressBar(5, 10, 20)
	if !strings.Contains(result, "50%") {
		t.Errorf("expected 50%% in output, got %q", result)
	}
}

func TestProgressBar_FullMode_Empty(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityFull)

	result := ProgressBar(0, 10, 20)
	if !strings.Contains(result, "0%") {
		t.Errorf("expected 0%% in output, got %q", result)
	}
}

func TestProgressBar_FullMode_Full(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)
	SetPersonalityLevel(PersonalityFull)

	result := ProgressBar(10, 10, 20)
	if !strings.Contains(result, "100%") {
		t.Errorf("expected 100%% in output, got %q", result)
	}
}

// =============================================================================
// Styles / Constants Tests
// =============================================================================

func TestStyles_NotNil(t *testing.T) {
	// Render with each style to verify they're initialized
	if Styles.Title.Render("x") == "" {
		t.Error("Title style produced empty output")
	}
	if Styles.Error.Render("x") == "" {
		t.Error("Error style produced empty output")
	}
}

func TestIconConstants(t *testing.T) {
	icons := map[Icon]string{
		IconSuccess: "✓",
		IconWarning: "⚠",
		IconError:   "✗",
		IconPending: "○",
		IconArrow:   "→",
		IconBullet:  "•",
		IconDelta:   "Δ",
	}
	for icon, want := range icons {
		if string(icon) != want {
			t.Errorf("icon %q != %q", string(icon), want)
		}
	}
}
