// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package runio

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseRecord(t *testing.T) {
	t.Run("valid record", func(t *testing.T) {
		data := []byte(`{
			"run_id": "run-042",
			"framework": "fastkit",
			"framework_version": "1.2",
			"model": "gpt-4o-mini",
			"aggregate_metrics": {
				"tokens_in": 104523,
				"duration_seconds": 88.4,
				"peak_memory_mb": null,
				"notes": "flaky network"
			}
		}`)

		rec, err := ParseRecord(data)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.RunID != "run-042" {
			t.Errorf("RunID = %q, want run-042", rec.RunID)
		}
		if rec.Framework != "fastkit" {
			t.Errorf("Framework = %q, want fastkit", rec.Framework)
		}
		if rec.FrameworkVersion != "v1.2.0" {
			t.Errorf("FrameworkVersion = %q, want v1.2.0", rec.FrameworkVersion)
		}
		if rec.Model != "gpt-4o-mini" {
			t.Errorf("Model = %q, want gpt-4o-mini", rec.Model)
		}
		if len(rec.AggregateMetrics) != 4 {
			t.Errorf("AggregateMetrics has %d entries, want 4", len(rec.AggregateMetrics))
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := ParseRecord([]byte("{not json"))
		if err == nil {
			t.Fatal("expected error for invalid JSON")
		}
		if !strings.Contains(err.Error(), "unmarshal run record") {
			t.Errorf("error should mention unmarshal: %v", err)
		}
	})

	t.Run("absent metrics map stays nil", func(t *testing.T) {
		rec, err := ParseRecord([]byte(`{"run_id": "run-1", "framework": "fastkit"}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.AggregateMetrics != nil {
			t.Errorf("AggregateMetrics = %v, want nil for absent field", rec.AggregateMetrics)
		}
	})

	t.Run("null metrics map stays nil", func(t *testing.T) {
		rec, err := ParseRecord([]byte(`{"run_id": "run-1", "aggregate_metrics": null}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.AggregateMetrics != nil {
			t.Errorf("AggregateMetrics = %v, want nil for null field", rec.AggregateMetrics)
		}
	})

	t.Run("empty metrics object is present", func(t *testing.T) {
		rec, err := ParseRecord([]byte(`{"run_id": "run-1", "aggregate_metrics": {}}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.AggregateMetrics == nil {
			t.Error("AggregateMetrics should be non-nil for an empty object")
		}
	})

	t.Run("non-semver version kept raw", func(t *testing.T) {
		rec, err := ParseRecord([]byte(`{"run_id": "run-1", "framework_version": "latest"}`))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.FrameworkVersion != "latest" {
			t.Errorf("FrameworkVersion = %q, want raw value kept", rec.FrameworkVersion)
		}
	})
}

func TestNormalizeVersion(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{"", "", true},
		{"1.2", "v1.2.0", true},
		{"1.2.3", "v1.2.3", true},
		{"v2.0.0", "v2.0.0", true},
		{"2.0.0-rc.1", "v2.0.0-rc.1", true},
		{" 1.0.0 ", "v1.0.0", true},
		{"latest", "latest", false},
		{"1.2.3.4", "1.2.3.4", false},
	}

	for _, tt := range tests {
		got, ok := NormalizeVersion(tt.raw)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("NormalizeVersion(%q) = (%q, %v), want (%q, %v)",
				tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestRecord_Metric(t *testing.T) {
	rec := Record{AggregateMetrics: map[string]any{
		"tokens_in":        float64(104523),
		"iterations":       3,
		"tokens_out":       json.Number("51200"),
		"peak_memory_mb":   nil,
		"notes":            "flaky network",
		"duration_seconds": 88.4,
	}}

	tests := []struct {
		key    string
		want   float64
		wantOK bool
	}{
		{"tokens_in", 104523, true},
		{"iterations", 3, true},
		{"tokens_out", 51200, true},
		{"duration_seconds", 88.4, true},
		{"peak_memory_mb", 0, false},
		{"notes", 0, false},
		{"absent_metric", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := rec.Metric(tt.key)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Metric(%q) = (%v, %v), want (%v, %v)", tt.key, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestRecord_MetricKeys(t *testing.T) {
	rec := Record{AggregateMetrics: map[string]any{
		"tokens_out": 1.0,
		"api_calls":  2.0,
		"tokens_in":  3.0,
	}}

	want := []string{"api_calls", "tokens_in", "tokens_out"}
	got := rec.MetricKeys()
	if len(got) != len(want) {
		t.Fatalf("MetricKeys() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("MetricKeys()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRecord_Ref(t *testing.T) {
	t.Run("run id wins", func(t *testing.T) {
		rec := Record{RunID: "run-7", SourcePath: "/runs/run-7.json"}
		if rec.Ref() != "run-7" {
			t.Errorf("Ref() = %q, want run-7", rec.Ref())
		}
	})

	t.Run("source path fallback", func(t *testing.T) {
		rec := Record{SourcePath: "/runs/anon.json"}
		if rec.Ref() != "/runs/anon.json" {
			t.Errorf("Ref() = %q, want the source path", rec.Ref())
		}
	})

	t.Run("placeholder when both empty", func(t *testing.T) {
		var rec Record
		if rec.Ref() == "" {
			t.Error("Ref() should never be empty")
		}
	})
}
