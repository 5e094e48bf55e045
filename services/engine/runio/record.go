// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package runio reads framework run records from disk: one JSON document per
// completed run, produced externally by the run harness. Records are
// read-only inputs to the engine; nothing here mutates them.
package runio

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/mod/semver"
)

// Record is one framework execution as reported by the run harness.
//
// AggregateMetrics is the flat metric-key to value map the engine analyzes.
// Values may be numeric, null, or (from imperfect producers) non-numeric;
// only non-null numerics count as data.
type Record struct {
	// RunID identifies the run. May be empty on records from older
	// harnesses; diagnostics then fall back to the source path.
	RunID string `json:"run_id"`

	// Framework is the software-generation framework that produced the run.
	Framework string `json:"framework"`

	// FrameworkVersion is the canonical semver form of the reported version
	// when it parses, otherwise the raw string.
	FrameworkVersion string `json:"framework_version,omitempty"`

	// Model is the LLM the framework ran against, for cost accounting.
	Model string `json:"model,omitempty"`

	// AggregateMetrics maps metric key to the run's aggregate value. A nil
	// map means the field was absent from the document.
	AggregateMetrics map[string]any `json:"aggregate_metrics"`

	// SourcePath is the file the record was loaded from. Set by the loader,
	// never serialized.
	SourcePath string `json:"-"`
}

// ParseRecord decodes one run record document.
//
// A reported framework version that does not parse as semver is kept as-is
// with a logged warning; version normalization must never reject a record.
func ParseRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("unmarshal run record: %w", err)
	}

	if rec.FrameworkVersion != "" {
		normalized, ok := NormalizeVersion(rec.FrameworkVersion)
		if !ok {
			slog.Warn("run record has non-semver framework version",
				slog.String("run_id", rec.RunID),
				slog.String("framework_version", rec.FrameworkVersion))
		}
		rec.FrameworkVersion = normalized
	}

	return rec, nil
}

// NormalizeVersion returns the canonical semver form of a framework version
// ("1.2" becomes "v1.2.0"). Versions that do not parse are returned
// unchanged with ok=false so diagnostics keep the producer's raw string.
func NormalizeVersion(raw string) (string, bool) {
	if raw == "" {
		return "", true
	}

	v := strings.TrimSpace(raw)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return raw, false
	}
	return semver.Canonical(v), true
}

// Metric returns the run's value for a metric key, accepting only non-null
// numeric values.
func (r Record) Metric(key string) (float64, bool) {
	v, ok := r.AggregateMetrics[key]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// MetricKeys returns the record's metric keys, sorted.
func (r Record) MetricKeys() []string {
	keys := make([]string, 0, len(r.AggregateMetrics))
	for k := range r.AggregateMetrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Ref returns the best identifier for diagnostics: the run id, or the source
// path when the id is empty.
func (r Record) Ref() string {
	if r.RunID != "" {
		return r.RunID
	}
	if r.SourcePath != "" {
		return r.SourcePath
	}
	return "(unidentified run)"
}

// toFloat converts a decoded JSON value to float64. JSON numbers arrive as
// float64 or json.Number depending on decoder configuration; hand-built
// records may carry ints.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
