// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rankforge/rankforge/cmd/rankforge/config"
	"github.com/rankforge/rankforge/services/engine/analysis"
	"github.com/rankforge/rankforge/services/engine/archive"
	"github.com/rankforge/rankforge/services/engine/registry"
)

// loadRegistry resolves the metric registry for a command run. Precedence:
// the --registry flag, then registry.path from the runtime config, then the
// embedded registry.
func loadRegistry(ctx context.Context, flagPath string) (*registry.Registry, error) {
	if flagPath != "" {
		return registry.Load(ctx, flagPath)
	}
	if p := config.Global.Registry.Path; p != "" {
		return registry.Load(ctx, expandHome(p))
	}
	return registry.Default(ctx)
}

// resolveOutPath turns an --out flag into a concrete file path. An existing
// directory gets defaultName appended; anything else is taken as the file
// path; empty means defaultName in the working directory.
func resolveOutPath(outFlag, defaultName string) string {
	if outFlag == "" {
		return defaultName
	}
	info, err := os.Stat(outFlag)
	if err == nil && info.IsDir() {
		return filepath.Join(outFlag, defaultName)
	}
	return outFlag
}

// expandHome expands a leading ~ to the user's home directory.
func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		if p == "~" {
			return home
		}
		return filepath.Join(home, p[2:])
	}
	return p
}

// openArchive opens the local report archive at the configured path.
func openArchive(path string) (*archive.Store, error) {
	if path == "" {
		path = config.Global.Archive.Path
	}
	if path == "" {
		return nil, fmt.Errorf("no archive path configured; set archive.path in the config or pass --db")
	}
	return archive.OpenStore(archive.DefaultConfig(expandHome(path)))
}

// writeReportFile writes the report as indented JSON.
func writeReportFile(report *analysis.Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode the report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write the report file: %w", err)
	}
	return nil
}

// loadReportArg resolves the report a subcommand operates on: exactly one
// of a report file (--report) or an archive ID (--id).
func loadReportArg(ctx context.Context, reportPath, reportID string) (*analysis.Report, error) {
	switch {
	case reportPath != "" && reportID != "":
		return nil, fmt.Errorf("pass exactly one of --report or --id, not both")
	case reportPath != "":
		data, err := os.ReadFile(reportPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read the report file: %w", err)
		}
		var report analysis.Report
		if err := json.Unmarshal(data, &report); err != nil {
			return nil, fmt.Errorf("failed to parse the report file %s: %w", reportPath, err)
		}
		return &report, nil
	case reportID != "":
		store, err := openArchive("")
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.Get(ctx, reportID)
	default:
		return nil, fmt.Errorf("pass --report FILE or --id REPORT_ID to select a report")
	}
}

// formatUSD renders a dollar amount with enough precision for sub-cent
// token prices.
func formatUSD(v float64) string {
	return "$" + strconv.FormatFloat(v, 'f', 4, 64)
}

// formatCount renders a token count with thousands separators.
func formatCount(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	out := strings.Join(parts, ",")
	if neg {
		out = "-" + out
	}
	return out
}
