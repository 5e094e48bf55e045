// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/rankforge/rankforge/cmd/rankforge/config"
	"github.com/rankforge/rankforge/pkg/ux"
	"github.com/spf13/cobra"
)

func runInit(_ *cobra.Command, _ []string) {
	// The form needs a terminal; in machine mode the auto-created default
	// config is all we can offer.
	if !ux.IsInteractive() {
		ux.Error("rankforge init needs an interactive terminal. Edit the config file directly instead.")
		if path, err := config.Path(); err == nil {
			ux.Muted("  " + path)
		}
		return
	}

	// Seed the form with the current config so re-running init edits
	// rather than resets.
	cfg := config.Global
	if cfg == (config.RankforgeConfig{}) {
		cfg = config.DefaultConfig()
	}
	personality := "full"
	save := true

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Run directory").
				Description("Directory the benchmark harness writes run record JSON files into").
				Value(&cfg.Runs.Dir).
				Validate(required("run directory")),
			huh.NewInput().
				Title("Registry path").
				Description("Metric registry YAML; leave empty for the embedded registry").
				Value(&cfg.Registry.Path),
			huh.NewInput().
				Title("Archive path").
				Description("Local report archive location").
				Value(&cfg.Archive.Path).
				Validate(required("archive path")),
			huh.NewInput().
				Title("Server address").
				Description("Listen address for rankforge serve").
				Value(&cfg.Server.Addr).
				Validate(validateAddr),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("InfluxDB URL").
				Description("Leave as-is if you do not export to InfluxDB").
				Value(&cfg.Influx.URL),
			huh.NewInput().
				Title("InfluxDB organization").
				Value(&cfg.Influx.Org),
			huh.NewInput().
				Title("InfluxDB bucket").
				Value(&cfg.Influx.Bucket),
			huh.NewInput().
				Title("Token environment variable").
				Description("The API token is read from this variable, never stored in the config").
				Value(&cfg.Influx.TokenEnv).
				Validate(required("token environment variable")),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("GCS project ID").
				Description("Leave empty to skip Google Cloud Storage").
				Value(&cfg.GCS.ProjectID),
			huh.NewInput().
				Title("GCS bucket").
				Value(&cfg.GCS.BucketName),
			huh.NewInput().
				Title("Service account key path").
				Value(&cfg.GCS.SAKeyPath),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Output personality").
				Description("How chatty the CLI is; machine mode emits plain parseable lines").
				Options(huh.NewOptions("full", "standard", "minimal", "machine")...).
				Value(&personality),
			huh.NewConfirm().
				Title("Save this configuration?").
				Value(&save),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			ux.Warning("Setup aborted, nothing written.")
			return
		}
		slog.Error("Setup form failed", "error", err)
		return
	}
	if !save {
		ux.Warning("Nothing written.")
		return
	}

	if err := config.Write(cfg); err != nil {
		slog.Error("Failed to write the config", "error", err)
		return
	}
	config.Reset()

	path, _ := config.Path()
	ux.Success(fmt.Sprintf("Configuration written to %s", path))
	if personality != "full" {
		ux.Info(fmt.Sprintf("Set RANKFORGE_PERSONALITY=%s to make the %s style permanent.", personality, personality))
	}
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("the %s must not be empty", field)
		}
		return nil
	}
}

func validateAddr(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("the listen address must not be empty")
	}
	if !strings.Contains(s, ":") {
		return errors.New("the listen address must be host:port or :port")
	}
	return nil
}
