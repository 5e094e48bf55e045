// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	t.Setenv(EnvConfigPath, cfgPath)
	Reset()
	t.Cleanup(Reset)

	if err := Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := os.Stat(cfgPath); err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if Global.Influx.TokenEnv != "INFLUXDB_TOKEN" {
		t.Errorf("Influx.TokenEnv = %q, want INFLUXDB_TOKEN", Global.Influx.TokenEnv)
	}
	if Global.Analysis.Alpha != 0.05 {
		t.Errorf("Analysis.Alpha = %v, want 0.05", Global.Analysis.Alpha)
	}
}

func TestLoadExistingConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	doc := `
runs:
  dir: /data/runs
analysis:
  alpha: 0.01
  confidence: 0.99
  resamples: 500
influx:
  url: http://influx.internal:8086
  org: bench
  bucket: results
  token_env: BENCH_TOKEN
`
	if err := os.WriteFile(cfgPath, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigPath, cfgPath)
	Reset()
	t.Cleanup(Reset)

	if err := Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if Global.Runs.Dir != "/data/runs" {
		t.Errorf("Runs.Dir = %q", Global.Runs.Dir)
	}
	if Global.Analysis.Alpha != 0.01 || Global.Analysis.Resamples != 500 {
		t.Errorf("analysis overrides not applied: %+v", Global.Analysis)
	}
	if Global.Influx.TokenEnv != "BENCH_TOKEN" {
		t.Errorf("Influx.TokenEnv = %q", Global.Influx.TokenEnv)
	}
	// Fields absent from the file keep their defaults.
	if Global.Server.Addr != ":12310" {
		t.Errorf("Server.Addr = %q, want default :12310", Global.Server.Addr)
	}
}

func TestLoadOnlyOnce(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	t.Setenv(EnvConfigPath, cfgPath)
	Reset()
	t.Cleanup(Reset)

	if err := Load(); err != nil {
		t.Fatalf("first Load: %v", err)
	}
	// Corrupt the file; a second Load must not re-read it.
	if err := os.WriteFile(cfgPath, []byte("{not yaml"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := Load(); err != nil {
		t.Fatalf("second Load: %v", err)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "nested", "config.yaml")
	t.Setenv(EnvConfigPath, cfgPath)
	Reset()
	t.Cleanup(Reset)

	cfg := DefaultConfig()
	cfg.Runs.Dir = "/tmp/batches"
	cfg.GCS.BucketName = "rankforge-reports"
	if err := Write(cfg); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if err := Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if Global.Runs.Dir != "/tmp/batches" {
		t.Errorf("Runs.Dir = %q", Global.Runs.Dir)
	}
	if Global.GCS.BucketName != "rankforge-reports" {
		t.Errorf("GCS.BucketName = %q", Global.GCS.BucketName)
	}
}
