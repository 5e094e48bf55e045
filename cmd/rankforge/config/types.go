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
)

type RankforgeConfig struct {
	// Runs: where run record batches live
	Runs RunsConfig `yaml:"runs"`

	// Registry: metric registry document to analyze against
	Registry RegistryConfig `yaml:"registry"`

	// Archive: local report archive (Badger)
	Archive ArchiveConfig `yaml:"archive"`

	// Server: HTTP API defaults for `rankforge serve`
	Server ServerConfig `yaml:"server"`

	// Analysis: statistical parameter defaults
	Analysis AnalysisConfig `yaml:"analysis"`

	// Influx: time-series export target
	Influx InfluxConfig `yaml:"influx"`

	// GCS: cloud archive for report artifacts and run batches
	GCS GCSConfig `yaml:"gcs"`

	// Logging: process logger settings
	Logging LoggingConfig `yaml:"logging"`
}

type RunsConfig struct {
	Dir string `yaml:"dir"` // e.g. ./runs
}

type RegistryConfig struct {
	// Path to a registry YAML. Empty means the embedded registry.
	Path string `yaml:"path"`
}

type ArchiveConfig struct {
	Path string `yaml:"path"` // e.g. ~/.rankforge/archive
}

type ServerConfig struct {
	Addr         string `yaml:"addr"`          // e.g. :12310
	OTLPEndpoint string `yaml:"otlp_endpoint"` // empty disables OTLP export
}

type AnalysisConfig struct {
	Alpha            float64 `yaml:"alpha"`
	Confidence       float64 `yaml:"confidence"`
	Resamples        int     `yaml:"resamples"`
	OutlierThreshold float64 `yaml:"outlier_threshold"`
}

type InfluxConfig struct {
	URL    string `yaml:"url"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`

	// TokenEnv names the environment variable holding the API token. The
	// token itself never lives in this file.
	TokenEnv string `yaml:"token_env"`
}

type LoggingConfig struct {
	// Dir receives the JSON log files alongside the stderr stream.
	// Empty disables file logging.
	Dir string `yaml:"dir"`

	// Level is the minimum level: debug, info, warn or error.
	Level string `yaml:"level"`
}

type GCSConfig struct {
	ProjectID  string `yaml:"project_id"`
	BucketName string `yaml:"bucket_name"`
	SAKeyPath  string `yaml:"sa_key_path"`
}

func DefaultConfig() RankforgeConfig {
	archivePath := "rankforge-archive"
	logDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		archivePath = filepath.Join(home, ".rankforge", "archive")
		logDir = filepath.Join(home, ".rankforge", "logs")
	}
	return RankforgeConfig{
		Runs:     RunsConfig{Dir: "./runs"},
		Registry: RegistryConfig{Path: ""},
		Archive:  ArchiveConfig{Path: archivePath},
		Server: ServerConfig{
			Addr: ":12310",
		},
		Analysis: AnalysisConfig{
			Alpha:            0.05,
			Confidence:       0.95,
			Resamples:        10000,
			OutlierThreshold: 3.0,
		},
		Influx: InfluxConfig{
			URL:      "http://localhost:8086",
			Org:      "rankforge",
			Bucket:   "benchmarks",
			TokenEnv: "INFLUXDB_TOKEN",
		},
		GCS: GCSConfig{},
		Logging: LoggingConfig{
			Dir:   logDir,
			Level: "info",
		},
	}
}
