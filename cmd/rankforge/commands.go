// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log/slog"

	"github.com/rankforge/rankforge/cmd/rankforge/config"
	"github.com/rankforge/rankforge/pkg/logging"
	"github.com/rankforge/rankforge/pkg/ux"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	analyzeRuns             string
	analyzeRegistry         string
	analyzeAlpha            float64
	analyzeConfidence       float64
	analyzeResamples        int
	analyzeSeed             uint64
	analyzeOut              string
	analyzeArchive          bool
	analyzeCostModel        string
	analyzeOutlierThreshold float64
	watchRuns               string
	watchDebounce           string
	serveAddr               string
	serveDB                 string
	serveOTLPEndpoint       string
	serveRegistry           string
	serveStdoutTelemetry    bool
	costModelName           string
	costTokensIn            int64
	costTokensOut           int64
	costCachedTokens        int64
	costRuns                int
	exportReportPath        string
	exportReportID          string
	exportVerify            bool
	exportOut               string
	gcsPrefix               string
	personalityLevel        string // UX personality level (full/standard/minimal/machine)
	logLevel                string // Minimum log level (debug/info/warn/error)

	// appLogger is the process logger: stderr plus the JSON file fan-out
	// under logging.dir. Installed as the slog default in PersistentPreRun
	// so every slog call in the engine routes through it.
	appLogger *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "rankforge",
		Short: "A cli to benchmark and rank software-generation frameworks",
		Long: `Rankforge analyzes benchmark run records produced by competing
				software-generation frameworks: metric discovery, robust
				aggregation, non-parametric significance testing, and token
				cost accounting, driven by a metric registry document.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX personality from flag or environment
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}
			configErr := config.Load()

			// The process logger needs logging.dir from the config, so it
			// comes up second; the config warning is held until it exists.
			level := config.Global.Logging.Level
			if logLevel != "" {
				level = logLevel
			}
			appLogger = logging.New(logging.Config{
				Level:   logging.ParseLevel(level),
				LogDir:  config.Global.Logging.Dir,
				Service: "cli",
			})
			slog.SetDefault(appLogger.Slog())

			if configErr != nil {
				slog.Warn("Runtime config unavailable, using built-in defaults", "error", configErr)
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if appLogger != nil {
				if err := appLogger.Close(); err != nil {
					slog.Warn("Log file close failed", "error", err)
				}
			}
		},
	}

	// --- Analysis ---
	analyzeCmd = &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a directory of run records and produce a report",
		Run:   runAnalyze, // Defined in cmd_analyze.go
	}
	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Watch a run directory and re-analyze on changes",
		Run:   runWatch, // Defined in cmd_watch.go
	}

	// --- Server ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis HTTP API",
		Run:   runServe, // Defined in cmd_serve.go
	}

	// --- Registry ---
	registryCmd = &cobra.Command{
		Use:   "registry",
		Short: "Inspect and validate the metric registry",
	}
	registryMetricsCmd = &cobra.Command{
		Use:   "metrics",
		Short: "List the registered metric definitions",
		Run:   runRegistryMetrics, // Defined in cmd_registry.go
	}
	registryPricingCmd = &cobra.Command{
		Use:   "pricing",
		Short: "List the model pricing table",
		Run:   runRegistryPricing, // Defined in cmd_registry.go
	}
	registryValidateCmd = &cobra.Command{
		Use:   "validate [record.json]",
		Short: "Validate a run record's metrics against the registry",
		Args:  cobra.ExactArgs(1),
		Run:   runRegistryValidate, // Defined in cmd_registry.go
	}

	// --- Cost ---
	costCmd = &cobra.Command{
		Use:   "cost",
		Short: "Estimate token cost for a model and token counts",
		Run:   runCost, // Defined in cmd_cost.go
	}

	// --- Export ---
	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Export an analysis report to external systems",
	}
	exportInfluxCmd = &cobra.Command{
		Use:   "influx",
		Short: "Push a report's aggregates and costs to InfluxDB",
		Run:   runExportInflux, // Defined in cmd_export.go
	}
	exportCSVCmd = &cobra.Command{
		Use:   "csv",
		Short: "Write a report's aggregates and costs as CSV files",
		Run:   runExportCSV, // Defined in cmd_export.go
	}
	exportGCSCmd = &cobra.Command{
		Use:   "gcs",
		Short: "Move report artifacts and run batches through Google Cloud Storage",
	}
	gcsUploadCmd = &cobra.Command{
		Use:   "upload [local file or directory]",
		Short: "Upload a report artifact or run batch to GCS",
		Args:  cobra.ExactArgs(1),
		Run:   runGCSUpload, // Defined in cmd_export.go
	}
	gcsDownloadCmd = &cobra.Command{
		Use:   "download [destination directory]",
		Short: "Download a run batch from GCS by prefix",
		Args:  cobra.ExactArgs(1),
		Run:   runGCSDownload, // Defined in cmd_export.go
	}

	// --- Setup ---
	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Interactive first-run setup for the runtime config",
		Run:   runInit, // Defined in cmd_init.go
	}
)

// init runs when the Go program starts
func init() {
	// Global UX personality flag
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full (default), standard, minimal, or machine (scripting)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Minimum log level: debug, info, warn, or error (default: logging.level from config)")

	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVar(&analyzeRuns, "runs", "", "Directory of run record JSON files (default: runs.dir from config)")
	analyzeCmd.Flags().StringVar(&analyzeRegistry, "registry", "", "Registry YAML path (default: registry.path from config, else embedded)")
	analyzeCmd.Flags().Float64Var(&analyzeAlpha, "alpha", 0, "Significance level for statistical tests (default: config)")
	analyzeCmd.Flags().Float64Var(&analyzeConfidence, "confidence", 0, "Bootstrap confidence level (default: config)")
	analyzeCmd.Flags().IntVar(&analyzeResamples, "resamples", 0, "Bootstrap resample count (default: config)")
	analyzeCmd.Flags().Uint64Var(&analyzeSeed, "seed", 0, "Resampling seed for reproducible confidence intervals")
	analyzeCmd.Flags().StringVarP(&analyzeOut, "out", "o", "", "Write the JSON report to this file or directory")
	analyzeCmd.Flags().BoolVar(&analyzeArchive, "archive", false, "Save the report to the local archive")
	analyzeCmd.Flags().StringVar(&analyzeCostModel, "cost-model", "", "Pricing model for records that omit one")
	analyzeCmd.Flags().Float64Var(&analyzeOutlierThreshold, "outlier-threshold", 0, "Modified z-score outlier threshold (default: config)")

	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchRuns, "runs", "", "Directory of run record JSON files to watch")
	watchCmd.Flags().StringVar(&watchDebounce, "debounce", "", "Debounce window for filesystem events (e.g. 500ms, 2s)")
	watchCmd.Flags().StringVar(&analyzeRegistry, "registry", "", "Registry YAML path (default: registry.path from config, else embedded)")
	watchCmd.Flags().Uint64Var(&analyzeSeed, "seed", 0, "Resampling seed for reproducible confidence intervals")

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: server.addr from config)")
	serveCmd.Flags().StringVar(&serveDB, "db", "", "Report archive path (default: archive.path from config)")
	serveCmd.Flags().StringVar(&serveOTLPEndpoint, "otlp-endpoint", "", "OTLP gRPC collector endpoint for traces and metrics")
	serveCmd.Flags().StringVar(&serveRegistry, "registry", "", "Registry YAML path (default: registry.path from config, else embedded)")
	serveCmd.Flags().BoolVar(&serveStdoutTelemetry, "stdout-telemetry", false, "Pretty-print spans and metrics to stdout (development)")

	rootCmd.AddCommand(registryCmd)
	registryCmd.AddCommand(registryMetricsCmd)
	registryMetricsCmd.Flags().String("category", "", "Limit the listing to one category")
	registryCmd.AddCommand(registryPricingCmd)
	registryCmd.AddCommand(registryValidateCmd)
	registryCmd.PersistentFlags().StringVar(&analyzeRegistry, "registry", "", "Registry YAML path (default: registry.path from config, else embedded)")

	rootCmd.AddCommand(costCmd)
	costCmd.Flags().StringVar(&costModelName, "model", "", "Pricing model name from the registry")
	costCmd.Flags().Int64Var(&costTokensIn, "tokens-in", 0, "Input tokens per run")
	costCmd.Flags().Int64Var(&costTokensOut, "tokens-out", 0, "Output tokens per run")
	costCmd.Flags().Int64Var(&costCachedTokens, "cached", 0, "Cache-read tokens per run (subset of tokens-in)")
	costCmd.Flags().IntVar(&costRuns, "runs", 1, "Number of identical runs to project the cost over")
	costCmd.Flags().StringVar(&analyzeRegistry, "registry", "", "Registry YAML path (default: registry.path from config, else embedded)")

	rootCmd.AddCommand(exportCmd)
	exportCmd.PersistentFlags().StringVar(&exportReportPath, "report", "", "Report JSON file to export")
	exportCmd.PersistentFlags().StringVar(&exportReportID, "id", "", "Report ID to load from the local archive")
	exportCmd.AddCommand(exportInfluxCmd)
	exportInfluxCmd.Flags().BoolVar(&exportVerify, "verify", false, "Count the written points back after the export")
	exportCmd.AddCommand(exportCSVCmd)
	exportCSVCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file or directory (default: rankforge_{id}.csv)")
	exportCmd.AddCommand(exportGCSCmd)
	exportGCSCmd.PersistentFlags().StringVar(&gcsPrefix, "prefix", "", "Object prefix inside the GCS bucket")
	exportGCSCmd.AddCommand(gcsUploadCmd)
	exportGCSCmd.AddCommand(gcsDownloadCmd)

	rootCmd.AddCommand(initCmd)
}
