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
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/rankforge/rankforge/cmd/rankforge/config"
	"github.com/rankforge/rankforge/cmd/rankforge/gcs"
	"github.com/rankforge/rankforge/pkg/ux"
	"github.com/rankforge/rankforge/services/engine/export"
	"github.com/spf13/cobra"
)

func runExportInflux(cmd *cobra.Command, _ []string) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// 1. Resolve the report
	report, err := loadReportArg(ctx, exportReportPath, exportReportID)
	if err != nil {
		ux.Error(err.Error())
		return
	}

	// 2. Read the API token into the secure enclave
	tokenEnv := config.Global.Influx.TokenEnv
	if tokenEnv == "" {
		tokenEnv = "INFLUXDB_TOKEN"
	}
	tokenValue := os.Getenv(tokenEnv)
	if tokenValue == "" {
		ux.Error(fmt.Sprintf("%s not set. Export the InfluxDB API token before running.", tokenEnv))
		return
	}
	token, err := export.NewSecureToken(tokenValue)
	if err != nil {
		slog.Error("Failed to secure the API token", "error", err)
		return
	}
	defer export.PurgeSecureMemory()

	// 3. Build the exporter; the token is consumed here
	exporter, err := export.NewInfluxExporter(export.InfluxConfig{
		URL:    config.Global.Influx.URL,
		Org:    config.Global.Influx.Org,
		Bucket: config.Global.Influx.Bucket,
		Token:  token,
		Logger: slog.Default(),
	})
	if err != nil {
		slog.Error("Failed to build the Influx exporter", "error", err)
		return
	}
	defer exporter.Close()

	if err := exporter.Ping(ctx); err != nil {
		slog.Error("InfluxDB is unreachable", "url", config.Global.Influx.URL, "error", err)
		return
	}

	// 4. Push the points
	n, err := exporter.Export(ctx, report)
	if err != nil {
		slog.Error("Export failed", "report", report.ID, "error", err)
		return
	}
	ux.Success(fmt.Sprintf("Report %s exported: %d points to bucket %s",
		report.ID, n, config.Global.Influx.Bucket))

	// 5. Optionally count the points back
	if exportVerify {
		count, err := exporter.VerifyExport(ctx, report.ID)
		if err != nil {
			slog.Error("Verification query failed", "error", err)
			return
		}
		if count < int64(n) {
			ux.Warning(fmt.Sprintf("Verification counted %d of %d points; the bucket may be lagging.", count, n))
			return
		}
		ux.Success(fmt.Sprintf("Verified %d points in the bucket", count))
	}
}

func runExportCSV(cmd *cobra.Command, _ []string) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	report, err := loadReportArg(ctx, exportReportPath, exportReportID)
	if err != nil {
		ux.Error(err.Error())
		return
	}

	// Aggregates and costs go to sibling files: rankforge_{id}.csv and
	// rankforge_{id}_costs.csv.
	statsPath := resolveOutPath(exportOut, fmt.Sprintf("rankforge_%s.csv", report.ID))
	costsPath := strings.TrimSuffix(statsPath, ".csv") + "_costs.csv"

	if err := writeCSVFile(statsPath, func(f *os.File) error {
		return export.WriteCSV(f, report)
	}); err != nil {
		slog.Error("Failed to write the aggregate CSV", "path", statsPath, "error", err)
		return
	}
	ux.Success(fmt.Sprintf("Aggregates written to %s", statsPath))

	if err := writeCSVFile(costsPath, func(f *os.File) error {
		return export.WriteCostCSV(f, report)
	}); err != nil {
		slog.Error("Failed to write the cost CSV", "path", costsPath, "error", err)
		return
	}
	ux.Success(fmt.Sprintf("Costs written to %s", costsPath))
}

func writeCSVFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func runGCSUpload(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	client, err := newGCSClient(ctx)
	if err != nil {
		ux.Error(err.Error())
		return
	}
	defer client.Close()

	localPath := expandHome(args[0])
	info, err := os.Stat(localPath)
	if err != nil {
		slog.Error("Cannot access the local path", "path", localPath, "error", err)
		return
	}

	if info.IsDir() {
		if err := client.UploadDir(ctx, localPath, gcsPrefix); err != nil {
			slog.Error("Directory upload failed", "error", err)
			return
		}
	} else {
		objectName := gcsObjectName(gcsPrefix, localPath)
		if err := client.UploadFile(ctx, localPath, objectName); err != nil {
			slog.Error("Upload failed", "error", err)
			return
		}
	}
	ux.Success(fmt.Sprintf("Uploaded to gs://%s/%s", client.BucketName, gcsPrefix))
}

func runGCSDownload(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if gcsPrefix == "" {
		ux.Error("Pass --prefix to select the run batch to download.")
		return
	}

	client, err := newGCSClient(ctx)
	if err != nil {
		ux.Error(err.Error())
		return
	}
	defer client.Close()

	destDir := expandHome(args[0])
	n, err := client.DownloadPrefix(ctx, gcsPrefix, destDir)
	if err != nil {
		slog.Error("Download failed", "error", err)
		return
	}
	ux.Success(fmt.Sprintf("Downloaded %d objects to %s", n, destDir))
}

func newGCSClient(ctx context.Context) (*gcs.Client, error) {
	gcsCfg := config.Global.GCS
	if gcsCfg.BucketName == "" || gcsCfg.SAKeyPath == "" {
		return nil, fmt.Errorf("GCS is not configured; set gcs.bucket_name and gcs.sa_key_path in the config (rankforge init)")
	}
	return gcs.NewClient(ctx, gcsCfg.ProjectID, gcsCfg.BucketName, expandHome(gcsCfg.SAKeyPath))
}

func gcsObjectName(prefix, localPath string) string {
	base := filepath.Base(localPath)
	if prefix == "" {
		return base
	}
	return strings.TrimSuffix(prefix, "/") + "/" + base
}
