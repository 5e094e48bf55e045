// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rankforge/rankforge/cmd/rankforge/config"
	"github.com/rankforge/rankforge/services/engine/server"
	"github.com/rankforge/rankforge/services/engine/telemetry"
	"github.com/spf13/cobra"
)

const serviceName = "rankforge-engine"

// version is stamped at build time via -ldflags.
var version = "dev"

func runServe(_ *cobra.Command, _ []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Telemetry providers
	otlpEndpoint := serveOTLPEndpoint
	if otlpEndpoint == "" {
		otlpEndpoint = config.Global.Server.OTLPEndpoint
	}
	telCfg := telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		OTLPEndpoint:   otlpEndpoint,
		Stdout:         serveStdoutTelemetry,
	}
	shutdownTracing, err := telemetry.InitTracing(ctx, telCfg)
	if err != nil {
		slog.Error("Failed to initialize tracing", "error", err)
		return
	}
	shutdownMetrics, err := telemetry.InitMetrics(ctx, telCfg)
	if err != nil {
		slog.Error("Failed to initialize metrics", "error", err)
		return
	}
	defer func() {
		// The serve context is already cancelled at this point; flush with
		// a fresh deadline.
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(flushCtx); err != nil {
			slog.Warn("Metrics shutdown failed", "error", err)
		}
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("Tracing shutdown failed", "error", err)
		}
	}()

	// 2. Registry
	reg, err := loadRegistry(ctx, serveRegistry)
	if err != nil {
		slog.Error("Failed to load the metric registry", "error", err)
		return
	}

	// 3. Report archive
	store, err := openArchive(serveDB)
	if err != nil {
		slog.Error("Failed to open the report archive", "error", err)
		return
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("Archive close failed", "error", err)
		}
	}()

	// 4. HTTP server
	srvCfg := server.DefaultConfig()
	if serveAddr != "" {
		srvCfg.Addr = serveAddr
	} else if config.Global.Server.Addr != "" {
		srvCfg.Addr = config.Global.Server.Addr
	}

	srv, err := server.New(srvCfg, reg, store,
		server.WithLogger(slog.Default()),
		server.WithMetrics(telemetry.NewMetrics(prometheus.DefaultRegisterer)),
	)
	if err != nil {
		slog.Error("Failed to build the server", "error", err)
		return
	}

	slog.Info("Serving the analysis API", "addr", srvCfg.Addr, "registry", reg.Source(), "archive", store.DB().Path())
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server exited with an error", "error", err)
		return
	}
	slog.Info("Server stopped")
}
