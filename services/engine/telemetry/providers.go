// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Config controls provider bootstrap for the engine binaries.
type Config struct {
	// ServiceName is the resource service name. Required.
	ServiceName string

	// ServiceVersion is the resource service version.
	ServiceVersion string

	// OTLPEndpoint is the OTLP-gRPC collector address (host:port). When
	// empty, no OTLP exporter is created.
	OTLPEndpoint string

	// Stdout enables the stdout exporters for development when no
	// collector endpoint is configured.
	Stdout bool

	// MetricInterval is the export period for the stdout metric reader.
	// Default: 15s.
	MetricInterval time.Duration
}

// ShutdownFunc flushes and releases a provider. Safe to call once.
type ShutdownFunc func(context.Context) error

func nopShutdown(context.Context) error { return nil }

// InitTracing installs a global tracer provider per cfg.
//
// With an OTLP endpoint configured the spans go to a gRPC collector over
// an insecure channel (the collector is expected to be a local sidecar or
// in-cluster service); with Stdout set they are pretty-printed to stdout;
// with neither, the global provider stays the no-op default. W3C trace
// context and baggage propagation are installed in all cases where a
// provider is created.
func InitTracing(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	if cfg.ServiceName == "" {
		return nil, fmt.Errorf("%w: service name is required", ErrInvalidOTelConfig)
	}

	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch {
	case cfg.OTLPEndpoint != "":
		conn, dialErr := grpc.NewClient(cfg.OTLPEndpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			return nil, fmt.Errorf("dial otel collector %s: %w", cfg.OTLPEndpoint, dialErr)
		}
		exporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			return nil, fmt.Errorf("create otlp trace exporter: %w", err)
		}
	case cfg.Stdout:
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout trace exporter: %w", err)
		}
	default:
		return nopShutdown, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		))
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(exporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return traceProvider.Shutdown(ctx)
	}, nil
}

// InitMetrics installs a global meter provider per cfg.
//
// OTel instruments are always bridged into the default Prometheus
// registry, so sink metrics surface on the same /metrics endpoint as the
// package-level promauto collectors. With Stdout set a periodic stdout
// reader is added alongside.
func InitMetrics(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	if cfg.ServiceName == "" {
		return nil, fmt.Errorf("%w: service name is required", ErrInvalidOTelConfig)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		))
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	promExporter, err := otelprom.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus bridge: %w", err)
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExporter),
	}
	if cfg.Stdout {
		enc, encErr := stdoutmetric.New()
		if encErr != nil {
			return nil, fmt.Errorf("create stdout metric exporter: %w", encErr)
		}
		interval := cfg.MetricInterval
		if interval <= 0 {
			interval = 15 * time.Second
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(enc, sdkmetric.WithInterval(interval))))
	}

	meterProvider := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(meterProvider)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return meterProvider.Shutdown(ctx)
	}, nil
}
