// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rankforge/rankforge/pkg/validation"
	"github.com/rankforge/rankforge/services/engine/analysis"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNotFound indicates no report exists under the requested id.
	ErrNotFound = errors.New("report not found")

	// ErrNilReport indicates Save was called with a nil report.
	ErrNilReport = errors.New("report must not be nil")
)

// -----------------------------------------------------------------------------
// Metrics
// -----------------------------------------------------------------------------

var (
	archiveOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rankforge_archive_operations_total",
		Help: "Total archive operations by type and status",
	}, []string{"operation", "status"})

	archiveReportBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rankforge_archive_report_size_bytes",
		Help:    "Serialized size of archived reports",
		Buckets: []float64{1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024},
	})
)

// -----------------------------------------------------------------------------
// Tracer
// -----------------------------------------------------------------------------

var archiveTracer = otel.Tracer("engine.archive")

// -----------------------------------------------------------------------------
// Logging Helpers
// -----------------------------------------------------------------------------

// loggerWithTrace returns a logger with trace context attached so archive
// log lines correlate with the spans around them.
func loggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}

// -----------------------------------------------------------------------------
// Store
// -----------------------------------------------------------------------------

// reportKeyPrefix namespaces archived reports within the database.
const reportKeyPrefix = "report:"

func reportKey(id string) []byte {
	return []byte(reportKeyPrefix + id)
}

// Store persists analysis reports as JSON in the archive database.
//
// Thread Safety: Safe for concurrent use; Badger serializes conflicting
// writes internally.
type Store struct {
	db     *DB
	logger *slog.Logger
}

// NewStore wraps an open database. A nil logger falls back to
// slog.Default().
func NewStore(db *DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}, nil
}

// OpenStore opens the archive database described by cfg and wraps it in a
// Store. Closing the store closes the database.
func OpenStore(cfg Config) (*Store, error) {
	db, err := OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	return NewStore(db, cfg.Logger)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying database for maintenance tooling.
func (s *Store) DB() *DB {
	return s.db
}

// Save writes the report under report:<id>, replacing any previous report
// with the same id.
func (s *Store) Save(ctx context.Context, report *analysis.Report) error {
	ctx, span := archiveTracer.Start(ctx, "archive.Save")
	defer span.End()

	if report == nil {
		archiveOperationsTotal.WithLabelValues("save", "error").Inc()
		return ErrNilReport
	}
	if err := validation.ValidateRunID(report.ID); err != nil {
		archiveOperationsTotal.WithLabelValues("save", "error").Inc()
		return fmt.Errorf("report id: %w", err)
	}
	span.SetAttributes(attribute.String("archive.report_id", report.ID))

	data, err := json.Marshal(report)
	if err != nil {
		archiveOperationsTotal.WithLabelValues("save", "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "marshal report")
		return fmt.Errorf("marshal report %s: %w", report.ID, err)
	}

	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(reportKey(report.ID), data)
	})
	if err != nil {
		archiveOperationsTotal.WithLabelValues("save", "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "write report")
		return fmt.Errorf("save report %s: %w", report.ID, err)
	}

	archiveOperationsTotal.WithLabelValues("save", "ok").Inc()
	archiveReportBytes.Observe(float64(len(data)))
	loggerWithTrace(ctx, s.logger).Info("report archived",
		slog.String("report_id", report.ID),
		slog.Int("bytes", len(data)))
	return nil
}

// Get loads one report by id. Returns ErrNotFound (wrapped with the id)
// when no report exists under it.
func (s *Store) Get(ctx context.Context, id string) (*analysis.Report, error) {
	ctx, span := archiveTracer.Start(ctx, "archive.Get",
		trace.WithAttributes(attribute.String("archive.report_id", id)))
	defer span.End()

	if err := validation.ValidateRunID(id); err != nil {
		archiveOperationsTotal.WithLabelValues("get", "error").Inc()
		return nil, fmt.Errorf("report id: %w", err)
	}

	var report analysis.Report
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(reportKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("report %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("read report %s: %w", id, err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &report)
		})
	})
	if err != nil {
		status := "error"
		if errors.Is(err, ErrNotFound) {
			status = "miss"
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, "read report")
		}
		archiveOperationsTotal.WithLabelValues("get", status).Inc()
		return nil, err
	}

	archiveOperationsTotal.WithLabelValues("get", "ok").Inc()
	return &report, nil
}

// List returns all archived reports, newest first by GeneratedAt.
//
// A report that no longer unmarshals is skipped with a warning rather than
// failing the whole listing; the archive stays usable around one corrupt
// record.
func (s *Store) List(ctx context.Context) ([]*analysis.Report, error) {
	ctx, span := archiveTracer.Start(ctx, "archive.List")
	defer span.End()

	var reports []*analysis.Report
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(reportKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key())

			var report analysis.Report
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &report)
			})
			if err != nil {
				loggerWithTrace(ctx, s.logger).Warn("skipping unreadable archive record",
					slog.String("key", key),
					slog.String("error", err.Error()))
				continue
			}
			reports = append(reports, &report)
		}
		return nil
	})
	if err != nil {
		archiveOperationsTotal.WithLabelValues("list", "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "list reports")
		return nil, fmt.Errorf("list reports: %w", err)
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].GeneratedAt.After(reports[j].GeneratedAt)
	})

	archiveOperationsTotal.WithLabelValues("list", "ok").Inc()
	span.SetAttributes(attribute.Int("archive.reports", len(reports)))
	return reports, nil
}

// Delete removes one report by id. Returns ErrNotFound (wrapped with the
// id) when no report exists under it, so callers can distinguish a no-op
// from a removal.
func (s *Store) Delete(ctx context.Context, id string) error {
	ctx, span := archiveTracer.Start(ctx, "archive.Delete",
		trace.WithAttributes(attribute.String("archive.report_id", id)))
	defer span.End()

	if err := validation.ValidateRunID(id); err != nil {
		archiveOperationsTotal.WithLabelValues("delete", "error").Inc()
		return fmt.Errorf("report id: %w", err)
	}

	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		key := reportKey(id)
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("report %s: %w", id, ErrNotFound)
		} else if err != nil {
			return fmt.Errorf("read report %s: %w", id, err)
		}
		return txn.Delete(key)
	})
	if err != nil {
		status := "error"
		if errors.Is(err, ErrNotFound) {
			status = "miss"
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, "delete report")
		}
		archiveOperationsTotal.WithLabelValues("delete", status).Inc()
		return err
	}

	archiveOperationsTotal.WithLabelValues("delete", "ok").Inc()
	loggerWithTrace(ctx, s.logger).Info("report deleted", slog.String("report_id", id))
	return nil
}
