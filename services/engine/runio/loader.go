// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package runio

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// maxConcurrentReads bounds parallel record reads in LoadDir. Run batches
// can reach thousands of files; unbounded reads would exhaust descriptors.
const maxConcurrentReads = 8

// LoadResult is the outcome of one directory load.
type LoadResult struct {
	// Records holds the successfully parsed records, ordered by source path.
	Records []Record

	// FilesConsidered is the number of .json files found under the
	// directory, including ones that later failed to parse.
	FilesConsidered int

	// Skipped lists the paths of files that failed to parse and were
	// dropped with a warning, ordered by path.
	Skipped []string
}

// LoadDir loads every run record under dir, recursively.
//
// The walk is lexical, so results are deterministic regardless of filesystem
// order. Files that fail to parse as JSON are skipped with a logged warning
// rather than failing the batch: one malformed record among hundreds must
// not block an analysis pass. Reads run concurrently, bounded by
// maxConcurrentReads.
func LoadDir(ctx context.Context, dir string) (*LoadResult, error) {
	paths, err := recordPaths(dir)
	if err != nil {
		return nil, err
	}

	// One slot per file, written by exactly one goroutine each; nil slots
	// mark skipped files.
	records := make([]*Record, len(paths))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReads)

	for i, path := range paths {
		i, path := i, path // Capture loop variables

		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}

			data, err := os.ReadFile(path)
			if err != nil {
				slog.Warn("skipping unreadable run record",
					slog.String("path", path),
					slog.String("error", err.Error()))
				return nil
			}

			rec, err := ParseRecord(data)
			if err != nil {
				slog.Warn("skipping unparseable run record",
					slog.String("path", path),
					slog.String("error", err.Error()))
				return nil
			}

			rec.SourcePath = path
			records[i] = &rec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading run records: %w", err)
	}

	result := &LoadResult{
		Records:         make([]Record, 0, len(paths)),
		FilesConsidered: len(paths),
		Skipped:         make([]string, 0),
	}
	for i, rec := range records {
		if rec == nil {
			result.Skipped = append(result.Skipped, paths[i])
			continue
		}
		result.Records = append(result.Records, *rec)
	}

	slog.Info("run records loaded",
		slog.String("dir", dir),
		slog.Int("records", len(result.Records)),
		slog.Int("skipped", len(result.Skipped)))

	return result, nil
}

// recordPaths walks dir and returns every .json file path in lexical order.
func recordPaths(dir string) ([]string, error) {
	var paths []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), ".json") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking run directory %s: %w", dir, err)
	}

	return paths, nil
}
