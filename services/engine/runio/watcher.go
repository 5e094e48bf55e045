// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package runio

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Change represents one run-record file change.
type Change struct {
	// Path is the path of the changed record file.
	Path string

	// Op is the type of change.
	Op Op

	// Time is when the change was detected.
	Time time.Time
}

// Op represents the type of file operation.
type Op int

const (
	// OpCreate indicates a record file was created.
	OpCreate Op = iota

	// OpWrite indicates a record file was modified.
	OpWrite

	// OpRemove indicates a record file was deleted.
	OpRemove

	// OpRename indicates a record file was renamed.
	OpRename
)

// String returns the string representation of the operation.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// BatchHandler is called when debounced changes are ready.
type BatchHandler func(changes []Change)

// Watcher watches a run directory for record changes with debouncing.
//
// # Description
//
// Watches the run directory tree and batches record-file changes using a
// debounce window. Run harnesses drop result files in bursts when a batch of
// runs completes; debouncing turns each burst into a single handler call so
// re-analysis happens once, not once per file.
//
// # Debouncing
//
// Changes are collected into a buffer. When the debounce window expires
// without new changes, all collected changes are deduplicated and sent to
// the handler.
//
// # Thread Safety
//
// Safe for concurrent use. The handler is called from a single goroutine.
type Watcher struct {
	root          string
	watcher       *fsnotify.Watcher
	handler       BatchHandler
	debounce      time.Duration
	match         string
	ignorePattern []string

	changes  chan Change
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	watching bool
}

// WatcherOptions configures the Watcher.
type WatcherOptions struct {
	// DebounceWindow is how long to wait for more changes before triggering.
	// Default: 500ms, wide enough to group one completed run batch.
	DebounceWindow time.Duration

	// Match is the glob a file name must match to count as a run record.
	// Default: "*.json"
	Match string

	// IgnorePatterns are glob patterns for files/directories to ignore.
	// Default: [".git", "*.tmp", "*.partial", "*.swp"]
	IgnorePatterns []string

	// BufferSize is the size of the change buffer channel.
	// Default: 1000
	BufferSize int
}

// DefaultWatcherOptions returns sensible defaults for run directories.
func DefaultWatcherOptions() WatcherOptions {
	return WatcherOptions{
		DebounceWindow: 500 * time.Millisecond,
		Match:          "*.json",
		IgnorePatterns: []string{".git", "*.tmp", "*.partial", "*.swp"},
		BufferSize:     1000,
	}
}

// NewWatcher creates a watcher for the given run directory.
//
// # Inputs
//
//   - root: Path of the run directory to watch.
//   - handler: Function called with batched changes after debounce.
//   - opts: Optional configuration (nil uses defaults).
//
// # Outputs
//
//   - *Watcher: Ready-to-use watcher (call Start to begin watching).
//   - error: Non-nil if the watcher could not be created.
func NewWatcher(root string, handler BatchHandler, opts *WatcherOptions) (*Watcher, error) {
	if opts == nil {
		defaults := DefaultWatcherOptions()
		opts = &defaults
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		root:          root,
		watcher:       watcher,
		handler:       handler,
		debounce:      opts.DebounceWindow,
		match:         opts.Match,
		ignorePattern: opts.IgnorePatterns,
		changes:       make(chan Change, opts.BufferSize),
		done:          make(chan struct{}),
	}, nil
}

// Start begins watching for record changes.
//
// # Description
//
// Recursively watches the run directory and all subdirectories. Directories
// created while watching are added automatically, so per-framework
// subdirectories appearing mid-benchmark are picked up.
//
// Spawns two goroutines, the event processor and the debouncer; both exit
// when Stop is called or the context is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil // Already watching
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)

	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching returns true if the watcher is currently active.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

// addRecursive adds a directory and all subdirectories to the watch list.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Ignore errors, continue walking
		}

		if !d.IsDir() {
			return nil
		}

		if w.shouldIgnore(path) {
			return filepath.SkipDir
		}

		return w.watcher.Add(path)
	})
}

// shouldIgnore checks if a path matches any ignore pattern.
func (w *Watcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)

	for _, pattern := range w.ignorePattern {
		if base == pattern {
			return true
		}

		matched, _ := filepath.Match(pattern, base)
		if matched {
			return true
		}
	}

	return false
}

// isRecord checks if a path names a run record file.
func (w *Watcher) isRecord(path string) bool {
	matched, _ := filepath.Match(w.match, filepath.Base(path))
	return matched
}

// processEvents converts fsnotify events to Changes and sends them to the
// debounce channel.
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if w.shouldIgnore(event.Name) {
				continue
			}

			// New directories join the watch list; everything else must
			// look like a run record to count.
			if event.Has(fsnotify.Create) {
				if isDir, err := pathIsDir(event.Name); err == nil && isDir {
					if err := w.watcher.Add(event.Name); err != nil {
						slog.Warn("failed to watch new directory",
							slog.String("path", event.Name),
							slog.String("error", err.Error()))
					}
					continue
				}
			}

			if !w.isRecord(event.Name) {
				continue
			}

			change := Change{
				Path: event.Name,
				Time: time.Now(),
				Op:   convertOp(event.Op),
			}

			// Non-blocking send; the debouncer should keep up
			select {
			case w.changes <- change:
			default:
				slog.Warn("change buffer full, dropping event",
					slog.String("path", event.Name))
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

// pathIsDir returns true if path is a directory.
func pathIsDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// convertOp converts fsnotify.Op to Op.
func convertOp(op fsnotify.Op) Op {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate
	case op.Has(fsnotify.Write):
		return OpWrite
	case op.Has(fsnotify.Remove):
		return OpRemove
	case op.Has(fsnotify.Rename):
		return OpRename
	default:
		return OpWrite
	}
}

// debounceLoop batches changes and calls the handler after the debounce
// window expires.
func (w *Watcher) debounceLoop(ctx context.Context) {
	var batch []Change
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) > 0 {
			deduped := dedupeChanges(batch)
			if len(deduped) > 0 && w.handler != nil {
				w.handler(deduped)
			}
			batch = batch[:0]
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case change := <-w.changes:
			batch = append(batch, change)

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC:
			flush()
		}
	}
}

// dedupeChanges keeps the most recent change per path, preserving first-seen
// order.
func dedupeChanges(changes []Change) []Change {
	seen := make(map[string]int) // path -> index in result
	result := make([]Change, 0, len(changes))

	for _, change := range changes {
		if idx, exists := seen[change.Path]; exists {
			result[idx] = change
		} else {
			seen[change.Path] = len(result)
			result = append(result, change)
		}
	}

	return result
}
