// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ExportOptions configures a restore from a snapshot.
type ExportOptions struct {
	// Destination is the directory files are restored into. Created
	// if missing.
	Destination string

	// Filter is a SQL LIKE pattern applied to relative paths. Empty
	// restores every entry.
	Filter string

	// Limit caps the number of restored entries. Zero means all.
	Limit int
}

// ExportFailure records one entry that could not be restored.
type ExportFailure struct {
	Path string
	Err  error
}

// ExportSummary reports the outcome of a restore. A run with failures
// is not an error at this level: every healthy entry is still
// restored, and the caller decides the exit status.
type ExportSummary struct {
	Restored int
	Bytes    int64
	Failed   []ExportFailure
	Duration time.Duration
}

// Export reconstructs files from the store into a destination
// directory tree. Each entry's object is fetched, size-verified
// against the entry's recorded original_size, and written verbatim to
// Destination/relative_path. A corrupt or missing object fails that
// entry alone; the restore continues with the rest.
func (s *Store) Export(ctx context.Context, options ExportOptions) (ExportSummary, error) {
	start := time.Now()

	if options.Destination == "" {
		return ExportSummary{}, fmt.Errorf("vault: export: destination is required")
	}
	if err := os.MkdirAll(options.Destination, 0o755); err != nil {
		return ExportSummary{}, fmt.Errorf("vault: export: creating destination: %w", err)
	}

	entries, err := s.ListEntries(ctx, ListOptions{Filter: options.Filter, Limit: options.Limit})
	if err != nil {
		return ExportSummary{}, fmt.Errorf("vault: export: %w", err)
	}

	summary := ExportSummary{}
	for _, entry := range entries {
		if err := s.exportEntry(ctx, options.Destination, entry); err != nil {
			summary.Failed = append(summary.Failed, ExportFailure{Path: entry.Path, Err: err})
			s.logger.Warn("entry not restored", "path", entry.Path, "error", err)
			continue
		}
		summary.Restored++
		summary.Bytes += entry.Size
	}

	summary.Duration = time.Since(start)
	s.logger.Info("export finished",
		"restored", summary.Restored,
		"failed", len(summary.Failed),
		"bytes", summary.Bytes,
		"duration", summary.Duration.Round(time.Millisecond),
	)
	return summary, nil
}

// exportEntry restores one file. Every check that can implicate
// stored data reports a CorruptionError so callers can distinguish
// damage from environmental failures.
func (s *Store) exportEntry(ctx context.Context, destination string, entry Entry) error {
	// Index paths are relative by contract. Refuse anything that
	// would write outside the destination tree.
	if !filepath.IsLocal(filepath.FromSlash(entry.Path)) {
		return fmt.Errorf("path escapes the destination directory")
	}

	data, err := s.Get(ctx, entry.ContentHash)
	if err != nil {
		return err
	}

	// Get verified the object against its own recorded size; this
	// verifies it against the index entry's.
	if int64(len(data)) != entry.Size {
		return &CorruptionError{
			Hash:   entry.ContentHash,
			Path:   entry.Path,
			Reason: fmt.Sprintf("object is %d bytes, index records %d", len(data), entry.Size),
		}
	}

	target := filepath.Join(destination, filepath.FromSlash(entry.Path))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	// Restore the recorded modification time. Best effort: the bytes
	// are already on disk and correct.
	modTime := entry.ModTime()
	if err := os.Chtimes(target, modTime, modTime); err != nil {
		s.logger.Warn("could not restore mtime", "path", entry.Path, "error", err)
	}
	return nil
}
