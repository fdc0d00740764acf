// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// CompactOptions configures snapshot production.
type CompactOptions struct {
	// OutputPath is the final snapshot location. Publication is a
	// rename: on any failure the path is left exactly as it was.
	OutputPath string

	// GroupFunc maps a relative path to a summary group. Nil groups
	// by first path segment.
	GroupFunc func(path string) string
}

// CompactionSummary reports what a compaction wrote into a snapshot.
type CompactionSummary struct {
	SnapshotPath string
	ObjectCount  int64
	EntryCount   int64

	// LogicalBytes is the pre-dedup sum of entry sizes; StoredBytes
	// is the payload total after dedup and compression;
	// SnapshotBytes is the published file's size on disk.
	LogicalBytes  int64
	StoredBytes   int64
	SnapshotBytes int64

	// Groups holds entry counts keyed by GroupFunc's output.
	Groups map[string]int64

	Duration time.Duration
}

// Compact publishes a defragmented single-file snapshot of the store
// at OutputPath. The store must be quiescent: no batch may be open,
// and concurrent ingestion runs must be excluded by the store lock.
//
// The sequence is checkpoint, copy to a temporary file beside the
// target, integrity-check the copy, embed a manifest, then rename.
// The rename is the only step that touches OutputPath, so readers of
// a previous snapshot at that path never observe a partial file.
func (s *Store) Compact(ctx context.Context, options CompactOptions) (CompactionSummary, error) {
	start := time.Now()

	if options.OutputPath == "" {
		return CompactionSummary{}, fmt.Errorf("vault: compact: output path is required")
	}
	if s.readOnly {
		return CompactionSummary{}, fmt.Errorf("vault: compact: store %s is read-only", s.path)
	}
	if samePath(s.path, options.OutputPath) {
		return CompactionSummary{}, fmt.Errorf("vault: compact: output path equals the store path")
	}

	groupFunc := options.GroupFunc
	if groupFunc == nil {
		groupFunc = firstPathSegment
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return CompactionSummary{}, fmt.Errorf("vault: compact: %w", err)
	}
	defer s.pool.Put(conn)

	summary := CompactionSummary{
		SnapshotPath: options.OutputPath,
		Groups:       make(map[string]int64),
	}

	// Gather the summary from the quiescent store before copying; the
	// copy contains exactly the same rows.
	err = sqlitex.Execute(conn,
		"SELECT COUNT(*), COALESCE(SUM(LENGTH(payload)), 0) FROM object_store",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				summary.ObjectCount = stmt.ColumnInt64(0)
				summary.StoredBytes = stmt.ColumnInt64(1)
				return nil
			},
		})
	if err != nil {
		return summary, fmt.Errorf("vault: compact: object totals: %w", err)
	}

	err = sqlitex.Execute(conn,
		"SELECT relative_path, original_size FROM file_index",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				summary.EntryCount++
				summary.LogicalBytes += stmt.ColumnInt64(1)
				summary.Groups[groupFunc(stmt.ColumnText(0))]++
				return nil
			},
		})
	if err != nil {
		return summary, fmt.Errorf("vault: compact: entry totals: %w", err)
	}

	codec, err := s.payloadCodec(conn)
	if err != nil {
		return summary, fmt.Errorf("vault: compact: %w", err)
	}

	s.logger.Info("compaction started",
		"store", s.path,
		"output", options.OutputPath,
		"objects", summary.ObjectCount,
		"entries", summary.EntryCount,
	)

	// Fold the WAL into the database file so the copy sees every
	// committed write.
	if err := checkpointTruncate(conn); err != nil {
		return summary, fmt.Errorf("vault: compact: %w", err)
	}

	// VACUUM INTO refuses to write to an existing file, so the
	// temporary name must be fresh. It lives beside the target to
	// keep the final rename on one filesystem.
	var suffix [8]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return summary, fmt.Errorf("vault: compact: temp suffix: %w", err)
	}
	tempPath := fmt.Sprintf("%s.tmp-%x", options.OutputPath, suffix)

	// Discard the temporary file on any error path.
	success := false
	defer func() {
		if !success {
			os.Remove(tempPath)
		}
	}()

	err = sqlitex.ExecuteTransient(conn, "VACUUM INTO ?", &sqlitex.ExecOptions{
		Args: []any{tempPath},
	})
	if err != nil {
		return summary, fmt.Errorf("vault: compact: copy store: %w", err)
	}

	manifest := Manifest{
		CreatedAt:    time.Now().UTC(),
		Codec:        codec.String(),
		ObjectCount:  summary.ObjectCount,
		EntryCount:   summary.EntryCount,
		LogicalBytes: summary.LogicalBytes,
		StoredBytes:  summary.StoredBytes,
		Groups:       summary.Groups,
	}
	if err := finalizeSnapshot(tempPath, manifest); err != nil {
		return summary, fmt.Errorf("vault: compact: %w", err)
	}

	if err := syncFile(tempPath); err != nil {
		return summary, fmt.Errorf("vault: compact: %w", err)
	}

	// The commit point. Before it the target is untouched; after it
	// the new snapshot is fully visible.
	if err := os.Rename(tempPath, options.OutputPath); err != nil {
		return summary, fmt.Errorf("vault: compact: publishing snapshot: %w", err)
	}
	success = true

	info, err := os.Stat(options.OutputPath)
	if err != nil {
		return summary, fmt.Errorf("vault: compact: stat snapshot: %w", err)
	}
	summary.SnapshotBytes = info.Size()
	summary.Duration = time.Since(start)

	s.logger.Info("snapshot published",
		"path", options.OutputPath,
		"bytes", summary.SnapshotBytes,
		"duration", summary.Duration.Round(time.Millisecond),
	)
	return summary, nil
}

// checkpointTruncate folds the store's write-ahead log into the main
// database file and truncates the log. Fails if a reader blocks the
// checkpoint; the store is supposed to be quiescent here.
func checkpointTruncate(conn *sqlite.Conn) error {
	busy := int64(0)
	err := sqlitex.ExecuteTransient(conn, "PRAGMA wal_checkpoint(TRUNCATE)", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			busy = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if busy != 0 {
		return fmt.Errorf("checkpoint blocked by a concurrent reader")
	}
	return nil
}

// finalizeSnapshot verifies the freshly copied snapshot and embeds
// the compaction manifest. The file is opened directly rather than
// through the pool: pool connections switch databases to WAL mode,
// and a published snapshot must stay a single self-contained file.
func finalizeSnapshot(tempPath string, manifest Manifest) error {
	conn, err := sqlite.OpenConn(tempPath, sqlite.OpenReadWrite)
	if err != nil {
		return fmt.Errorf("open snapshot copy: %w", err)
	}
	defer conn.Close()

	result := ""
	err = sqlitex.ExecuteTransient(conn, "PRAGMA integrity_check", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			if result == "" {
				result = stmt.ColumnText(0)
			} else {
				result += "; " + stmt.ColumnText(0)
			}
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	dangling := int64(0)
	err = sqlitex.ExecuteTransient(conn,
		"SELECT COUNT(*) FROM file_index WHERE content_hash NOT IN (SELECT content_hash FROM object_store)",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				dangling = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return fmt.Errorf("reference check: %w", err)
	}
	if dangling != 0 {
		return fmt.Errorf("reference check failed: %d index entries reference missing objects", dangling)
	}

	if err := writeManifest(conn, manifest); err != nil {
		return fmt.Errorf("embed manifest: %w", err)
	}
	return nil
}

// syncFile flushes a file's contents to stable storage so the rename
// that follows publishes a durable snapshot.
func syncFile(path string) error {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open snapshot for sync: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	return file.Close()
}

// firstPathSegment is the default summary grouping: everything up to
// the first slash, or the whole path for top-level files.
func firstPathSegment(path string) string {
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}

// samePath reports whether two paths resolve to the same location.
// Used to refuse compacting a store onto itself.
func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}
