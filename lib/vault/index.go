// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"context"
	"fmt"
	"math"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Entry is one row of the file index: a slash-separated relative path
// bound to the content hash of the bytes the file held at ingest
// time. Multiple entries may share one content hash; that is the
// dedup the object store provides.
type Entry struct {
	Path string

	// ModifiedTime is the source file's mtime in Unix seconds with
	// the fractional part preserved, exactly as stat reported it.
	// Incremental ingestion compares this value for equality, so the
	// same conversion must be used on both sides — see EntryModTime.
	ModifiedTime float64

	// Size is the original byte count of the file's content.
	Size int64

	ContentHash Hash

	// PartitionKey groups entries for summaries (typically a date
	// extracted from the filename). Empty means none was extracted
	// and the column is NULL.
	PartitionKey string
}

// EntryModTime converts a file modification time to the REAL seconds
// value stored in the index.
func EntryModTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// ModTime converts the entry's stored seconds value back to a
// time.Time, for restoring timestamps on export.
func (e Entry) ModTime() time.Time {
	seconds := int64(e.ModifiedTime)
	nanos := int64(math.Round((e.ModifiedTime - float64(seconds)) * 1e9))
	return time.Unix(seconds, nanos)
}

// ListOptions narrows a file index listing.
type ListOptions struct {
	// Filter is a SQL LIKE pattern matched against relative_path
	// ("2024%", "%_raw.csv"). Empty matches every entry.
	Filter string

	// Limit caps the number of returned entries. Zero means no cap.
	Limit int
}

// LookupEntry returns the index entry for a relative path. Returns
// ErrEntryNotFound if the path has never been ingested.
func (s *Store) LookupEntry(ctx context.Context, path string) (Entry, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("vault: lookup entry: %w", err)
	}
	defer s.pool.Put(conn)
	return lookupEntry(conn, path)
}

// ListEntries returns index entries ordered by relative path, so
// exports and listings are deterministic.
func (s *Store) ListEntries(ctx context.Context, options ListOptions) ([]Entry, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("vault: list entries: %w", err)
	}
	defer s.pool.Put(conn)

	query := "SELECT relative_path, modified_time, original_size, content_hash, partition_key FROM file_index"
	var args []any
	if options.Filter != "" {
		query += " WHERE relative_path LIKE ?"
		args = append(args, options.Filter)
	}
	query += " ORDER BY relative_path"
	if options.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, options.Limit)
	}

	var entries []Entry
	err = sqlitex.ExecuteTransient(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			entry, err := scanEntry(stmt)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("vault: list entries: %w", err)
	}
	return entries, nil
}

func lookupEntry(conn *sqlite.Conn, path string) (Entry, error) {
	var entry Entry
	found := false
	err := sqlitex.Execute(conn,
		"SELECT relative_path, modified_time, original_size, content_hash, partition_key FROM file_index WHERE relative_path = ?",
		&sqlitex.ExecOptions{
			Args: []any{path},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				var err error
				entry, err = scanEntry(stmt)
				found = true
				return err
			},
		})
	if err != nil {
		return entry, fmt.Errorf("vault: lookup entry %q: %w", path, err)
	}
	if !found {
		return entry, fmt.Errorf("vault: lookup entry %q: %w", path, ErrEntryNotFound)
	}
	return entry, nil
}

// upsertEntry inserts or replaces one index row. Re-ingesting a path
// whose content changed repoints the entry at the new hash; the old
// object stays in the store.
func upsertEntry(conn *sqlite.Conn, entry Entry) error {
	var partitionKey any
	if entry.PartitionKey != "" {
		partitionKey = entry.PartitionKey
	}

	err := sqlitex.Execute(conn,
		`INSERT OR REPLACE INTO file_index
		 (relative_path, modified_time, original_size, content_hash, partition_key)
		 VALUES (?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{entry.Path, entry.ModifiedTime, entry.Size, FormatHash(entry.ContentHash), partitionKey},
		})
	if err != nil {
		return fmt.Errorf("vault: upsert entry %q: %w", entry.Path, err)
	}
	return nil
}

// scanEntry reads one Entry from a file_index row.
//
// Columns: relative_path(0), modified_time(1), original_size(2),
// content_hash(3), partition_key(4)
func scanEntry(stmt *sqlite.Stmt) (Entry, error) {
	entry := Entry{
		Path:         stmt.ColumnText(0),
		ModifiedTime: stmt.ColumnFloat(1),
		Size:         stmt.ColumnInt64(2),
	}

	hash, err := ParseHash(stmt.ColumnText(3))
	if err != nil {
		return entry, fmt.Errorf("index entry %q: %w", entry.Path, err)
	}
	entry.ContentHash = hash

	if !stmt.ColumnIsNull(4) {
		entry.PartitionKey = stmt.ColumnText(4)
	}
	return entry, nil
}
