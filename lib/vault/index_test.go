// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"context"
	"errors"
	"testing"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

func TestEntryRoundtrip(t *testing.T) {
	store := openTestStore(t)
	content := []byte("entry content")
	result := mustPut(t, store, content, CodecNone)

	want := Entry{
		Path:         "prices/20240315_close.csv",
		ModifiedTime: 1710499800.123456,
		Size:         int64(len(content)),
		ContentHash:  result.Hash,
		PartitionKey: "2024-03-15",
	}

	batch, err := store.BeginBatch(context.Background(), CodecNone)
	if err != nil {
		t.Fatalf("BeginBatch: %v", err)
	}
	defer batch.Close()
	if err := batch.UpsertEntry(want); err != nil {
		t.Fatalf("UpsertEntry: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := store.LookupEntry(context.Background(), want.Path)
	if err != nil {
		t.Fatalf("LookupEntry: %v", err)
	}
	if got != want {
		t.Errorf("LookupEntry = %+v, want %+v", got, want)
	}
}

func TestUpsertReplacesEntry(t *testing.T) {
	store := openTestStore(t)

	first := mustWriteFile(t, store, "data/report.csv", []byte("version one"), CodecNone)
	second := mustWriteFile(t, store, "data/report.csv", []byte("version two"), CodecNone)

	entry, err := store.LookupEntry(context.Background(), "data/report.csv")
	if err != nil {
		t.Fatalf("LookupEntry: %v", err)
	}
	if entry.ContentHash != second.ContentHash {
		t.Error("entry does not point at the latest content")
	}

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.EntryCount != 1 {
		t.Errorf("EntryCount = %d after update, want 1", stats.EntryCount)
	}
	// The superseded object stays in the store.
	if stats.ObjectCount != 2 {
		t.Errorf("ObjectCount = %d after update, want 2", stats.ObjectCount)
	}
	ok, err := store.Exists(context.Background(), first.ContentHash)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Error("superseded object was removed")
	}
}

func TestListEntriesSorted(t *testing.T) {
	store := openTestStore(t)
	paths := []string{
		"b/middle.csv",
		"a/first.csv",
		"c/last.csv",
	}
	for _, path := range paths {
		mustWriteFile(t, store, path, []byte(path), CodecNone)
	}

	entries, err := store.ListEntries(context.Background(), ListOptions{})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	want := []string{"a/first.csv", "b/middle.csv", "c/last.csv"}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, entry := range entries {
		if entry.Path != want[i] {
			t.Errorf("entries[%d].Path = %q, want %q", i, entry.Path, want[i])
		}
	}
}

func TestListEntriesFilter(t *testing.T) {
	store := openTestStore(t)
	paths := []string{
		"prices/20240101_raw.csv",
		"prices/20240102_raw.csv",
		"volumes/20240101_raw.csv",
		"prices/readme.txt",
	}
	for _, path := range paths {
		mustWriteFile(t, store, path, []byte(path), CodecNone)
	}

	tests := []struct {
		name   string
		filter string
		want   []string
	}{
		{
			name:   "prefix",
			filter: "prices/%",
			want:   []string{"prices/20240101_raw.csv", "prices/20240102_raw.csv", "prices/readme.txt"},
		},
		{
			name:   "suffix",
			filter: "%_raw.csv",
			want:   []string{"prices/20240101_raw.csv", "prices/20240102_raw.csv", "volumes/20240101_raw.csv"},
		},
		{
			name:   "exact",
			filter: "prices/readme.txt",
			want:   []string{"prices/readme.txt"},
		},
		{
			name:   "no_match",
			filter: "missing/%",
			want:   nil,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			entries, err := store.ListEntries(context.Background(), ListOptions{Filter: test.filter})
			if err != nil {
				t.Fatalf("ListEntries: %v", err)
			}
			if len(entries) != len(test.want) {
				t.Fatalf("got %d entries, want %d", len(entries), len(test.want))
			}
			for i, entry := range entries {
				if entry.Path != test.want[i] {
					t.Errorf("entries[%d].Path = %q, want %q", i, entry.Path, test.want[i])
				}
			}
		})
	}
}

func TestListEntriesLimit(t *testing.T) {
	store := openTestStore(t)
	paths := []string{"a.csv", "b.csv", "c.csv", "d.csv"}
	for _, path := range paths {
		mustWriteFile(t, store, path, []byte(path), CodecNone)
	}

	entries, err := store.ListEntries(context.Background(), ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	// The limit applies after sorting, so the first paths win.
	if entries[0].Path != "a.csv" || entries[1].Path != "b.csv" {
		t.Errorf("limited list = %q, %q; want a.csv, b.csv", entries[0].Path, entries[1].Path)
	}
}

func TestLookupEntryMissing(t *testing.T) {
	store := openTestStore(t)
	_, err := store.LookupEntry(context.Background(), "never/written.csv")
	if !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("LookupEntry = %v, want ErrEntryNotFound", err)
	}
}

func TestEmptyPartitionKeyStoredAsNull(t *testing.T) {
	store := openTestStore(t)
	result := mustPut(t, store, []byte("unpartitioned"), CodecNone)

	batch, err := store.BeginBatch(context.Background(), CodecNone)
	if err != nil {
		t.Fatalf("BeginBatch: %v", err)
	}
	defer batch.Close()
	err = batch.UpsertEntry(Entry{
		Path:         "notes.txt",
		ModifiedTime: 1700000000,
		Size:         result.Size,
		ContentHash:  result.Hash,
	})
	if err != nil {
		t.Fatalf("UpsertEntry: %v", err)
	}
	if err := batch.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	conn, err := store.pool.Take(context.Background())
	if err != nil {
		t.Fatalf("taking connection: %v", err)
	}
	defer store.pool.Put(conn)

	var isNull bool
	err = sqlitex.Execute(conn,
		"SELECT partition_key IS NULL FROM file_index WHERE relative_path = ?",
		&sqlitex.ExecOptions{
			Args: []any{"notes.txt"},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				isNull = stmt.ColumnInt64(0) != 0
				return nil
			},
		})
	if err != nil {
		t.Fatalf("querying partition_key: %v", err)
	}
	if !isNull {
		t.Error("empty partition key was not stored as NULL")
	}

	entry, err := store.LookupEntry(context.Background(), "notes.txt")
	if err != nil {
		t.Fatalf("LookupEntry: %v", err)
	}
	if entry.PartitionKey != "" {
		t.Errorf("PartitionKey = %q, want empty", entry.PartitionKey)
	}
}

func TestEntryModTimeRoundtrip(t *testing.T) {
	want := time.Date(2024, 3, 15, 10, 30, 0, 123456789, time.UTC)

	entry := Entry{ModifiedTime: EntryModTime(want)}
	got := entry.ModTime()

	// Float64 seconds carry sub-microsecond precision at current
	// timestamps; the round trip must stay within that.
	diff := got.Sub(want)
	if diff < 0 {
		diff = -diff
	}
	if diff > time.Microsecond {
		t.Errorf("round trip drifted by %v", diff)
	}
}
