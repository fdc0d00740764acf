// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// populateStore ingests a small tree with one duplicated content
// across two paths. Returns path -> content.
func populateStore(t *testing.T, store *Store) map[string][]byte {
	t.Helper()
	shared := []byte(strings.Repeat("date,value\n2024-01-01,42\n", 50))
	files := map[string][]byte{
		"prices/20240101_open.csv":  shared,
		"prices/20240102_open.csv":  []byte(strings.Repeat("date,value\n2024-01-02,43\n", 50)),
		"volumes/20240101_vol.csv":  shared,
		"volumes/20240102_vol.csv":  []byte(strings.Repeat("date,value\n2024-01-02,9000\n", 50)),
		"reference/instruments.csv": []byte("symbol,name\nABC,Alphabet Soup\n"),
	}
	for path, content := range files {
		mustWriteFile(t, store, path, content, CodecZstd)
	}
	return files
}

func TestCompactProducesSnapshot(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(Config{Path: filepath.Join(dir, "build.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	files := populateStore(t, store)

	snapshotPath := filepath.Join(dir, "snapshot.db")
	summary, err := store.Compact(context.Background(), CompactOptions{OutputPath: snapshotPath})
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}

	if summary.EntryCount != 5 {
		t.Errorf("EntryCount = %d, want 5", summary.EntryCount)
	}
	// Two paths share one object.
	if summary.ObjectCount != 4 {
		t.Errorf("ObjectCount = %d, want 4", summary.ObjectCount)
	}
	if summary.SnapshotPath != snapshotPath {
		t.Errorf("SnapshotPath = %q, want %q", summary.SnapshotPath, snapshotPath)
	}
	if summary.SnapshotBytes <= 0 {
		t.Errorf("SnapshotBytes = %d, want > 0", summary.SnapshotBytes)
	}

	// The snapshot is a self-contained file: no WAL sidecars, no
	// leftover temp files from the build.
	for _, sidecar := range []string{snapshotPath + "-wal", snapshotPath + "-shm"} {
		if _, err := os.Stat(sidecar); err == nil {
			t.Errorf("snapshot left sidecar %s behind", sidecar)
		}
	}
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, dirEntry := range dirEntries {
		if strings.Contains(dirEntry.Name(), ".tmp-") {
			t.Errorf("compaction left temp file %s behind", dirEntry.Name())
		}
	}

	// Every ingested file reads back byte for byte from the snapshot.
	snapshot, err := Open(Config{Path: snapshotPath, ReadOnly: true})
	if err != nil {
		t.Fatalf("opening snapshot: %v", err)
	}
	defer snapshot.Close()
	for path, content := range files {
		entry, err := snapshot.LookupEntry(context.Background(), path)
		if err != nil {
			t.Fatalf("LookupEntry(%q): %v", path, err)
		}
		data, err := snapshot.Get(context.Background(), entry.ContentHash)
		if err != nil {
			t.Fatalf("Get(%q): %v", path, err)
		}
		if !bytes.Equal(data, content) {
			t.Errorf("%s read back different bytes from the snapshot", path)
		}
	}
}

func TestCompactWritesManifest(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(Config{Path: filepath.Join(dir, "build.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	populateStore(t, store)

	snapshotPath := filepath.Join(dir, "snapshot.db")
	before := time.Now().Add(-time.Minute)
	summary, err := store.Compact(context.Background(), CompactOptions{OutputPath: snapshotPath})
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}

	snapshot, err := Open(Config{Path: snapshotPath, ReadOnly: true})
	if err != nil {
		t.Fatalf("opening snapshot: %v", err)
	}
	defer snapshot.Close()

	manifest, ok, err := snapshot.ReadManifest(context.Background())
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if !ok {
		t.Fatal("snapshot has no manifest")
	}
	if manifest.ObjectCount != summary.ObjectCount {
		t.Errorf("manifest ObjectCount = %d, want %d", manifest.ObjectCount, summary.ObjectCount)
	}
	if manifest.EntryCount != summary.EntryCount {
		t.Errorf("manifest EntryCount = %d, want %d", manifest.EntryCount, summary.EntryCount)
	}
	if manifest.Codec != CodecZstd.String() {
		t.Errorf("manifest Codec = %q, want %q", manifest.Codec, CodecZstd.String())
	}
	if manifest.CreatedAt.Before(before) || manifest.CreatedAt.After(time.Now().Add(time.Minute)) {
		t.Errorf("manifest CreatedAt = %v, outside the compaction window", manifest.CreatedAt)
	}
}

func TestCompactGroupsByTopDirectory(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(Config{Path: filepath.Join(dir, "build.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	populateStore(t, store)

	summary, err := store.Compact(context.Background(), CompactOptions{
		OutputPath: filepath.Join(dir, "snapshot.db"),
	})
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}

	want := map[string]int64{"prices": 2, "volumes": 2, "reference": 1}
	if len(summary.Groups) != len(want) {
		t.Fatalf("Groups = %v, want %v", summary.Groups, want)
	}
	for group, count := range want {
		if summary.Groups[group] != count {
			t.Errorf("Groups[%q] = %d, want %d", group, summary.Groups[group], count)
		}
	}
}

func TestCompactCustomGroupFunc(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(Config{Path: filepath.Join(dir, "build.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	populateStore(t, store)

	summary, err := store.Compact(context.Background(), CompactOptions{
		OutputPath: filepath.Join(dir, "snapshot.db"),
		GroupFunc: func(path string) string {
			return strings.TrimPrefix(filepath.Ext(path), ".")
		},
	})
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if summary.Groups["csv"] != 5 {
		t.Errorf("Groups[csv] = %d, want 5", summary.Groups["csv"])
	}
}

func TestCompactRefusesSamePath(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "build.db")
	store, err := Open(Config{Path: storePath})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if _, err := store.Compact(context.Background(), CompactOptions{OutputPath: storePath}); err == nil {
		t.Error("Compact onto the store itself should fail")
	}
	if _, err := store.Compact(context.Background(), CompactOptions{}); err == nil {
		t.Error("Compact without an output path should fail")
	}
}

func TestCompactReadOnlyStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "build.db")
	store, err := Open(Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	populateStore(t, store)
	store.Close()

	readOnly, err := Open(Config{Path: path, ReadOnly: true})
	if err != nil {
		t.Fatalf("read-only Open: %v", err)
	}
	defer readOnly.Close()

	_, err = readOnly.Compact(context.Background(), CompactOptions{
		OutputPath: filepath.Join(dir, "snapshot.db"),
	})
	if err == nil {
		t.Error("Compact on a read-only store should fail")
	}
}

func TestCompactReplacesExistingSnapshot(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(Config{Path: filepath.Join(dir, "build.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	populateStore(t, store)

	snapshotPath := filepath.Join(dir, "snapshot.db")
	if _, err := store.Compact(context.Background(), CompactOptions{OutputPath: snapshotPath}); err != nil {
		t.Fatalf("first Compact: %v", err)
	}

	mustWriteFile(t, store, "prices/20240103_open.csv", []byte("date,value\n2024-01-03,44\n"), CodecZstd)

	second, err := store.Compact(context.Background(), CompactOptions{OutputPath: snapshotPath})
	if err != nil {
		t.Fatalf("second Compact: %v", err)
	}
	if second.EntryCount != 6 {
		t.Errorf("EntryCount after replacement = %d, want 6", second.EntryCount)
	}

	snapshot, err := Open(Config{Path: snapshotPath, ReadOnly: true})
	if err != nil {
		t.Fatalf("opening replaced snapshot: %v", err)
	}
	defer snapshot.Close()
	if _, err := snapshot.LookupEntry(context.Background(), "prices/20240103_open.csv"); err != nil {
		t.Errorf("replaced snapshot is missing the new entry: %v", err)
	}
}

func TestCompactEmptyStore(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(Config{Path: filepath.Join(dir, "build.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	summary, err := store.Compact(context.Background(), CompactOptions{
		OutputPath: filepath.Join(dir, "snapshot.db"),
	})
	if err != nil {
		t.Fatalf("Compact of empty store: %v", err)
	}
	if summary.ObjectCount != 0 || summary.EntryCount != 0 {
		t.Errorf("empty store summary = %d objects, %d entries; want 0, 0",
			summary.ObjectCount, summary.EntryCount)
	}

	snapshot, err := Open(Config{Path: filepath.Join(dir, "snapshot.db"), ReadOnly: true})
	if err != nil {
		t.Fatalf("opening empty snapshot: %v", err)
	}
	snapshot.Close()
}
