// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestPutGetRoundtrip(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecGzip, CodecZstd, CodecLZ4} {
		t.Run(codec.String(), func(t *testing.T) {
			store := openTestStore(t)
			content := compressibleData()

			result := mustPut(t, store, content, codec)
			if result.Size != int64(len(content)) {
				t.Errorf("Size = %d, want %d", result.Size, len(content))
			}
			if result.Hash != HashContent(content) {
				t.Error("PutObject returned a different hash than HashContent")
			}
			if result.Deduplicated {
				t.Error("first put reported Deduplicated")
			}
			if codec != CodecNone && !result.Compressed {
				t.Errorf("compressible content stored raw under %v", codec)
			}

			data, err := store.Get(context.Background(), result.Hash)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !bytes.Equal(data, content) {
				t.Error("Get returned different bytes than were stored")
			}
		})
	}
}

func TestPutDeduplicates(t *testing.T) {
	store := openTestStore(t)
	content := []byte("identical content, stored twice")

	first := mustPut(t, store, content, CodecNone)
	second := mustPut(t, store, content, CodecNone)

	if first.Deduplicated {
		t.Error("first put reported Deduplicated")
	}
	if !second.Deduplicated {
		t.Error("second put of identical content did not deduplicate")
	}
	if second.Hash != first.Hash {
		t.Error("identical content produced different hashes")
	}

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.ObjectCount != 1 {
		t.Errorf("ObjectCount = %d after duplicate put, want 1", stats.ObjectCount)
	}
}

func TestPutIncompressibleStoredRaw(t *testing.T) {
	store := openTestStore(t)
	content := incompressibleData(4096)

	result := mustPut(t, store, content, CodecZstd)
	if result.Compressed {
		t.Error("incompressible content was stored compressed")
	}
	if result.StoredSize != result.Size {
		t.Errorf("StoredSize = %d, want %d for raw storage", result.StoredSize, result.Size)
	}

	data, err := store.Get(context.Background(), result.Hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("raw-stored content did not round-trip")
	}
}

func TestCompressionShrinksStoredSize(t *testing.T) {
	store := openTestStore(t)
	content := compressibleData()

	result := mustPut(t, store, content, CodecZstd)
	if !result.Compressed {
		t.Fatal("repetitive content was not compressed")
	}
	if result.StoredSize >= result.Size {
		t.Errorf("StoredSize = %d, want < %d", result.StoredSize, result.Size)
	}
}

func TestGetMissingObject(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get(context.Background(), HashContent([]byte("absent")))
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Get of missing object = %v, want ErrObjectNotFound", err)
	}
}

func TestExists(t *testing.T) {
	store := openTestStore(t)
	result := mustPut(t, store, []byte("present"), CodecNone)

	ok, err := store.Exists(context.Background(), result.Hash)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Error("Exists = false for a stored object")
	}

	ok, err = store.Exists(context.Background(), HashContent([]byte("absent")))
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Error("Exists = true for a missing object")
	}
}

func TestStatObject(t *testing.T) {
	store := openTestStore(t)
	content := compressibleData()
	result := mustPut(t, store, content, CodecGzip)

	info, err := store.StatObject(context.Background(), result.Hash)
	if err != nil {
		t.Fatalf("StatObject: %v", err)
	}
	if info.Hash != result.Hash {
		t.Error("StatObject returned a different hash")
	}
	if info.OriginalSize != int64(len(content)) {
		t.Errorf("OriginalSize = %d, want %d", info.OriginalSize, len(content))
	}
	if !info.Compressed {
		t.Error("StatObject reports Compressed = false for a compressed object")
	}
	if info.StoredSize != result.StoredSize {
		t.Errorf("StoredSize = %d, want %d", info.StoredSize, result.StoredSize)
	}

	_, err = store.StatObject(context.Background(), HashContent([]byte("absent")))
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("StatObject of missing object = %v, want ErrObjectNotFound", err)
	}
}

func TestGetDetectsSizeCorruption(t *testing.T) {
	store := openTestStore(t)
	result := mustPut(t, store, []byte("soon to be damaged"), CodecNone)

	// Simulate on-disk damage: the recorded size no longer matches
	// the payload.
	rawExec(t, store, "UPDATE object_store SET original_size = original_size + 7 WHERE content_hash = ?",
		FormatHash(result.Hash))

	_, err := store.Get(context.Background(), result.Hash)
	var corruption *CorruptionError
	if !errors.As(err, &corruption) {
		t.Fatalf("Get of damaged object = %v, want CorruptionError", err)
	}
	if corruption.Hash != result.Hash {
		t.Error("CorruptionError carries the wrong hash")
	}
}

func TestGetDetectsTruncatedCompressedPayload(t *testing.T) {
	store := openTestStore(t)
	content := compressibleData()
	result := mustPut(t, store, content, CodecGzip)
	if !result.Compressed {
		t.Fatal("test content was not compressed")
	}

	compressed, err := Compress(content, CodecGzip)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	rawExec(t, store, "UPDATE object_store SET payload = ? WHERE content_hash = ?",
		compressed[:len(compressed)/2], FormatHash(result.Hash))

	_, err = store.Get(context.Background(), result.Hash)
	var corruption *CorruptionError
	if !errors.As(err, &corruption) {
		t.Errorf("Get of truncated payload = %v, want CorruptionError", err)
	}
}
