// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// PutResult describes the outcome of storing one object.
type PutResult struct {
	Hash Hash

	// Size is the original (uncompressed) byte count.
	Size int64

	// StoredSize is the byte count written to the payload column.
	// Zero when the put deduplicated against an existing object.
	StoredSize int64

	// Deduplicated is true when the content hash was already present
	// and nothing was written.
	Deduplicated bool

	// Compressed is true when the payload was stored compressed.
	// False for CodecNone and for incompressible content stored raw.
	Compressed bool
}

// ObjectInfo describes a stored object without its payload.
type ObjectInfo struct {
	Hash         Hash
	OriginalSize int64
	StoredSize   int64
	Compressed   bool
}

// Exists reports whether an object with the given content hash is
// present in the store.
func (s *Store) Exists(ctx context.Context, hash Hash) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("vault: exists: %w", err)
	}
	defer s.pool.Put(conn)
	return objectExists(conn, hash)
}

// Get returns the original bytes of the object with the given content
// hash, decompressing as needed. Returns ErrObjectNotFound if the
// hash is absent, and a CorruptionError if the stored payload does
// not decompress to exactly original_size bytes.
func (s *Store) Get(ctx context.Context, hash Hash) ([]byte, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("vault: get object: %w", err)
	}
	defer s.pool.Put(conn)
	return s.getObject(conn, hash)
}

// StatObject returns an object's metadata without reading its
// payload into memory. Returns ErrObjectNotFound if the hash is
// absent.
func (s *Store) StatObject(ctx context.Context, hash Hash) (ObjectInfo, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("vault: stat object: %w", err)
	}
	defer s.pool.Put(conn)

	info := ObjectInfo{Hash: hash}
	found := false
	err = sqlitex.Execute(conn,
		"SELECT original_size, is_compressed, LENGTH(payload) FROM object_store WHERE content_hash = ?",
		&sqlitex.ExecOptions{
			Args: []any{FormatHash(hash)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				info.OriginalSize = stmt.ColumnInt64(0)
				info.Compressed = stmt.ColumnInt(1) != 0
				info.StoredSize = stmt.ColumnInt64(2)
				found = true
				return nil
			},
		})
	if err != nil {
		return info, fmt.Errorf("vault: stat object %s: %w", FormatHash(hash), err)
	}
	if !found {
		return info, fmt.Errorf("vault: stat object %s: %w", FormatHash(hash), ErrObjectNotFound)
	}
	return info, nil
}

func objectExists(conn *sqlite.Conn, hash Hash) (bool, error) {
	exists := false
	err := sqlitex.Execute(conn,
		"SELECT 1 FROM object_store WHERE content_hash = ?",
		&sqlitex.ExecOptions{
			Args: []any{FormatHash(hash)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				exists = true
				return nil
			},
		})
	if err != nil {
		return false, fmt.Errorf("vault: object exists: %w", err)
	}
	return exists, nil
}

// putObject hashes data, deduplicates against existing objects, and
// inserts a new row when the content is novel. Compression failures
// of the incompressible kind fall back to storing the raw bytes; the
// per-object is_compressed column records which happened.
func putObject(conn *sqlite.Conn, data []byte, codec Codec) (PutResult, error) {
	hash := HashContent(data)
	result := PutResult{Hash: hash, Size: int64(len(data))}

	exists, err := objectExists(conn, hash)
	if err != nil {
		return result, err
	}
	if exists {
		result.Deduplicated = true
		return result, nil
	}

	payload := data
	compressed := false
	if codec != CodecNone {
		encoded, err := Compress(data, codec)
		switch {
		case err == nil:
			payload = encoded
			compressed = true
		case IsIncompressible(err):
			// Store the raw bytes. Reads key off is_compressed, so
			// raw and compressed payloads coexist in one store.
		default:
			return result, fmt.Errorf("vault: compress object %s: %w", FormatHash(hash), err)
		}
	}

	isCompressed := 0
	if compressed {
		isCompressed = 1
	}

	err = sqlitex.Execute(conn,
		"INSERT OR IGNORE INTO object_store (content_hash, original_size, is_compressed, payload) VALUES (?, ?, ?, ?)",
		&sqlitex.ExecOptions{
			Args: []any{FormatHash(hash), int64(len(data)), isCompressed, payload},
		})
	if err != nil {
		return result, fmt.Errorf("vault: insert object %s: %w", FormatHash(hash), err)
	}

	result.StoredSize = int64(len(payload))
	result.Compressed = compressed
	return result, nil
}

// getObject reads and decodes one object on the given connection.
func (s *Store) getObject(conn *sqlite.Conn, hash Hash) ([]byte, error) {
	var payload []byte
	var originalSize int64
	var compressed, found bool

	err := sqlitex.Execute(conn,
		"SELECT original_size, is_compressed, payload FROM object_store WHERE content_hash = ?",
		&sqlitex.ExecOptions{
			Args: []any{FormatHash(hash)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				originalSize = stmt.ColumnInt64(0)
				compressed = stmt.ColumnInt(1) != 0
				payload = make([]byte, stmt.ColumnLen(2))
				stmt.ColumnBytes(2, payload)
				found = true
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("vault: get object %s: %w", FormatHash(hash), err)
	}
	if !found {
		return nil, fmt.Errorf("vault: get object %s: %w", FormatHash(hash), ErrObjectNotFound)
	}

	if !compressed {
		if int64(len(payload)) != originalSize {
			return nil, &CorruptionError{
				Hash:   hash,
				Reason: fmt.Sprintf("raw payload is %d bytes, recorded size is %d", len(payload), originalSize),
			}
		}
		return payload, nil
	}

	codec, err := s.payloadCodec(conn)
	if err != nil {
		return nil, fmt.Errorf("vault: get object %s: %w", FormatHash(hash), err)
	}
	data, err := Decompress(payload, codec, int(originalSize))
	if err != nil {
		return nil, &CorruptionError{Hash: hash, Reason: err.Error()}
	}
	return data, nil
}
