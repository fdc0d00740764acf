// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"

	"github.com/hoardlabs/hoard/lib/codec"
)

// Manifest is the summary record a compaction embeds in the snapshot
// it produces. Stored CBOR-encoded in the metadata table, it lets
// status output describe a snapshot without scanning its tables.
type Manifest struct {
	// CreatedAt is when the compaction ran.
	CreatedAt time.Time `cbor:"created_at"`

	// Codec is the payload codec name of the compacted store.
	Codec string `cbor:"codec"`

	ObjectCount int64 `cbor:"object_count"`
	EntryCount  int64 `cbor:"entry_count"`

	// LogicalBytes is the pre-dedup sum of entry sizes; StoredBytes
	// is what the payloads occupy after dedup and compression.
	LogicalBytes int64 `cbor:"logical_bytes"`
	StoredBytes  int64 `cbor:"stored_bytes"`

	// Groups holds entry counts by path group (first path segment by
	// default).
	Groups map[string]int64 `cbor:"groups,omitempty"`
}

// ReadManifest returns the compaction manifest recorded in a
// snapshot. found is false for build stores and for snapshots
// produced by tools that predate the manifest.
func (s *Store) ReadManifest(ctx context.Context) (Manifest, bool, error) {
	if !s.hasMeta {
		return Manifest{}, false, nil
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Manifest{}, false, fmt.Errorf("vault: read manifest: %w", err)
	}
	defer s.pool.Put(conn)

	value, found, err := metaValue(conn, metaKeyManifest)
	if err != nil {
		return Manifest{}, false, fmt.Errorf("vault: read manifest: %w", err)
	}
	if !found {
		return Manifest{}, false, nil
	}

	var manifest Manifest
	if err := codec.Unmarshal(value, &manifest); err != nil {
		return Manifest{}, false, fmt.Errorf("vault: decode manifest: %w", err)
	}
	return manifest, true, nil
}

// writeManifest records a manifest on the given connection. Used by
// compaction against the not-yet-published snapshot.
func writeManifest(conn *sqlite.Conn, manifest Manifest) error {
	data, err := codec.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return setMetaValue(conn, metaKeyManifest, data)
}
