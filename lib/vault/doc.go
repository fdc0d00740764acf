// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package vault implements a content-addressed file vault in a single
// SQLite database: a deduplicated object store keyed by BLAKE3
// content hash, and a file index mapping relative paths to the hash
// of the bytes each path held when it was ingested.
//
// A vault exists in two forms. The build store is the mutable form:
// ingestion runs append objects and update index entries through
// write batches, each batch an IMMEDIATE transaction so an
// interrupted run loses at most its last uncommitted batch. A
// snapshot is the immutable form: Compact checkpoints the build
// store, copies it to a defragmented single file, verifies the copy,
// and publishes it with an atomic rename. Snapshots are opened
// read-only and serve Export, Verify, and mounting.
//
// Object payloads are optionally compressed. A store commits to one
// codec (gzip, zstd, or lz4) the first time a compressed object is
// written; per-object, incompressible content is stored raw and
// flagged by the is_compressed column. Hashes are always computed
// over the original bytes, so deduplication is independent of the
// codec.
//
// The two data tables, object_store and file_index, are a portable
// layout shared with older vault tooling; the vault_meta table is
// internal (schema version, codec, compaction manifest) and absent
// from stores those older tools wrote. Reads degrade gracefully when
// it is missing.
package vault
