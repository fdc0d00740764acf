// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides hoard's standard CBOR encoding configuration.
//
// Hoard uses two serialization formats with a clear boundary:
//
//   - JSON for external interfaces: CLI --json output and JSONC rule
//     files.
//   - CBOR for data embedded in store files: the compaction manifest a
//     snapshot carries in its metadata table.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every hoard package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes, so a manifest never churns between compactions of logically
// equal stores.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
package codec
