// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fuse mounts a vault snapshot as a read-only filesystem.
//
// Every file index entry appears as a regular file at its relative
// path below the mountpoint, with the size and modification time the
// index recorded at ingest time. Intermediate directories are derived
// from the path components. The tree is fixed when the filesystem is
// mounted; snapshots are immutable, so there is nothing to refresh.
//
// # Read Path
//
// On first open the file's object is fetched from the snapshot,
// decompressed and length-checked once, and held in memory for the
// lifetime of the inode. Reads are served from that buffer. The mount
// sets FOPEN_KEEP_CACHE, so after the first read the kernel page
// cache answers repeated reads without calling back into the
// filesystem at all.
//
// # Write Path
//
// Not implemented. The mount is read-only and all mutation attempts
// fail with EROFS. Changing a vault goes through ingestion and
// compaction, never through a mount.
package fuse
