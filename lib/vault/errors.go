// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"errors"
	"fmt"
)

var (
	// ErrObjectNotFound is returned by Get and StatObject when no
	// object with the requested content hash exists in the store.
	ErrObjectNotFound = errors.New("vault: object not found")

	// ErrEntryNotFound is returned by LookupEntry when the file index
	// has no row for the requested relative path.
	ErrEntryNotFound = errors.New("vault: file entry not found")

	// ErrCodecMismatch is returned when a write requests a payload
	// codec different from the one already recorded for the store.
	// A store compresses with exactly one codec for its lifetime.
	ErrCodecMismatch = errors.New("vault: store codec mismatch")

	// ErrLocked is returned by AcquireLock when another process holds
	// the store's advisory lock.
	ErrLocked = errors.New("vault: store is locked by another process")
)

// CorruptionError reports stored data that disagrees with its recorded
// metadata: a payload whose decompressed size does not match
// original_size, a re-computed content hash that differs from the
// stored one, or an index entry referencing a missing object. Export
// and verification collect these per entry instead of aborting.
type CorruptionError struct {
	Hash   Hash
	Path   string // index path that referenced the object, if any
	Reason string
}

func (e *CorruptionError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("vault: corrupt object %s (path %q): %s",
			FormatHash(e.Hash), e.Path, e.Reason)
	}
	return fmt.Sprintf("vault: corrupt object %s: %s", FormatHash(e.Hash), e.Reason)
}
