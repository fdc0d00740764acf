// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Lock is an exclusive advisory lock over one build store, taken for
// the duration of an ingestion or compaction run. A store has exactly
// one logical writer at a time; the lock turns a concurrent second
// run into an immediate ErrLocked instead of undefined interleaving.
// Snapshot readers never take it.
type Lock struct {
	path string
	file *os.File
}

// AcquireLock takes an exclusive flock on <storePath>.lock, creating
// the lock file if needed. Returns ErrLocked without blocking when
// another process holds it. The lock is released by Release and by
// process exit.
func AcquireLock(storePath string) (*Lock, error) {
	lockPath := storePath + ".lock"
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("vault: open lock file: %w", err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("vault: %s: %w", storePath, ErrLocked)
		}
		return nil, fmt.Errorf("vault: lock %s: %w", lockPath, err)
	}

	return &Lock{path: lockPath, file: file}, nil
}

// Release drops the lock. The lock file itself stays on disk:
// removing it would race against a process that just opened it and is
// about to flock.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}

	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if err != nil {
		return fmt.Errorf("vault: unlock %s: %w", l.path, err)
	}
	return closeErr
}
