// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hoardlabs/hoard/lib/vault"
)

// timeRounding keeps printed durations readable.
const timeRounding = 10 * time.Millisecond

// openTarget opens whichever database the user named, read-only.
// Exactly one of storePath and snapshotPath must be set. Read-only
// mode fails on a missing file, so a mistyped path errors instead of
// creating an empty database.
func openTarget(storePath, snapshotPath string, logger *slog.Logger) (*vault.Store, error) {
	switch {
	case storePath != "" && snapshotPath != "":
		return nil, fmt.Errorf("--store and --snapshot are mutually exclusive")
	case storePath == "" && snapshotPath == "":
		return nil, fmt.Errorf("either --store or --snapshot is required")
	}

	path := storePath
	if path == "" {
		path = snapshotPath
	}
	return vault.Open(vault.Config{Path: path, ReadOnly: true, Logger: logger})
}

// formatSize returns a human-readable byte count.
func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(1<<30))
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
