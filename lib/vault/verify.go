// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// VerifyOptions controls verification depth.
type VerifyOptions struct {
	// Deep re-reads every object, decompresses it, and recomputes
	// its content hash. Without it, verification covers structure
	// only: database integrity, referential consistency, and
	// recorded sizes.
	Deep bool
}

// VerifyReport summarizes a verification pass. UnreferencedObjects is
// informational, not damage: re-ingesting a path with new content
// leaves the old object behind, and nothing prunes it.
type VerifyReport struct {
	ObjectCount     int64
	EntryCount      int64
	VerifiedObjects int64 // objects re-hashed during a deep pass

	UnreferencedObjects int64

	// DanglingEntries lists index paths whose referenced object is
	// missing from the object store.
	DanglingEntries []string

	// Problems holds corruption findings. Empty on a healthy store.
	Problems []error

	Duration time.Duration
}

// OK reports whether the store passed: no dangling references and no
// corruption findings.
func (r VerifyReport) OK() bool {
	return len(r.DanglingEntries) == 0 && len(r.Problems) == 0
}

// Verify checks a store or snapshot for damage. Structural checks run
// always; Deep additionally proves every payload still decodes to
// bytes matching its content hash. Findings accumulate in the report
// rather than aborting, so one bad object does not hide the rest.
func (s *Store) Verify(ctx context.Context, options VerifyOptions) (VerifyReport, error) {
	start := time.Now()
	var report VerifyReport

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return report, fmt.Errorf("vault: verify: %w", err)
	}
	defer s.pool.Put(conn)

	// Database-level integrity first: page corruption makes every
	// later answer suspect.
	integrity := ""
	err = sqlitex.ExecuteTransient(conn, "PRAGMA integrity_check", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			if integrity == "" {
				integrity = stmt.ColumnText(0)
			} else {
				integrity += "; " + stmt.ColumnText(0)
			}
			return nil
		},
	})
	if err != nil {
		return report, fmt.Errorf("vault: verify: integrity check: %w", err)
	}
	if integrity != "ok" {
		report.Problems = append(report.Problems,
			fmt.Errorf("database integrity check failed: %s", integrity))
	}

	err = sqlitex.Execute(conn, "SELECT COUNT(*) FROM object_store", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			report.ObjectCount = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return report, fmt.Errorf("vault: verify: object count: %w", err)
	}

	err = sqlitex.Execute(conn, "SELECT COUNT(*) FROM file_index", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			report.EntryCount = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return report, fmt.Errorf("vault: verify: entry count: %w", err)
	}

	err = sqlitex.Execute(conn,
		"SELECT relative_path FROM file_index WHERE content_hash NOT IN (SELECT content_hash FROM object_store) ORDER BY relative_path",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				report.DanglingEntries = append(report.DanglingEntries, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		return report, fmt.Errorf("vault: verify: dangling entries: %w", err)
	}

	err = sqlitex.Execute(conn,
		"SELECT COUNT(*) FROM object_store WHERE content_hash NOT IN (SELECT content_hash FROM file_index)",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				report.UnreferencedObjects = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return report, fmt.Errorf("vault: verify: unreferenced objects: %w", err)
	}

	// An entry and its object must agree on the original size; they
	// are written together at ingest.
	err = sqlitex.Execute(conn,
		`SELECT f.relative_path, f.content_hash, f.original_size, o.original_size
		 FROM file_index f JOIN object_store o ON f.content_hash = o.content_hash
		 WHERE f.original_size != o.original_size`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				hash, err := ParseHash(stmt.ColumnText(1))
				if err != nil {
					return err
				}
				report.Problems = append(report.Problems, &CorruptionError{
					Hash: hash,
					Path: stmt.ColumnText(0),
					Reason: fmt.Sprintf("index records %d bytes, object records %d",
						stmt.ColumnInt64(2), stmt.ColumnInt64(3)),
				})
				return nil
			},
		})
	if err != nil {
		return report, fmt.Errorf("vault: verify: size consistency: %w", err)
	}

	if options.Deep {
		if err := s.verifyDeep(ctx, conn, &report); err != nil {
			return report, err
		}
	}

	report.Duration = time.Since(start)
	s.logger.Info("verification finished",
		"objects", report.ObjectCount,
		"entries", report.EntryCount,
		"problems", len(report.Problems),
		"dangling", len(report.DanglingEntries),
		"deep", options.Deep,
	)
	return report, nil
}

// verifyDeep re-hashes every object. Hashes are listed up front so
// payloads stream through one at a time instead of pinning the whole
// store in a single result set.
func (s *Store) verifyDeep(ctx context.Context, conn *sqlite.Conn, report *VerifyReport) error {
	var hashes []Hash
	err := sqlitex.Execute(conn, "SELECT content_hash FROM object_store ORDER BY content_hash", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			hash, err := ParseHash(stmt.ColumnText(0))
			if err != nil {
				report.Problems = append(report.Problems,
					fmt.Errorf("unparseable content hash %q: %w", stmt.ColumnText(0), err))
				return nil
			}
			hashes = append(hashes, hash)
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("vault: verify: list objects: %w", err)
	}

	for _, hash := range hashes {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("vault: verify: %w", err)
		}

		data, err := s.getObject(conn, hash)
		if err != nil {
			report.Problems = append(report.Problems, err)
			continue
		}
		if computed := HashContent(data); computed != hash {
			report.Problems = append(report.Problems, &CorruptionError{
				Hash:   hash,
				Reason: fmt.Sprintf("payload re-hashes to %s", FormatHash(computed)),
			})
			continue
		}
		report.VerifiedObjects++
	}
	return nil
}
