// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the SQLite connection pool underneath
// hoard's build stores and snapshots.
//
// It wraps zombiezen.com/go/sqlite with production defaults: WAL
// journal mode, NORMAL synchronous for process-crash durability without
// fsync-per-commit overhead, memory-mapped I/O for read performance,
// and a busy timeout to handle write contention gracefully.
//
// The pool is built on zombiezen's sqlitex.Pool, which manages a
// fixed-size set of connections. Callers [Pool.Take] a connection,
// perform work, and [Pool.Put] it back. Connections are NOT safe for
// concurrent use — each goroutine must hold its own connection for the
// duration of its work.
//
// # Pragmas
//
// Every writable connection in the pool is initialized with:
//
//   - page_size=32768: set before the first write to a fresh database.
//     Large pages suit the object_store table, whose rows are
//     whole-file blobs.
//   - journal_mode=WAL: write-ahead logging for concurrent readers and
//     a single writer. Reads never block writes; writes never block
//     reads.
//   - synchronous=NORMAL: batched ingestion commits survive process
//     crashes. A run interrupted mid-batch rolls back to the last
//     committed batch boundary.
//   - busy_timeout=5000: wait up to 5 seconds for a write lock instead
//     of returning SQLITE_BUSY immediately.
//   - foreign_keys=ON: file_index.content_hash references
//     object_store; SQLite rejects a commit that would leave a
//     dangling reference.
//   - cache_size=-8192: 8 MB page cache per connection.
//   - mmap_size=268435456: 256 MB memory-mapped I/O for reads.
//   - temp_store=MEMORY: temporary tables and indexes in memory.
//
// Read-only pools (used for snapshots) skip the journal and sync
// pragmas, which cannot be applied without write access.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:     "/var/hoard/vault.sqlite",
//	    PoolSize: 4,
//	    Logger:   logger,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        // Create tables, apply additional pragmas, etc.
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
//
// # Design
//
// This package is intentionally thin: it applies standard pragmas and
// exposes the underlying zombiezen types directly. There is no attempt
// to abstract away SQLite's connection model or invent a query builder.
// The vault writes SQL, uses sqlitex.Execute for cached statements, and
// manages its batched transactions explicitly. The goal is a shared
// foundation (one dependency, one set of pragmas, one pool pattern)
// without an abstraction layer that fights SQLite's strengths.
package sqlitepool
