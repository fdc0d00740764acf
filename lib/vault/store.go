// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/hoardlabs/hoard/lib/sqlitepool"
)

// Store is an open vault database: a content-addressed object store
// plus a file index, backed by a single SQLite file. A build store is
// opened writable and grows through ingestion batches; a snapshot is
// opened read-only and serves export, verification, and mounting.
//
// Store methods are safe for concurrent use. Writes go through
// [Store.BeginBatch], which holds one connection for the batch's
// lifetime; reads borrow connections from the pool per call.
type Store struct {
	pool     *sqlitepool.Pool
	logger   *slog.Logger
	path     string
	readOnly bool

	// hasMeta records whether the vault_meta table exists. Stores
	// written by older tools have only the two data tables; every
	// metadata read degrades to "not found" for them.
	hasMeta bool
}

// Config holds the parameters for opening a store.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist. Created on first writable open.
	Path string

	// ReadOnly opens the store without write access and fails if the
	// file does not exist. Use for snapshots.
	ReadOnly bool

	// PoolSize is the number of connections in the pool. Defaults to
	// 4 if zero or negative.
	PoolSize int

	// Logger receives operational messages. Defaults to a discard
	// logger.
	Logger *slog.Logger
}

// Internal keys of the vault_meta table.
const (
	metaKeySchemaVersion = "schema_version"
	metaKeyCodec         = "codec"
	metaKeyManifest      = "manifest"
)

// schemaVersion is the current store layout version. Bumped only for
// incompatible changes to the table shapes below.
const schemaVersion = "1"

// storeSchema creates the two data tables plus the internal metadata
// table. object_store and file_index are the portable vault layout;
// readers that predate vault_meta can still export every file.
const storeSchema = `
	CREATE TABLE IF NOT EXISTS object_store (
		content_hash  TEXT PRIMARY KEY,
		original_size INTEGER NOT NULL,
		is_compressed BOOLEAN NOT NULL DEFAULT 0,
		payload       BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS file_index (
		relative_path TEXT PRIMARY KEY,
		modified_time REAL NOT NULL,
		original_size INTEGER NOT NULL,
		content_hash  TEXT NOT NULL REFERENCES object_store(content_hash),
		partition_key TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_file_index_hash ON file_index(content_hash);
	CREATE INDEX IF NOT EXISTS idx_file_index_partition ON file_index(partition_key);

	CREATE TABLE IF NOT EXISTS vault_meta (
		key   TEXT PRIMARY KEY,
		value BLOB NOT NULL
	);
`

// Open opens a vault store, creating the database and its schema on
// first writable open. Read-only opens validate that the file carries
// the expected tables instead.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("vault: store path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		ReadOnly: cfg.ReadOnly,
		PoolSize: poolSize,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}

	store := &Store{
		pool:     pool,
		logger:   logger,
		path:     cfg.Path,
		readOnly: cfg.ReadOnly,
	}

	if cfg.ReadOnly {
		err = store.checkSchema()
	} else {
		err = store.initSchema()
	}
	if err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying connection pool. Blocks until all
// borrowed connections are returned.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Path returns the filesystem path of the store's database file.
func (s *Store) Path() string {
	return s.path
}

// ReadOnly reports whether the store was opened without write access.
func (s *Store) ReadOnly() bool {
	return s.readOnly
}

// initSchema creates missing tables and stamps the schema version.
// Opening an existing store with a different version fails rather
// than guessing at a migration.
func (s *Store) initSchema() error {
	conn, err := s.pool.Take(context.Background())
	if err != nil {
		return fmt.Errorf("vault: init schema: %w", err)
	}
	defer s.pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, storeSchema, nil); err != nil {
		return fmt.Errorf("vault: init schema: %w", err)
	}
	s.hasMeta = true

	version, found, err := metaValue(conn, metaKeySchemaVersion)
	if err != nil {
		return fmt.Errorf("vault: read schema version: %w", err)
	}
	if !found {
		if err := setMetaValue(conn, metaKeySchemaVersion, []byte(schemaVersion)); err != nil {
			return fmt.Errorf("vault: stamp schema version: %w", err)
		}
		return nil
	}
	if string(version) != schemaVersion {
		return fmt.Errorf("vault: store %s has schema version %s, this build supports %s",
			s.path, version, schemaVersion)
	}
	return nil
}

// checkSchema verifies a read-only store carries the two required
// tables, and records whether the optional metadata table is present.
func (s *Store) checkSchema() error {
	conn, err := s.pool.Take(context.Background())
	if err != nil {
		return fmt.Errorf("vault: check schema: %w", err)
	}
	defer s.pool.Put(conn)

	tables := make(map[string]bool)
	err = sqlitex.Execute(conn,
		"SELECT name FROM sqlite_master WHERE type = 'table'",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				tables[stmt.ColumnText(0)] = true
				return nil
			},
		})
	if err != nil {
		return fmt.Errorf("vault: check schema: %w", err)
	}

	for _, required := range []string{"object_store", "file_index"} {
		if !tables[required] {
			return fmt.Errorf("vault: %s is not a vault store: missing table %q", s.path, required)
		}
	}
	s.hasMeta = tables["vault_meta"]
	return nil
}

// metaValue reads one vault_meta row. found is false when the key is
// absent.
func metaValue(conn *sqlite.Conn, key string) (value []byte, found bool, err error) {
	err = sqlitex.Execute(conn,
		"SELECT value FROM vault_meta WHERE key = ?",
		&sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				value = make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, value)
				found = true
				return nil
			},
		})
	if err != nil {
		return nil, false, fmt.Errorf("reading meta key %q: %w", key, err)
	}
	return value, found, nil
}

// setMetaValue writes one vault_meta row, replacing any existing
// value.
func setMetaValue(conn *sqlite.Conn, key string, value []byte) error {
	err := sqlitex.Execute(conn,
		"INSERT OR REPLACE INTO vault_meta (key, value) VALUES (?, ?)",
		&sqlitex.ExecOptions{Args: []any{key, value}})
	if err != nil {
		return fmt.Errorf("writing meta key %q: %w", key, err)
	}
	return nil
}

// payloadCodec returns the codec used for compressed payloads in this
// store. Stores written before the metadata table existed compressed
// with gzip exclusively, so a missing codec entry means gzip.
func (s *Store) payloadCodec(conn *sqlite.Conn) (Codec, error) {
	if !s.hasMeta {
		return CodecGzip, nil
	}
	value, found, err := metaValue(conn, metaKeyCodec)
	if err != nil {
		return 0, err
	}
	if !found {
		return CodecGzip, nil
	}
	codec, err := ParseCodec(string(value))
	if err != nil {
		return 0, fmt.Errorf("store codec: %w", err)
	}
	return codec, nil
}

// PayloadCodec returns the codec compressed objects in this store are
// encoded with.
func (s *Store) PayloadCodec(ctx context.Context) (Codec, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("vault: payload codec: %w", err)
	}
	defer s.pool.Put(conn)
	return s.payloadCodec(conn)
}

// Stats summarizes a store's contents for status output. EntryBytes
// is the logical (pre-dedup) total; ObjectBytes is the deduplicated
// total; PayloadBytes is what the payloads occupy after compression.
type Stats struct {
	ObjectCount       int64
	ObjectBytes       int64
	PayloadBytes      int64
	EntryCount        int64
	EntryBytes        int64
	PartitionCount    int64
	DatabaseSizeBytes int64
	Codec             Codec
}

// Stats gathers counts and byte totals across both tables.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("vault: stats: %w", err)
	}
	defer s.pool.Put(conn)

	var stats Stats

	err = sqlitex.Execute(conn,
		"SELECT COUNT(*), COALESCE(SUM(original_size), 0), COALESCE(SUM(LENGTH(payload)), 0) FROM object_store",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.ObjectCount = stmt.ColumnInt64(0)
				stats.ObjectBytes = stmt.ColumnInt64(1)
				stats.PayloadBytes = stmt.ColumnInt64(2)
				return nil
			},
		})
	if err != nil {
		return stats, fmt.Errorf("vault: stats: object totals: %w", err)
	}

	err = sqlitex.Execute(conn,
		"SELECT COUNT(*), COALESCE(SUM(original_size), 0) FROM file_index",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.EntryCount = stmt.ColumnInt64(0)
				stats.EntryBytes = stmt.ColumnInt64(1)
				return nil
			},
		})
	if err != nil {
		return stats, fmt.Errorf("vault: stats: entry totals: %w", err)
	}

	err = sqlitex.Execute(conn,
		"SELECT COUNT(DISTINCT partition_key) FROM file_index WHERE partition_key IS NOT NULL",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.PartitionCount = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return stats, fmt.Errorf("vault: stats: partition count: %w", err)
	}

	// Database size via page_count * page_size.
	err = sqlitex.Execute(conn,
		"SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.DatabaseSizeBytes = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return stats, fmt.Errorf("vault: stats: database size: %w", err)
	}

	codec, err := s.payloadCodec(conn)
	if err != nil {
		return stats, fmt.Errorf("vault: stats: %w", err)
	}
	stats.Codec = codec

	return stats, nil
}
