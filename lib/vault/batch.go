// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"context"
	"errors"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Batch is an open write transaction against a build store. Writes
// become visible together at Commit; a batch closed without
// committing rolls back, leaving previously committed batches intact.
// That bounds the damage of an interrupted ingestion run to the
// current batch.
//
// A batch holds one write connection for its lifetime, so batches
// must not be nested. Reads through Batch methods see the batch's own
// uncommitted writes.
type Batch struct {
	store *Store
	conn  *sqlite.Conn
	end   func(*error)
	codec Codec
	done  bool
}

// errBatchAbandoned drives the rollback path of a batch that is
// closed without committing.
var errBatchAbandoned = errors.New("vault: batch abandoned")

// BeginBatch starts a write transaction. codec sets the payload codec
// for objects written through this batch: the first compressed write
// fixes the store's codec permanently, and a later batch requesting a
// different one fails with ErrCodecMismatch. CodecNone writes
// uncompressed objects and never conflicts.
func (s *Store) BeginBatch(ctx context.Context, codec Codec) (*Batch, error) {
	if s.readOnly {
		return nil, fmt.Errorf("vault: store %s is read-only", s.path)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("vault: begin batch: %w", err)
	}
	end, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		s.pool.Put(conn)
		return nil, fmt.Errorf("vault: begin batch: %w", err)
	}

	batch := &Batch{store: s, conn: conn, end: end, codec: codec}
	if codec != CodecNone {
		if err := batch.claimCodec(codec); err != nil {
			batch.Close()
			return nil, err
		}
	}
	return batch, nil
}

// claimCodec records the store codec on first compressed use, or
// verifies the request matches what a previous run recorded. The
// claim is part of the batch transaction: if the batch rolls back, an
// unclaimed store stays unclaimed.
func (b *Batch) claimCodec(codec Codec) error {
	value, found, err := metaValue(b.conn, metaKeyCodec)
	if err != nil {
		return fmt.Errorf("vault: read store codec: %w", err)
	}
	if !found {
		if err := setMetaValue(b.conn, metaKeyCodec, []byte(codec.String())); err != nil {
			return fmt.Errorf("vault: record store codec: %w", err)
		}
		return nil
	}

	existing, err := ParseCodec(string(value))
	if err != nil {
		return fmt.Errorf("vault: store codec: %w", err)
	}
	if existing != codec {
		return fmt.Errorf("vault: store compresses with %s, run requested %s: %w",
			existing, codec, ErrCodecMismatch)
	}
	return nil
}

// PutObject stores one object's content under the batch's codec. See
// putObject for dedup and incompressible-fallback behavior.
func (b *Batch) PutObject(data []byte) (PutResult, error) {
	if b.done {
		return PutResult{}, fmt.Errorf("vault: put object: batch already closed")
	}
	return putObject(b.conn, data, b.codec)
}

// UpsertEntry inserts or replaces one file index row. The referenced
// object must already exist (put it first in the same batch); the
// schema's foreign key enforces this.
func (b *Batch) UpsertEntry(entry Entry) error {
	if b.done {
		return fmt.Errorf("vault: upsert entry: batch already closed")
	}
	return upsertEntry(b.conn, entry)
}

// LookupEntry reads an index entry through the batch connection,
// seeing the batch's own uncommitted writes.
func (b *Batch) LookupEntry(path string) (Entry, error) {
	if b.done {
		return Entry{}, fmt.Errorf("vault: lookup entry: batch already closed")
	}
	return lookupEntry(b.conn, path)
}

// Commit makes the batch's writes durable and releases the write
// connection.
func (b *Batch) Commit() error {
	if b.done {
		return fmt.Errorf("vault: commit: batch already closed")
	}
	b.done = true

	var err error
	b.end(&err)
	b.store.pool.Put(b.conn)
	b.conn = nil

	if err != nil {
		return fmt.Errorf("vault: commit batch: %w", err)
	}
	return nil
}

// Close rolls back the batch if it has not been committed. Safe on a
// nil receiver and after Commit, so callers can defer it
// unconditionally.
func (b *Batch) Close() {
	if b == nil || b.done {
		return
	}
	b.done = true

	err := errBatchAbandoned
	b.end(&err)
	b.store.pool.Put(b.conn)
	b.conn = nil
}
