// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest of an object's uncompressed content.
// Objects are addressed by this hash everywhere: the object store
// primary key, file index references, and CLI output.
type Hash [32]byte

// domainKey is a 32-byte key for BLAKE3 keyed hashing. Domain
// separation ensures that vault content hashes never collide with
// hashes computed by other systems over the same bytes.
type domainKey [32]byte

// contentDomainKey is the domain separation key for object content.
// It is a fixed constant — changing it invalidates every hash in every
// existing store. The byte values are the ASCII encoding of
// "hoard.vault.content", zero-padded to 32 bytes. Using readable ASCII
// makes the key inspectable in hex dumps and debuggers without
// sacrificing any cryptographic property (BLAKE3 keyed mode treats the
// key as an opaque 32-byte value).
var contentDomainKey = domainKey{
	'h', 'o', 'a', 'r', 'd', '.', 'v', 'a', 'u', 'l', 't', '.',
	'c', 'o', 'n', 't', 'e', 'n', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashContent computes the content-domain BLAKE3 keyed hash of the
// given bytes. This is the hash stored in the object_store primary key
// and used for deduplication. Hashes are always computed on
// uncompressed bytes so dedup is unaffected by the store's payload
// codec.
func HashContent(data []byte) Hash {
	// NewKeyed requires exactly 32 bytes, which domainKey guarantees.
	// The error is only returned for wrong key length, so this cannot
	// fail with our fixed-size type.
	hasher, err := blake3.NewKeyed(contentDomainKey[:])
	if err != nil {
		panic("vault: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// FormatHash returns the hex-encoded string representation of a hash.
// This is the canonical format used in the database, logs, and CLI
// output.
func FormatHash(hash Hash) string {
	return hex.EncodeToString(hash[:])
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(hexString string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing content hash: %w", err)
	}
	if len(decoded) != 32 {
		return hash, fmt.Errorf("content hash is %d bytes, want 32", len(decoded))
	}
	copy(hash[:], decoded)
	return hash, nil
}
