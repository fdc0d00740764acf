// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed encrypts and decrypts vault snapshots for off-site
// copies. It wraps filippo.io/age for the operations hoard needs:
// generate X25519 keypairs, seal a file to one or more recipients or
// a passphrase, and unseal with an identity file or the passphrase.
//
// Sealing is whole-file and streaming: the input is never loaded into
// memory at once, the output lands via a temporary file beside the
// destination renamed into place on success, and the input is never
// modified.
//
// Key exports:
//
//   - [GenerateKeypair] / [WriteIdentityFile] -- keygen and 0600 identity files
//   - [Seal] -- encrypt a file to age recipients or a passphrase
//   - [Unseal] -- decrypt with identities from [LoadIdentities]
//   - [ParseRecipients] / [PassphraseRecipient] / [PassphraseIdentity]
package sealed
