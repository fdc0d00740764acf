// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filippo.io/age"
)

// sealFixture writes a plaintext file and returns its path along with
// paths for the sealed and unsealed outputs.
func sealFixture(t *testing.T, content []byte) (input, sealedPath, unsealedPath string) {
	t.Helper()
	dir := t.TempDir()
	input = filepath.Join(dir, "snapshot.db")
	if err := os.WriteFile(input, content, 0o644); err != nil {
		t.Fatalf("writing input: %v", err)
	}
	return input, filepath.Join(dir, "snapshot.db.age"), filepath.Join(dir, "restored.db")
}

func TestGenerateKeypair(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	if !strings.HasPrefix(keypair.PrivateKey, "AGE-SECRET-KEY-1") {
		t.Errorf("PrivateKey = %q, want prefix AGE-SECRET-KEY-1", keypair.PrivateKey)
	}
	if !strings.HasPrefix(keypair.PublicKey, "age1") {
		t.Errorf("PublicKey = %q, want prefix age1", keypair.PublicKey)
	}
}

func TestGenerateKeypair_Unique(t *testing.T) {
	first, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	second, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	if first.PrivateKey == second.PrivateKey {
		t.Error("two generated keypairs have identical private keys")
	}
	if first.PublicKey == second.PublicKey {
		t.Error("two generated keypairs have identical public keys")
	}
}

func TestSealUnseal_Roundtrip(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}

	content := []byte("SQLite format 3\x00 pretend snapshot bytes")
	input, sealedPath, unsealedPath := sealFixture(t, content)

	recipients, err := ParseRecipients([]string{keypair.PublicKey})
	if err != nil {
		t.Fatalf("ParseRecipients() error: %v", err)
	}
	if err := Seal(input, sealedPath, recipients); err != nil {
		t.Fatalf("Seal() error: %v", err)
	}

	ciphertext, err := os.ReadFile(sealedPath)
	if err != nil {
		t.Fatalf("reading sealed file: %v", err)
	}
	if !bytes.HasPrefix(ciphertext, []byte("age-encryption.org/v1")) {
		t.Error("sealed file does not start with the age header")
	}
	if bytes.Contains(ciphertext, content) {
		t.Error("sealed file contains the plaintext")
	}

	// The input file is untouched.
	original, err := os.ReadFile(input)
	if err != nil {
		t.Fatalf("re-reading input: %v", err)
	}
	if !bytes.Equal(original, content) {
		t.Error("sealing modified the input file")
	}

	identityPath := filepath.Join(t.TempDir(), "identity.txt")
	if err := WriteIdentityFile(identityPath, keypair); err != nil {
		t.Fatalf("WriteIdentityFile() error: %v", err)
	}
	identities, err := LoadIdentities(identityPath)
	if err != nil {
		t.Fatalf("LoadIdentities() error: %v", err)
	}

	if err := Unseal(sealedPath, unsealedPath, identities); err != nil {
		t.Fatalf("Unseal() error: %v", err)
	}
	restored, err := os.ReadFile(unsealedPath)
	if err != nil {
		t.Fatalf("reading unsealed file: %v", err)
	}
	if !bytes.Equal(restored, content) {
		t.Errorf("Unseal() = %q, want %q", restored, content)
	}
}

func TestSeal_MultipleRecipients(t *testing.T) {
	machine, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	escrow, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}

	content := []byte("shared snapshot")
	input, sealedPath, _ := sealFixture(t, content)

	recipients, err := ParseRecipients([]string{machine.PublicKey, escrow.PublicKey})
	if err != nil {
		t.Fatalf("ParseRecipients() error: %v", err)
	}
	if err := Seal(input, sealedPath, recipients); err != nil {
		t.Fatalf("Seal() error: %v", err)
	}

	// Either key unseals independently.
	for name, keypair := range map[string]Keypair{"machine": machine, "escrow": escrow} {
		identity, err := age.ParseX25519Identity(keypair.PrivateKey)
		if err != nil {
			t.Fatalf("parsing %s identity: %v", name, err)
		}
		out := filepath.Join(t.TempDir(), "restored.db")
		if err := Unseal(sealedPath, out, []age.Identity{identity}); err != nil {
			t.Fatalf("Unseal(%s) error: %v", name, err)
		}
		restored, err := os.ReadFile(out)
		if err != nil {
			t.Fatalf("reading %s output: %v", name, err)
		}
		if !bytes.Equal(restored, content) {
			t.Errorf("Unseal(%s) did not recover the plaintext", name)
		}
	}
}

func TestUnseal_WrongKey(t *testing.T) {
	owner, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	stranger, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}

	input, sealedPath, unsealedPath := sealFixture(t, []byte("private"))
	recipients, err := ParseRecipients([]string{owner.PublicKey})
	if err != nil {
		t.Fatalf("ParseRecipients() error: %v", err)
	}
	if err := Seal(input, sealedPath, recipients); err != nil {
		t.Fatalf("Seal() error: %v", err)
	}

	identity, err := age.ParseX25519Identity(stranger.PrivateKey)
	if err != nil {
		t.Fatalf("parsing identity: %v", err)
	}
	if err := Unseal(sealedPath, unsealedPath, []age.Identity{identity}); err == nil {
		t.Error("Unseal() with the wrong key should fail")
	}
	if _, err := os.Stat(unsealedPath); !os.IsNotExist(err) {
		t.Error("failed unseal left an output file behind")
	}
}

func TestSeal_Passphrase(t *testing.T) {
	content := []byte("passphrase protected")
	input, sealedPath, unsealedPath := sealFixture(t, content)

	// Low work factor keeps the test fast; unsealing reads the
	// factor from the file header.
	recipient, err := age.NewScryptRecipient("correct horse battery staple")
	if err != nil {
		t.Fatalf("NewScryptRecipient() error: %v", err)
	}
	recipient.SetWorkFactor(12)
	if err := Seal(input, sealedPath, []age.Recipient{recipient}); err != nil {
		t.Fatalf("Seal() error: %v", err)
	}

	identity, err := PassphraseIdentity("correct horse battery staple")
	if err != nil {
		t.Fatalf("PassphraseIdentity() error: %v", err)
	}
	if err := Unseal(sealedPath, unsealedPath, []age.Identity{identity}); err != nil {
		t.Fatalf("Unseal() error: %v", err)
	}
	restored, err := os.ReadFile(unsealedPath)
	if err != nil {
		t.Fatalf("reading unsealed file: %v", err)
	}
	if !bytes.Equal(restored, content) {
		t.Error("passphrase roundtrip did not recover the plaintext")
	}

	wrong, err := PassphraseIdentity("incorrect donkey battery staple")
	if err != nil {
		t.Fatalf("PassphraseIdentity() error: %v", err)
	}
	if err := Unseal(sealedPath, filepath.Join(t.TempDir(), "x.db"), []age.Identity{wrong}); err == nil {
		t.Error("Unseal() with the wrong passphrase should fail")
	}
}

func TestSeal_NoRecipients(t *testing.T) {
	input, sealedPath, _ := sealFixture(t, []byte("data"))
	if err := Seal(input, sealedPath, nil); err == nil {
		t.Error("Seal() with no recipients should fail")
	}
}

func TestParseRecipients_Invalid(t *testing.T) {
	if _, err := ParseRecipients([]string{"not-a-valid-key"}); err == nil {
		t.Error("ParseRecipients() with an invalid key should fail")
	}
	if _, err := ParseRecipients(nil); err == nil {
		t.Error("ParseRecipients() with no keys should fail")
	}
}

func TestWriteIdentityFile_Permissions(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "identity.txt")
	if err := WriteIdentityFile(path, keypair); err != nil {
		t.Fatalf("WriteIdentityFile() error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		t.Errorf("identity file mode = %o, want 600", mode)
	}

	// Refuses to overwrite an existing identity.
	if err := WriteIdentityFile(path, keypair); err == nil {
		t.Error("WriteIdentityFile() over an existing file should fail")
	}
}

func TestUnseal_FailureLeavesExistingOutput(t *testing.T) {
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	input, sealedPath, unsealedPath := sealFixture(t, []byte("full snapshot content"))
	recipients, err := ParseRecipients([]string{keypair.PublicKey})
	if err != nil {
		t.Fatalf("ParseRecipients() error: %v", err)
	}
	if err := Seal(input, sealedPath, recipients); err != nil {
		t.Fatalf("Seal() error: %v", err)
	}

	// Truncate the ciphertext so decryption fails mid-stream, after
	// the header parses.
	ciphertext, err := os.ReadFile(sealedPath)
	if err != nil {
		t.Fatalf("reading sealed file: %v", err)
	}
	if err := os.WriteFile(sealedPath, ciphertext[:len(ciphertext)-8], 0o644); err != nil {
		t.Fatalf("truncating sealed file: %v", err)
	}

	previous := []byte("previous restore, still good")
	if err := os.WriteFile(unsealedPath, previous, 0o644); err != nil {
		t.Fatalf("writing existing output: %v", err)
	}

	identity, err := age.ParseX25519Identity(keypair.PrivateKey)
	if err != nil {
		t.Fatalf("parsing identity: %v", err)
	}
	if err := Unseal(sealedPath, unsealedPath, []age.Identity{identity}); err == nil {
		t.Fatal("Unseal() of truncated ciphertext should fail")
	}

	current, err := os.ReadFile(unsealedPath)
	if err != nil {
		t.Fatalf("re-reading output: %v", err)
	}
	if !bytes.Equal(current, previous) {
		t.Error("failed unseal clobbered the existing output")
	}

	entries, err := os.ReadDir(filepath.Dir(unsealedPath))
	if err != nil {
		t.Fatalf("ReadDir() error: %v", err)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp-") {
			t.Errorf("failed unseal left temp file %s", entry.Name())
		}
	}
}
