// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filippo.io/age"
)

// Keypair is an age X25519 keypair. The private key must not be
// logged; write it to an identity file with WriteIdentityFile.
type Keypair struct {
	// PrivateKey is the secret key in AGE-SECRET-KEY-1... format.
	PrivateKey string

	// PublicKey is the matching age1... recipient, safe to publish.
	PublicKey string
}

// GenerateKeypair generates a new age X25519 keypair.
func GenerateKeypair() (Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return Keypair{}, fmt.Errorf("generating age keypair: %w", err)
	}
	return Keypair{
		PrivateKey: identity.String(),
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// WriteIdentityFile writes the keypair to path in age's identity file
// format, mode 0600, refusing to overwrite an existing file.
func WriteIdentityFile(path string, keypair Keypair) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating identity file: %w", err)
	}

	content := fmt.Sprintf("# created: %s\n# public key: %s\n%s\n",
		time.Now().UTC().Format(time.RFC3339), keypair.PublicKey, keypair.PrivateKey)
	if _, err := file.WriteString(content); err != nil {
		file.Close()
		os.Remove(path)
		return fmt.Errorf("writing identity file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("writing identity file: %w", err)
	}
	return nil
}

// LoadIdentities reads every identity from an age identity file
// (comment lines ignored).
func LoadIdentities(path string) ([]age.Identity, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening identity file: %w", err)
	}
	defer file.Close()

	identities, err := age.ParseIdentities(file)
	if err != nil {
		return nil, fmt.Errorf("parsing identity file %s: %w", path, err)
	}
	return identities, nil
}

// ParseRecipients parses age1... public key strings.
func ParseRecipients(keys []string) ([]age.Recipient, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(keys))
	for _, key := range keys {
		recipient, err := age.ParseX25519Recipient(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}
	return recipients, nil
}

// PassphraseRecipient builds a scrypt recipient for passphrase
// sealing. A passphrase-sealed file can have no other recipients; age
// enforces that at seal time.
func PassphraseRecipient(passphrase string) (age.Recipient, error) {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("deriving passphrase recipient: %w", err)
	}
	return recipient, nil
}

// PassphraseIdentity builds the matching scrypt identity for
// unsealing.
func PassphraseIdentity(passphrase string) (age.Identity, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("deriving passphrase identity: %w", err)
	}
	return identity, nil
}

// Seal encrypts the file at inputPath to the given recipients,
// writing the ciphertext to outputPath via a temporary file and
// rename. The input file is left untouched.
func Seal(inputPath, outputPath string, recipients []age.Recipient) error {
	if len(recipients) == 0 {
		return fmt.Errorf("sealing %s: at least one recipient is required", inputPath)
	}

	input, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("opening input: %w", err)
	}
	defer input.Close()

	return writeViaRename(outputPath, func(destination io.Writer) error {
		encryptor, err := age.Encrypt(destination, recipients...)
		if err != nil {
			return fmt.Errorf("starting encryption: %w", err)
		}
		if _, err := io.Copy(encryptor, input); err != nil {
			return fmt.Errorf("encrypting %s: %w", inputPath, err)
		}
		if err := encryptor.Close(); err != nil {
			return fmt.Errorf("finalizing encryption: %w", err)
		}
		return nil
	})
}

// Unseal decrypts the file at inputPath with any of the given
// identities, writing the plaintext to outputPath via a temporary
// file and rename.
func Unseal(inputPath, outputPath string, identities []age.Identity) error {
	if len(identities) == 0 {
		return fmt.Errorf("unsealing %s: at least one identity is required", inputPath)
	}

	input, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("opening input: %w", err)
	}
	defer input.Close()

	decryptor, err := age.Decrypt(input, identities...)
	if err != nil {
		return fmt.Errorf("unsealing %s: %w", inputPath, err)
	}

	return writeViaRename(outputPath, func(destination io.Writer) error {
		if _, err := io.Copy(destination, decryptor); err != nil {
			return fmt.Errorf("decrypting %s: %w", inputPath, err)
		}
		return nil
	})
}

// writeViaRename streams write's output into a temporary file beside
// path and renames it over path on success. On any failure the
// temporary file is removed and an existing file at path is left
// untouched.
func writeViaRename(path string, write func(io.Writer) error) error {
	directory := filepath.Dir(path)
	temp, err := os.CreateTemp(directory, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	tempPath := temp.Name()
	success := false
	defer func() {
		if !success {
			temp.Close()
			os.Remove(tempPath)
		}
	}()

	if err := write(temp); err != nil {
		return err
	}
	if err := temp.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", tempPath, err)
	}
	if err := temp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("publishing %s: %w", path, err)
	}
	success = true
	return nil
}
