// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"

	"filippo.io/age"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/hoardlabs/hoard/cmd/hoard/cli"
	"github.com/hoardlabs/hoard/lib/sealed"
)

type sealParams struct {
	In         string   `json:"in"         flag:"in"         desc:"file to seal (typically a snapshot)"`
	Out        string   `json:"out"        flag:"out,o"      desc:"sealed output path"`
	Recipients []string `json:"recipients" flag:"recipient"  desc:"age X25519 public key (repeatable)"`
	Passphrase bool     `json:"passphrase" flag:"passphrase" desc:"seal with a passphrase instead of recipient keys"`
}

func sealCommand() *cli.Command {
	var params sealParams

	return &cli.Command{
		Name:    "seal",
		Summary: "Encrypt a snapshot for off-site storage",
		Usage:   "hoard seal --in <file> --out <file> (--recipient <age1...>)... [flags]",
		Description: `Encrypt a file with age, streaming it whole.

Sealing never modifies the input, and the output appears atomically:
it is written to a temporary file beside the target and renamed into
place only after the whole ciphertext is on disk.

With --recipient (repeatable), any one of the named X25519 keys can
unseal the result. With --passphrase, a passphrase is prompted and
scrypt protects the file instead; the two modes cannot be combined.`,
		Examples: []cli.Example{
			{
				Description: "Seal a snapshot to the archive key",
				Command:     "hoard seal --in prices-2024.snapshot --out prices-2024.snapshot.age --recipient age1...",
			},
			{
				Description: "Seal for two independent holders",
				Command:     "hoard seal --in prices-2024.snapshot --out sealed.age --recipient age1aaa... --recipient age1bbb...",
			},
			{
				Description: "Passphrase-protect instead of using keys",
				Command:     "hoard seal --in prices-2024.snapshot --out sealed.age --passphrase",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("seal", &params)
		},
		Run: func(args []string) error {
			if params.In == "" {
				return fmt.Errorf("--in is required")
			}
			if params.Out == "" {
				return fmt.Errorf("--out is required")
			}
			if params.Passphrase && len(params.Recipients) > 0 {
				return fmt.Errorf("--passphrase and --recipient are mutually exclusive")
			}

			var recipients []age.Recipient
			switch {
			case params.Passphrase:
				passphrase, err := readPassphrase("Passphrase: ", true)
				if err != nil {
					return err
				}
				recipient, err := sealed.PassphraseRecipient(passphrase)
				if err != nil {
					return err
				}
				recipients = []age.Recipient{recipient}
			case len(params.Recipients) > 0:
				var err error
				recipients, err = sealed.ParseRecipients(params.Recipients)
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("either --recipient or --passphrase is required")
			}

			if err := sealed.Seal(params.In, params.Out, recipients); err != nil {
				return err
			}
			fmt.Printf("sealed %s to %s\n", params.In, params.Out)
			return nil
		},
	}
}

type unsealParams struct {
	In         string `json:"in"         flag:"in"         desc:"sealed file"`
	Out        string `json:"out"        flag:"out,o"      desc:"unsealed output path"`
	Identity   string `json:"identity"   flag:"identity"   desc:"identity file holding the private key"`
	Passphrase bool   `json:"passphrase" flag:"passphrase" desc:"unseal with a passphrase"`
}

func unsealCommand() *cli.Command {
	var params unsealParams

	return &cli.Command{
		Name:    "unseal",
		Summary: "Decrypt a sealed snapshot",
		Usage:   "hoard unseal --in <file> --out <file> (--identity <file> | --passphrase) [flags]",
		Description: `Decrypt an age-sealed file.

The output is written via a temporary file and renamed into place, so
a failed unseal (wrong key, truncated ciphertext) leaves any existing
file at the output path untouched.`,
		Examples: []cli.Example{
			{
				Description: "Unseal with the archive identity file",
				Command:     "hoard unseal --in prices-2024.snapshot.age --out prices-2024.snapshot --identity hoard-identity.txt",
			},
			{
				Description: "Unseal a passphrase-protected file",
				Command:     "hoard unseal --in sealed.age --out snapshot.db --passphrase",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("unseal", &params)
		},
		Run: func(args []string) error {
			if params.In == "" {
				return fmt.Errorf("--in is required")
			}
			if params.Out == "" {
				return fmt.Errorf("--out is required")
			}
			if params.Passphrase && params.Identity != "" {
				return fmt.Errorf("--passphrase and --identity are mutually exclusive")
			}

			var identities []age.Identity
			switch {
			case params.Passphrase:
				passphrase, err := readPassphrase("Passphrase: ", false)
				if err != nil {
					return err
				}
				identity, err := sealed.PassphraseIdentity(passphrase)
				if err != nil {
					return err
				}
				identities = []age.Identity{identity}
			case params.Identity != "":
				var err error
				identities, err = sealed.LoadIdentities(params.Identity)
				if err != nil {
					return err
				}
			default:
				return fmt.Errorf("either --identity or --passphrase is required")
			}

			if err := sealed.Unseal(params.In, params.Out, identities); err != nil {
				return err
			}
			fmt.Printf("unsealed %s to %s\n", params.In, params.Out)
			return nil
		},
	}
}

type keygenParams struct {
	Out string `json:"out" flag:"out,o" desc:"identity file to create (mode 0600); prints to stdout when omitted"`
}

func keygenCommand() *cli.Command {
	var params keygenParams

	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate an age identity for sealing",
		Usage:   "hoard keygen [--out <file>]",
		Description: `Generate an X25519 keypair for sealing snapshots.

With --out the private key is written to an identity file readable
only by the owner, and the public key is printed. Without --out the
identity is printed to stdout (redirect it somewhere safe) and the
public key to stderr. Share the public key; it is all "hoard seal"
needs.`,
		Examples: []cli.Example{
			{
				Description: "Create the archive identity",
				Command:     "hoard keygen --out hoard-identity.txt",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("keygen", &params)
		},
		Run: func(args []string) error {
			keypair, err := sealed.GenerateKeypair()
			if err != nil {
				return err
			}

			if params.Out == "" {
				fmt.Fprintf(os.Stderr, "public key: %s\n", keypair.PublicKey)
				fmt.Printf("# public key: %s\n%s\n", keypair.PublicKey, keypair.PrivateKey)
				return nil
			}

			if err := sealed.WriteIdentityFile(params.Out, keypair); err != nil {
				return err
			}
			fmt.Printf("identity written to %s\npublic key: %s\n", params.Out, keypair.PublicKey)
			return nil
		},
	}
}

// readPassphrase prompts on stderr and reads a passphrase from the
// terminal without echo. confirm prompts a second time and requires
// both reads to match, for passphrases that protect new files.
func readPassphrase(prompt string, confirm bool) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	passphrase, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if len(passphrase) == 0 {
		return "", fmt.Errorf("passphrase must not be empty")
	}

	if confirm {
		fmt.Fprint(os.Stderr, "Confirm passphrase: ")
		again, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		if string(passphrase) != string(again) {
			return "", fmt.Errorf("passphrases do not match")
		}
	}

	return string(passphrase), nil
}
