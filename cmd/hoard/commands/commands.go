// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the hoard CLI command tree.
//
// Each subcommand lives in its own file with its parameter struct and
// output formatting. Commands that mutate a build store (ingest,
// compact) and verification runs against one take the store's
// advisory lock for their duration; snapshot readers never lock.
package commands

import (
	"fmt"

	"github.com/hoardlabs/hoard/cmd/hoard/cli"
	"github.com/hoardlabs/hoard/lib/version"
)

// Root builds and returns the complete hoard CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "hoard",
		Description: `hoard: a content-addressable vault for generated file collections.

Deduplicate file trees into a SQLite vault under pattern rules, compact
the vault into single-file snapshots, and restore byte-exact copies.`,
		Subcommands: []*cli.Command{
			ingestCommand(),
			compactCommand(),
			exportCommand(),
			statusCommand(),
			verifyCommand(),
			mountCommand(),
			sealCommand(),
			unsealCommand(),
			keygenCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("hoard %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Ingest a day's CSV drops into the vault",
				Command:     "hoard ingest --source ./downloads --store prices.db --glob '*.csv'",
			},
			{
				Description: "Compact the vault into a snapshot for archival",
				Command:     "hoard compact --store prices.db --out prices-2024.snapshot",
			},
			{
				Description: "Restore every file from a snapshot",
				Command:     "hoard export --snapshot prices-2024.snapshot --dest ./restored",
			},
			{
				Description: "Check what a snapshot holds",
				Command:     "hoard status --snapshot prices-2024.snapshot",
			},
			{
				Description: "Browse a snapshot without restoring it",
				Command:     "hoard mount --snapshot prices-2024.snapshot /mnt/prices",
			},
			{
				Description: "Encrypt a snapshot for an off-site copy",
				Command:     "hoard seal --in prices-2024.snapshot --out prices-2024.snapshot.age --recipient age1...",
			},
		},
	}
}
