// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/hoardlabs/hoard/cmd/hoard/cli"
	"github.com/hoardlabs/hoard/lib/vault"
)

type compactParams struct {
	cli.JSONOutput
	Store string `json:"store" flag:"store"  desc:"build store database path"`
	Out   string `json:"out"   flag:"out,o"  desc:"snapshot output path"`
}

// compactReport is the JSON shape of a compaction summary.
type compactReport struct {
	SnapshotPath    string           `json:"snapshot_path"`
	ObjectCount     int64            `json:"object_count"`
	EntryCount      int64            `json:"entry_count"`
	LogicalBytes    int64            `json:"logical_bytes"`
	StoredBytes     int64            `json:"stored_bytes"`
	SnapshotBytes   int64            `json:"snapshot_bytes"`
	Groups          map[string]int64 `json:"groups"`
	DurationSeconds float64          `json:"duration_seconds"`
}

func compactCommand() *cli.Command {
	var params compactParams

	return &cli.Command{
		Name:    "compact",
		Summary: "Compact a build store into a single-file snapshot",
		Usage:   "hoard compact --store <path> --out <snapshot> [flags]",
		Description: `Write a defragmented, log-free copy of the store to a new file.

The snapshot is built beside the target path and published with a
single rename, so the target never holds a partial file: on any
failure the previous snapshot (if one existed) is untouched. Before
publication the copy must pass an integrity check and every index
entry must resolve to a stored object.

The snapshot embeds a manifest (counts, byte totals, per-directory
group counts) that "hoard status" reads back without scanning.`,
		Examples: []cli.Example{
			{
				Description: "Produce the archival snapshot for a build store",
				Command:     "hoard compact --store prices.db --out prices-2024.snapshot",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("compact", &params)
		},
		Run: func(args []string) error {
			if params.Store == "" {
				return fmt.Errorf("--store is required")
			}
			if params.Out == "" {
				return fmt.Errorf("--out is required")
			}

			logger := cli.NewCommandLogger().With("command", "compact")

			lock, err := vault.AcquireLock(params.Store)
			if err != nil {
				return err
			}
			defer lock.Release()

			store, err := vault.Open(vault.Config{Path: params.Store, Logger: logger})
			if err != nil {
				return err
			}
			defer store.Close()

			summary, err := store.Compact(context.Background(), vault.CompactOptions{
				OutputPath: params.Out,
			})
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(compactReport{
				SnapshotPath:    summary.SnapshotPath,
				ObjectCount:     summary.ObjectCount,
				EntryCount:      summary.EntryCount,
				LogicalBytes:    summary.LogicalBytes,
				StoredBytes:     summary.StoredBytes,
				SnapshotBytes:   summary.SnapshotBytes,
				Groups:          summary.Groups,
				DurationSeconds: summary.Duration.Seconds(),
			}); done {
				return err
			}

			printCompactionSummary(summary)
			return nil
		},
	}
}

func printCompactionSummary(summary vault.CompactionSummary) {
	fmt.Printf("snapshot %s: %d files, %d objects (%s logical, %s stored, %s on disk) in %s\n",
		summary.SnapshotPath, summary.EntryCount, summary.ObjectCount,
		formatSize(summary.LogicalBytes), formatSize(summary.StoredBytes),
		formatSize(summary.SnapshotBytes), summary.Duration.Round(timeRounding))

	if len(summary.Groups) == 0 {
		return
	}

	groups := make([]string, 0, len(summary.Groups))
	for group := range summary.Groups {
		groups = append(groups, group)
	}
	sort.Strings(groups)

	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	for _, group := range groups {
		fmt.Fprintf(tw, "  %s\t%d\n", group, summary.Groups[group])
	}
	tw.Flush()
}
