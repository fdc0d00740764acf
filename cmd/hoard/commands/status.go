// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/hoardlabs/hoard/cmd/hoard/cli"
	"github.com/hoardlabs/hoard/lib/vault"
)

type statusParams struct {
	cli.JSONOutput
	Store    string `json:"store"    flag:"store"    desc:"build store database path"`
	Snapshot string `json:"snapshot" flag:"snapshot" desc:"snapshot database path"`
}

// statusReport is the JSON shape of a status summary.
type statusReport struct {
	Path              string          `json:"path"`
	EntryCount        int64           `json:"entry_count"`
	EntryBytes        int64           `json:"entry_bytes"`
	ObjectCount       int64           `json:"object_count"`
	ObjectBytes       int64           `json:"object_bytes"`
	PayloadBytes      int64           `json:"payload_bytes"`
	PartitionCount    int64           `json:"partition_count"`
	DatabaseSizeBytes int64           `json:"database_size_bytes"`
	Codec             string          `json:"codec"`
	Manifest          *manifestReport `json:"manifest,omitempty"`
}

// manifestReport is the JSON shape of an embedded compaction manifest.
type manifestReport struct {
	CreatedAt    time.Time        `json:"created_at"`
	Codec        string           `json:"codec"`
	ObjectCount  int64            `json:"object_count"`
	EntryCount   int64            `json:"entry_count"`
	LogicalBytes int64            `json:"logical_bytes"`
	StoredBytes  int64            `json:"stored_bytes"`
	Groups       map[string]int64 `json:"groups,omitempty"`
}

func statusCommand() *cli.Command {
	var params statusParams

	return &cli.Command{
		Name:    "status",
		Summary: "Show counts, sizes, and codec of a store or snapshot",
		Usage:   "hoard status (--store <path> | --snapshot <path>) [flags]",
		Description: `Summarize what a vault database holds.

Reports index entry and object counts, logical versus stored byte
totals, the partition key count, and the payload codec. For snapshots
the embedded compaction manifest is shown as well.`,
		Examples: []cli.Example{
			{
				Description: "Inspect the build store between ingestion runs",
				Command:     "hoard status --store prices.db",
			},
			{
				Description: "Machine-readable status for monitoring",
				Command:     "hoard status --snapshot prices-2024.snapshot --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("status", &params)
		},
		Run: func(args []string) error {
			logger := cli.NewCommandLogger().With("command", "status")

			store, err := openTarget(params.Store, params.Snapshot, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			stats, err := store.Stats(ctx)
			if err != nil {
				return err
			}
			manifest, hasManifest, err := store.ReadManifest(ctx)
			if err != nil {
				return err
			}

			report := statusReport{
				Path:              store.Path(),
				EntryCount:        stats.EntryCount,
				EntryBytes:        stats.EntryBytes,
				ObjectCount:       stats.ObjectCount,
				ObjectBytes:       stats.ObjectBytes,
				PayloadBytes:      stats.PayloadBytes,
				PartitionCount:    stats.PartitionCount,
				DatabaseSizeBytes: stats.DatabaseSizeBytes,
				Codec:             stats.Codec.String(),
			}
			if hasManifest {
				report.Manifest = &manifestReport{
					CreatedAt:    manifest.CreatedAt,
					Codec:        manifest.Codec,
					ObjectCount:  manifest.ObjectCount,
					EntryCount:   manifest.EntryCount,
					LogicalBytes: manifest.LogicalBytes,
					StoredBytes:  manifest.StoredBytes,
					Groups:       manifest.Groups,
				}
			}

			if done, err := params.EmitJSON(report); done {
				return err
			}

			printStatus(stats, store.Path(), report.Manifest)
			return nil
		},
	}
}

func printStatus(stats vault.Stats, path string, manifest *manifestReport) {
	fmt.Printf("%s\n", path)

	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "  entries:\t%d (%s)\n", stats.EntryCount, formatSize(stats.EntryBytes))
	fmt.Fprintf(tw, "  objects:\t%d (%s unique, %s stored)\n",
		stats.ObjectCount, formatSize(stats.ObjectBytes), formatSize(stats.PayloadBytes))
	fmt.Fprintf(tw, "  partitions:\t%d\n", stats.PartitionCount)
	fmt.Fprintf(tw, "  codec:\t%s\n", stats.Codec)
	fmt.Fprintf(tw, "  database size:\t%s\n", formatSize(stats.DatabaseSizeBytes))
	if manifest != nil {
		fmt.Fprintf(tw, "  compacted:\t%s\n", manifest.CreatedAt.UTC().Format(time.RFC3339))
	}
	tw.Flush()
}
