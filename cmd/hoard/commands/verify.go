// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/hoardlabs/hoard/cmd/hoard/cli"
	"github.com/hoardlabs/hoard/lib/vault"
)

type verifyParams struct {
	cli.JSONOutput
	Store    string `json:"store"    flag:"store"    desc:"build store database path"`
	Snapshot string `json:"snapshot" flag:"snapshot" desc:"snapshot database path"`
	Deep     bool   `json:"deep"     flag:"deep"     desc:"re-read every object and recompute its content hash"`
}

// verifyReport is the JSON shape of a verification report.
type verifyReport struct {
	OK                  bool     `json:"ok"`
	ObjectCount         int64    `json:"object_count"`
	EntryCount          int64    `json:"entry_count"`
	VerifiedObjects     int64    `json:"verified_objects"`
	UnreferencedObjects int64    `json:"unreferenced_objects"`
	DanglingEntries     []string `json:"dangling_entries"`
	Problems            []string `json:"problems"`
	DurationSeconds     float64  `json:"duration_seconds"`
}

func verifyCommand() *cli.Command {
	var params verifyParams

	return &cli.Command{
		Name:    "verify",
		Summary: "Check a store or snapshot for damage",
		Usage:   "hoard verify (--store <path> | --snapshot <path>) [--deep] [flags]",
		Description: `Run integrity checks against a vault database.

The structural pass checks the database itself, that every index entry
resolves to a stored object, and that recorded sizes agree between the
index and the object store. With --deep every object is additionally
re-read, decompressed, and re-hashed, proving the payload bytes are
still exactly what was ingested.

Verifying a build store takes its advisory lock so an ingestion run
cannot change the store mid-scan. Unreferenced objects (left behind by
in-place updates) are reported as information, not damage.`,
		Examples: []cli.Example{
			{
				Description: "Quick structural check of the build store",
				Command:     "hoard verify --store prices.db",
			},
			{
				Description: "Full payload verification before archiving a snapshot",
				Command:     "hoard verify --snapshot prices-2024.snapshot --deep",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("verify", &params)
		},
		Run: func(args []string) error {
			logger := cli.NewCommandLogger().With("command", "verify")

			// A build store may have an active writer; hold the lock
			// for a stable view. Snapshots are immutable.
			if params.Store != "" {
				lock, err := vault.AcquireLock(params.Store)
				if err != nil {
					return err
				}
				defer lock.Release()
			}

			store, err := openTarget(params.Store, params.Snapshot, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := store.Verify(context.Background(), vault.VerifyOptions{
				Deep: params.Deep,
			})
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(newVerifyReport(report)); done {
				if err != nil {
					return err
				}
			} else {
				printVerifyReport(report, params.Deep)
			}

			if !report.OK() {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

func newVerifyReport(report vault.VerifyReport) verifyReport {
	out := verifyReport{
		OK:                  report.OK(),
		ObjectCount:         report.ObjectCount,
		EntryCount:          report.EntryCount,
		VerifiedObjects:     report.VerifiedObjects,
		UnreferencedObjects: report.UnreferencedObjects,
		DanglingEntries:     report.DanglingEntries,
		Problems:            []string{},
		DurationSeconds:     report.Duration.Seconds(),
	}
	if out.DanglingEntries == nil {
		out.DanglingEntries = []string{}
	}
	for _, problem := range report.Problems {
		out.Problems = append(out.Problems, problem.Error())
	}
	return out
}

func printVerifyReport(report vault.VerifyReport, deep bool) {
	if report.OK() {
		if deep {
			fmt.Printf("ok: %d entries, %d objects, %d payloads verified in %s\n",
				report.EntryCount, report.ObjectCount, report.VerifiedObjects,
				report.Duration.Round(timeRounding))
		} else {
			fmt.Printf("ok: %d entries, %d objects in %s\n",
				report.EntryCount, report.ObjectCount,
				report.Duration.Round(timeRounding))
		}
		if report.UnreferencedObjects > 0 {
			fmt.Printf("  note: %d unreferenced objects (superseded by in-place updates)\n",
				report.UnreferencedObjects)
		}
		return
	}

	fmt.Printf("FAILED: %d entries, %d objects checked in %s\n",
		report.EntryCount, report.ObjectCount, report.Duration.Round(timeRounding))
	for _, path := range report.DanglingEntries {
		fmt.Printf("  dangling entry: %s\n", path)
	}
	for _, problem := range report.Problems {
		fmt.Printf("  %v\n", problem)
	}
}
