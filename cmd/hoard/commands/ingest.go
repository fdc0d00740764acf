// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/hoardlabs/hoard/cmd/hoard/cli"
	"github.com/hoardlabs/hoard/lib/ingest"
	"github.com/hoardlabs/hoard/lib/vault"
)

type ingestParams struct {
	cli.JSONOutput
	Source      string `json:"source"       flag:"source"       desc:"directory tree to ingest"`
	Store       string `json:"store"        flag:"store"        desc:"build store database path (created on first run)"`
	Glob        string `json:"glob"         flag:"glob"         desc:"filename pattern; matches base names at any depth, or full relative paths when it contains '/'"`
	Regex       string `json:"regex"        flag:"regex"        desc:"partition extraction regex applied to the base name (case-insensitive)"`
	All         bool   `json:"all"          flag:"all"          desc:"also ingest files the regex does not match, with no partition key"`
	Incremental bool   `json:"incremental"  flag:"incremental"  desc:"skip files whose size and mtime are unchanged since the last run"`
	Rules       string `json:"rules"        flag:"rules"        desc:"rule file (JSONC or YAML) instead of inline pattern flags"`
	Gzip        bool   `json:"gzip"         flag:"gzip"         desc:"compress payloads with gzip (shorthand for --codec gzip)"`
	Codec       string `json:"codec"        flag:"codec"        desc:"payload codec: none, gzip, zstd, lz4 (default zstd)"`
	CommitEvery int    `json:"commit_every" flag:"commit-every" desc:"commit after this many stored files (default 5000)"`
	Start       string `json:"start"        flag:"start"        desc:"inclusive start date YYYYMMDD (requires --end)"`
	End         string `json:"end"          flag:"end"          desc:"inclusive end date YYYYMMDD (requires --start)"`
	FailFast    bool   `json:"fail_fast"    flag:"fail-fast"    desc:"abort on the first file error instead of continuing"`
}

// ingestReport is the JSON shape of an ingestion summary.
type ingestReport struct {
	Scanned          int             `json:"scanned"`
	Ingested         int             `json:"ingested"`
	Deduplicated     int             `json:"deduplicated"`
	SkippedUnchanged int             `json:"skipped_unchanged"`
	SkippedUnmatched int             `json:"skipped_unmatched"`
	SkippedFiltered  int             `json:"skipped_filtered"`
	Errored          int             `json:"errored"`
	OriginalBytes    int64           `json:"original_bytes"`
	StoredBytes      int64           `json:"stored_bytes"`
	DurationSeconds  float64         `json:"duration_seconds"`
	Failures         []failureReport `json:"failures"`
}

// failureReport is the JSON shape of one per-file failure.
type failureReport struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

func ingestCommand() *cli.Command {
	var params ingestParams

	return &cli.Command{
		Name:    "ingest",
		Summary: "Ingest a source tree into a build store",
		Usage:   "hoard ingest --source <dir> --store <path> (--glob <pattern> | --rules <file>) [flags]",
		Description: `Walk a source directory and store matching files in the vault.

Files are deduplicated by content: identical bytes are stored once no
matter how many paths carry them. Re-ingesting an updated file replaces
its index entry in place; the previous object stays in the store.

Patterns come either from the inline flags (--glob with an optional
--regex for partition key extraction) or from a rule file (--rules)
holding several patterns with per-rule settings. Without --regex, an
eight-digit date anywhere in the filename becomes the partition key
when present.

Writes happen in batches; an interrupted run keeps every committed
batch and a rerun picks up the remainder.`,
		Examples: []cli.Example{
			{
				Description: "Ingest all CSV files, partitioned by date in the filename",
				Command:     "hoard ingest --source ./downloads --store prices.db --glob '*.csv'",
			},
			{
				Description: "Extract the partition key with an explicit regex",
				Command:     `hoard ingest --source ./downloads --store prices.db --glob '*_odds.csv' --regex '(?P<ymd>\d{8})_odds'`,
			},
			{
				Description: "Only files dated within January 2024",
				Command:     "hoard ingest --source ./downloads --store prices.db --glob '*.csv' --start 20240101 --end 20240131",
			},
			{
				Description: "Nightly incremental run under a rule file",
				Command:     "hoard ingest --source ./downloads --store prices.db --rules vault-rules.jsonc",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("ingest", &params)
		},
		Run: func(args []string) error {
			if params.Source == "" {
				return fmt.Errorf("--source is required")
			}
			if params.Store == "" {
				return fmt.Errorf("--store is required")
			}
			if params.Gzip && params.Codec != "" {
				return fmt.Errorf("--gzip and --codec are mutually exclusive")
			}

			rules, ruleFile, err := resolveRules(&params)
			if err != nil {
				return err
			}

			codecName := params.Codec
			if params.Gzip {
				codecName = "gzip"
			}
			if codecName == "" {
				codecName = ruleFile.Codec
			}
			if codecName == "" {
				codecName = "zstd"
			}
			codec, err := vault.ParseCodec(codecName)
			if err != nil {
				return err
			}

			commitEvery := params.CommitEvery
			if commitEvery <= 0 {
				commitEvery = ruleFile.CommitEvery
			}

			logger := cli.NewCommandLogger().With("command", "ingest")

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

			summary, err := ingest.Run(context.Background(), store, ingest.Options{
				Source:      params.Source,
				Rules:       rules,
				Codec:       codec,
				CommitEvery: commitEvery,
				Start:       params.Start,
				End:         params.End,
				FailFast:    params.FailFast,
				Logger:      logger,
			})
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(newIngestReport(summary)); done {
				if err != nil {
					return err
				}
			} else {
				printIngestSummary(summary)
			}

			if summary.Errored > 0 {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

// resolveRules builds the rule set from either the rule file or the
// inline flags. The two sources conflict: a rule file carries its own
// per-rule settings, so combining it with inline pattern flags would
// be ambiguous.
func resolveRules(params *ingestParams) ([]ingest.Rule, ingest.RuleFile, error) {
	if params.Rules != "" {
		if params.Glob != "" || params.Regex != "" || params.All || params.Incremental {
			return nil, ingest.RuleFile{}, fmt.Errorf("--rules conflicts with --glob, --regex, --all, and --incremental")
		}
		ruleFile, err := ingest.LoadRuleFile(params.Rules)
		if err != nil {
			return nil, ingest.RuleFile{}, err
		}
		rules, err := ruleFile.Compile()
		if err != nil {
			return nil, ingest.RuleFile{}, err
		}
		return rules, ruleFile, nil
	}

	if params.Glob == "" {
		return nil, ingest.RuleFile{}, fmt.Errorf("either --glob or --rules is required")
	}
	rule, err := ingest.CompileRule(params.Glob, params.Regex, params.All, params.Incremental)
	if err != nil {
		return nil, ingest.RuleFile{}, err
	}
	return []ingest.Rule{rule}, ingest.RuleFile{}, nil
}

func newIngestReport(summary ingest.Summary) ingestReport {
	report := ingestReport{
		Scanned:          summary.Scanned,
		Ingested:         summary.Ingested,
		Deduplicated:     summary.Deduplicated,
		SkippedUnchanged: summary.SkippedUnchanged,
		SkippedUnmatched: summary.SkippedUnmatched,
		SkippedFiltered:  summary.SkippedFiltered,
		Errored:          summary.Errored,
		OriginalBytes:    summary.OriginalBytes,
		StoredBytes:      summary.StoredBytes,
		DurationSeconds:  summary.Duration.Seconds(),
		Failures:         []failureReport{},
	}
	for _, failure := range summary.Failures {
		report.Failures = append(report.Failures, failureReport{
			Path:  failure.Path,
			Error: failure.Err.Error(),
		})
	}
	return report
}

func printIngestSummary(summary ingest.Summary) {
	fmt.Printf("ingested %d of %d files (%s original, %s stored) in %s\n",
		summary.Ingested, summary.Scanned,
		formatSize(summary.OriginalBytes), formatSize(summary.StoredBytes),
		summary.Duration.Round(timeRounding))

	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "  deduplicated:\t%d\n", summary.Deduplicated)
	fmt.Fprintf(tw, "  skipped unchanged:\t%d\n", summary.SkippedUnchanged)
	fmt.Fprintf(tw, "  skipped unmatched:\t%d\n", summary.SkippedUnmatched)
	fmt.Fprintf(tw, "  skipped filtered:\t%d\n", summary.SkippedFiltered)
	fmt.Fprintf(tw, "  errored:\t%d\n", summary.Errored)
	tw.Flush()

	for _, failure := range summary.Failures {
		fmt.Printf("  failed: %s: %v\n", failure.Path, failure.Err)
	}
}
