// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ingest walks a source tree under pattern rules and stores
// matching files in a vault build store: content into the object
// store (deduplicated by hash), one index entry per relative path.
// Writes land in batched transactions, so an interrupted run loses at
// most the current batch and a rerun picks up where it left off.
//
// The package never locks the store; callers that need mutual
// exclusion against other writers hold vault.AcquireLock around the
// run.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/hoardlabs/hoard/lib/vault"
)

// ErrSourceNotFound marks a missing or non-directory source root,
// which is fatal to the whole run.
var ErrSourceNotFound = errors.New("ingest: source directory not found")

const defaultCommitEvery = 5000

// Options configure one ingestion run.
type Options struct {
	// Source is the directory tree to ingest.
	Source string

	// Rules select files and derive partition keys; the first rule
	// whose glob matches a file claims it.
	Rules []Rule

	// Codec is the payload codec for newly stored objects. The first
	// compressing run fixes the store's codec; see vault.BeginBatch.
	Codec vault.Codec

	// CommitEvery bounds how many stored files share one transaction.
	// Defaults to 5000.
	CommitEvery int

	// Start and End, both inclusive YYYYMMDD, keep only files whose
	// extracted date falls inside the range. Files without an
	// extracted date are not range-filtered. Empty means unbounded;
	// setting only one of the two is an error.
	Start, End string

	// FailFast aborts on the first unreadable file instead of
	// recording it and continuing. Committed batches survive either
	// way.
	FailFast bool

	Logger *slog.Logger
}

// candidate is one glob-matched file awaiting ingestion.
type candidate struct {
	relPath string // slash-separated, relative to the source root
	absPath string
	rule    int // index into Options.Rules
	info    fs.FileInfo
}

// Run ingests the source tree into the store. The returned summary
// counts every candidate; the error is non-nil only for run-level
// failures (bad source, store trouble, fail-fast abort).
func Run(ctx context.Context, store *vault.Store, options Options) (Summary, error) {
	started := time.Now()
	var summary Summary

	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if len(options.Rules) == 0 {
		return summary, fmt.Errorf("ingest: no rules configured")
	}
	commitEvery := options.CommitEvery
	if commitEvery <= 0 {
		commitEvery = defaultCommitEvery
	}
	days, err := parseDayRange(options.Start, options.End)
	if err != nil {
		return summary, err
	}

	info, err := os.Stat(options.Source)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return summary, fmt.Errorf("%w: %s", ErrSourceNotFound, options.Source)
		}
		return summary, fmt.Errorf("ingest: source %s: %w", options.Source, err)
	}
	if !info.IsDir() {
		return summary, fmt.Errorf("%w: %s is not a directory", ErrSourceNotFound, options.Source)
	}

	candidates, err := collectCandidates(options.Source, options.Rules)
	if err != nil {
		return summary, fmt.Errorf("ingest: walking %s: %w", options.Source, err)
	}

	perRule := make([]int, len(options.Rules))
	for _, c := range candidates {
		perRule[c.rule]++
	}
	for i, rule := range options.Rules {
		if perRule[i] == 0 {
			logger.Warn("pattern matched no files",
				"glob", rule.Glob,
				"source", options.Source,
			)
		}
	}

	logger.Info("ingestion started",
		"source", options.Source,
		"candidates", len(candidates),
		"codec", options.Codec.String(),
		"commit_every", commitEvery,
	)

	batch, err := store.BeginBatch(ctx, options.Codec)
	if err != nil {
		return summary, err
	}
	defer func() { batch.Close() }()

	pending := 0
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("ingest: %w", err)
		}

		outcome, err := ingestOne(batch, options.Rules[c.rule], c, days)
		if err != nil {
			return summary, err
		}
		summary.record(outcome)

		switch outcome.Status {
		case StatusIngested, StatusDeduplicated:
			pending++
		case StatusSkippedUnmatched:
			logger.Warn("extraction regex did not match",
				"path", c.relPath,
			)
		case StatusErrored:
			logger.Warn("file not ingested",
				"path", c.relPath,
				"error", outcome.Err,
			)
			if options.FailFast {
				return summary, fmt.Errorf("ingest: %s: %w", c.relPath, outcome.Err)
			}
		}

		if pending >= commitEvery {
			if err := batch.Commit(); err != nil {
				return summary, err
			}
			batch, err = store.BeginBatch(ctx, options.Codec)
			if err != nil {
				return summary, err
			}
			pending = 0
		}
	}

	if err := batch.Commit(); err != nil {
		return summary, err
	}

	summary.Duration = time.Since(started)
	logger.Info("ingestion finished",
		"scanned", summary.Scanned,
		"ingested", summary.Ingested,
		"deduplicated", summary.Deduplicated,
		"skipped_unchanged", summary.SkippedUnchanged,
		"skipped_unmatched", summary.SkippedUnmatched,
		"skipped_filtered", summary.SkippedFiltered,
		"errored", summary.Errored,
		"original_bytes", summary.OriginalBytes,
		"stored_bytes", summary.StoredBytes,
		"duration", summary.Duration,
	)
	return summary, nil
}

// collectCandidates walks the source tree and claims each regular
// file for the first rule whose glob matches it. The result is sorted
// by relative path so runs are deterministic and interrupted runs
// resume predictably.
func collectCandidates(source string, rules []Rule) ([]candidate, error) {
	var candidates []candidate
	err := filepath.WalkDir(source, func(absPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(source, absPath)
		if err != nil {
			return err
		}
		relPath := filepath.ToSlash(rel)

		for i, rule := range rules {
			if !rule.Matches(relPath) {
				continue
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			candidates = append(candidates, candidate{
				relPath: relPath,
				absPath: absPath,
				rule:    i,
				info:    info,
			})
			break
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].relPath < candidates[j].relPath
	})
	return candidates, nil
}

// ingestOne runs the per-file pipeline: extraction, range filter,
// incremental skip, read, put, upsert. The error return is reserved
// for store-level failures; per-file problems come back as the
// outcome's status.
func ingestOne(batch *vault.Batch, rule Rule, c candidate, days dayRange) (Outcome, error) {
	outcome := Outcome{Path: c.relPath}

	part, matched := rule.extractPartition(path.Base(c.relPath))
	if !matched && rule.Extract != nil && !rule.AcceptUnmatched {
		outcome.Status = StatusSkippedUnmatched
		return outcome, nil
	}
	if part.hasDay && !days.contains(part.day) {
		outcome.Status = StatusSkippedFiltered
		return outcome, nil
	}

	modTime := vault.EntryModTime(c.info.ModTime())
	if rule.Incremental {
		existing, err := batch.LookupEntry(c.relPath)
		switch {
		case err == nil:
			if existing.ModifiedTime == modTime && existing.Size == c.info.Size() {
				outcome.Status = StatusSkippedUnchanged
				return outcome, nil
			}
		case errors.Is(err, vault.ErrEntryNotFound):
			// First sight of this path.
		default:
			return outcome, fmt.Errorf("ingest: lookup %s: %w", c.relPath, err)
		}
	}

	data, err := os.ReadFile(c.absPath)
	if err != nil {
		outcome.Status = StatusErrored
		outcome.Err = err
		return outcome, nil
	}

	result, err := batch.PutObject(data)
	if err != nil {
		return outcome, fmt.Errorf("ingest: store %s: %w", c.relPath, err)
	}
	err = batch.UpsertEntry(vault.Entry{
		Path:         c.relPath,
		ModifiedTime: modTime,
		Size:         int64(len(data)),
		ContentHash:  result.Hash,
		PartitionKey: part.key,
	})
	if err != nil {
		return outcome, fmt.Errorf("ingest: index %s: %w", c.relPath, err)
	}

	outcome.Size = int64(len(data))
	if result.Deduplicated {
		outcome.Status = StatusDeduplicated
	} else {
		outcome.Status = StatusIngested
		outcome.StoredSize = result.StoredSize
	}
	return outcome, nil
}

// dayRange is an inclusive date window for partition-key selection.
type dayRange struct {
	start, end time.Time
	bounded    bool
}

func parseDayRange(start, end string) (dayRange, error) {
	if start == "" && end == "" {
		return dayRange{}, nil
	}
	if start == "" || end == "" {
		return dayRange{}, fmt.Errorf("ingest: date range needs both start and end")
	}
	from, err := time.Parse("20060102", start)
	if err != nil {
		return dayRange{}, fmt.Errorf("ingest: start date %q: want YYYYMMDD", start)
	}
	to, err := time.Parse("20060102", end)
	if err != nil {
		return dayRange{}, fmt.Errorf("ingest: end date %q: want YYYYMMDD", end)
	}
	if to.Before(from) {
		return dayRange{}, fmt.Errorf("ingest: date range %s..%s is reversed", start, end)
	}
	return dayRange{start: from, end: to, bounded: true}, nil
}

func (r dayRange) contains(day time.Time) bool {
	if !r.bounded {
		return true
	}
	return !day.Before(r.start) && !day.After(r.end)
}
