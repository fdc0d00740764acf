// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import "time"

// Status classifies what happened to one candidate file.
type Status uint8

const (
	// StatusIngested: novel content stored and indexed.
	StatusIngested Status = iota
	// StatusDeduplicated: content already stored under the same hash,
	// only the index entry was written.
	StatusDeduplicated
	// StatusSkippedUnchanged: incremental rule, indexed modified time
	// and size match the file, nothing read.
	StatusSkippedUnchanged
	// StatusSkippedUnmatched: the rule's extraction regex did not
	// match and the rule does not accept unmatched files.
	StatusSkippedUnmatched
	// StatusSkippedFiltered: the extracted date falls outside the
	// requested range.
	StatusSkippedFiltered
	// StatusErrored: the file could not be read.
	StatusErrored
)

func (s Status) String() string {
	switch s {
	case StatusIngested:
		return "ingested"
	case StatusDeduplicated:
		return "deduplicated"
	case StatusSkippedUnchanged:
		return "skipped-unchanged"
	case StatusSkippedUnmatched:
		return "skipped-unmatched"
	case StatusSkippedFiltered:
		return "skipped-filtered"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Outcome is the per-file result of an ingestion pass. Per-file
// failures are carried as values in the summary, never raised.
type Outcome struct {
	Path   string
	Status Status

	// Size is the file's original byte count, set for ingested and
	// deduplicated outcomes.
	Size int64

	// StoredSize is the payload byte count newly written for this
	// file. Zero for deduplicated outcomes.
	StoredSize int64

	// Err is set for StatusErrored.
	Err error
}

// Summary aggregates one ingestion run.
type Summary struct {
	Scanned          int
	Ingested         int
	Deduplicated     int
	SkippedUnchanged int
	SkippedUnmatched int
	SkippedFiltered  int
	Errored          int

	// OriginalBytes totals the uncompressed size of every file that
	// reached the store (ingested or deduplicated). StoredBytes
	// totals only payload bytes newly written.
	OriginalBytes int64
	StoredBytes   int64

	// Failures holds the errored outcomes in scan order.
	Failures []Outcome

	Duration time.Duration
}

// record folds one outcome into the counters.
func (s *Summary) record(outcome Outcome) {
	s.Scanned++
	switch outcome.Status {
	case StatusIngested:
		s.Ingested++
		s.OriginalBytes += outcome.Size
		s.StoredBytes += outcome.StoredSize
	case StatusDeduplicated:
		s.Deduplicated++
		s.OriginalBytes += outcome.Size
	case StatusSkippedUnchanged:
		s.SkippedUnchanged++
	case StatusSkippedUnmatched:
		s.SkippedUnmatched++
	case StatusSkippedFiltered:
		s.SkippedFiltered++
	case StatusErrored:
		s.Errored++
		s.Failures = append(s.Failures, outcome)
	}
}
