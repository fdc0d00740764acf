// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/hoardlabs/hoard/lib/vault"
)

// Rule selects source files by glob and derives their partition key
// by regex. Rules are tried in order during a run; the first rule
// whose glob matches a file claims it.
type Rule struct {
	// Glob selects files. A pattern without a path separator matches
	// the base name at any depth under the source root; a pattern
	// with separators matches the whole relative path segment-wise.
	Glob string

	// Extract derives the partition key from the base name. Nil
	// falls back to picking the first eight-digit run as a date,
	// without making a match mandatory.
	Extract *regexp.Regexp

	// AcceptUnmatched ingests files Extract does not match (with a
	// null partition key) instead of skipping them.
	AcceptUnmatched bool

	// Incremental skips files whose indexed modified time and size
	// are unchanged, without reading them.
	Incremental bool
}

// fallbackExtract picks up an embedded YYYYMMDD when no explicit
// extraction regex is configured.
var fallbackExtract = regexp.MustCompile(`(?P<ymd>\d{8})`)

// CompileRule validates and compiles one rule. The extraction regex
// is matched case-insensitively against base names.
func CompileRule(glob, extract string, acceptUnmatched, incremental bool) (Rule, error) {
	if glob == "" {
		return Rule{}, fmt.Errorf("ingest: rule has no glob pattern")
	}
	if _, err := path.Match(glob, "probe"); err != nil {
		return Rule{}, fmt.Errorf("ingest: glob %q: %w", glob, err)
	}

	rule := Rule{Glob: glob, AcceptUnmatched: acceptUnmatched, Incremental: incremental}
	if extract != "" {
		compiled, err := regexp.Compile("(?i)" + extract)
		if err != nil {
			return Rule{}, fmt.Errorf("ingest: extraction regex %q: %w", extract, err)
		}
		rule.Extract = compiled
	}
	return rule, nil
}

// Matches reports whether the slash-separated relative path is
// selected by the rule's glob.
func (r Rule) Matches(relPath string) bool {
	target := relPath
	if !strings.ContainsRune(r.Glob, '/') {
		target = path.Base(relPath)
	}
	ok, err := path.Match(r.Glob, target)
	return err == nil && ok
}

// partition is what a rule's extraction derived from one file name.
type partition struct {
	// key is the partition key to record, empty for none.
	key string

	// day is set when the key came from a ymd group, for date-range
	// selection.
	day    time.Time
	hasDay bool
}

// extractPartition applies the rule's extraction regex to a base
// name. The second return reports whether the regex matched; what a
// non-match means depends on AcceptUnmatched and is decided by the
// caller. A ymd group that is not a real calendar date counts as a
// non-match.
func (r Rule) extractPartition(name string) (partition, bool) {
	expr := r.Extract
	if expr == nil {
		expr = fallbackExtract
	}
	match := expr.FindStringSubmatch(name)
	if match == nil {
		return partition{}, false
	}

	if group := expr.SubexpIndex("ymd"); group > 0 && group < len(match) {
		day, err := time.Parse("20060102", match[group])
		if err != nil {
			return partition{}, false
		}
		return partition{key: day.Format("2006-01-02"), day: day, hasDay: true}, true
	}
	if len(match) > 1 && match[1] != "" {
		return partition{key: match[1]}, true
	}
	return partition{key: match[0]}, true
}

// RuleFile is the on-disk form of a rule set, authored as JSONC or
// YAML (selected by file extension).
type RuleFile struct {
	// Codec names the payload codec for the run (none, gzip, zstd,
	// lz4). Empty defers to the command line.
	Codec string `json:"codec" yaml:"codec"`

	// CommitEvery overrides the batch size when positive.
	CommitEvery int `json:"commit_every" yaml:"commit_every"`

	// Rules are tried in authored order.
	Rules []RuleSpec `json:"rules" yaml:"rules"`
}

// RuleSpec is one rule as authored.
type RuleSpec struct {
	Glob            string `json:"glob" yaml:"glob"`
	Regex           string `json:"regex" yaml:"regex"`
	AcceptUnmatched bool   `json:"accept_unmatched" yaml:"accept_unmatched"`
	Incremental     bool   `json:"incremental" yaml:"incremental"`
}

// LoadRuleFile reads and validates a rule file. JSONC inputs may use
// comments and trailing commas.
func LoadRuleFile(rulePath string) (RuleFile, error) {
	data, err := os.ReadFile(rulePath)
	if err != nil {
		return RuleFile{}, fmt.Errorf("reading rules: %w", err)
	}

	var file RuleFile
	switch strings.ToLower(filepath.Ext(rulePath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return RuleFile{}, fmt.Errorf("parsing %s: %w", rulePath, err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &file); err != nil {
			return RuleFile{}, fmt.Errorf("parsing %s: %w", rulePath, err)
		}
	default:
		return RuleFile{}, fmt.Errorf("rules file %s: unsupported extension (want .json, .jsonc, .yaml, or .yml)", rulePath)
	}

	if len(file.Rules) == 0 {
		return RuleFile{}, fmt.Errorf("rules file %s: no rules", rulePath)
	}
	if file.Codec != "" {
		if _, err := vault.ParseCodec(file.Codec); err != nil {
			return RuleFile{}, fmt.Errorf("rules file %s: %w", rulePath, err)
		}
	}
	return file, nil
}

// Compile turns the authored specs into matchable rules.
func (f RuleFile) Compile() ([]Rule, error) {
	rules := make([]Rule, 0, len(f.Rules))
	for i, spec := range f.Rules {
		rule, err := CompileRule(spec.Glob, spec.Regex, spec.AcceptUnmatched, spec.Incremental)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
