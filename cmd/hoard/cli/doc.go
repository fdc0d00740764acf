// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the hoard binary.
//
// The central type is [Command], which represents a named subcommand with
// optional nested [Command.Subcommands], a [pflag.FlagSet] factory, and a
// Run function. Commands are assembled into a tree in cmd/hoard/commands
// and dispatched via [Command.Execute], which handles flag parsing,
// subcommand routing, and structured help output with examples.
//
// Flag sets are usually built with [FlagsFromParams], which binds pflag
// entries to the tagged fields of a command's params struct. When a user
// types an unknown subcommand or flag, the framework computes Levenshtein
// edit distance against all known names and suggests the closest match
// (threshold: distance <= 3). This is implemented in suggest.go.
//
// Commands that print their own summary and still need a non-zero exit
// (an export with corrupt entries, a verify that found damage) return
// [ExitError]; main checks for the ExitCode interface and exits without
// printing a redundant error line.
package cli
