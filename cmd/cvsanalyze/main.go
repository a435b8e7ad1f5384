// Command cvsanalyze drives the analysis pass over a tree of RCS ",v"
// archives: it walks the given paths, feeds each archive through the
// rcsparse reader and the per-file analyzer, and writes the resync and
// all-revisions artifact logs spec §6 specifies. Everything past that
// — the on-disk KV stores, commit grouping, and the repository writer
// — belongs to a later, out-of-scope phase.
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is what --version prints; it is "dev" unless overridden at
// build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "cvsanalyze",
	Short: "Analyze a tree of CVS/RCS archives for migration",
	Long: `cvsanalyze walks a CVS repository's ",v" archives, reconstructs
and repairs each file's revision graph, resynchronizes timestamps,
classifies every revision as an add, change, or delete, and collects
tag and branch symbols across the whole tree.

It performs only the analysis pass, reading each archive with a
minimal built-in RCS reader; the commit-grouping pass and the
repository writer are separate, later stages.`,
}

func init() {
	rootCmd.Version = Version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
