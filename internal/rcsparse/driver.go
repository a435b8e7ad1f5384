package rcsparse

import "gitlab.com/esr/cvsanalyze/internal/analyzer"

// NewDriver returns a function that replays a parsed Archive against
// a FileAnalyzer in the fixed callback order spec §5 mandates:
// SetPrincipalBranch, SetExpansion, DefineTag*, DefineRevision*,
// TreeCompleted, SetRevisionInfo*, ParseCompleted. Its return type is
// assignable to collector.Driver without an explicit conversion.
func NewDriver(archive *Archive) func(fa *analyzer.FileAnalyzer) error {
	return func(fa *analyzer.FileAnalyzer) error {
		fa.SetPrincipalBranch(archive.Branch)
		fa.SetExpansion(archive.Expand)

		for _, sym := range archive.Symbols {
			fa.DefineTag(sym.Name, sym.Revnum)
		}

		for _, rev := range archive.DeltaOrder {
			d := archive.Deltas[rev]
			fa.DefineRevision(d.Revision, d.Date, d.Author, d.State, d.Branches, d.Next)
		}

		fa.TreeCompleted()

		for _, rev := range archive.DeltaOrder {
			fa.SetRevisionInfo(rev, archive.Logs[rev], archive.HasDeltatext[rev])
		}

		fa.ParseCompleted()
		return nil
	}
}
