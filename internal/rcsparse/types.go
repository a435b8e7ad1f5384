package rcsparse

import "time"

// SymbolDef is one tag/branch definition from an archive's symbols
// header, kept in file order so DefineTag calls replay deterministically.
type SymbolDef struct {
	Name   string
	Revnum string
}

// DeltaHeader is one revision's metadata from an archive's deltas
// section, before its log/text has been read from the deltatext
// section.
type DeltaHeader struct {
	Revision string
	Date     time.Time
	Author   string
	State    string
	Branches []string
	Next     string
}

// Archive is a fully parsed RCS ",v" file: header fields, the
// revision-number tree, and per-revision log/text bodies.
type Archive struct {
	Head    string
	Branch  string // principal branch, raw (possibly P.0.N form)
	Expand  string // keyword expansion mode, e.g. "kv", "b", "o"
	Symbols []SymbolDef

	Deltas     map[string]*DeltaHeader
	DeltaOrder []string

	Logs         map[string]string
	HasDeltatext map[string]bool
}

func newArchive() *Archive {
	return &Archive{
		Deltas:       make(map[string]*DeltaHeader),
		Logs:         make(map[string]string),
		HasDeltatext: make(map[string]bool),
	}
}
