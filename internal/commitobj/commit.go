// Package commitobj implements the commit-object taxonomy described in
// spec §3/§4.5: a small sum type of commit shapes, their numbering
// invariant, and their log-message derivation rules. This is the
// hand-off to the (out of scope) emission phase; nothing here writes a
// repository.
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package commitobj

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
	"unicode/utf8"

	"gitlab.com/esr/cvsanalyze/internal/analyzelog"
)

// ToolName identifies the manufacturer in synthesized log messages.
const ToolName = "cvsanalyze"

// Kind distinguishes the shapes of commit object spec §3 enumerates.
type Kind int

const (
	KindInitialProject Kind = iota
	KindPrimary
	KindSymbolPre
	KindSymbolClose
	KindDefaultBranchPost
)

func (k Kind) String() string {
	switch k {
	case KindInitialProject:
		return "InitialProjectCommit"
	case KindPrimary:
		return "PrimaryCommit"
	case KindSymbolPre:
		return "SymbolPreCommit"
	case KindSymbolClose:
		return "SymbolCloseCommit"
	case KindDefaultBranchPost:
		return "DefaultBranchPostCommit"
	default:
		return "UnknownCommit"
	}
}

// SymbolKind says whether a symbol commit is creating a tag or a branch.
type SymbolKind int

const (
	SymbolTag SymbolKind = iota
	SymbolBranch
)

func (s SymbolKind) String() string {
	if s == SymbolBranch {
		return "branch"
	}
	return "tag"
}

// Commit is a value type carrying one of the taxonomy's shapes. Per
// spec §3's global invariant, CVSRevisionIDs and SymbolicName are never
// both non-empty.
type Commit struct {
	Revnum           int
	Kind             Kind
	Date             time.Time
	CVSRevisionIDs   []int
	SymbolicName     string
	SymbolKind       SymbolKind
	Author           string
	Log              string // verbatim user message, PrimaryCommit only
	MotivatingRevnum int    // DefaultBranchPostCommit only
}

// counter draws commit revnums in creation order, starting at 2 (1 is
// reserved for the initial commit).
type Counter struct {
	next int
}

// NewCounter returns a Counter whose first Next() call yields 2.
func NewCounter() *Counter {
	return &Counter{next: 2}
}

// Next returns the next monotonically increasing commit revnum.
func (c *Counter) Next() int {
	n := c.next
	c.next++
	return n
}

// NewInitialProjectCommit builds the fixed revnum-1 commit every
// converted repository starts with.
func NewInitialProjectCommit(date time.Time) Commit {
	return Commit{Revnum: 1, Kind: KindInitialProject, Date: date}
}

// NewPrimaryCommit builds an ordinary commit carrying one or more
// CVSRevision ids and the author/log pulled from the metadata store.
func NewPrimaryCommit(revnum int, ids []int, author, log string, date time.Time) Commit {
	return Commit{Revnum: revnum, Kind: KindPrimary, CVSRevisionIDs: ids, Author: author, Log: log, Date: date}
}

// NewSymbolPreCommit builds the empty commit that creates a tag or
// branch before any content is committed on it.
func NewSymbolPreCommit(revnum int, name string, kind SymbolKind, date time.Time) Commit {
	return Commit{Revnum: revnum, Kind: KindSymbolPre, SymbolicName: name, SymbolKind: kind, Date: date}
}

// NewSymbolCloseCommit builds the empty commit that closes out a tag
// or branch's fill sequence.
func NewSymbolCloseCommit(revnum int, name string, kind SymbolKind, date time.Time) Commit {
	return Commit{Revnum: revnum, Kind: KindSymbolClose, SymbolicName: name, SymbolKind: kind, Date: date}
}

// NewDefaultBranchPostCommit builds the commit that mirrors a primary
// commit's content onto trunk because it landed on the vendor branch.
func NewDefaultBranchPostCommit(revnum, motivating int, ids []int, author string, date time.Time) Commit {
	return Commit{
		Revnum: revnum, Kind: KindDefaultBranchPost, CVSRevisionIDs: ids,
		Author: author, MotivatingRevnum: motivating, Date: date,
	}
}

// Valid checks the §3 global invariant: a commit carries revisions or
// a symbolic name, never both, and revnum 1 is the initial commit and
// only the initial commit.
func (c Commit) Valid() bool {
	if (c.Revnum == 1) != (c.Kind == KindInitialProject) {
		return false
	}
	if len(c.CVSRevisionIDs) > 0 && c.SymbolicName != "" {
		return false
	}
	return true
}

var toolEscape = regexp.MustCompile(`\\x([0-9A-Fa-f]{2})`)

// cleanSymbolName strips the tool-private hex escapes cvs-fast-export
// family tools use to smuggle characters RCS forbids in a tag name
// (e.g. a literal slash) back into their raw form.
func cleanSymbolName(name string) string {
	return toolEscape.ReplaceAllStringFunc(name, func(m string) string {
		sub := toolEscape.FindStringSubmatch(m)
		n, err := strconv.ParseUint(sub[1], 16, 8)
		if err != nil {
			return m
		}
		return string([]byte{byte(n)})
	})
}

// LogMessage derives the commit's log message per spec §4.5.
func (c Commit) LogMessage() string {
	switch c.Kind {
	case KindInitialProject:
		return fmt.Sprintf("Standard project directories initialized by %s.\n", ToolName)
	case KindPrimary:
		return c.Log
	case KindSymbolPre, KindSymbolClose:
		name := cleanSymbolName(c.SymbolicName)
		sep := " "
		if utf8.RuneCountInString(name) >= 13 {
			sep = "\n"
		}
		return fmt.Sprintf("This commit was manufactured by %s to create %s%s'%s'.\n",
			ToolName, c.SymbolKind.String(), sep, name)
	case KindDefaultBranchPost:
		return fmt.Sprintf("This commit was manufactured by %s to account for a CVS default-branch "+
			"rewrite of content already committed as part of r%d.\n", ToolName, c.MotivatingRevnum)
	default:
		return ""
	}
}

// Revprops is the {author, log, date} triple the emission phase reads
// on demand, UTF-8 encoded.
type Revprops struct {
	Author string
	Log    string
	Date   time.Time
}

// Revprops builds the revision-properties triple for this commit,
// falling back to the raw strings (and warning) if either isn't valid
// UTF-8 -- never dropping the commit outright, per spec §7.
func (c Commit) Revprops() Revprops {
	author := c.Author
	log := c.LogMessage()
	if !utf8.ValidString(author) {
		analyzelog.Warn(analyzelog.ComponentCommit, "r%d: author %q is not valid UTF-8, passing through raw", c.Revnum, author)
	}
	if !utf8.ValidString(log) {
		analyzelog.Warn(analyzelog.ComponentCommit, "r%d: log message is not valid UTF-8, passing through raw", c.Revnum)
	}
	return Revprops{Author: author, Log: log, Date: c.Date}
}
