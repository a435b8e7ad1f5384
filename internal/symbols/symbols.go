// Package symbols implements the per-file symbol collector (tags and
// branches) described in spec §4.2: rename-rule application, duplicate
// detection, branch-vs-tag classification, unlabeled-branch synthesis,
// and the blocker bookkeeping that later decides whether a branch can
// be demoted to a tag.
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package symbols

import (
	"fmt"
	"regexp"
	"sort"
	"sync"

	cmap "github.com/orcaman/concurrent-map"

	"gitlab.com/esr/cvsanalyze/internal/analyzelog"
	"gitlab.com/esr/cvsanalyze/internal/revnum"
)

// Rule is one (regex, replacement) symbol-transform rule, applied in
// order against the running value of a raw symbol name.
type Rule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// Count holds the running per-symbol statistics the spec's global
// symbol-statistics store tracks.
type Count struct {
	BranchCreations int
	BranchCommits   int
	TagCreations    int
}

// Blocker is a (branch, blocking-symbol) pair: the blocking symbol
// prevents the branch from being retrograded to a tag.
type Blocker struct {
	Branch   string
	Blocking string
}

// Stats is the global, cross-file symbol-statistics store. It is safe
// for concurrent use by the sharded per-file analyzers described in
// spec §5.
type Stats struct {
	counts   cmap.ConcurrentMap
	mu       sync.Mutex
	blockers []Blocker
}

// NewStats allocates an empty symbol-statistics store.
func NewStats() *Stats {
	return &Stats{counts: cmap.New()}
}

func (s *Stats) bump(name string, f func(*Count)) {
	s.counts.Upsert(name, nil, func(exists bool, valueInMap, _ interface{}) interface{} {
		var c *Count
		if exists {
			c = valueInMap.(*Count)
		} else {
			c = &Count{}
		}
		f(c)
		return c
	})
}

func (s *Stats) registerBranchCreation(name string) { s.bump(name, func(c *Count) { c.BranchCreations++ }) }

// RegisterBranchCommit records that a revision was committed on the
// named branch; called by the per-file analyzer once per classified
// revision whose line of development is that branch.
func (s *Stats) RegisterBranchCommit(name string) { s.bump(name, func(c *Count) { c.BranchCommits++ }) }

func (s *Stats) registerTagCreation(name string) { s.bump(name, func(c *Count) { c.TagCreations++ }) }

// AddBlocker registers that blocking prevents branch from being
// retrograded to a tag.
func (s *Stats) AddBlocker(branch, blocking string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockers = append(s.blockers, Blocker{Branch: branch, Blocking: blocking})
}

// CanRetrograde reports whether branch has no registered blockers, the
// read-only query the (out of scope) emission phase needs to decide
// whether a branch may be demoted to a tag.
func (s *Stats) CanRetrograde(branch string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.blockers {
		if b.Branch == branch {
			return false
		}
	}
	return true
}

// Blockers returns a stable-ordered copy of the accumulated blocker list.
func (s *Stats) Blockers() []Blocker {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Blocker, len(s.blockers))
	copy(out, s.blockers)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Branch != out[j].Branch {
			return out[i].Branch < out[j].Branch
		}
		return out[i].Blocking < out[j].Blocking
	})
	return out
}

// Snapshot returns a deterministic, name-sorted copy of the per-symbol
// counts, suitable for writing the symbol DB artifact.
func (s *Stats) Snapshot() []struct {
	Name  string
	Count Count
} {
	names := make([]string, 0, s.counts.Count())
	for item := range s.counts.IterBuffered() {
		names = append(names, item.Key)
	}
	sort.Strings(names)
	out := make([]struct {
		Name  string
		Count Count
	}, 0, len(names))
	for _, name := range names {
		v, _ := s.counts.Get(name)
		out = append(out, struct {
			Name  string
			Count Count
		}{Name: name, Count: *v.(*Count)})
	}
	return out
}

// FatalSink receives structural-error records; the global collector
// implements this to append to its fatal-error list.
type FatalSink interface {
	Fatal(path string, format string, args ...interface{})
}

type kind int

const (
	kindTag kind = iota
	kindBranch
)

type symbolDef struct {
	name   string
	revnum string
	kind   kind
}

// Collector is the per-file symbol accumulator described in spec §4.2.
type Collector struct {
	path       string
	transforms []Rule
	stats      *Stats
	fatal      FatalSink

	defined          map[string]symbolDef
	branchesByNumber map[string]string // normalized branch number -> winning name
	tags             map[string]string // tag name -> revnum it points to
}

// New creates a per-file symbol collector. path is used only to label
// fatal-error and log records.
func New(path string, transforms []Rule, stats *Stats, fatal FatalSink) *Collector {
	return &Collector{
		path:             path,
		transforms:       transforms,
		stats:            stats,
		fatal:            fatal,
		defined:          make(map[string]symbolDef),
		branchesByNumber: make(map[string]string),
		tags:             make(map[string]string),
	}
}

func (c *Collector) transform(raw string) string {
	name := raw
	for _, rule := range c.transforms {
		next := rule.Pattern.ReplaceAllString(name, rule.Replacement)
		if next != name {
			analyzelog.For(analyzelog.ComponentSymbols).Debugf("%s: %q -> %q", c.path, name, next)
			name = next
		}
	}
	return name
}

// DefineSymbol applies the configured rename rules to rawName, then
// records it as a tag or branch definition depending on whether
// rawRevnum parses as a branch number. A second definition of the same
// post-transform name within one file is a fatal error; the second
// definition is ignored and the first stands, per spec §4.2.
func (c *Collector) DefineSymbol(rawName, rawRevnum string) {
	name := c.transform(rawName)
	if _, seen := c.defined[name]; seen {
		c.fatal.Fatal(c.path, "duplicate definition of symbol %q", name)
		return
	}

	normalized := revnum.NormalizeBranchNumber(rawRevnum)
	if revnum.IsBranchNumber(normalized) {
		if winner, collide := c.branchesByNumber[normalized]; collide {
			analyzelog.Warn(analyzelog.ComponentSymbols,
				"%s: branch %s already named %q, ignoring name %q", c.path, normalized, winner, name)
			// The earlier name wins; still record this name as defined
			// so a later DefineSymbol with the same name trips the
			// duplicate check, matching archive-order determinism.
			c.defined[name] = symbolDef{name: name, revnum: normalized, kind: kindBranch}
			return
		}
		c.branchesByNumber[normalized] = name
		c.defined[name] = symbolDef{name: name, revnum: normalized, kind: kindBranch}
		c.stats.registerBranchCreation(name)
		return
	}

	c.tags[name] = normalized
	c.defined[name] = symbolDef{name: name, revnum: normalized, kind: kindTag}
	c.stats.registerTagCreation(name)
}

// ResolveBranch returns the name bound to branchNumber, synthesizing
// "unlabeled-<branch_number>" on first reference if the branch was
// never declared in the symbol header.
func (c *Collector) ResolveBranch(branchNumber string) string {
	branchNumber = revnum.NormalizeBranchNumber(branchNumber)
	if name, ok := c.branchesByNumber[branchNumber]; ok {
		return name
	}
	name := fmt.Sprintf("unlabeled-%s", branchNumber)
	c.branchesByNumber[branchNumber] = name
	c.defined[name] = symbolDef{name: name, revnum: branchNumber, kind: kindBranch}
	c.stats.registerBranchCreation(name)
	return name
}

// RegisterCommit records a commit on the named branch's line of
// development; branchName may be empty (trunk), in which case it is a
// no-op.
func (c *Collector) RegisterCommit(branchName string) {
	if branchName == "" {
		return
	}
	c.stats.RegisterBranchCommit(branchName)
}

// TagsForRevision returns the name-sorted set of tag names attached to
// the given revision number.
func (c *Collector) TagsForRevision(rev string) []string {
	var out []string
	for name, target := range c.tags {
		if target == rev {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// lookupBranchName returns the name already bound to a branch number,
// without synthesizing one.
func (c *Collector) lookupBranchName(branchNumber string) (string, bool) {
	name, ok := c.branchesByNumber[branchNumber]
	return name, ok
}

// RegisterBranchBlockers is the finalizer run once the file's revision
// graph is complete: every tag attached to a branch revision blocks
// that branch from demotion to a tag, and every branch whose parent is
// itself on a branch blocks that parent branch. In trunk-only mode
// every branch is excluded from emission, so none can be a candidate
// for retrograding and no blockers are registered.
func (c *Collector) RegisterBranchBlockers(trunkOnly bool) {
	if trunkOnly {
		return
	}
	for tagName, rev := range c.tags {
		if !revnum.IsBranchRevision(rev) {
			continue
		}
		bnum := revnum.BranchNumberOf(rev)
		if owner, ok := c.lookupBranchName(bnum); ok {
			c.stats.AddBlocker(owner, tagName)
		}
	}
	for bnum, bname := range c.branchesByNumber {
		parentRev := revnum.ParentOfBranchNumber(bnum)
		if !revnum.IsBranchRevision(parentRev) {
			continue
		}
		parentBnum := revnum.BranchNumberOf(parentRev)
		if parentName, ok := c.lookupBranchName(parentBnum); ok {
			c.stats.AddBlocker(parentName, bname)
		}
	}
}
