// Package analyzer implements the per-file revision analyzer of spec
// §4.3: it is driven by an archive parser's callback stream (§5, §6),
// builds the file's revision graph, resynchronizes timestamps, infers
// the default branch, classifies each revision as Add/Change/Delete,
// and emits model.CVSRevision records to the global collector.
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package analyzer

import (
	"fmt"
	"hash/fnv"
	"time"

	orderedset "github.com/emirpasic/gods/sets/linkedhashset"

	"gitlab.com/esr/cvsanalyze/internal/analyzelog"
	"gitlab.com/esr/cvsanalyze/internal/model"
	"gitlab.com/esr/cvsanalyze/internal/revnum"
	"gitlab.com/esr/cvsanalyze/internal/symbols"
)

// initialRevisionLog is the log message cvs/rcs writes for the very
// first commit made by "cvs import"; its absence on 1.1 means the
// file was never imported and any inferred default branch is bogus.
const initialRevisionLog = "Initial revision\n"

// RevisionData is the per-file analyzer's working node for one
// revision, internal to this package per spec §3.
type RevisionData struct {
	CVSRevID      int64
	Number        string
	Author        string
	State         string
	OrigTimestamp time.Time
	Timestamp     time.Time
	Adjusted      bool
	Parent        string
	Child         string
	Branches      []string // branch numbers sprouting from this revision
}

// BranchData is the per-file analyzer's working node for one branch,
// per spec §3.
type BranchData struct {
	Name         string
	Number       string
	ParentRevnum string // computed from Number
	Child        string // first commit revision number on the branch, if any
}

// FatalSink receives structural-error records for one archive; the
// global collector implements this to append to its fatal-error list.
type FatalSink interface {
	Fatal(path string, format string, args ...interface{})
}

// RevisionIDGenerator hands out stable, monotonically increasing
// revision ids; the global collector owns the counter (spec §4.4/§5).
type RevisionIDGenerator interface {
	NextRevisionID() int64
}

// Emitter receives each classified CVSRevision as it is produced.
type Emitter interface {
	AddCVSRevision(rev model.CVSRevision)
}

// MetadataStore deduplicates (author, log) pairs by content digest,
// per spec §4.3 Emission step 5.
type MetadataStore interface {
	RegisterIfAbsent(digest, author, log string)
}

// ResyncLogger records one adjusted-timestamp line, per spec §6's
// resync-log artifact format.
type ResyncLogger interface {
	LogResync(original time.Time, digest string, adjusted time.Time)
}

type parentChildPair struct {
	parent string
	child  string
}

// FileAnalyzer drives one archive's worth of callbacks and builds its
// revision graph, per spec §4.3.
type FileAnalyzer struct {
	path          string
	file          *model.CVSFile
	symbols       *symbols.Collector
	fatal         FatalSink
	ids           RevisionIDGenerator
	emit          Emitter
	metadata      MetadataStore
	resyncLog     ResyncLogger
	threshold     time.Duration
	trunkOnly     bool

	revisions map[string]*RevisionData
	revOrder  []string

	branches    map[string]*BranchData
	branchOrder *orderedset.Set // branch numbers, in first-discovery order

	pendingPairs []parentChildPair

	principalBranch  string // declared default branch number, "" if none
	defaultBranchHead string
	leftDefaultAt    *time.Time
	sawRev12         bool
}

// Options bundles the collaborators a FileAnalyzer needs from its
// owning global collector.
type Options struct {
	Threshold time.Duration
	TrunkOnly bool
	Fatal     FatalSink
	IDs       RevisionIDGenerator
	Emit      Emitter
	Metadata  MetadataStore
	ResyncLog ResyncLogger
}

// New creates a FileAnalyzer for one archive file. transforms are the
// configured symbol-rename rules; stats is the shared global
// symbol-statistics store.
func New(file *model.CVSFile, transforms []symbols.Rule, stats *symbols.Stats, opts Options) *FileAnalyzer {
	return &FileAnalyzer{
		path:      file.OriginalPath,
		file:      file,
		symbols:   symbols.New(file.OriginalPath, transforms, stats, opts.Fatal),
		fatal:     opts.Fatal,
		ids:       opts.IDs,
		emit:      opts.Emit,
		metadata:  opts.Metadata,
		resyncLog: opts.ResyncLog,
		threshold: opts.Threshold,
		trunkOnly: opts.TrunkOnly,
		revisions:   make(map[string]*RevisionData),
		branches:    make(map[string]*BranchData),
		branchOrder: orderedset.New(),
	}
}

// SetPrincipalBranch remembers the archive's declared default branch,
// if any.
func (fa *FileAnalyzer) SetPrincipalBranch(branch string) {
	if branch != "" {
		fa.principalBranch = revnum.NormalizeBranchNumber(branch)
	}
}

// SetExpansion records the file's RCS keyword-expansion mode.
func (fa *FileAnalyzer) SetExpansion(mode string) {
	fa.file.ExpansionMode = mode
}

// DefineTag forwards a symbolic-name definition to the symbol collector.
func (fa *FileAnalyzer) DefineTag(name, rev string) {
	fa.symbols.DefineSymbol(name, rev)
}

func (fa *FileAnalyzer) branchData(bnum string) *BranchData {
	if bd, ok := fa.branches[bnum]; ok {
		return bd
	}
	bd := &BranchData{
		Name:         fa.symbols.ResolveBranch(bnum),
		Number:       bnum,
		ParentRevnum: revnum.ParentOfBranchNumber(bnum),
	}
	fa.branches[bnum] = bd
	fa.branchOrder.Add(bnum)
	return bd
}

// DefineRevision records one revision node. branches holds the raw
// revision numbers of the first commit on each branch sprouting here
// (RCS's delta "branches" field); next is the archive's raw next
// pointer, whose direction depends on whether rev is a trunk or branch
// revision (spec §4.3).
func (fa *FileAnalyzer) DefineRevision(rev string, ts time.Time, author, state string, branches []string, next string) {
	rd := &RevisionData{
		CVSRevID:      fa.ids.NextRevisionID(),
		Number:        rev,
		Author:        author,
		State:         state,
		OrigTimestamp: ts,
		Timestamp:     ts,
	}
	fa.revisions[rev] = rd
	fa.revOrder = append(fa.revOrder, rev)

	for _, sprout := range branches {
		bnum := revnum.NormalizeBranchNumber(revnum.BranchNumberOf(sprout))
		bd := fa.branchData(bnum)
		bd.Child = sprout
	}

	if next != "" {
		if revnum.IsTrunk(rev) {
			fa.pendingPairs = append(fa.pendingPairs, parentChildPair{parent: next, child: rev})
		} else {
			fa.pendingPairs = append(fa.pendingPairs, parentChildPair{parent: rev, child: next})
		}
	}
}

// TreeCompleted resolves parent/child links, runs the timestamp-resync
// loop, and infers the default branch, per spec §4.3. A parent/child
// slot contradiction means the callback stream built an impossible
// graph; rather than patch over it, TreeCompleted panics with a
// *StructuralError, which ProcessFile recovers at the file boundary,
// abandoning the rest of this file's analysis without committing any
// of its revisions.
func (fa *FileAnalyzer) TreeCompleted() {
	for _, pc := range fa.pendingPairs {
		p, ok := fa.revisions[pc.parent]
		if !ok {
			panic(&StructuralError{Path: fa.path, Message: fmt.Sprintf("next pointer references unknown revision %q", pc.parent)})
		}
		c, ok := fa.revisions[pc.child]
		if !ok {
			panic(&StructuralError{Path: fa.path, Message: fmt.Sprintf("next pointer references unknown revision %q", pc.child)})
		}
		if p.Child != "" && p.Child != pc.child {
			panic(&StructuralError{Path: fa.path, Message: fmt.Sprintf("revision %s already has child %s, cannot also set %s", p.Number, p.Child, pc.child)})
		}
		p.Child = pc.child
		if c.Parent != "" && c.Parent != pc.parent {
			panic(&StructuralError{Path: fa.path, Message: fmt.Sprintf("revision %s already has parent %s, cannot also set %s", c.Number, c.Parent, pc.parent)})
		}
		c.Parent = pc.parent
	}

	for _, v := range fa.branchOrder.Values() {
		bnum := v.(string)
		bd := fa.branches[bnum]
		if parentRD, ok := fa.revisions[bd.ParentRevnum]; ok {
			parentRD.Branches = append(parentRD.Branches, bnum)
		}
		if bd.Child == "" {
			continue
		}
		childRD, ok := fa.revisions[bd.Child]
		if !ok {
			continue
		}
		if childRD.Parent != "" && childRD.Parent != bd.ParentRevnum {
			panic(&StructuralError{Path: fa.path, Message: fmt.Sprintf("branch %s first commit %s already has parent %s", bd.Name, bd.Child, childRD.Parent)})
		}
		childRD.Parent = bd.ParentRevnum
	}

	fa.resync()
	fa.inferDefaultBranch()
}

// resync enforces strict timestamp monotonicity along every parent
// chain, per spec §4.3's Timestamp resynchronization algorithm.
func (fa *FileAnalyzer) resync() {
	for {
		progress := false
		for _, num := range fa.revOrder {
			child := fa.revisions[num]
			for child.Parent != "" {
				parent := fa.revisions[child.Parent]
				if parent.Timestamp.Before(child.Timestamp) {
					break
				}
				newTS := child.Timestamp.Add(-time.Second)
				delta := parent.Timestamp.Sub(newTS)
				parent.Timestamp = newTS
				parent.Adjusted = true
				progress = true
				if fa.threshold > 0 && delta > fa.threshold {
					analyzelog.Warn(analyzelog.ComponentResync,
						"%s: resync of %s moved timestamp by %s, exceeding threshold %s",
						fa.path, parent.Number, delta, fa.threshold)
				}
				child = parent
			}
		}
		if !progress {
			return
		}
	}
}

// inferDefaultBranch implements spec §4.3's default-branch inference.
func (fa *FileAnalyzer) inferDefaultBranch() {
	for _, num := range fa.revOrder {
		rd := fa.revisions[num]
		if fa.principalBranch != "" {
			if revnum.BranchNumberOf(num) == fa.principalBranch {
				fa.defaultBranchHead = num
			}
			continue
		}
		if num == "1.2" {
			ts := rd.Timestamp
			fa.leftDefaultAt = &ts
			fa.sawRev12 = true
			continue
		}
		if revnum.IsVendorBranchRevision(num) {
			if !fa.sawRev12 || rd.Timestamp.Before(*fa.leftDefaultAt) {
				fa.defaultBranchHead = num
			}
		}
	}
}

// classify implements spec §4.3's Operation classification, including
// the dead-below-live branch-sprout special case (scenario S6).
func (fa *FileAnalyzer) classify(rd *RevisionData) model.Operation {
	if rd.State == "dead" {
		return model.OpDelete
	}
	var parent *RevisionData
	if rd.Parent != "" {
		parent = fa.revisions[rd.Parent]
	}
	op := model.OpChange
	if parent == nil || parent.State == "dead" {
		op = model.OpAdd
	}
	if op != model.OpAdd || !revnum.IsBranchRevision(rd.Number) {
		return op
	}
	cur := rd
	for cur.Parent != "" {
		next := fa.revisions[cur.Parent]
		if !revnum.SameLineOfDevelopment(cur.Number, next.Number) {
			if cur.State == "dead" && next.State != "dead" {
				op = model.OpChange
			}
			break
		}
		cur = next
	}
	return op
}

func digestOf(log, author string) string {
	h := fnv.New64a()
	h.Write([]byte(log))
	h.Write([]byte{0})
	h.Write([]byte(author))
	return fmt.Sprintf("%016x", h.Sum64())
}

// SetRevisionInfo classifies and emits the CVSRevision for rev, per
// spec §4.3's Emission steps.
func (fa *FileAnalyzer) SetRevisionInfo(rev string, log string, hasDeltatext bool) {
	rd, ok := fa.revisions[rev]
	if !ok {
		fa.fatal.Fatal(fa.path, "set_revision_info for undefined revision %q", rev)
		return
	}

	if rev == "1.1" && fa.principalBranch == "" && log != initialRevisionLog {
		fa.defaultBranchHead = ""
	}

	op := fa.classify(rd)

	var lod model.LOD
	var branchName string
	if revnum.IsTrunk(rev) {
		lod = model.LOD{Trunk: true}
	} else {
		branchName = fa.symbols.ResolveBranch(revnum.NormalizeBranchNumber(revnum.BranchNumberOf(rev)))
		lod = model.LOD{Branch: branchName}
	}
	// Global symbol statistics are accumulated regardless of trunk-only
	// mode, so the symbol DB reports accurate branch/tag counts even
	// when non-trunk revisions are excluded from emission below.
	fa.symbols.RegisterCommit(branchName)

	if fa.trunkOnly && !revnum.IsTrunk(rev) {
		return
	}

	isFirstOnBranch := revnum.IsBranchRevision(rd.Number) &&
		(rd.Parent == "" || !revnum.SameLineOfDevelopment(rd.Number, rd.Parent))

	sproutNames := make([]string, 0, len(rd.Branches))
	for _, bnum := range rd.Branches {
		sproutNames = append(sproutNames, fa.branches[bnum].Name)
	}

	digest := digestOf(log, rd.Author)
	fa.metadata.RegisterIfAbsent(digest, rd.Author, log)

	parentID, childID := model.NoParent, model.NoChild
	if rd.Parent != "" {
		if p, ok := fa.revisions[rd.Parent]; ok {
			parentID = p.CVSRevID
		}
	}
	if rd.Child != "" {
		if c, ok := fa.revisions[rd.Child]; ok {
			childID = c.CVSRevID
		}
	}

	cv := model.CVSRevision{
		ID:              rd.CVSRevID,
		FileID:          fa.file.ID,
		Timestamp:       rd.Timestamp,
		Digest:          digest,
		ParentID:        parentID,
		ChildID:         childID,
		Op:              op,
		Number:          rev,
		HasDeltatext:    hasDeltatext,
		LOD:             lod,
		IsFirstOnBranch: isFirstOnBranch,
		Tags:            fa.symbols.TagsForRevision(rev),
		Branches:        sproutNames,
	}

	if rd.Adjusted && fa.resyncLog != nil {
		fa.resyncLog.LogResync(rd.OrigTimestamp, digest, rd.Timestamp)
	}

	fa.emit.AddCVSRevision(cv)
}

// ParseCompleted registers branch blockers and finalizes the file's
// inferred default-branch head, per spec §4.3.
func (fa *FileAnalyzer) ParseCompleted() {
	fa.symbols.RegisterBranchBlockers(fa.trunkOnly)
	fa.file.MaxVendorBranchHead = fa.defaultBranchHead
}
