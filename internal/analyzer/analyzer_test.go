package analyzer

import (
	"testing"
	"time"

	"gitlab.com/esr/cvsanalyze/internal/model"
	"gitlab.com/esr/cvsanalyze/internal/symbols"
)

func assertEqual(t *testing.T, a, b interface{}) {
	t.Helper()
	if a != b {
		t.Fatalf("assertEqual: expected %v == %v", a, b)
	}
}

func assertBool(t *testing.T, see, expect bool) {
	t.Helper()
	if see != expect {
		t.Errorf("assertBool: expected %v saw %v", expect, see)
	}
}

type fatalRecorder struct {
	msgs []string
}

func (f *fatalRecorder) Fatal(path, format string, args ...interface{}) {
	f.msgs = append(f.msgs, path)
}

type idGen struct {
	next int64
}

func (g *idGen) NextRevisionID() int64 {
	g.next++
	return g.next
}

type recordingEmitter struct {
	revs []model.CVSRevision
}

func (e *recordingEmitter) AddCVSRevision(r model.CVSRevision) {
	e.revs = append(e.revs, r)
}

func (e *recordingEmitter) byNumber(num string) *model.CVSRevision {
	for i := range e.revs {
		if e.revs[i].Number == num {
			return &e.revs[i]
		}
	}
	return nil
}

type noopMetadata struct{}

func (noopMetadata) RegisterIfAbsent(digest, author, log string) {}

type recordingResync struct {
	lines int
}

func (r *recordingResync) LogResync(original time.Time, digest string, adjusted time.Time) {
	r.lines++
}

func newHarness(file *model.CVSFile) (*FileAnalyzer, *fatalRecorder, *recordingEmitter) {
	fatal := &fatalRecorder{}
	emit := &recordingEmitter{}
	fa := New(file, nil, symbols.NewStats(), Options{
		Fatal:     fatal,
		IDs:       &idGen{},
		Emit:      emit,
		Metadata:  noopMetadata{},
		ResyncLog: &recordingResync{},
		Threshold: time.Hour,
	})
	return fa, fatal, emit
}

func TestSimpleAddChangeDelete(t *testing.T) {
	file := &model.CVSFile{ID: 1, OriginalPath: "first,v"}
	fa, fatal, emit := newHarness(file)

	base := time.Unix(1000, 0)
	fa.DefineRevision("1.1", base, "fred", "Exp", nil, "")
	fa.DefineRevision("1.2", base.Add(time.Second), "fred", "Exp", nil, "1.1")
	fa.DefineRevision("1.3", base.Add(2*time.Second), "fred", "dead", nil, "1.2")
	fa.TreeCompleted()

	fa.SetRevisionInfo("1.1", initialRevisionLog, true)
	fa.SetRevisionInfo("1.2", "changed it\n", true)
	fa.SetRevisionInfo("1.3", "removed\n", false)
	fa.ParseCompleted()

	assertEqual(t, len(fatal.msgs), 0)
	assertEqual(t, emit.byNumber("1.1").Op, model.OpAdd)
	assertEqual(t, emit.byNumber("1.2").Op, model.OpChange)
	assertEqual(t, emit.byNumber("1.3").Op, model.OpDelete)
}

// S3 -- two commits recorded within one second: resync moves the
// earlier one back so the timestamps strictly increase.
func TestTwoQuickCommitsResync(t *testing.T) {
	file := &model.CVSFile{ID: 1, OriginalPath: "quick,v"}
	fa, _, emit := newHarness(file)

	same := time.Unix(5000, 0)
	fa.DefineRevision("1.1", same, "fred", "Exp", nil, "")
	fa.DefineRevision("1.2", same, "fred", "Exp", nil, "1.1")
	fa.TreeCompleted()
	fa.SetRevisionInfo("1.1", initialRevisionLog, true)
	fa.SetRevisionInfo("1.2", "quick\n", true)
	fa.ParseCompleted()

	r1 := emit.byNumber("1.1")
	r2 := emit.byNumber("1.2")
	assertBool(t, r1.Timestamp.Before(r2.Timestamp), true)
	assertEqual(t, len(emit.revs), 2)
}

// S5 -- vendor-branch inference, cleared when 1.1's log isn't the
// stock import message.
func TestVendorBranchInference(t *testing.T) {
	file := &model.CVSFile{ID: 1, OriginalPath: "vendor,v"}
	fa, _, _ := newHarness(file)

	base := time.Unix(1000, 0)
	fa.DefineRevision("1.1", base, "fred", "Exp", []string{"1.1.1.1"}, "")
	fa.DefineRevision("1.1.1.1", base.Add(time.Second), "fred", "Exp", nil, "1.1.1.2")
	fa.DefineRevision("1.1.1.2", base.Add(2*time.Second), "fred", "Exp", nil, "")
	fa.TreeCompleted()

	assertEqual(t, fa.defaultBranchHead, "1.1.1.2")

	fa.SetRevisionInfo("1.1", initialRevisionLog, true)
	fa.SetRevisionInfo("1.1.1.1", "import\n", true)
	fa.SetRevisionInfo("1.1.1.2", "import\n", true)
	fa.ParseCompleted()

	assertEqual(t, file.MaxVendorBranchHead, "1.1.1.2")
}

func TestVendorBranchClearedWhenNotImported(t *testing.T) {
	file := &model.CVSFile{ID: 1, OriginalPath: "vendor2,v"}
	fa, _, _ := newHarness(file)

	base := time.Unix(1000, 0)
	fa.DefineRevision("1.1", base, "fred", "Exp", []string{"1.1.1.1"}, "")
	fa.DefineRevision("1.1.1.1", base.Add(time.Second), "fred", "Exp", nil, "1.1.1.2")
	fa.DefineRevision("1.1.1.2", base.Add(2*time.Second), "fred", "Exp", nil, "")
	fa.TreeCompleted()
	fa.SetRevisionInfo("1.1", "Merged foo\n", true) // not the stock import message
	fa.SetRevisionInfo("1.1.1.1", "import\n", true)
	fa.SetRevisionInfo("1.1.1.2", "import\n", true)
	fa.ParseCompleted()

	assertEqual(t, file.MaxVendorBranchHead, "")
}

// S6 -- dead-below-live branch sprout upgrades Add to Change.
func TestDeadBelowLiveBranchSprout(t *testing.T) {
	file := &model.CVSFile{ID: 1, OriginalPath: "sprout,v"}
	fa, _, emit := newHarness(file)

	base := time.Unix(1000, 0)
	fa.DefineRevision("1.1", base, "fred", "Exp", nil, "")
	fa.DefineRevision("1.2", base.Add(time.Second), "fred", "Exp", nil, "1.1")
	fa.DefineRevision("1.3", base.Add(2*time.Second), "fred", "Exp", []string{"1.3.2.1"}, "1.2")
	fa.DefineRevision("1.3.2.1", base.Add(3*time.Second), "fred", "dead", nil, "1.3.2.2")
	fa.DefineRevision("1.3.2.2", base.Add(4*time.Second), "fred", "Exp", nil, "")
	fa.TreeCompleted()

	fa.SetRevisionInfo("1.1", initialRevisionLog, true)
	fa.SetRevisionInfo("1.2", "c\n", true)
	fa.SetRevisionInfo("1.3", "c\n", true)
	fa.SetRevisionInfo("1.3.2.1", "branch add\n", false)
	fa.SetRevisionInfo("1.3.2.2", "branch change\n", true)
	fa.ParseCompleted()

	assertEqual(t, emit.byNumber("1.3.2.1").Op, model.OpDelete)
	assertEqual(t, emit.byNumber("1.3.2.2").Op, model.OpChange)
}

func TestBranchRevisionLODAndTags(t *testing.T) {
	file := &model.CVSFile{ID: 1, OriginalPath: "tagged,v"}
	fa, _, emit := newHarness(file)

	// Symbol definitions precede the revision graph in archive order.
	fa.DefineTag("stable", "1.2.2")
	fa.DefineTag("STABLE_START", "1.2.2.1")

	base := time.Unix(1000, 0)
	fa.DefineRevision("1.1", base, "fred", "Exp", nil, "")
	fa.DefineRevision("1.2", base.Add(time.Second), "fred", "Exp", []string{"1.2.2.1"}, "1.1")
	fa.DefineRevision("1.2.2.1", base.Add(2*time.Second), "fred", "Exp", nil, "")
	fa.TreeCompleted()

	fa.SetRevisionInfo("1.1", initialRevisionLog, true)
	fa.SetRevisionInfo("1.2", "c\n", true)
	fa.SetRevisionInfo("1.2.2.1", "on branch\n", true)
	fa.ParseCompleted()

	r := emit.byNumber("1.2.2.1")
	assertBool(t, r.LOD.Trunk, false)
	assertEqual(t, r.LOD.Branch, "stable")
	assertBool(t, r.IsFirstOnBranch, true)
	assertEqual(t, len(r.Tags), 1)
	assertEqual(t, r.Tags[0], "STABLE_START")

	sprout := emit.byNumber("1.2")
	assertEqual(t, len(sprout.Branches), 1)
	assertEqual(t, sprout.Branches[0], "stable")
}

// Trunk-only mode still feeds the global symbol statistics from every
// branch commit, but only emits trunk revisions and registers no
// blockers for the branches it excludes.
func TestTrunkOnlyStillCountsStatsButSkipsEmission(t *testing.T) {
	file := &model.CVSFile{ID: 1, OriginalPath: "trunkonly,v"}
	fatal := &fatalRecorder{}
	emit := &recordingEmitter{}
	stats := symbols.NewStats()
	fa := New(file, nil, stats, Options{
		Fatal:     fatal,
		IDs:       &idGen{},
		Emit:      emit,
		Metadata:  noopMetadata{},
		ResyncLog: &recordingResync{},
		Threshold: time.Hour,
		TrunkOnly: true,
	})

	fa.DefineTag("stable", "1.2.2")
	base := time.Unix(1000, 0)
	fa.DefineRevision("1.1", base, "fred", "Exp", nil, "")
	fa.DefineRevision("1.2", base.Add(time.Second), "fred", "Exp", []string{"1.2.2.1"}, "1.1")
	fa.DefineRevision("1.2.2.1", base.Add(2*time.Second), "fred", "Exp", nil, "")
	fa.TreeCompleted()

	fa.SetRevisionInfo("1.1", initialRevisionLog, true)
	fa.SetRevisionInfo("1.2", "c\n", true)
	fa.SetRevisionInfo("1.2.2.1", "on branch\n", true)
	fa.ParseCompleted()

	assertEqual(t, len(emit.revs), 2) // only the two trunk revisions
	assertBool(t, emit.byNumber("1.2.2.1") == nil, true)

	found := false
	for _, s := range stats.Snapshot() {
		if s.Name == "stable" {
			found = true
			assertEqual(t, s.Count.BranchCommits, 1)
		}
	}
	assertBool(t, found, true)
	assertBool(t, stats.CanRetrograde("stable"), true)
}

func TestTreeCompletedPanicsOnContradictoryParent(t *testing.T) {
	file := &model.CVSFile{ID: 1, OriginalPath: "contradiction,v"}
	fa, _, _ := newHarness(file)

	base := time.Unix(1000, 0)
	fa.DefineRevision("1.1", base, "fred", "Exp", nil, "")
	fa.DefineRevision("1.2", base.Add(time.Second), "fred", "Exp", nil, "1.1")
	// A corrupt archive claiming 1.2's parent is also 1.1.1.1.
	fa.pendingPairs = append(fa.pendingPairs, parentChildPair{parent: "1.1.1.1", child: "1.2"})
	fa.DefineRevision("1.1.1.1", base.Add(2*time.Second), "fred", "Exp", nil, "")

	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected TreeCompleted to panic on the contradictory parent assignment")
		}
		se, ok := r.(*StructuralError)
		if !ok {
			t.Fatalf("expected *StructuralError, got %T", r)
		}
		assertEqual(t, se.Path, file.OriginalPath)
	}()
	fa.TreeCompleted()
}

func TestInvariantStrictMonotonicityAfterResync(t *testing.T) {
	file := &model.CVSFile{ID: 1, OriginalPath: "mono,v"}
	fa, _, _ := newHarness(file)

	same := time.Unix(42, 0)
	fa.DefineRevision("1.1", same, "fred", "Exp", nil, "")
	fa.DefineRevision("1.2", same, "fred", "Exp", nil, "1.1")
	fa.DefineRevision("1.3", same, "fred", "Exp", nil, "1.2")
	fa.TreeCompleted()

	for _, num := range []string{"1.2", "1.3"} {
		rd := fa.revisions[num]
		if rd.Parent == "" {
			continue
		}
		parent := fa.revisions[rd.Parent]
		assertBool(t, parent.Timestamp.Before(rd.Timestamp), true)
	}
}
