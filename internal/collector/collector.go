// Package collector implements the global collector of spec §4.4: it
// is the sole mutator of the artifact stores (file table, revision
// table, symbol statistics, resync log, metadata store) and owns the
// monotonic id generators and the append-only fatal-error list shared
// across every per-file analyzer.
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map"

	"gitlab.com/esr/cvsanalyze/internal/analyzelog"
	"gitlab.com/esr/cvsanalyze/internal/analyzer"
	"gitlab.com/esr/cvsanalyze/internal/model"
	"gitlab.com/esr/cvsanalyze/internal/symbols"
)

// MetadataEntry is one deduplicated (author, log) pair, keyed by
// content digest in the global metadata store.
type MetadataEntry struct {
	Author string
	Log    string
}

// ResyncLine is one adjusted-timestamp record, feeding the (out of
// scope) cross-file resync pass described in spec §4.3 Emission
// step 6.
type ResyncLine struct {
	Original time.Time
	Digest   string
	Adjusted time.Time
}

// FatalRecord is one entry of the append-only fatal-error list.
type FatalRecord struct {
	Path    string
	Message string
}

// Collector is the global collector. Construct with New; it is safe
// for concurrent use by a sharded per-file worker pool (spec §5's "a
// parallel implementation is possible by sharding per file").
type Collector struct {
	nextFileID int64
	nextRevID  int64

	filesByCanonical cmap.ConcurrentMap // canonical path -> *model.CVSFile
	metadata         cmap.ConcurrentMap // digest -> MetadataEntry
	stats            *symbols.Stats

	mu             sync.Mutex
	revisions      []model.CVSRevision
	allRevisionIDs []int64
	resyncLines    []ResyncLine
	fatal          []FatalRecord
	filesProcessed int64

	threshold  time.Duration
	trunkOnly  bool
	transforms []symbols.Rule
	dotDir     string
}

// New allocates an empty Collector. threshold and trunkOnly are
// forwarded to every per-file analyzer it creates; transforms are the
// configured symbol rename rules.
func New(threshold time.Duration, trunkOnly bool, transforms []symbols.Rule) *Collector {
	return &Collector{
		filesByCanonical: cmap.New(),
		metadata:         cmap.New(),
		stats:            symbols.NewStats(),
		threshold:        threshold,
		trunkOnly:        trunkOnly,
		transforms:       transforms,
	}
}

// SetDotDir turns on per-file Graphviz debug output: after a file's
// revision graph is successfully built, ProcessFile writes it as a
// ".dot" file under dir named after the archive's canonical path. An
// empty dir (the default) disables the feature.
func (c *Collector) SetDotDir(dir string) { c.dotDir = dir }

// NextFileID hands out the next stable file id.
func (c *Collector) NextFileID() int64 { return atomic.AddInt64(&c.nextFileID, 1) }

// NextRevisionID implements analyzer.RevisionIDGenerator.
func (c *Collector) NextRevisionID() int64 { return atomic.AddInt64(&c.nextRevID, 1) }

// Fatal implements analyzer.FatalSink and symbols.FatalSink: it
// appends to the append-only fatal-error list under mu, the way the
// teacher's Control.logmutex guards its log counter.
func (c *Collector) Fatal(path, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	analyzelog.Fatal(analyzelog.ComponentCollector, "%s: %s", path, msg)
	c.mu.Lock()
	c.fatal = append(c.fatal, FatalRecord{Path: path, Message: msg})
	c.mu.Unlock()
}

// AddCVSRevision implements analyzer.Emitter: it persists r and
// appends its id to the append-only all-revisions log the later
// window-grouping pass walks.
func (c *Collector) AddCVSRevision(r model.CVSRevision) {
	c.mu.Lock()
	c.revisions = append(c.revisions, r)
	c.allRevisionIDs = append(c.allRevisionIDs, r.ID)
	c.mu.Unlock()
}

// RegisterIfAbsent implements analyzer.MetadataStore.
func (c *Collector) RegisterIfAbsent(digest, author, log string) {
	c.metadata.SetIfAbsent(digest, MetadataEntry{Author: author, Log: log})
}

// LogResync implements analyzer.ResyncLogger.
func (c *Collector) LogResync(original time.Time, digest string, adjusted time.Time) {
	c.mu.Lock()
	c.resyncLines = append(c.resyncLines, ResyncLine{Original: original, Digest: digest, Adjusted: adjusted})
	c.mu.Unlock()
}

// Stats returns the global symbol-statistics store shared by every
// per-file analyzer this collector creates.
func (c *Collector) Stats() *symbols.Stats { return c.stats }

// Metadata looks up a previously registered (author, log) pair by
// digest.
func (c *Collector) Metadata(digest string) (MetadataEntry, bool) {
	v, ok := c.metadata.Get(digest)
	if !ok {
		return MetadataEntry{}, false
	}
	return v.(MetadataEntry), true
}

// FatalErrors returns a copy of the accumulated fatal-error list.
func (c *Collector) FatalErrors() []FatalRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]FatalRecord, len(c.fatal))
	copy(out, c.fatal)
	return out
}

// Revisions returns a copy of every emitted revision, in emission order.
func (c *Collector) Revisions() []model.CVSRevision {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.CVSRevision, len(c.revisions))
	copy(out, c.revisions)
	return out
}

// AllRevisionIDs returns the append-only log of emitted revision ids.
func (c *Collector) AllRevisionIDs() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, len(c.allRevisionIDs))
	copy(out, c.allRevisionIDs)
	return out
}

// ResyncLines returns a copy of the cross-file resync log.
func (c *Collector) ResyncLines() []ResyncLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ResyncLine, len(c.resyncLines))
	copy(out, c.resyncLines)
	return out
}

// FilesProcessed returns the count of files whose analyzer ran to
// completion; attic-duplicate rejections do not count.
func (c *Collector) FilesProcessed() int64 {
	return atomic.LoadInt64(&c.filesProcessed)
}

// Driver drives one archive's callbacks against fa in the order spec
// §5 mandates (SetPrincipalBranch, SetExpansion, DefineTag*,
// DefineRevision*, TreeCompleted, SetRevisionInfo*, ParseCompleted).
// It is supplied by the archive-parsing layer.
type Driver func(fa *analyzer.FileAnalyzer) error

// ProcessFile implements spec §4.4's process_file contract: reject a
// file whose canonical path collides with an already-seen file of
// different attic status, then run drive under the structured
// exception boundary described in spec §5 — an *analyzer.StructuralError
// panic is caught and recorded as a fatal error without stopping the
// batch; anything else propagates to the caller.
func (c *Collector) ProcessFile(file *model.CVSFile, drive Driver) {
	if !c.filesByCanonical.SetIfAbsent(file.CanonicalPath, file) {
		existing, _ := c.filesByCanonical.Get(file.CanonicalPath)
		prior := existing.(*model.CVSFile)
		if prior.InAttic != file.InAttic {
			c.Fatal(file.OriginalPath,
				"canonical path %q already contributed by %q (attic=%v vs attic=%v)",
				file.CanonicalPath, prior.OriginalPath, prior.InAttic, file.InAttic)
			return
		}
	}

	fa := analyzer.New(file, c.transforms, c.stats, analyzer.Options{
		Threshold: c.threshold,
		TrunkOnly: c.trunkOnly,
		Fatal:     c,
		IDs:       c,
		Emit:      c,
		Metadata:  c,
		ResyncLog: c,
	})

	func() {
		defer func() {
			if r := recover(); r != nil {
				if se, ok := r.(*analyzer.StructuralError); ok {
					c.Fatal(se.Path, "%s", se.Message)
					return
				}
				panic(r)
			}
		}()
		if err := drive(fa); err != nil {
			c.Fatal(file.OriginalPath, "%v", err)
			return
		}
		if c.dotDir != "" {
			c.writeDOT(file, fa)
		}
		atomic.AddInt64(&c.filesProcessed, 1)
	}()
}

// writeDOT renders fa's revision graph and writes it under c.dotDir.
// Failures are recorded as fatal errors rather than propagated: a
// debug dump going missing shouldn't abort an otherwise-successful
// analysis run.
func (c *Collector) writeDOT(file *model.CVSFile, fa *analyzer.FileAnalyzer) {
	name := strings.ReplaceAll(strings.TrimPrefix(file.CanonicalPath, string(filepath.Separator)), string(filepath.Separator), "_")
	path := filepath.Join(c.dotDir, name+".dot")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		c.Fatal(file.OriginalPath, "writing dot graph: %v", err)
		return
	}
	if err := os.WriteFile(path, []byte(fa.DOT().String()), 0644); err != nil {
		c.Fatal(file.OriginalPath, "writing dot graph: %v", err)
	}
}

// CanonicalizePath strips a trailing Attic directory component from
// path, per spec §3's CVSFile.canonical_path definition.
func CanonicalizePath(path string) (canonical string, inAttic bool) {
	dir, base := filepath.Split(path)
	dir = filepath.Clean(dir)
	if filepath.Base(dir) == "Attic" {
		return filepath.Join(filepath.Dir(dir), base), true
	}
	return path, false
}
