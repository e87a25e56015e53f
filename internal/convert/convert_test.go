package convert

import (
	"context"
	"io"
	"testing"

	"github.com/alegrigoriev/hg2git/internal/branch"
	"github.com/alegrigoriev/hg2git/internal/changeset"
	"github.com/alegrigoriev/hg2git/internal/config"
	"github.com/alegrigoriev/hg2git/internal/globmatch"
	"github.com/alegrigoriev/hg2git/internal/object"
	"github.com/alegrigoriev/hg2git/internal/plumbing"
	"github.com/alegrigoriev/hg2git/internal/projector"
	"github.com/alegrigoriev/hg2git/internal/sink"
)

// fakeReader replays a canned slice of revisions in order; Tree performs
// random access by rev id over the same slice, matching changeset.Reader's
// contract.
type fakeReader struct {
	revs []*changeset.Revision
	pos  int
}

func (r *fakeReader) Next() (*changeset.Revision, error) {
	if r.pos >= len(r.revs) {
		return nil, io.EOF
	}
	rev := r.revs[r.pos]
	r.pos++
	return rev, nil
}

// Tree reconstructs revID's full raw (hg-side) file list by replaying every
// ancestor's own file nodes from the root, mirroring hgreader.Reader.Tree's
// full-replay semantics rather than returning only revID's own delta.
func (r *fakeReader) Tree(revID string) (changeset.FileTree, error) {
	byID := make(map[string]*changeset.Revision, len(r.revs))
	for _, rev := range r.revs {
		byID[rev.RevID] = rev
	}
	files := map[string]changeset.FileEntry{}
	visited := map[string]bool{}
	var walk func(rev *changeset.Revision)
	walk = func(rev *changeset.Revision) {
		if rev == nil || visited[rev.RevID] {
			return
		}
		visited[rev.RevID] = true
		if len(rev.Parents) > 0 {
			walk(byID[rev.Parents[0]])
		}
		for _, n := range rev.Nodes {
			switch n.Kind {
			case changeset.NodeAddFile, changeset.NodeChangeFile:
				files[n.Path] = changeset.FileEntry{Path: n.Path, Data: n.Data, Symlink: n.Symlink, Executable: n.Executable}
			case changeset.NodeDeleteFile:
				delete(files, n.Path)
			}
		}
	}
	walk(byID[revID])
	out := make(fakeFileTree, 0, len(files))
	for _, f := range files {
		out = append(out, f)
	}
	return out, nil
}

type fakeFileTree []changeset.FileEntry

func (t fakeFileTree) Files() []changeset.FileEntry { return t }

func newFakeFileTree(nodes []changeset.Node) fakeFileTree {
	var out fakeFileTree
	for _, n := range nodes {
		if n.Kind == changeset.NodeAddFile || n.Kind == changeset.NodeChangeFile {
			out = append(out, changeset.FileEntry{Path: n.Path, Data: n.Data, Symlink: n.Symlink, Executable: n.Executable})
		}
	}
	return out
}

// fakeSink is a minimal in-memory sink.Sink, mirroring commitbuilder's test
// double but shared across a whole conversion run.
type fakeSink struct {
	refs    map[string]plumbing.GitHash
	pending map[string]plumbing.GitHash
	tags    map[string]plumbing.GitHash
	index   map[string]map[string]sink.IndexEntry
}

// gitHashFromSum truncates a 32-byte content hash down to a 20-byte GitHash,
// for test doubles that have no real git binary to ask for an object name.
func gitHashFromSum(h plumbing.Hash) plumbing.GitHash {
	var out plumbing.GitHash
	copy(out[:], h[:])
	return out
}

type fakeEnv struct{ name string }

func (e *fakeEnv) WorkDir() string   { return e.name }
func (e *fakeEnv) IndexFile() string { return e.name + "/index" }

func newFakeSink() *fakeSink {
	return &fakeSink{
		refs:    map[string]plumbing.GitHash{},
		pending: map[string]plumbing.GitHash{},
		tags:    map[string]plumbing.GitHash{},
		index:   map[string]map[string]sink.IndexEntry{},
	}
}

func (s *fakeSink) MakeEnv(workDir, indexFile string) (sink.Env, error) {
	return &fakeEnv{name: workDir}, nil
}

func (s *fakeSink) HashObject(ctx context.Context, env sink.Env, data []byte, path string, symlink bool) (plumbing.GitHash, error) {
	return gitHashFromSum(plumbing.SumOf(data)), nil
}

func (s *fakeSink) UpdateIndex(ctx context.Context, env sink.Env, entries []sink.IndexEntry) error {
	name := env.(*fakeEnv).name
	if s.index[name] == nil {
		s.index[name] = map[string]sink.IndexEntry{}
	}
	for _, e := range entries {
		if e.Delete {
			delete(s.index[name], e.Path)
			continue
		}
		s.index[name][e.Path] = e
	}
	return nil
}

func (s *fakeSink) WriteTree(ctx context.Context, env sink.Env) (plumbing.GitHash, error) {
	name := env.(*fakeEnv).name
	hh := plumbing.NewHasher()
	for path, e := range s.index[name] {
		_, _ = hh.Write([]byte(path))
		_, _ = hh.Write(e.Hash[:])
	}
	return gitHashFromSum(hh.Sum()), nil
}

func (s *fakeSink) CommitTree(ctx context.Context, env sink.Env, tree plumbing.GitHash, parents []plumbing.GitHash, message string, author, committer sink.Identity) (plumbing.GitHash, error) {
	hh := plumbing.NewHasher()
	_, _ = hh.Write(tree[:])
	for _, p := range parents {
		_, _ = hh.Write(p[:])
	}
	_, _ = hh.Write([]byte(message))
	return gitHashFromSum(hh.Sum()), nil
}

func (s *fakeSink) QueueUpdateRef(ref string, target plumbing.GitHash) { s.pending[ref] = target }

func (s *fakeSink) CommitRefsUpdate(ctx context.Context) error {
	for k, v := range s.pending {
		s.refs[k] = v
	}
	s.pending = map[string]plumbing.GitHash{}
	return nil
}

func (s *fakeSink) Tag(ctx context.Context, name string, target plumbing.GitHash, message string, tagger sink.Identity, flags sink.TagFlags) error {
	s.tags["refs/tags/"+name] = target
	return nil
}

func addFile(path, data string) changeset.Node {
	return changeset.Node{Kind: changeset.NodeAddFile, Path: path, Data: []byte(data)}
}

// TestLinearHistoryProducesOneCommitPerRevision exercises S1: three
// changesets on "default", one file added/changed/added again, expect
// three commits chained by parent and a single refs/heads/default ref at
// the end (§8 Property 1, Property 3).
func TestLinearHistoryProducesOneCommitPerRevision(t *testing.T) {
	reader := &fakeReader{revs: []*changeset.Revision{
		{Rev: 0, RevID: "r0", Author: "alice", BranchName: "default", Log: "first",
			Nodes: []changeset.Node{addFile("a.txt", "one")}},
		{Rev: 1, RevID: "r1", Author: "alice", BranchName: "default", Log: "second",
			Parents: []string{"r0"}, Nodes: []changeset.Node{addFile("a.txt", "two")}},
		{Rev: 2, RevID: "r2", Author: "alice", BranchName: "default", Log: "third",
			Parents: []string{"r1"}, Nodes: []changeset.Node{addFile("b.txt", "three")}},
	}}
	s := newFakeSink()
	o := New(reader, s, Options{Config: config.DefaultConfig("refs/heads/", "refs/tags/")})

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	b := o.branches["default"]
	if b == nil {
		t.Fatal("expected a \"default\" branch to exist")
	}
	r0 := b.RevisionAt(0)
	r1 := b.RevisionAt(1)
	r2 := b.RevisionAt(2)
	if r0 == nil || r1 == nil || r2 == nil {
		t.Fatal("expected three recorded revisions")
	}
	if !r0.HaveCommit || !r1.HaveCommit || !r2.HaveCommit {
		t.Fatal("expected every revision to have produced a commit")
	}
	if r1.Parents[0] != r0 || r2.Parents[0] != r1 {
		t.Fatal("expected each commit to chain to the previous one")
	}
	if got, ok := s.refs["refs/heads/default"]; !ok || got != r2.Commit {
		t.Fatalf("refs/heads/default = %v, want final commit %v", got, r2.Commit)
	}
}

// TestBranchSplitCreatesSecondBranch exercises a sub-branch split (§4.C
// rule 1): a child changeset under a different branch name than its
// parent gets its own AddBranch node and its own head ref at finalize.
func TestBranchSplitCreatesSecondBranch(t *testing.T) {
	reader := &fakeReader{revs: []*changeset.Revision{
		{Rev: 0, RevID: "r0", Author: "alice", BranchName: "default",
			Nodes: []changeset.Node{addFile("a.txt", "one")}},
		{Rev: 1, RevID: "r1", Author: "alice", BranchName: "feature", Parents: []string{"r0"},
			Nodes: []changeset.Node{addFile("b.txt", "two")}},
	}}
	s := newFakeSink()
	o := New(reader, s, Options{Config: config.DefaultConfig("refs/heads/", "refs/tags/")})

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if o.branches["default"] == nil || o.branches["feature"] == nil {
		t.Fatalf("expected both branches, got %v", o.branches)
	}
	if _, ok := s.refs["refs/heads/default"]; !ok {
		t.Error("expected refs/heads/default to be queued")
	}
	if _, ok := s.refs["refs/heads/feature"]; !ok {
		t.Error("expected refs/heads/feature to be queued")
	}
}

// TestUnmappedBranchIsDropped exercises a blocked branch-map entry: nodes
// targeting it must not panic and must leave no ref behind.
func TestUnmappedBranchIsDropped(t *testing.T) {
	cfg := &config.Config{Projects: []config.ProjectConfig{{
		BranchMaps: []config.BranchMap{{
			Glob:    globmatch.Compile("default"),
			Blocked: true,
		}},
	}}}
	reader := &fakeReader{revs: []*changeset.Revision{
		{Rev: 0, RevID: "r0", Author: "alice", BranchName: "default",
			Nodes: []changeset.Node{addFile("a.txt", "one")}},
	}}
	s := newFakeSink()
	o := New(reader, s, Options{Config: cfg})

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(s.refs) != 0 {
		t.Fatalf("expected no refs queued for a blocked branch, got %v", s.refs)
	}
	if len(o.Warnings) == 0 {
		t.Error("expected a warning recorded for the dropped branch")
	}
}

// TestMergeCommitGetsBothParentsAndDeletesMergedBranch exercises S3: a
// sub-branch "feature" forks from "default", both sides advance, and a
// merge changeset on "default" pulls "feature" back in and deletes it.
// §8 Property 2 (topological soundness) and the §4.C rule-1/rule-2 merge
// handling (two-parent commit, full-tree comparison against the first
// parent, merged-away branch gets no surviving ref).
func TestMergeCommitGetsBothParentsAndDeletesMergedBranch(t *testing.T) {
	reader := &fakeReader{revs: []*changeset.Revision{
		{Rev: 0, RevID: "r0", Author: "alice", BranchName: "default",
			Children: []string{"r1", "r2"},
			Nodes:    []changeset.Node{addFile("a.txt", "one")}},
		{Rev: 1, RevID: "r1", Author: "alice", BranchName: "default",
			Parents: []string{"r0"}, Children: []string{"r3"},
			Nodes: []changeset.Node{addFile("a.txt", "one"), addFile("shared.txt", "s")}},
		{Rev: 2, RevID: "r2", Author: "bob", BranchName: "feature",
			Parents: []string{"r0"}, Children: []string{"r3"},
			Nodes: []changeset.Node{addFile("a.txt", "one"), addFile("b.txt", "two")}},
		{Rev: 3, RevID: "r3", Author: "alice", BranchName: "default",
			Parents: []string{"r1", "r2"},
			Nodes:   []changeset.Node{addFile("b.txt", "two"), addFile("merged.txt", "done")}},
	}}
	s := newFakeSink()
	o := New(reader, s, Options{Config: config.DefaultConfig("refs/heads/", "refs/tags/")})

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	def := o.branches["default"]
	feat := o.branches["feature"]
	if def == nil || feat == nil {
		t.Fatalf("expected both branches, got %v", o.branches)
	}

	r1 := def.RevisionAt(1)
	r2 := feat.RevisionAt(2)
	if r1 == nil || !r1.HaveCommit || r2 == nil || !r2.HaveCommit {
		t.Fatal("expected both merge parents to have committed")
	}
	if !def.HEAD.HaveCommit {
		t.Fatal("expected the merge revision to produce a commit")
	}
	if len(def.HEAD.Parents) != 2 || def.HEAD.Parents[0] != r1 || def.HEAD.Parents[1] != r2 {
		t.Fatalf("expected merge commit parents [r1, r2], got %v", def.HEAD.Parents)
	}

	if got, ok := s.refs["refs/heads/default"]; !ok || got != def.HEAD.Commit {
		t.Fatalf("refs/heads/default = %v, want %v", got, def.HEAD.Commit)
	}
	if _, ok := s.refs["refs/heads/feature"]; ok {
		t.Error("expected the merged-away feature branch to leave no surviving ref")
	}
}

// TestTagNodeQueuesAnnotatedTag exercises S4: a revision carrying a
// NodeTagBranch node gets its label resolved through the branch map's tag
// list and queued against the revision's own commit.
func TestTagNodeQueuesAnnotatedTag(t *testing.T) {
	reader := &fakeReader{revs: []*changeset.Revision{
		{Rev: 0, RevID: "r0", Author: "alice", BranchName: "default", Log: "release 1.0",
			Nodes: []changeset.Node{
				addFile("a.txt", "one"),
				{Kind: changeset.NodeTagBranch, Tag: "v1.0"},
			}},
	}}
	s := newFakeSink()
	o := New(reader, s, Options{Config: config.DefaultConfig("refs/heads/", "refs/tags/")})

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	b := o.branches["default"]
	if b == nil || !b.HEAD.HaveCommit {
		t.Fatal("expected the tagged revision to have committed")
	}
	if got, ok := s.tags["refs/tags/v1.0"]; !ok || got != b.HEAD.Commit {
		t.Fatalf("refs/tags/v1.0 = %v, want %v", got, b.HEAD.Commit)
	}
}

// TestResolveCherryPicksInheritsOriginalMessage exercises S5's Change-Id
// inheritance data flow directly: a pending cherry-pick must resolve to the
// source revision's original log text, not an empty string, so
// commitbuilder/message.go can extract and reuse its Change-Id.
func TestResolveCherryPicksInheritsOriginalMessage(t *testing.T) {
	o := New(&fakeReader{}, newFakeSink(), Options{})

	src := branch.New("default", nil, 1, "r1")
	src.Stage.HaveCommit = true
	src.Stage.Commit = plumbing.NewGitHash("c0ffee00c0ffee00c0ffee00c0ffee00c0ffee0")
	o.branches["default"] = src
	o.revLoc["r1"] = revLocation{BranchName: "default", Rev: 1}
	o.revLog["r1"] = "original change description"

	feature := branch.New("feature", nil, 2, "r2")
	feature.Stage.CherryPicks = []string{"r1"}

	picks := o.resolveCherryPicks(feature)
	if len(picks) != 1 {
		t.Fatalf("expected one resolved cherry-pick, got %d: %+v", len(picks), picks)
	}
	if picks[0].SourceRevID != "r1" {
		t.Errorf("SourceRevID = %q, want r1", picks[0].SourceRevID)
	}
	if picks[0].SourceCommit != src.Stage.Commit {
		t.Errorf("SourceCommit = %v, want %v", picks[0].SourceCommit, src.Stage.Commit)
	}
	if picks[0].OriginalMessage != "original change description" {
		t.Errorf("OriginalMessage = %q, want the source revision's original log text", picks[0].OriginalMessage)
	}
}

// TestMakeUniqueRefnameResolvesCollisions exercises §4.G's collision probe
// directly.
func TestMakeUniqueRefnameResolvesCollisions(t *testing.T) {
	o := New(&fakeReader{}, newFakeSink(), Options{})
	first, ok := o.MakeUniqueRefname("refs/heads/default")
	if !ok || first != "refs/heads/default" {
		t.Fatalf("first claim = %q, %v", first, ok)
	}
	second, ok := o.MakeUniqueRefname("refs/heads/default")
	if !ok || second != "refs/heads/default___1" {
		t.Fatalf("second claim = %q, %v, want the ___1 suffix", second, ok)
	}
}

func gitignoreContent(t *testing.T, o *Orchestrator, branchName string) (string, bool) {
	t.Helper()
	b := o.branches[branchName]
	if b == nil || b.HEAD == nil || b.HEAD.Tree == nil {
		return "", false
	}
	v, ok := b.HEAD.Tree.Get(".gitignore")
	if !ok {
		return "", false
	}
	blob, ok := v.(*object.Blob)
	if !ok {
		return "", false
	}
	return string(blob.Data), true
}

// TestHgignoreDeleteRestoresSiblingGitignore exercises §4.C's "Policy
// details": deleting .hgignore while an hg-native .gitignore still exists
// at the parent revision restores that prior .gitignore rather than
// leaving the path deleted.
func TestHgignoreDeleteRestoresSiblingGitignore(t *testing.T) {
	reader := &fakeReader{revs: []*changeset.Revision{
		{Rev: 0, RevID: "r0", Author: "alice", BranchName: "default", Log: "first",
			Nodes: []changeset.Node{
				addFile(".gitignore", "hg-native ignore"),
				addFile(".hgignore", "syntax: glob\n*.log\n"),
			}},
		{Rev: 1, RevID: "r1", Author: "alice", BranchName: "default", Log: "drop hgignore",
			Parents: []string{"r0"},
			Nodes:   []changeset.Node{{Kind: changeset.NodeDeleteFile, Path: ".hgignore"}}},
	}}
	s := newFakeSink()
	o := New(reader, s, Options{
		Config:    config.DefaultConfig("refs/heads/", "refs/tags/"),
		Projector: projector.Options{ConvertHgignore: true},
	})

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, ok := gitignoreContent(t, o, "default")
	if !ok {
		t.Fatal("expected .gitignore to survive the .hgignore deletion")
	}
	if got != "hg-native ignore" {
		t.Fatalf(".gitignore = %q, want the restored hg-native content %q", got, "hg-native ignore")
	}
}

// TestGitignoreDeleteRegeneratesFromSurvivingHgignore exercises the reverse
// §4.C edge case: deleting .gitignore directly while a sibling .hgignore is
// still present regenerates .gitignore from it instead of deleting it.
func TestGitignoreDeleteRegeneratesFromSurvivingHgignore(t *testing.T) {
	reader := &fakeReader{revs: []*changeset.Revision{
		{Rev: 0, RevID: "r0", Author: "alice", BranchName: "default", Log: "first",
			Nodes: []changeset.Node{addFile(".hgignore", "syntax: glob\n*.log\n")}},
		{Rev: 1, RevID: "r1", Author: "alice", BranchName: "default", Log: "drop gitignore",
			Parents: []string{"r0"},
			Nodes:   []changeset.Node{{Kind: changeset.NodeDeleteFile, Path: ".gitignore"}}},
	}}
	s := newFakeSink()
	o := New(reader, s, Options{
		Config:    config.DefaultConfig("refs/heads/", "refs/tags/"),
		Projector: projector.Options{ConvertHgignore: true},
	})

	if err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, ok := gitignoreContent(t, o, "default")
	if !ok {
		t.Fatal("expected .gitignore to be regenerated from the surviving .hgignore")
	}
	if got == "" {
		t.Fatal("expected non-empty regenerated .gitignore content")
	}
}
