// Package convert implements the orchestrator / project tree (SPEC_FULL.md
// component I): drives the changeset reader, revision projector, branch
// state, and commit builder together, owning the head-branch pointer, the
// all-refs collision tree, and per-revision finalization.
package convert

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/alegrigoriev/hg2git/internal/branch"
	"github.com/alegrigoriev/hg2git/internal/changeset"
	"github.com/alegrigoriev/hg2git/internal/commitbuilder"
	"github.com/alegrigoriev/hg2git/internal/config"
	"github.com/alegrigoriev/hg2git/internal/hgignore"
	"github.com/alegrigoriev/hg2git/internal/object"
	"github.com/alegrigoriev/hg2git/internal/pathtree"
	"github.com/alegrigoriev/hg2git/internal/plumbing"
	"github.com/alegrigoriev/hg2git/internal/projector"
	"github.com/alegrigoriev/hg2git/internal/sink"
)

// treeCacheTTL bounds how long a re-fetched parent tree stays cached.
// branch.BranchRevision.ReleaseIfSingleChild is the primary memory-budget
// policy (§4.D/§5); this cache is the second, belt-and-suspenders bound
// SPEC_FULL.md's component-I enrichment calls for, catching the case where
// the same parent tree is re-requested across several merge children before
// the branch-local policy would have released it anyway.
const treeCacheTTL = 2 * time.Minute

// Warning is a local-recovery diagnostic (§7): unresolved cherry-picks,
// unmapped tags/branches, ref collisions, and unsupported ignore syntax
// are all reported this way rather than aborting the run.
type Warning struct {
	Rev    int
	RevID  string
	Reason string
}

// ProgressFunc is invoked after every processed revision; rate limiting to
// the configured interval is left to the callee (internal/progressreporter).
type ProgressFunc func(rev int, branches int)

// Options configures one conversion run.
type Options struct {
	Config             *config.Config
	ProjectPath        string
	Projector          projector.Options
	DecorateRevisionID bool
	Identity           func(author string, when time.Time) sink.Identity
	Progress           ProgressFunc
	EndRevision        int // 0 means unbounded
}

type revLocation struct {
	BranchName string
	Rev        int
}

// Orchestrator is the concrete implementation of both the external
// Sink-driving loop and projector.Context.
type Orchestrator struct {
	opts   Options
	reader changeset.Reader
	snk    sink.Sink

	branches map[string]*branch.Branch
	headName string

	revLoc        map[string]revLocation
	revLog        map[string]string
	totalChildren map[string]int
	doneChildren  map[string]int
	childBranches map[string]map[string]bool

	changedOrder []string
	changedSet   map[string]bool
	mergeParents map[string][]commitbuilder.ParentRef

	allRefs   *pathtree.Tree
	treeCache *ristretto.Cache[string, changeset.FileTree]

	Warnings []Warning

	branchSeq int
}

// New constructs an Orchestrator reading from reader and writing through
// snk.
func New(reader changeset.Reader, snk sink.Sink, opts Options) *Orchestrator {
	cache, err := ristretto.NewCache(&ristretto.Config[string, changeset.FileTree]{
		NumCounters: 1e5,
		MaxCost:     1 << 26, // 64 MiB of estimated tree cost
		BufferItems: 64,
	})
	if err != nil {
		// A cache is an optimization, not a correctness requirement: fall
		// back to always re-fetching from the reader.
		cache = nil
	}
	return &Orchestrator{
		opts:          opts,
		reader:        reader,
		snk:           snk,
		branches:      make(map[string]*branch.Branch),
		revLoc:        make(map[string]revLocation),
		revLog:        make(map[string]string),
		totalChildren: make(map[string]int),
		doneChildren:  make(map[string]int),
		childBranches: make(map[string]map[string]bool),
		mergeParents:  make(map[string][]commitbuilder.ParentRef),
		allRefs:       pathtree.New(),
		treeCache:     cache,
	}
}

func (o *Orchestrator) warn(rev *changeset.Revision, reason string) {
	o.Warnings = append(o.Warnings, Warning{Rev: rev.Rev, RevID: rev.RevID, Reason: reason})
}

// --- projector.Context ---

func (o *Orchestrator) BranchNameOf(revID string) (string, bool) {
	loc, ok := o.revLoc[revID]
	return loc.BranchName, ok
}

func (o *Orchestrator) HasOtherChildOnBranch(revID, branchName, excludingChildRevID string) bool {
	set := o.childBranches[revID]
	if set == nil {
		return false
	}
	if set[branchName] {
		return true
	}
	return false
}

func (o *Orchestrator) RemainingChildren(revID, excludingChildRevID string) int {
	remaining := o.totalChildren[revID] - o.doneChildren[revID] - 1
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func (o *Orchestrator) Tree(revID string) (changeset.FileTree, error) {
	if o.treeCache != nil {
		if cached, ok := o.treeCache.Get(revID); ok {
			return cached, nil
		}
	}
	tree, err := o.reader.Tree(revID)
	if err != nil {
		return nil, err
	}
	if o.treeCache != nil {
		o.treeCache.SetWithTTL(revID, tree, int64(len(tree.Files())), treeCacheTTL)
	}
	return tree, nil
}

// Run drives the reader to completion, projecting and committing every
// revision, then finalizes every branch's refs.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		rev, err := o.reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("convert: reading revision: %w", err)
		}
		if o.opts.EndRevision > 0 && rev.Rev > o.opts.EndRevision {
			break
		}
		o.totalChildren[rev.RevID] = len(rev.Children)

		if err := o.applyRevision(ctx, rev); err != nil {
			return err
		}
		if o.opts.Progress != nil {
			o.opts.Progress(rev.Rev, len(o.branches))
		}
	}
	return o.Finalize(ctx)
}

func (o *Orchestrator) applyRevision(ctx context.Context, rev *changeset.Revision) error {
	if len(rev.Parents) > 0 {
		o.headName, _ = o.BranchNameOf(rev.Parents[0])
	} else {
		o.headName = ""
	}

	nodes, err := projector.Project(rev, o, o.opts.Projector)
	if err != nil {
		return fmt.Errorf("convert: projecting rev %d: %w", rev.Rev, err)
	}

	o.changedOrder = nil
	o.changedSet = make(map[string]bool)
	o.mergeParents = make(map[string][]commitbuilder.ParentRef)

	for _, n := range nodes {
		o.applyNode(rev, n)
	}

	for _, name := range o.changedOrder {
		if err := o.commitBranch(ctx, name, rev); err != nil {
			return fmt.Errorf("convert: committing branch %q at rev %d: %w", name, rev.Rev, err)
		}
	}

	if o.headName != "" {
		o.revLoc[rev.RevID] = revLocation{BranchName: o.headName, Rev: rev.Rev}
		o.revLog[rev.RevID] = rev.Log
	}
	for _, parentRevID := range rev.Parents {
		o.doneChildren[parentRevID]++
		if o.childBranches[parentRevID] == nil {
			o.childBranches[parentRevID] = make(map[string]bool)
		}
		o.childBranches[parentRevID][rev.BranchName] = true
		o.releaseParentTreeIfDone(parentRevID)
	}
	return nil
}

// releaseParentTreeIfDone implements the memory-budget release policy
// (§4.D "Memory budget"): once a revision has exactly one surviving child,
// its cached tree can be dropped.
func (o *Orchestrator) releaseParentTreeIfDone(parentRevID string) {
	loc, ok := o.revLoc[parentRevID]
	if !ok {
		return
	}
	b, ok := o.branches[loc.BranchName]
	if !ok {
		return
	}
	parentRev := b.RevisionAt(loc.Rev)
	if parentRev == nil {
		return
	}
	remaining := o.totalChildren[parentRevID] - o.doneChildren[parentRevID]
	stillLive := remaining > 1 || parentRev == b.HEAD || parentRev == b.Stage
	parentRev.ReleaseIfSingleChild(stillLive)
}

func (o *Orchestrator) markChanged(name string) {
	if o.changedSet[name] {
		return
	}
	o.changedSet[name] = true
	o.changedOrder = append(o.changedOrder, name)
}

func (o *Orchestrator) applyNode(rev *changeset.Revision, n changeset.Node) {
	switch n.Kind {
	case changeset.NodeAddBranch:
		name := n.BranchName
		if name == "" {
			name = rev.BranchName
		}
		b, exists := o.branches[name]
		if !exists {
			resolved, ok := o.opts.Config.MapBranch(o.opts.ProjectPath, name)
			if !ok || resolved.Map.Blocked {
				o.warn(rev, fmt.Sprintf("branch %q has no mapping; dropping", name))
				o.headName = ""
				return
			}
			b = branch.New(name, resolved, rev.Rev, rev.RevID)
			o.branches[name] = b
		}
		o.headName = name
		o.markChanged(name)

	case changeset.NodeParentBranch:
		loc, ok := o.revLoc[n.CopyFromRev]
		if !ok {
			o.warn(rev, fmt.Sprintf("unresolved merge parent %q", n.CopyFromRev))
			return
		}
		parentBranch := o.branches[loc.BranchName]
		parentRev := parentBranch.RevisionAt(loc.Rev)
		if parentRev == nil {
			o.warn(rev, fmt.Sprintf("unresolved merge parent revision %q", n.CopyFromRev))
			return
		}
		if o.headName != "" {
			o.mergeParents[o.headName] = append(o.mergeParents[o.headName], commitbuilder.ParentRef{Branch: parentBranch, Rev: parentRev})
			o.markChanged(o.headName)
		}

	case changeset.NodeDeleteBranch:
		name := n.BranchName
		if name == "" {
			name = rev.BranchName
		}
		if b, ok := o.branches[name]; ok {
			b.Delete()
			o.markChanged(name)
		}

	case changeset.NodeTagBranch:
		if b := o.branches[o.headName]; b != nil {
			b.Stage.Tags = append(b.Stage.Tags, n.Tag)
			o.markChanged(o.headName)
		}

	case changeset.NodeCherryPickBranch:
		if b := o.branches[o.headName]; b != nil {
			b.Stage.CherryPicks = append(b.Stage.CherryPicks, n.CopyFromRev)
			o.markChanged(o.headName)
		}

	case changeset.NodeAddFile, changeset.NodeChangeFile:
		if b := o.branches[o.headName]; b != nil && b.Stage.Tree != nil {
			attrs := gitAttributesFor(b, n.Path)
			blob := object.NewBlob(n.Data, object.Props{Symlink: n.Symlink, Executable: n.Executable}, attrs)
			b.Stage.Tree.Set(n.Path, blob)
			o.markChanged(o.headName)
		}

	case changeset.NodeDeleteFile:
		if b := o.branches[o.headName]; b != nil && b.Stage.Tree != nil {
			o.deleteFile(b, rev, n)
			o.markChanged(o.headName)
		}
	}
}

// deleteFile applies a file deletion, honoring the two .hgignore/.gitignore
// "Policy details" edge cases from §4.C: a delete renamed from .hgignore
// restores whatever .gitignore existed at that path in the parent revision
// rather than vanishing outright, and a direct .gitignore deletion
// regenerates the file from a still-present sibling .hgignore instead of
// deleting it.
func (o *Orchestrator) deleteFile(b *branch.Branch, rev *changeset.Revision, n changeset.Node) {
	switch {
	case n.FromHgignoreDelete:
		if o.restoreFromParent(b, rev, n.Path) {
			return
		}
	case path.Base(n.Path) == ".gitignore":
		if o.regenerateGitignore(b, rev, n.Path) {
			return
		}
	}
	b.Stage.Tree.Delete(n.Path)
}

// restoreFromParent looks up path in rev's first parent's tree and, if
// present there, re-creates it on b.Stage.Tree instead of deleting it.
// Reports whether a restore happened.
func (o *Orchestrator) restoreFromParent(b *branch.Branch, rev *changeset.Revision, path string) bool {
	if len(rev.Parents) == 0 {
		return false
	}
	parentTree, err := o.Tree(rev.Parents[0])
	if err != nil {
		return false
	}
	for _, f := range parentTree.Files() {
		if f.Path != path {
			continue
		}
		attrs := gitAttributesFor(b, path)
		blob := object.NewBlob(f.Data, object.Props{Symlink: f.Symlink, Executable: f.Executable}, attrs)
		b.Stage.Tree.Set(path, blob)
		return true
	}
	return false
}

// regenerateGitignore re-derives gitignorePath's content from a sibling
// .hgignore that still exists in the source revision's raw (hg-side) tree,
// rather than deleting it outright (§4.C: ".gitignore deletion when a
// sibling .hgignore still exists -> regenerate .gitignore from it"). Since
// .hgignore is always renamed to its .gitignore sibling on the git side
// (interceptIgnoreFiles), its own liveness can only be checked against the
// hg-native tree, not b.Stage.Tree. Reports whether a regeneration
// happened.
func (o *Orchestrator) regenerateGitignore(b *branch.Branch, rev *changeset.Revision, gitignorePath string) bool {
	dir := path.Dir(gitignorePath)
	hgignorePath := ".hgignore"
	if dir != "." {
		hgignorePath = dir + "/.hgignore"
	}
	hgTree, err := o.Tree(rev.RevID)
	if err != nil {
		return false
	}
	for _, f := range hgTree.Files() {
		if f.Path != hgignorePath {
			continue
		}
		result := hgignore.Translate(f.Data)
		attrs := gitAttributesFor(b, gitignorePath)
		b.Stage.Tree.Set(gitignorePath, object.NewBlob(result.Gitignore, object.Props{}, attrs))
		return true
	}
	return false
}

func gitAttributesFor(b *branch.Branch, path string) map[string]string {
	if b.Cfg == nil || b.Cfg.Map == nil || b.Cfg.Map.GitAttributes == nil {
		return nil
	}
	if v, ok := b.Cfg.Map.GitAttributes[path]; ok {
		return map[string]string{"mode": v}
	}
	return nil
}

func (o *Orchestrator) commitBranch(ctx context.Context, name string, rev *changeset.Revision) error {
	b := o.branches[name]
	if b == nil {
		return nil
	}

	env, err := o.envFor(b)
	if err != nil {
		return err
	}

	var parents []commitbuilder.ParentRef
	if b.HEAD != nil && b.HEAD.HaveCommit {
		parents = append(parents, commitbuilder.ParentRef{Branch: b, Rev: b.HEAD})
	}
	parents = append(parents, o.mergeParents[name]...)

	cherryPicks := o.resolveCherryPicks(b)

	ident := o.identityFor(rev)
	msg := commitbuilder.RawMessage{
		Author:             ident,
		Committer:          ident,
		Log:                commitbuilder.RunEditRules(branchMapOf(b), rev.Log, rev.Rev, rev.RevID),
		CherryPicks:        cherryPicks,
		DecorateRevisionID: o.opts.DecorateRevisionID,
		Rev:                rev.Rev,
	}

	out, err := commitbuilder.Build(ctx, o.snk, env, b, parents, msg)
	if err != nil {
		return err
	}

	if out.Emitted {
		o.applyTags(ctx, b, out.Commit, rev)
	}

	nextRev := rev.Rev + 1
	b.AdvanceStage(nextRev, rev.RevID)
	return nil
}

// resolveCherryPicks dedups b.Stage.CherryPicks against merged_revisions
// (§8 Property 5) and resolves each remaining source revID to a commit.
func (o *Orchestrator) resolveCherryPicks(b *branch.Branch) []commitbuilder.CherryPick {
	var out []commitbuilder.CherryPick
	for _, sourceRevID := range b.Stage.CherryPicks {
		loc, ok := o.revLoc[sourceRevID]
		if !ok {
			continue
		}
		if mergedRev, ok := b.Stage.MergedRev(o.branches[loc.BranchName]); ok && mergedRev >= loc.Rev {
			continue // already merged; dedup
		}
		sourceBranch := o.branches[loc.BranchName]
		sourceRev := sourceBranch.RevisionAt(loc.Rev)
		if sourceRev == nil || !sourceRev.HaveCommit {
			continue
		}
		out = append(out, commitbuilder.CherryPick{
			SourceRevID:     sourceRevID,
			SourceCommit:    sourceRev.Commit,
			SourceRef:       loc.BranchName,
			SourceRev:       loc.Rev,
			OriginalMessage: o.revLog[sourceRevID],
		})
	}
	return out
}

func (o *Orchestrator) applyTags(ctx context.Context, b *branch.Branch, commit plumbing.GitHash, rev *changeset.Revision) {
	if len(b.Stage.Tags) == 0 {
		return
	}
	bm := branchMapOf(b)
	for _, label := range b.Stage.Tags {
		if bm == nil {
			o.warn(rev, fmt.Sprintf("tag %q has no branch map; dropping", label))
			continue
		}
		refname, state := bm.MapTag(label)
		switch state {
		case config.TagNoMapping:
			o.warn(rev, fmt.Sprintf("tag %q has no mapping; dropping", label))
			continue
		case config.TagExplicitlyUnmapped:
			o.warn(rev, fmt.Sprintf("tag %q explicitly unmapped; dropping", label))
			continue
		}
		name := strings.TrimPrefix(refname, "refs/tags/")
		ident := o.identityFor(rev)
		// §9 open question: an empty message yields a lightweight ref,
		// not an annotated tag object.
		flags := sink.TagFlags{Annotated: strings.TrimSpace(rev.Log) != ""}
		if err := o.snk.Tag(ctx, name, commit, rev.Log, ident, flags); err != nil {
			o.warn(rev, fmt.Sprintf("tag %q: %v", label, err))
		}
	}
}

func branchMapOf(b *branch.Branch) *config.BranchMap {
	if b.Cfg == nil {
		return nil
	}
	return b.Cfg.Map
}

func (o *Orchestrator) identityFor(rev *changeset.Revision) sink.Identity {
	if o.opts.Identity != nil {
		return o.opts.Identity(rev.Author, rev.DateTime)
	}
	return sink.Identity{Name: rev.Author, Email: rev.Author, When: rev.DateTime}
}

func (o *Orchestrator) envFor(b *branch.Branch) (sink.Env, error) {
	if b.GitIndexDir == "" {
		o.branchSeq++
		b.GitIndexDir = fmt.Sprintf("hg_temp/%d", o.branchSeq)
	}
	return o.snk.MakeEnv(b.GitIndexDir, b.GitIndexDir+"/index")
}

// Finalize queues the configured refname -> HEAD commit for every branch
// that ever committed, resolving collisions through the all-refs tree
// (§4.D, §4.G "make_unique_refname"), then flushes the ref batch.
func (o *Orchestrator) Finalize(ctx context.Context) error {
	for _, name := range sortedBranchNames(o.branches) {
		b := o.branches[name]
		if b.HEAD == nil || !b.HEAD.HaveCommit {
			continue
		}
		candidate := b.Refname
		if candidate == "" {
			continue
		}
		final, ok := o.MakeUniqueRefname(candidate)
		if !ok {
			o.Warnings = append(o.Warnings, Warning{Reason: fmt.Sprintf("branch %q ref %q unresolvable after collisions; dropping", name, candidate)})
			continue
		}
		o.snk.QueueUpdateRef(final, b.HEAD.Commit)
	}
	return o.snk.CommitRefsUpdate(ctx)
}

func sortedBranchNames(m map[string]*branch.Branch) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}

type refSentinel struct{}

func (refSentinel) Equal(other pathtree.Value) bool { return false }

// MakeUniqueRefname implements §4.G's make_unique_refname: probe
// candidate, candidate___1, ... candidate___99 against the all-refs tree,
// registering the first that neither exactly collides nor crosses a
// directory/leaf boundary with an existing entry.
func (o *Orchestrator) MakeUniqueRefname(candidate string) (string, bool) {
	for i := 0; i <= 99; i++ {
		name := candidate
		if i > 0 {
			name = fmt.Sprintf("%s___%d", candidate, i)
		}
		if o.claimRefname(name) {
			o.allRefs.MarkUsedBy(name, candidate)
			return name, true
		}
	}
	return "", false
}

func (o *Orchestrator) claimRefname(refname string) bool {
	if _, exists := o.allRefs.Get(refname); exists {
		return false
	}
	if node, ok := o.allRefs.FindNode(refname); ok && node.IsDir() {
		return false
	}
	comps := strings.Split(refname, "/")
	prefix := ""
	for i := 0; i < len(comps)-1; i++ {
		if prefix == "" {
			prefix = comps[i]
		} else {
			prefix += "/" + comps[i]
		}
		if _, exists := o.allRefs.Get(prefix); exists {
			return false
		}
	}
	o.allRefs.Set(refname, refSentinel{})
	return true
}
