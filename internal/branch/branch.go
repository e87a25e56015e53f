// Package branch implements the per-branch state machine (SPEC_FULL.md
// component G): the HEAD/stage sentinel pair, the prev/next revision
// chain, and the copy-on-write merged_revisions table.
package branch

import (
	"github.com/alegrigoriev/hg2git/internal/config"
	"github.com/alegrigoriev/hg2git/internal/object"
	"github.com/alegrigoriev/hg2git/internal/pathtree"
	"github.com/alegrigoriev/hg2git/internal/plumbing"
)

// mergedRevisions is the copy-on-write map backing BranchRevision.merged:
// "shared by reference down the revision chain and copied on first local
// mutation" (§4.D "Shared resources").
type mergedRevisions struct {
	m map[*Branch]int
}

func newMergedRevisions() *mergedRevisions {
	return &mergedRevisions{m: make(map[*Branch]int)}
}

func (mr *mergedRevisions) clone() *mergedRevisions {
	out := make(map[*Branch]int, len(mr.m))
	for k, v := range mr.m {
		out[k] = v
	}
	return &mergedRevisions{m: out}
}

// RevisionProps is one of a revision's accumulated property-list entries
// (§3 Branch revision: `props_list: [RevisionProps]`) — e.g. a tag
// annotation or a cherry-pick source awaiting commit-message synthesis.
type RevisionProps struct {
	Tag           string
	TagRefname    string
	CherryPickOf  string // source rev id
	AnnotatedTag  bool
}

// BranchRevision is one node of a branch's linear chain (§3 "Branch
// revision"):
//
//	{rev, rev_id, tree, staged_tree, committed_tree, commit?, parents,
//	 merged_revisions, tags, props_list, prev_rev, next_rev}
type BranchRevision struct {
	Rev   int
	RevID string

	// Tree is the live path tree being assembled for this revision; nil
	// means the branch has been logically deleted at this point.
	Tree *pathtree.Tree

	// CommittedTree is the object.Tree actually written to the commit,
	// set once the commit builder runs.
	CommittedTree *object.Tree
	CommittedGitTree plumbing.GitHash
	HaveCommittedGitTree bool

	// Commit is the resulting commit's Git SHA-1, set after emission (the
	// zero hash if the revision produced no commit, per the
	// empty-commit-elision rule).
	Commit       plumbing.GitHash
	HaveCommit   bool

	Parents []*BranchRevision

	merged *mergedRevisions
	// mergedShared is true while merged is still the same pointer as
	// Prev's, i.e. it has not yet been locally mutated.
	mergedShared bool

	Tags       []string
	PropsList  []RevisionProps

	CherryPicks []string // source rev ids pending dedup against merged

	Prev *BranchRevision
	Next *BranchRevision
}

// MergedRev returns the highest revision of branch b known to be merged
// into this revision's ancestry, per §8 Property 8 (monotone
// merged-revisions).
func (r *BranchRevision) MergedRev(b *Branch) (int, bool) {
	rev, ok := r.merged.m[b]
	return rev, ok
}

// ForEachMerged calls fn for every (branch, rev) pair currently recorded in
// this revision's merged_revisions table, letting callers fold an
// ancestor's table into their own (§4.E step 3).
func (r *BranchRevision) ForEachMerged(fn func(b *Branch, rev int)) {
	for b, rev := range r.merged.m {
		fn(b, rev)
	}
}

// SetMergedRev records that revision rev of branch b is now merged into
// this revision's ancestry, cloning the shared map on first local mutation
// (copy-on-write).
func (r *BranchRevision) SetMergedRev(b *Branch, rev int) {
	if cur, ok := r.merged.m[b]; ok && cur >= rev {
		return
	}
	if r.mergedShared {
		r.merged = r.merged.clone()
		r.mergedShared = false
	}
	r.merged.m[b] = rev
}

// next allocates a fresh successor revision, sharing (not copying) the
// merged_revisions map and linking the prev/next chain. The tree is deep-
// cloned, not aliased: §3 gives a revision its own "tree" distinct from its
// predecessor's so the commit builder can diff the two afterwards — r.Tree
// goes on to become an immutable, already-committed snapshot once r is
// promoted to HEAD, while n.Tree is the one applyNode mutates in place as
// the new stage.
func (r *BranchRevision) next(rev int, revID string) *BranchRevision {
	var tree *pathtree.Tree
	if r.Tree != nil {
		tree = r.Tree.Clone()
	}
	n := &BranchRevision{
		Rev:          rev,
		RevID:        revID,
		Tree:         tree,
		merged:       r.merged,
		mergedShared: true,
		Prev:         r,
	}
	r.Next = n
	return n
}

// Branch is the per-branch state container (§3 "Branch"):
//
//	{name, cfg, refname, revisions_ref, HEAD, stage, revisions,
//	 edit_msg_list, git_index_dir, first_revision}
type Branch struct {
	Name            string
	Cfg             *config.Resolved
	Refname         string
	RevisionsRefTpl string

	HEAD  *BranchRevision
	Stage *BranchRevision

	// Revisions holds every allocated BranchRevision by position;
	// Revisions[rev-FirstRevision] == the BranchRevision for rev. Gaps
	// (the branch was inactive in a revision) are filled by repeating the
	// previous pointer.
	Revisions     []*BranchRevision
	FirstRevision int

	GitIndexDir string
}

// New creates a branch whose first stage is an empty, parentless
// revision.
func New(name string, cfg *config.Resolved, firstRev int, firstRevID string) *Branch {
	b := &Branch{
		Name:          name,
		Cfg:           cfg,
		FirstRevision: firstRev,
	}
	if cfg != nil {
		b.Refname = cfg.Refname()
	}
	initial := &BranchRevision{
		Rev:          firstRev,
		RevID:        firstRevID,
		Tree:         pathtree.New(),
		merged:       newMergedRevisions(),
		mergedShared: false,
	}
	b.Stage = initial
	b.Revisions = append(b.Revisions, initial)
	return b
}

// RevisionsRef computes the per-revision ref for rev (§4.D rule 9:
// "Queue refs/revisions/<branch>/r<rev> -> commit").
func (b *Branch) RevisionsRef(rev int) string {
	if b.Cfg != nil {
		return b.Cfg.RevisionsRef(rev)
	}
	return "refs/revisions/" + b.Name + "/r" + itoa(rev)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// AdvanceStage promotes Stage to HEAD (the commit builder, run by the
// caller between the two steps, is what actually fills in CommittedTree /
// Commit on the outgoing stage) and allocates a fresh stage linked to the
// new HEAD, per §4.D: "the branch promotes stage to HEAD ... then
// allocates a fresh stage linked to the new HEAD."
func (b *Branch) AdvanceStage(nextRev int, nextRevID string) {
	newHead := b.Stage
	b.HEAD = newHead
	b.Stage = newHead.next(nextRev, nextRevID)
	b.fillRevisions(newHead)
	idx := nextRev - b.FirstRevision
	for len(b.Revisions) < idx {
		b.Revisions = append(b.Revisions, newHead)
	}
	if len(b.Revisions) == idx {
		b.Revisions = append(b.Revisions, b.Stage)
	} else {
		b.Revisions[idx] = b.Stage
	}
}

// fillRevisions pads Revisions so that Revisions[rev-FirstRevision] ==
// head for every rev up to and including head.Rev, repeating head for any
// gap left by the branch being inactive in intervening revisions (§3
// Branch invariant).
func (b *Branch) fillRevisions(head *BranchRevision) {
	idx := head.Rev - b.FirstRevision
	for len(b.Revisions) <= idx {
		b.Revisions = append(b.Revisions, head)
	}
	b.Revisions[idx] = head
}

// RevisionAt returns the BranchRevision recorded for rev, or nil if rev
// precedes the branch's first revision.
func (b *Branch) RevisionAt(rev int) *BranchRevision {
	idx := rev - b.FirstRevision
	if idx < 0 || idx >= len(b.Revisions) {
		return nil
	}
	return b.Revisions[idx]
}

// Deleted reports whether the branch is logically deleted at Stage (a nil
// tree on stage, per §4.D's "A null tree on stage... means no commit this
// cycle; stage is reset").
func (b *Branch) Deleted() bool {
	return b.Stage.Tree == nil
}

// Delete marks the branch deleted: stage's tree becomes nil.
func (b *Branch) Delete() {
	b.Stage.Tree = nil
}

// ReleaseIfSingleChild implements the memory-budget release policy (§4.D
// "Memory budget"): once a revision has exactly one surviving child (its
// immediate Next, and nothing else still reachable as an unprocessed merge
// base), its full tree can be dropped.
func (r *BranchRevision) ReleaseIfSingleChild(stillReferenced bool) {
	if stillReferenced {
		return
	}
	if r.Next != nil {
		r.Tree = nil
	}
}
