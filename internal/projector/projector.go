// Package projector implements the revision projector (SPEC_FULL.md
// component E): wraps each input changeset into the deterministic
// sequence of revision-nodes described in §4.C, including the
// .hgignore/.hgeol interception rules.
package projector

import (
	"path"
	"sort"

	"github.com/alegrigoriev/hg2git/internal/changeset"
	"github.com/alegrigoriev/hg2git/internal/hgignore"
)

// Context answers the graph questions the projector needs but does not
// own: which branch a previously-seen revision landed on, and whether a
// parent still has children after the current merge. The orchestrator
// (internal/convert) is the concrete implementation, since it is the
// component that actually tracks branches and their child counts (§4.G).
type Context interface {
	// BranchNameOf returns the branch a previously processed revision was
	// committed to.
	BranchNameOf(revID string) (string, bool)

	// HasOtherChildOnBranch reports whether revID (a parent of the
	// revision currently being projected) already has some other child
	// landing on branchName, which forces a sub-branch split (§4.C rule
	// 1).
	HasOtherChildOnBranch(revID, branchName, excludingChildRevID string) bool

	// RemainingChildren reports how many children revID has left once
	// excludingChildRevID is accounted for, used to decide whether to
	// emit a "delete branch" node on a merged-away parent.
	RemainingChildren(revID, excludingChildRevID string) int

	// Tree re-fetches a previously seen revision's full file tree, used
	// for the multi-parent full-tree comparison (§4.C rule 2).
	Tree(revID string) (changeset.FileTree, error)
}

// Options toggles optional translation passes.
type Options struct {
	ConvertHgignore bool
	ConvertHgeol    bool
}

// Project expands rev into the deterministic revision-node sequence from
// §4.C: zero or more branch nodes, file deltas, one tag node per label,
// and an optional cherrypick node.
func Project(rev *changeset.Revision, ctx Context, opts Options) ([]changeset.Node, error) {
	var nodes []changeset.Node

	branchNodes, err := projectBranchNodes(rev, ctx)
	if err != nil {
		return nil, err
	}
	nodes = append(nodes, branchNodes...)

	fileNodes, err := projectFileNodes(rev, ctx, opts)
	if err != nil {
		return nil, err
	}
	// §9 open question: when both .gitignore and .hgignore are touched in
	// the same revision, the .gitignore delta must apply before the
	// .hgignore-derived delta overrides it. projectFileNodes preserves
	// rev.Nodes' declaration order for a single parent and sorts a merge's
	// nodes by path (a directory's .gitignore sorts before its .hgignore),
	// so interception runs as a pass over the already-ordered list rather
	// than re-deriving it.
	nodes = append(nodes, interceptIgnoreFiles(fileNodes, opts)...)

	for _, tag := range rev.Nodes {
		if tag.Kind == changeset.NodeTagBranch {
			nodes = append(nodes, tag)
		}
	}

	if src, ok := rev.Source(); ok {
		nodes = append(nodes, changeset.Node{Kind: changeset.NodeCherryPickBranch, CopyFromRev: src})
	}

	return nodes, nil
}

// projectFileNodesUncounted extracts rev's own file-level nodes verbatim,
// used directly for the single-parent case (§4.C rule 2: "use the
// changeset's native file list").
func projectFileNodesUncounted(rev *changeset.Revision) []changeset.Node {
	var raw []changeset.Node
	for _, n := range rev.Nodes {
		switch n.Kind {
		case changeset.NodeAddFile, changeset.NodeChangeFile, changeset.NodeDeleteFile:
			raw = append(raw, n)
		}
	}
	return raw
}

func projectBranchNodes(rev *changeset.Revision, ctx Context) ([]changeset.Node, error) {
	var nodes []changeset.Node

	if len(rev.Parents) == 0 {
		nodes = append(nodes, changeset.Node{Kind: changeset.NodeAddBranch, BranchName: rev.BranchName})
		return nodes, nil
	}

	firstParent := rev.Parents[0]
	parentBranch, _ := ctx.BranchNameOf(firstParent)
	split := parentBranch != rev.BranchName || ctx.HasOtherChildOnBranch(firstParent, rev.BranchName, rev.RevID)
	if split {
		nodes = append(nodes, changeset.Node{Kind: changeset.NodeAddBranch, BranchName: rev.BranchName})
	}

	for _, parentRevID := range rev.Parents[1:] {
		nodes = append(nodes, changeset.Node{Kind: changeset.NodeParentBranch, CopyFromRev: parentRevID})

		parentOfMergeBranch, _ := ctx.BranchNameOf(parentRevID)
		if ctx.RemainingChildren(parentRevID, rev.RevID) == 0 {
			nodes = append(nodes, changeset.Node{Kind: changeset.NodeDeleteBranch, BranchName: parentOfMergeBranch})
		}
	}

	return nodes, nil
}

func projectFileNodes(rev *changeset.Revision, ctx Context, opts Options) ([]changeset.Node, error) {
	if len(rev.Parents) <= 1 {
		return projectFileNodesUncounted(rev), nil
	}

	// Multi-parent: compare full trees against the first parent,
	// expanded to files (§4.C rule 2).
	firstParentTree, err := ctx.Tree(rev.Parents[0])
	if err != nil {
		return nil, err
	}
	selfFiles := map[string]changeset.FileEntry{}
	for _, n := range rev.Nodes {
		if n.Kind == changeset.NodeAddFile || n.Kind == changeset.NodeChangeFile {
			selfFiles[n.Path] = changeset.FileEntry{Path: n.Path, Data: n.Data, Symlink: n.Symlink, Executable: n.Executable}
		}
	}
	// Revision's own full tree is approximated as "first parent's tree
	// with this changeset's own node list applied", since the reader is
	// only required to supply a full snapshot for *previously seen*
	// revisions (the random-access Tree lookup), not the one currently
	// streaming.
	parentFiles := map[string]changeset.FileEntry{}
	for _, f := range firstParentTree.Files() {
		parentFiles[f.Path] = f
	}
	for _, n := range rev.Nodes {
		if n.Kind == changeset.NodeDeleteFile {
			delete(parentFiles, n.Path)
		}
	}
	selfTree := map[string]changeset.FileEntry{}
	for k, v := range parentFiles {
		selfTree[k] = v
	}
	for k, v := range selfFiles {
		selfTree[k] = v
	}

	var nodes []changeset.Node
	for path, f := range selfTree {
		old, existed := parentFiles[path]
		if !existed || !bytesEqualFile(old, f) {
			kind := changeset.NodeChangeFile
			if !existed {
				kind = changeset.NodeAddFile
			}
			nodes = append(nodes, changeset.Node{Kind: kind, Path: path, Data: f.Data, Symlink: f.Symlink, Executable: f.Executable})
		}
	}
	for path := range parentFiles {
		if _, still := selfTree[path]; !still {
			nodes = append(nodes, changeset.Node{Kind: changeset.NodeDeleteFile, Path: path})
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Path < nodes[j].Path })
	return nodes, nil
}

func bytesEqualFile(a, b changeset.FileEntry) bool {
	return a.Symlink == b.Symlink && a.Executable == b.Executable && string(a.Data) == string(b.Data)
}

// interceptIgnoreFiles applies the .hgignore/.hgeol rename-and-translate
// rules from §4.C's "Policy details".
func interceptIgnoreFiles(nodes []changeset.Node, opts Options) []changeset.Node {
	if !opts.ConvertHgignore && !opts.ConvertHgeol {
		return nodes
	}
	out := make([]changeset.Node, 0, len(nodes))
	for _, n := range nodes {
		switch {
		case opts.ConvertHgignore && isHgignore(n.Path):
			out = append(out, translateIgnoreNode(n, ".gitignore", hgignore.Translate))
		case opts.ConvertHgeol && isHgeol(n.Path):
			out = append(out, translateIgnoreNode(n, ".gitattributes", hgignore.TranslateEOL))
		default:
			out = append(out, n)
		}
	}
	return out
}

func isHgignore(p string) bool { return path.Base(p) == ".hgignore" }
func isHgeol(p string) bool    { return path.Base(p) == ".hgeol" }

func translateIgnoreNode(n changeset.Node, siblingName string, translate func([]byte) hgignore.Result) changeset.Node {
	dir := path.Dir(n.Path)
	sibling := siblingName
	if dir != "." {
		sibling = dir + "/" + siblingName
	}
	switch n.Kind {
	case changeset.NodeDeleteFile:
		// §4.C: on .hgignore deletion, restoring a prior sibling
		// .gitignore is the orchestrator's job (it has the parent
		// tree); the projector renames the delete and tags it so the
		// orchestrator can tell it apart from a direct .gitignore
		// deletion, which instead regenerates from a surviving sibling
		// .hgignore.
		return changeset.Node{Kind: changeset.NodeDeleteFile, Path: sibling, FromHgignoreDelete: siblingName == ".gitignore"}
	default:
		result := translate(n.Data)
		return changeset.Node{
			Kind:       n.Kind,
			Path:       sibling,
			Data:       result.Gitignore,
			Symlink:    false,
			Executable: false,
		}
	}
}
