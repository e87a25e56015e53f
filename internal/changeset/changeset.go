// Package changeset defines the changeset reader contract and input
// revision / revision-node types described in SPEC_FULL.md §3 and §6 (the
// "Changeset reader interface", component D, and the "Object sink" is
// represented over in internal/sink).
package changeset

import "time"

// Revision is one input changeset, per §3's "Input revision":
//
//	{rev, rev_id, author, log, datetime, branch_name, parents, children,
//	 extra, nodes}
//
// Invariants (enforced by callers, not by this type): parents precede
// children in stream order; RevID is unique; BranchName is non-empty.
type Revision struct {
	Rev        int
	RevID      string
	Author     string
	Log        string
	DateTime   time.Time
	BranchName string
	Parents    []string // rev ids
	Children   []string // rev ids
	Extra      map[string]string
	Nodes      []Node
}

// Source returns the cherry-pick source rev id recorded in extra["source"],
// if any (§4.C rule 4).
func (r *Revision) Source() (string, bool) {
	if r.Extra == nil {
		return "", false
	}
	src, ok := r.Extra["source"]
	return src, ok && src != ""
}

// NodeKind tags the variant held by a Node.
type NodeKind int

const (
	NodeAddBranch NodeKind = iota
	NodeParentBranch
	NodeDeleteBranch
	NodeTagBranch
	NodeCherryPickBranch
	NodeAddFile
	NodeChangeFile
	NodeDeleteFile
)

func (k NodeKind) String() string {
	switch k {
	case NodeAddBranch:
		return "add-branch"
	case NodeParentBranch:
		return "parent-branch"
	case NodeDeleteBranch:
		return "delete-branch"
	case NodeTagBranch:
		return "tag-branch"
	case NodeCherryPickBranch:
		return "cherrypick-branch"
	case NodeAddFile:
		return "add-file"
	case NodeChangeFile:
		return "change-file"
	case NodeDeleteFile:
		return "delete-file"
	default:
		return "unknown"
	}
}

// Node is the tagged RevisionNode variant from §3: finer-grained than a
// Revision, the unit the orchestrator (internal/convert) dispatches.
//
// Payload fields are kind-specific; only the fields relevant to Kind are
// populated, following the sum-type recommendation in §9 ("Tagged variant,
// not subclassing").
type Node struct {
	Kind NodeKind

	// File node payload (NodeAddFile / NodeChangeFile / NodeDeleteFile).
	Path       string
	Data       []byte
	Symlink    bool
	Executable bool

	// Branch parent/cherrypick payload.
	CopyFromRev string // rev id

	// Tag payload.
	Tag string

	// Branch name this node targets; empty means "the head branch".
	BranchName string

	// FromHgignoreDelete marks a NodeDeleteFile produced by renaming a
	// .hgignore deletion to its .gitignore sibling (§4.C "Policy
	// details"): the orchestrator restores a prior sibling .gitignore from
	// the parent tree instead of deleting outright, distinguishing this
	// from an ordinary direct .gitignore deletion.
	FromHgignoreDelete bool
}

// Reader is the external changeset iterator contract (§6): "Must return
// parents before children." Implementations provide random access by rev
// id to re-fetch a parent's tree when a merge requires full comparison
// (§4.C rule 2), and are expected to drop references to emitted revisions
// once Next has moved past them so the core can bound memory (§5).
type Reader interface {
	// Next returns the next revision in stream order, or (nil, io.EOF)
	// when exhausted.
	Next() (*Revision, error)

	// Tree performs random access to a previously-seen (or
	// still-pending) revision's full file tree, keyed by rev id. Used to
	// re-fetch a merge parent's tree for full comparison (§4.C rule 2).
	Tree(revID string) (FileTree, error)
}

// FileTree is a minimal read-only snapshot of a changeset's full file list,
// used only for the multi-parent full-tree comparison in §4.C rule 2. It
// deliberately does not expose directory structure: the projector expands
// it through pathtree itself.
type FileTree interface {
	// Files returns every file path present in this snapshot together
	// with its content and properties.
	Files() []FileEntry
}

// FileEntry is one file in a FileTree snapshot.
type FileEntry struct {
	Path       string
	Data       []byte
	Symlink    bool
	Executable bool
}
