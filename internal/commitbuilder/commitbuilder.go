// Package commitbuilder implements the commit builder (SPEC_FULL.md
// component H): turns a branch's staged tree and parent set into a Git
// commit, per §4.E.
package commitbuilder

import (
	"context"
	"fmt"

	"github.com/alegrigoriev/hg2git/internal/branch"
	"github.com/alegrigoriev/hg2git/internal/object"
	"github.com/alegrigoriev/hg2git/internal/pathtree"
	"github.com/alegrigoriev/hg2git/internal/plumbing"
	"github.com/alegrigoriev/hg2git/internal/sink"
)

// ParentRef pairs a merge/direct parent's BranchRevision with the Branch
// that owns it, so merged_revisions bookkeeping (§4.E step 3) can update
// the right table.
type ParentRef struct {
	Branch *branch.Branch
	Rev    *branch.BranchRevision
}

// CherryPick is one unresolved cherry-pick source still pending dedup
// against merged_revisions (§8 Property 5).
type CherryPick struct {
	SourceRevID     string
	SourceCommit    plumbing.GitHash
	SourceRef       string // short ref of the source branch, e.g. "main"
	SourceRev       int
	OriginalMessage string // the source commit's message, for Change-Id inheritance
}

// RawMessage carries everything the commit builder needs to assemble a
// message before the edit pipeline and synthesis run (§4.E step 7-8).
type RawMessage struct {
	Author    sink.Identity
	Committer sink.Identity
	Log       string // may be empty; triggers synthesis; edit rules already applied by the caller

	CherryPicks []CherryPick

	// DecorateRevisionID appends "HG-revision: <rev>" when set, per the
	// CLI's --decorate-commit-message=revision-id flag.
	DecorateRevisionID bool
	Rev                int
}

// Output is what Build produced for one revision.
type Output struct {
	Emitted bool
	Commit  plumbing.GitHash
	Tree    plumbing.GitHash // the sink's Git tree SHA-1
}

// Build runs the full commit builder pipeline for owner's current Stage
// against its current HEAD (which may be nil for a branch's first
// revision).
func Build(ctx context.Context, snk sink.Sink, env sink.Env, owner *branch.Branch, parents []ParentRef, msg RawMessage) (*Output, error) {
	stage := owner.Stage

	if stage.Tree == nil {
		// Branch deleted this cycle: no commit, stage already reset by
		// the caller (§4.H).
		return &Output{Emitted: false}, nil
	}

	var headTree *pathtree.Tree
	if owner.HEAD != nil {
		headTree = owner.HEAD.Tree
	}
	if headTree == nil {
		headTree = pathtree.New()
	}

	diffs := headTree.Compare(stage.Tree, true)

	if err := hashMissingBlobs(ctx, snk, env, diffs); err != nil {
		return nil, fmt.Errorf("commitbuilder: hash blobs: %w", err)
	}
	entries := buildIndexEntries(diffs)

	if err := snk.UpdateIndex(ctx, env, entries); err != nil {
		return nil, fmt.Errorf("commitbuilder: update-index: %w", err)
	}
	gitTree, err := snk.WriteTree(ctx, env)
	if err != nil {
		return nil, fmt.Errorf("commitbuilder: write-tree: %w", err)
	}

	stage.CommittedTree = object.FromPathTree(stage.Tree)
	stage.CommittedGitTree = gitTree
	stage.HaveCommittedGitTree = true

	// Parent set + merged_revisions (§4.E step 3).
	parentHashes := make([]plumbing.GitHash, 0, len(parents))
	var basePlumbing plumbing.GitHash
	haveBase := false
	for _, p := range parents {
		stage.Parents = append(stage.Parents, p.Rev)
		if p.Rev.HaveCommit {
			parentHashes = append(parentHashes, p.Rev.Commit)
		}
		if !haveBase && p.Rev.HaveCommittedGitTree {
			basePlumbing = p.Rev.CommittedGitTree
			haveBase = true
		}
		if p.Branch != nil {
			stage.SetMergedRev(p.Branch, p.Rev.Rev)
			mergeAncestorTable(stage, p.Rev)
		}
	}

	// Empty-commit elision (§4.E step 6, §8 Property 4).
	if len(parents) < 2 && haveBase && basePlumbing == gitTree {
		stage.HaveCommit = false
		return &Output{Emitted: false, Tree: gitTree}, nil
	}
	if len(parents) < 2 && !haveBase && len(diffs) == 0 {
		stage.HaveCommit = false
		return &Output{Emitted: false, Tree: gitTree}, nil
	}

	desc := synthesize(diffs)
	message := assembleMessage(msg, desc)

	commit, err := snk.CommitTree(ctx, env, gitTree, parentHashes, message, msg.Author, msg.Committer)
	if err != nil {
		return nil, fmt.Errorf("commitbuilder: commit-tree: %w", err)
	}
	stage.Commit = commit
	stage.HaveCommit = true

	snk.QueueUpdateRef(owner.RevisionsRef(stage.Rev), commit)

	return &Output{Emitted: true, Commit: commit, Tree: gitTree}, nil
}

// mergeAncestorTable folds a just-merged parent's own merged_revisions
// entries into stage's table, so transitively-merged branches stay
// monotone (§8 Property 8) without requiring the caller to walk history.
func mergeAncestorTable(stage *branch.BranchRevision, parent *branch.BranchRevision) {
	parent.ForEachMerged(func(b *branch.Branch, rev int) {
		stage.SetMergedRev(b, rev)
	})
}

// buildIndexEntries assumes hashMissingBlobs has already populated every
// staged blob's Git SHA-1.
func buildIndexEntries(diffs []pathtree.Diff) []sink.IndexEntry {
	var entries []sink.IndexEntry
	for _, d := range diffs {
		if d.Right == nil {
			entries = append(entries, sink.IndexEntry{Path: d.Path, Delete: true})
			continue
		}
		blob, ok := d.Right.(*object.Blob)
		if !ok {
			// A directory-level placeholder diff (only possible with
			// expand=false); the commit builder always calls Compare
			// with expand=true, so this should not occur.
			continue
		}
		gitHash, _ := blob.GitHash()
		entries = append(entries, sink.IndexEntry{
			Path: d.Path,
			Mode: uint32(blob.Mode()),
			Hash: gitHash,
		})
	}
	return entries
}

// hashMissingBlobs requests a Git SHA-1 from the sink for every staged
// blob that doesn't already have one cached (§4.E step 4).
func hashMissingBlobs(ctx context.Context, snk sink.Sink, env sink.Env, diffs []pathtree.Diff) error {
	for _, d := range diffs {
		if d.Right == nil {
			continue
		}
		blob, ok := d.Right.(*object.Blob)
		if !ok {
			continue
		}
		if _, have := blob.GitHash(); have {
			continue
		}
		h, err := snk.HashObject(ctx, env, blob.Data, d.Path, blob.Props.Symlink)
		if err != nil {
			return err
		}
		blob.SetGitHash(h)
	}
	return nil
}
