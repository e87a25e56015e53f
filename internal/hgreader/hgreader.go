// Package hgreader implements the Mercurial reader adapter (SPEC_FULL.md
// component K): a changeset.Reader backed by an in-memory or JSON-decoded
// changelog dump, guaranteeing parents precede children by construction
// and supporting the random-access re-fetch §6 requires for merge-diff
// base trees.
package hgreader

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/alegrigoriev/hg2git/internal/changeset"
	"github.com/alegrigoriev/hg2git/internal/hg2gerr"
)

// zstdReadCloser adapts a *zstd.Decoder (which has no io.Closer-compatible
// Close signature on some versions) plus the underlying file into a single
// io.ReadCloser, so OpenDump can be used with a plain defer Close().
type zstdReadCloser struct {
	*zstd.Decoder
	file io.Closer
}

func (z *zstdReadCloser) Close() error {
	z.Decoder.Close()
	return z.file.Close()
}

// OpenDump opens a changelog dump at path, transparently decompressing it
// if its name ends in ".zst" (large histories produce large `hg log
// --template` dumps; zstd is the teacher corpus's streaming compression of
// choice, modules/streamio/zstd.go).
func OpenDump(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".zst") {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("hgreader: opening zstd dump: %w", err)
	}
	return &zstdReadCloser{Decoder: dec, file: f}, nil
}

// wireRevision is the JSON-serializable shape of one changelog entry, as
// produced by a prior `hg log --template` dump (§4.K).
type wireRevision struct {
	Rev        int               `json:"rev"`
	RevID      string            `json:"node"`
	Author     string            `json:"author"`
	Log        string            `json:"desc"`
	DateTime   int64             `json:"date"` // unix seconds
	BranchName string            `json:"branch"`
	Parents    []string          `json:"parents"`
	Extra      map[string]string `json:"extra"`
	Files      []wireFile        `json:"files"`
}

type wireFile struct {
	Path       string `json:"path"`
	Action     string `json:"action"` // "add", "modify", "remove"
	Data       []byte `json:"data"`
	Symlink    bool   `json:"symlink"`
	Executable bool   `json:"executable"`
}

// Decode parses a JSON changelog dump into Reader-ready revisions,
// validating that parents precede children (§6: "Must return parents
// before children") and that every rev id is unique.
func Decode(r io.Reader) (*Reader, error) {
	var wire []wireRevision
	if err := json.NewDecoder(r).Decode(&wire); err != nil {
		return nil, hg2gerr.Wrap(hg2gerr.ErrHistoryParse, "decoding changelog: %v", err)
	}
	sort.SliceStable(wire, func(i, j int) bool { return wire[i].Rev < wire[j].Rev })

	revs := make([]*changeset.Revision, 0, len(wire))
	seen := map[string]bool{}
	children := map[string][]string{}

	for _, w := range wire {
		if seen[w.RevID] {
			return nil, hg2gerr.Wrap(hg2gerr.ErrHistoryParse, "duplicate rev id %q", w.RevID)
		}
		for _, p := range w.Parents {
			if !seen[p] {
				return nil, hg2gerr.Wrap(hg2gerr.ErrHistoryParse, "rev %q references parent %q before it was seen", w.RevID, p)
			}
			children[p] = append(children[p], w.RevID)
		}
		seen[w.RevID] = true

		rev := &changeset.Revision{
			Rev:        w.Rev,
			RevID:      w.RevID,
			Author:     w.Author,
			Log:        w.Log,
			DateTime:   time.Unix(w.DateTime, 0).UTC(),
			BranchName: w.BranchName,
			Parents:    w.Parents,
			Extra:      w.Extra,
			Nodes:      fileNodes(w.Files),
		}
		revs = append(revs, rev)
	}
	for _, rev := range revs {
		rev.Children = children[rev.RevID]
	}

	return &Reader{revs: revs, byID: indexByID(revs)}, nil
}

func fileNodes(files []wireFile) []changeset.Node {
	nodes := make([]changeset.Node, 0, len(files))
	for _, f := range files {
		switch f.Action {
		case "remove":
			nodes = append(nodes, changeset.Node{Kind: changeset.NodeDeleteFile, Path: f.Path})
		case "modify":
			nodes = append(nodes, changeset.Node{Kind: changeset.NodeChangeFile, Path: f.Path, Data: f.Data, Symlink: f.Symlink, Executable: f.Executable})
		default: // "add" and anything unrecognized default to add
			nodes = append(nodes, changeset.Node{Kind: changeset.NodeAddFile, Path: f.Path, Data: f.Data, Symlink: f.Symlink, Executable: f.Executable})
		}
	}
	return nodes
}

func indexByID(revs []*changeset.Revision) map[string]*changeset.Revision {
	m := make(map[string]*changeset.Revision, len(revs))
	for _, r := range revs {
		m[r.RevID] = r
	}
	return m
}

// Reader is an in-memory changeset.Reader: every revision is materialized
// up front, so random-access Tree lookups never miss (§6's "random access
// by changectx_node to re-fetch a parent's tree").
type Reader struct {
	revs []*changeset.Revision
	byID map[string]*changeset.Revision
	pos  int
}

// New wraps an already-ordered, already-validated revision slice (used by
// tests and by embedders that materialize revisions themselves rather than
// decoding a JSON dump).
func New(revs []*changeset.Revision) *Reader {
	return &Reader{revs: revs, byID: indexByID(revs)}
}

func (r *Reader) Next() (*changeset.Revision, error) {
	if r.pos >= len(r.revs) {
		return nil, io.EOF
	}
	rev := r.revs[r.pos]
	r.pos++
	return rev, nil
}

// Tree reconstructs revID's full file list by replaying every ancestor's
// file nodes from the root, since the wire format only carries each
// revision's own delta. This is the reader's own bookkeeping, independent
// of the core's path tree.
func (r *Reader) Tree(revID string) (changeset.FileTree, error) {
	rev, ok := r.byID[revID]
	if !ok {
		return nil, fmt.Errorf("hgreader: unknown rev id %q", revID)
	}
	files := map[string]changeset.FileEntry{}
	var walk func(rev *changeset.Revision) error
	visited := map[string]bool{}
	walk = func(rev *changeset.Revision) error {
		if visited[rev.RevID] {
			return nil
		}
		visited[rev.RevID] = true
		if len(rev.Parents) > 0 {
			parent, ok := r.byID[rev.Parents[0]]
			if !ok {
				return fmt.Errorf("hgreader: unresolved parent %q of %q", rev.Parents[0], rev.RevID)
			}
			if err := walk(parent); err != nil {
				return err
			}
		}
		for _, n := range rev.Nodes {
			switch n.Kind {
			case changeset.NodeAddFile, changeset.NodeChangeFile:
				files[n.Path] = changeset.FileEntry{Path: n.Path, Data: n.Data, Symlink: n.Symlink, Executable: n.Executable}
			case changeset.NodeDeleteFile:
				delete(files, n.Path)
			}
		}
		return nil
	}
	if err := walk(rev); err != nil {
		return nil, err
	}
	out := make(fileTree, 0, len(files))
	for _, f := range files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

type fileTree []changeset.FileEntry

func (t fileTree) Files() []changeset.FileEntry { return t }
