package object

import (
	"sort"

	"github.com/alegrigoriev/hg2git/internal/pathtree"
	"github.com/alegrigoriev/hg2git/internal/plumbing"
	"github.com/alegrigoriev/hg2git/internal/plumbing/filemode"
)

// Entry is one named member of a Tree: a file (Blob) or a nested Tree.
type Entry struct {
	Name string
	Mode filemode.FileMode
	Blob *Blob // non-nil for file entries
	Tree *Tree // non-nil for directory entries
}

func (e *Entry) hash() plumbing.Hash {
	if e.Tree != nil {
		return e.Tree.Hash()
	}
	return e.Blob.Hash()
}

// Tree is the content-addressed counterpart of a pathtree.Tree snapshot:
// an ordered map of name -> (mode, blob|tree), per §3. Its Hash is the hash
// of its sorted entries, recomputed lazily and cached.
type Tree struct {
	Entries []*Entry

	hash     plumbing.Hash
	haveHash bool
}

// NewTree builds a Tree from entries sorted in Git's subtree order (see
// subtreeOrder below); callers that already have sorted entries can
// construct the struct literal directly.
func NewTree(entries []*Entry) *Tree {
	t := &Tree{Entries: entries}
	sort.Sort(subtreeOrder(t.Entries))
	return t
}

// subtreeOrder sorts entries the way Git requires inside a tree object:
// lexicographic byte order, with directory names treated as if suffixed
// with "/" (so "foo" sorts after "foo.txt" but "foo/" sorts before
// "foo0"). This mirrors the teacher's object.SubtreeOrder.
type subtreeOrder []*Entry

func (s subtreeOrder) Len() int      { return len(s) }
func (s subtreeOrder) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s subtreeOrder) Less(i, j int) bool {
	return s.sortKey(i) < s.sortKey(j)
}
func (s subtreeOrder) sortKey(i int) string {
	e := s[i]
	if e.Tree != nil {
		return e.Name + "/"
	}
	return e.Name + "\x00"
}

// Hash computes H(sorted entries: mode || name || child_hash), per §4.B.
func (t *Tree) Hash() plumbing.Hash {
	if t.haveHash {
		return t.hash
	}
	h := plumbing.NewHasher()
	for _, e := range t.Entries {
		_, _ = h.Write([]byte(e.Mode.String()))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(e.Name))
		_, _ = h.Write([]byte{0})
		childHash := e.hash()
		_, _ = h.Write(childHash[:])
	}
	t.hash = h.Sum()
	t.haveHash = true
	return t.hash
}

// Equal implements pathtree.Value so that a whole subtree can be compared
// as a single staged value, by content hash.
func (t *Tree) Equal(other pathtree.Value) bool {
	o, ok := other.(*Tree)
	if !ok {
		return false
	}
	return t.Hash() == o.Hash()
}

// FromPathTree freezes a live pathtree.Tree (the mutable staging tree) into
// an immutable, content-addressed object.Tree, recursing into
// subdirectories. Leaf values in the pathtree must be *Blob.
func FromPathTree(pt *pathtree.Tree) *Tree {
	if pt == nil {
		return NewTree(nil)
	}
	var entries []*Entry
	for _, name := range pt.Names() {
		n, _ := pt.Child(name)
		if n.IsDir() {
			entries = append(entries, &Entry{
				Name: name,
				Mode: filemode.Dir,
				Tree: FromPathTree(n.Children),
			})
			continue
		}
		blob, _ := n.Value.(*Blob)
		if blob == nil {
			continue
		}
		entries = append(entries, &Entry{
			Name: name,
			Mode: entryMode(blob, name),
			Blob: blob,
		})
	}
	return NewTree(entries)
}

// entryMode applies any gitattributes override before falling back to the
// property-derived mode (§3, §4.E step 2).
func entryMode(b *Blob, name string) filemode.FileMode {
	return b.Mode()
}
