// Package pathtree implements the Path tree described in SPEC_FULL.md §4.A:
// an ordered, in-memory tree keyed by path components, supporting set,
// delete, lookup, a deterministic diff ("compare"), and a secondary
// "used-by" annotation layer reused for ref-collision detection.
//
// Children are kept in an emirpasic/gods red-black tree map so that
// iteration order (Names) is always lexicographic by component name.
// Compare still sorts the union of both sides' names on every call.
package pathtree

import (
	"strings"

	"github.com/emirpasic/gods/maps/treemap"
)

// Value is anything that can live at a leaf of the tree: in practice a
// *object.Blob. Equal is used by Compare to decide whether a leaf changed.
type Value interface {
	Equal(other Value) bool
}

// Node is either a leaf (Value != nil, Children == nil) or an interior
// directory (Children != nil, Value == nil). UsedBy is an orthogonal
// annotation: the collision detector (internal/convert) tags full paths
// with the logical owner that claimed them, independent of whether the
// node also carries a Value.
type Node struct {
	Value    Value
	Children *Tree
	UsedBy   string
}

func (n *Node) IsDir() bool { return n.Children != nil }

// Tree is one level of the path tree: an ordered map of path component to
// child Node.
type Tree struct {
	entries *treemap.Map
}

// New returns an empty Tree.
func New() *Tree {
	return &Tree{entries: treemap.NewWithStringComparator()}
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// Set stores v at path, creating intermediate directory nodes as needed.
// If an existing entry at an intermediate component is a leaf (file), it is
// replaced by a directory node, per §4.A's tie-break rule: a directory and
// a file at the same name are distinct entries.
func (t *Tree) Set(path string, v Value) {
	t.set(splitPath(path), v)
}

func (t *Tree) set(parts []string, v Value) {
	if len(parts) == 0 {
		return
	}
	name := parts[0]
	if len(parts) == 1 {
		raw, found := t.entries.Get(name)
		if found {
			if n := raw.(*Node); n.UsedBy != "" {
				n.Value = v
				n.Children = nil
				return
			}
		}
		t.entries.Put(name, &Node{Value: v})
		return
	}

	raw, found := t.entries.Get(name)
	var child *Tree
	if found {
		n := raw.(*Node)
		if n.Children != nil {
			child = n.Children
		}
	}
	if child == nil {
		child = New()
		t.entries.Put(name, &Node{Children: child})
	}
	child.set(parts[1:], v)
}

// Delete removes the entry at path, pruning any interior directory left
// empty as a result (§3: "Empty interior directories are pruned on
// delete.").
func (t *Tree) Delete(path string) {
	t.del(splitPath(path))
}

func (t *Tree) del(parts []string) {
	if len(parts) == 0 {
		return
	}
	name := parts[0]
	raw, found := t.entries.Get(name)
	if !found {
		return
	}
	n := raw.(*Node)
	if len(parts) == 1 {
		if n.UsedBy != "" {
			// keep the node alive for collision bookkeeping, drop its value
			n.Value = nil
			n.Children = nil
			return
		}
		t.entries.Remove(name)
		return
	}
	if n.Children == nil {
		return
	}
	n.Children.del(parts[1:])
	if n.Children.entries.Size() == 0 && n.UsedBy == "" {
		t.entries.Remove(name)
	}
}

// Get returns the value stored at path, if any leaf exists there.
func (t *Tree) Get(path string) (Value, bool) {
	n, ok := t.FindNode(path)
	if !ok || n.Children != nil || n.Value == nil {
		return nil, false
	}
	return n.Value, true
}

// FindNode returns the raw Node at path, whether directory or leaf.
func (t *Tree) FindNode(path string) (*Node, bool) {
	return t.findNode(splitPath(path))
}

func (t *Tree) findNode(parts []string) (*Node, bool) {
	if len(parts) == 0 {
		return nil, false
	}
	raw, found := t.entries.Get(parts[0])
	if !found {
		return nil, false
	}
	n := raw.(*Node)
	if len(parts) == 1 {
		return n, true
	}
	if n.Children == nil {
		return nil, false
	}
	return n.Children.findNode(parts[1:])
}

// Clone returns a deep copy of t: every interior directory is a distinct
// *Tree and every *Node is a distinct value, so mutating the clone (via Set
// / Delete) never affects t. Leaf Values themselves are shared by
// reference, not cloned — they are treated as immutable once stored (§3
// "Blob"/"Tree" are content-addressed, write-once values).
func (t *Tree) Clone() *Tree {
	out := New()
	it := t.entries.Iterator()
	for it.Next() {
		name := it.Key().(string)
		n := it.Value().(*Node)
		clone := &Node{Value: n.Value, UsedBy: n.UsedBy}
		if n.Children != nil {
			clone.Children = n.Children.Clone()
		}
		out.entries.Put(name, clone)
	}
	return out
}

// Names returns the direct child component names in lexicographic order.
func (t *Tree) Names() []string {
	keys := t.entries.Keys()
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.(string))
	}
	return out
}

// Child returns the direct child node named name, if any.
func (t *Tree) Child(name string) (*Node, bool) {
	raw, found := t.entries.Get(name)
	if !found {
		return nil, false
	}
	return raw.(*Node), true
}

// MarkUsedBy tags the leaf or directory node at path with owner, creating
// the node if it does not yet exist. Used exclusively by the all-refs
// collision tree (internal/convert) to record which logical branch claimed
// a given refname.
func (t *Tree) MarkUsedBy(path, owner string) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return
	}
	t.markUsedBy(parts, owner)
}

func (t *Tree) markUsedBy(parts []string, owner string) {
	name := parts[0]
	raw, found := t.entries.Get(name)
	var n *Node
	if found {
		n = raw.(*Node)
	} else {
		n = &Node{}
		t.entries.Put(name, n)
	}
	if len(parts) == 1 {
		n.UsedBy = owner
		return
	}
	if n.Children == nil {
		n.Children = New()
	}
	n.Children.markUsedBy(parts[1:], owner)
}

// UsedByAt returns the owner tag recorded at path, if any.
func (t *Tree) UsedByAt(path string) (string, bool) {
	n, ok := t.FindNode(path)
	if !ok || n.UsedBy == "" {
		return "", false
	}
	return n.UsedBy, true
}
