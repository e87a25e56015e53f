package pathtree

import "sort"

// Diff is one differing path yielded by Compare, in the same shape spec.md
// §4.A describes: a (path, left_value, right_value) triple. Left/Right are
// nil for pure adds/deletes.
type Diff struct {
	Path string
	Left Value
	Right Value
}

// Compare returns every path at which t and other differ, in deterministic
// lexicographic order. When expandDirContents is true, a directory that was
// wholesale added or deleted is expanded into one Diff per contained file,
// so that downstream commit-building is always purely file-level (§4.A).
func (t *Tree) Compare(other *Tree, expandDirContents bool) []Diff {
	var out []Diff
	compareTrees(t, other, "", expandDirContents, &out)
	return out
}

func joinName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func compareTrees(left, right *Tree, prefix string, expand bool, out *[]Diff) {
	leftNames := map[string]bool{}
	if left != nil {
		for _, n := range left.Names() {
			leftNames[n] = true
		}
	}
	rightNames := map[string]bool{}
	if right != nil {
		for _, n := range right.Names() {
			rightNames[n] = true
		}
	}

	names := make(map[string]bool, len(leftNames)+len(rightNames))
	for n := range leftNames {
		names[n] = true
	}
	for n := range rightNames {
		names[n] = true
	}

	ordered := make([]string, 0, len(names))
	for n := range names {
		ordered = append(ordered, n)
	}
	sort.Strings(ordered)

	for _, name := range ordered {
		var ln, rn *Node
		if left != nil {
			ln, _ = left.Child(name)
		}
		if right != nil {
			rn, _ = right.Child(name)
		}
		path := joinName(prefix, name)

		switch {
		case ln != nil && rn == nil:
			emitRemoved(ln, path, expand, out)
		case ln == nil && rn != nil:
			emitAdded(rn, path, expand, out)
		case ln.IsDir() && rn.IsDir():
			compareTrees(ln.Children, rn.Children, path, expand, out)
		case ln.IsDir() != rn.IsDir():
			// A directory and a file share this name: treated as two
			// distinct entries per §4.A's tie-break rule.
			emitRemoved(ln, path, expand, out)
			emitAdded(rn, path, expand, out)
		default:
			if !valuesEqual(ln.Value, rn.Value) {
				*out = append(*out, Diff{Path: path, Left: ln.Value, Right: rn.Value})
			}
		}
	}
}

func valuesEqual(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(b)
}

func emitRemoved(n *Node, path string, expand bool, out *[]Diff) {
	if !n.IsDir() {
		*out = append(*out, Diff{Path: path, Left: n.Value, Right: nil})
		return
	}
	if !expand {
		*out = append(*out, Diff{Path: path, Left: nil, Right: nil})
		return
	}
	for _, name := range n.Children.Names() {
		child, _ := n.Children.Child(name)
		emitRemoved(child, joinName(path, name), expand, out)
	}
}

func emitAdded(n *Node, path string, expand bool, out *[]Diff) {
	if !n.IsDir() {
		*out = append(*out, Diff{Path: path, Left: nil, Right: n.Value})
		return
	}
	if !expand {
		*out = append(*out, Diff{Path: path, Left: nil, Right: nil})
		return
	}
	for _, name := range n.Children.Names() {
		child, _ := n.Children.Child(name)
		emitAdded(child, joinName(path, name), expand, out)
	}
}
