package pathtree

import "testing"

type strValue string

func (s strValue) Equal(other Value) bool {
	o, ok := other.(strValue)
	return ok && o == s
}

func TestSetAndGetNestedPath(t *testing.T) {
	tr := New()
	tr.Set("a/b/c", strValue("leaf"))

	v, ok := tr.Get("a/b/c")
	if !ok {
		t.Fatal("expected a/b/c to exist")
	}
	if v != strValue("leaf") {
		t.Errorf("Get() = %v, want leaf", v)
	}
}

func TestSetReplacesFileWithDirectory(t *testing.T) {
	tr := New()
	tr.Set("a", strValue("file"))
	tr.Set("a/b", strValue("nested"))

	n, ok := tr.FindNode("a")
	if !ok || !n.IsDir() {
		t.Fatal("expected \"a\" to become a directory after a nested Set")
	}
	v, ok := tr.Get("a/b")
	if !ok || v != strValue("nested") {
		t.Errorf("Get(a/b) = %v, %v", v, ok)
	}
}

func TestDeletePrunesEmptyDirectories(t *testing.T) {
	tr := New()
	tr.Set("a/b", strValue("x"))
	tr.Delete("a/b")

	if _, ok := tr.FindNode("a"); ok {
		t.Error("expected empty interior directory \"a\" to be pruned after delete")
	}
}

func TestDeleteKeepsUsedByMarkedNodeAlive(t *testing.T) {
	tr := New()
	tr.Set("refs/heads/main", strValue("x"))
	tr.MarkUsedBy("refs/heads/main", "main")
	tr.Delete("refs/heads/main")

	owner, ok := tr.UsedByAt("refs/heads/main")
	if !ok || owner != "main" {
		t.Errorf("expected UsedBy annotation to survive Delete, got (%q, %v)", owner, ok)
	}
	if _, ok := tr.Get("refs/heads/main"); ok {
		t.Error("expected value to be cleared even though the node itself survives")
	}
}

func TestCompareDetectsAddRemoveChange(t *testing.T) {
	left := New()
	left.Set("same", strValue("1"))
	left.Set("removed", strValue("x"))

	right := New()
	right.Set("same", strValue("1"))
	right.Set("added", strValue("y"))

	diffs := left.Compare(right, true)
	byPath := map[string]Diff{}
	for _, d := range diffs {
		byPath[d.Path] = d
	}

	if _, ok := byPath["same"]; ok {
		t.Error("identical leaves must not appear in Compare output")
	}
	if d, ok := byPath["removed"]; !ok || d.Right != nil {
		t.Errorf("removed: got %+v, ok=%v", d, ok)
	}
	if d, ok := byPath["added"]; !ok || d.Left != nil {
		t.Errorf("added: got %+v, ok=%v", d, ok)
	}
}

func TestCompareExpandsDirectoryAddAndRemove(t *testing.T) {
	left := New()
	left.Set("dir/a", strValue("1"))
	left.Set("dir/b", strValue("2"))

	right := New()

	diffs := left.Compare(right, true)
	if len(diffs) != 2 {
		t.Fatalf("expected directory removal to expand into 2 file-level diffs, got %d: %+v", len(diffs), diffs)
	}
}

func TestCompareFileDirectoryTieBreakEmitsBothRemovedAndAdded(t *testing.T) {
	left := New()
	left.Set("x", strValue("file"))

	right := New()
	right.Set("x/y", strValue("nested"))

	diffs := left.Compare(right, true)
	var sawRemoved, sawAdded bool
	for _, d := range diffs {
		if d.Path == "x" && d.Right == nil {
			sawRemoved = true
		}
		if d.Path == "x/y" && d.Left == nil {
			sawAdded = true
		}
	}
	if !sawRemoved || !sawAdded {
		t.Errorf("expected both a removal of the file \"x\" and an addition of \"x/y\", diffs=%+v", diffs)
	}
}
