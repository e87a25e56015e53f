package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alegrigoriev/hg2git/internal/pathtree"
)

func TestBlobHashStableAcrossCalls(t *testing.T) {
	b := NewBlob([]byte("hello"), Props{}, nil)
	h1 := b.Hash()
	h2 := b.Hash()
	assert.Equal(t, h1, h2)
}

func TestBlobHashChangesWithAttributes(t *testing.T) {
	base := NewBlob([]byte("hello"), Props{}, nil)
	withAttrs := base.WithAttributes(map[string]string{"mode": "100755"})
	assert.NotEqual(t, base.Hash(), withAttrs.Hash(), "attribute changes must force a new identity hash")
}

func TestBlobEqualIgnoresIdentityPointer(t *testing.T) {
	a := NewBlob([]byte("same"), Props{}, nil)
	b := NewBlob([]byte("same"), Props{}, nil)
	assert.True(t, a.Equal(b))
}

func TestBlobModeSymlinkWinsOverExecutable(t *testing.T) {
	b := NewBlob(nil, Props{Symlink: true, Executable: true}, nil)
	assert.Equal(t, "120000", b.Mode().String())
}

func TestBlobModeGitAttributesOverride(t *testing.T) {
	b := NewBlob(nil, Props{}, map[string]string{"mode": "100755"})
	assert.Equal(t, "100755", b.Mode().String())
}

func TestBlobCloneIsIndependentCopy(t *testing.T) {
	orig := NewBlob([]byte("data"), Props{}, map[string]string{"mode": "100644"})
	clone := orig.Clone()
	clone.Data[0] = 'D'
	assert.NotEqual(t, orig.Data[0], clone.Data[0], "Clone must copy the backing byte slice")
}

func TestTreeHashOrderIndependent(t *testing.T) {
	b1 := NewBlob([]byte("1"), Props{}, nil)
	b2 := NewBlob([]byte("2"), Props{}, nil)
	t1 := NewTree([]*Entry{
		{Name: "b", Blob: b2, Mode: b2.Mode()},
		{Name: "a", Blob: b1, Mode: b1.Mode()},
	})
	t2 := NewTree([]*Entry{
		{Name: "a", Blob: b1, Mode: b1.Mode()},
		{Name: "b", Blob: b2, Mode: b2.Mode()},
	})
	assert.Equal(t, t1.Hash(), t2.Hash(), "subtreeOrder should make entry-construction order irrelevant")
}

func TestTreeSubtreeOrderDirectoryBeforeSimilarlyNamedFile(t *testing.T) {
	file := &Entry{Name: "foo0", Blob: NewBlob(nil, Props{}, nil)}
	dir := &Entry{Name: "foo", Tree: NewTree(nil)}
	tree := NewTree([]*Entry{file, dir})
	require.Len(t, tree.Entries, 2)
	assert.Equal(t, "foo", tree.Entries[0].Name, "directory \"foo/\" must sort before \"foo0\"")
}

func TestFromPathTreeRecursesIntoSubdirectories(t *testing.T) {
	pt := pathtree.New()
	blob := NewBlob([]byte("x"), Props{}, nil)
	pt.Set("dir/nested/file", blob)

	tree := FromPathTree(pt)
	require.Len(t, tree.Entries, 1)
	dirEntry := tree.Entries[0]
	assert.Equal(t, "dir", dirEntry.Name)
	require.NotNil(t, dirEntry.Tree)
	require.Len(t, dirEntry.Tree.Entries, 1)
	assert.Equal(t, "nested", dirEntry.Tree.Entries[0].Name)
}

func TestFromPathTreeEmptyTreeIsStable(t *testing.T) {
	empty1 := FromPathTree(nil)
	empty2 := NewTree(nil)
	assert.Equal(t, empty1.Hash(), empty2.Hash())
}
