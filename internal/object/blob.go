// Package object implements the Object model described in SPEC_FULL.md
// §3/§4.B: immutable Blob and Tree value objects with a stable content
// hash, mirroring the teacher's zeta/object package but generalized to the
// core's copy-on-write, not-yet-written-to-any-store values rather than a
// content-addressed on-disk format.
package object

import (
	"crypto/sha1"
	"sort"

	"github.com/alegrigoriev/hg2git/internal/pathtree"
	"github.com/alegrigoriev/hg2git/internal/plumbing"
	"github.com/alegrigoriev/hg2git/internal/plumbing/filemode"
)

// Props are the file properties that affect tree-entry mode, per §3.
type Props struct {
	Symlink    bool
	Executable bool
}

// Mode derives the Git tree-entry mode for these properties (§3, §4.C:
// "Symlink wins").
func (p Props) Mode() filemode.FileMode {
	return filemode.FromProps(p.Symlink, p.Executable)
}

// Blob is the immutable logical value for a file, per §3: data, properties,
// gitattributes overrides, and a cached identity hash. Blobs are shared
// (copy-on-write); any mutation must go through Clone and produce a new
// value rather than mutating in place.
type Blob struct {
	Data          []byte
	Props         Props
	GitAttributes map[string]string

	dataSHA1  [sha1.Size]byte
	haveSHA1  bool
	hash      plumbing.Hash
	haveHash  bool
	gitHash   plumbing.GitHash // Git object SHA-1, supplied by the sink
	haveGit   bool
}

// NewBlob constructs a Blob. GitAttributes may be nil.
func NewBlob(data []byte, props Props, attrs map[string]string) *Blob {
	return &Blob{Data: data, Props: props, GitAttributes: attrs}
}

// DataSHA1 returns the SHA-1 of the raw data bytes, caching the result.
// It uses crypto/sha1 from the standard library. This is not the Git
// object name that `git hash-object` reports: Git hashes a "blob <size>\0"
// header followed by the data, and that name only ever comes back from
// the sink. See DESIGN.md.
func (b *Blob) DataSHA1() [sha1.Size]byte {
	if !b.haveSHA1 {
		b.dataSHA1 = sha1.Sum(b.Data)
		b.haveSHA1 = true
	}
	return b.dataSHA1
}

// sortedAttrKeys returns GitAttributes keys in sorted order for stable
// hashing, matching the "sorted(attributes)" requirement in §4.B.
func (b *Blob) sortedAttrKeys() []string {
	keys := make([]string, 0, len(b.GitAttributes))
	for k := range b.GitAttributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Hash computes the core's content-identity hash:
// H(data_sha1 || sorted(attributes) || props), per §4.B.
func (b *Blob) Hash() plumbing.Hash {
	if b.haveHash {
		return b.hash
	}
	h := plumbing.NewHasher()
	dataSum := b.DataSHA1()
	_, _ = h.Write(dataSum[:])
	for _, k := range b.sortedAttrKeys() {
		_, _ = h.Write([]byte(k))
		_, _ = h.Write([]byte{0})
		_, _ = h.Write([]byte(b.GitAttributes[k]))
		_, _ = h.Write([]byte{0})
	}
	if b.Props.Symlink {
		_, _ = h.Write([]byte{'l'})
	}
	if b.Props.Executable {
		_, _ = h.Write([]byte{'x'})
	}
	b.hash = h.Sum()
	b.haveHash = true
	return b.hash
}

// Equal implements pathtree.Value: two blobs are equal iff their content
// hashes match, i.e. iff they are byte-identical including attributes.
func (b *Blob) Equal(other pathtree.Value) bool {
	o, ok := other.(*Blob)
	if !ok {
		return false
	}
	return b.Hash() == o.Hash()
}

// Mode returns this blob's Git tree-entry mode, honoring a "mode"
// gitattributes override before falling back to the property-derived mode
// (§3, §4.E step 2). Tree.FromPathTree uses the same rule for entries
// reached through a pathtree; this is the form other packages (e.g.
// commitbuilder) call when they only have the Blob in hand.
func (b *Blob) Mode() filemode.FileMode {
	if override, ok := b.GitAttributes["mode"]; ok {
		if m, err := filemode.New(override); err == nil {
			return m
		}
	}
	return b.Props.Mode()
}

// GitHash returns the cached Git object SHA-1 if the sink has already
// supplied one for this exact content (§4.B: "The core caches the Git
// SHA-1 per blob to avoid rehashing identical content.").
func (b *Blob) GitHash() (plumbing.GitHash, bool) {
	return b.gitHash, b.haveGit
}

// SetGitHash caches a Git object SHA-1 returned by the sink.
func (b *Blob) SetGitHash(h plumbing.GitHash) {
	b.gitHash = h
	b.haveGit = true
}

// Clone returns a new Blob with the same content; used as the
// copy-on-write escape hatch before any in-place mutation ("make_unshared"
// in §4.B).
func (b *Blob) Clone() *Blob {
	attrs := map[string]string(nil)
	if b.GitAttributes != nil {
		attrs = make(map[string]string, len(b.GitAttributes))
		for k, v := range b.GitAttributes {
			attrs[k] = v
		}
	}
	data := make([]byte, len(b.Data))
	copy(data, b.Data)
	return &Blob{Data: data, Props: b.Props, GitAttributes: attrs}
}

// WithAttributes returns a new Blob carrying the given gitattributes
// overrides, forcing a new identity hash per §4.B ("Attribute changes force
// a new blob").
func (b *Blob) WithAttributes(attrs map[string]string) *Blob {
	c := b.Clone()
	c.GitAttributes = attrs
	return c
}
