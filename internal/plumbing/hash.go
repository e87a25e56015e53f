// Package plumbing holds the small, dependency-light value types shared by
// every layer of the converter: content hashes and file modes.
package plumbing

import (
	"bytes"
	"encoding/hex"
	"sort"

	"github.com/zeebo/blake3"
)

// HashSize is the digest size, in bytes, of the core's own content hash.
// This is deliberately NOT the Git object SHA-1: it identifies a Blob or
// Tree value for the purposes of diffing and de-duplication inside the
// core, while the Git SHA-1 used on the wire is computed by the external
// object sink (see internal/sink).
const HashSize = 32

// Hash is the core's content-identity hash (BLAKE3).
type Hash [HashSize]byte

// ZeroHash is the Hash zero value, used as a sentinel for "no value yet".
var ZeroHash Hash

func (h Hash) IsZero() bool {
	return h == ZeroHash
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// NewHash parses a hex string into a Hash. Malformed input decodes to the
// zero hash, matching the permissive parsing used throughout the teacher
// corpus for human-supplied hex.
func NewHash(s string) Hash {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h
	}
	copy(h[:], b)
	return h
}

// HashesSort sorts hashes in increasing byte order, used when a stable
// iteration order over a hash set is required (e.g. merge parent dedup).
func HashesSort(hs []Hash) {
	sort.Slice(hs, func(i, j int) bool {
		return bytes.Compare(hs[i][:], hs[j][:]) < 0
	})
}

// Hasher incrementally computes a content Hash.
type Hasher struct {
	h *blake3.Hasher
}

func NewHasher() Hasher {
	return Hasher{h: blake3.New()}
}

func (h Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

func (h Hasher) Sum() (out Hash) {
	copy(out[:], h.h.Sum(nil))
	return
}

// SumOf is a convenience helper to hash a handful of byte slices in order.
func SumOf(parts ...[]byte) Hash {
	h := NewHasher()
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	return h.Sum()
}

// GitHashSize is the digest size, in bytes, of a Git object name (SHA-1).
// This is the actual identity the external sink hands back from
// hash-object/write-tree/commit-tree/mktag — distinct from Hash above,
// which is the core's own internal content-identity digest and never
// leaves the process.
const GitHashSize = 20

// GitHash is a Git object SHA-1, as produced by the sink (internal/sink)
// and threaded back through the core for parent linkage, ref updates, and
// Cherry-picked-from footers.
type GitHash [GitHashSize]byte

// ZeroGitHash is the GitHash zero value, used as a sentinel for "no commit
// yet" (empty-commit elision, an unset base, etc).
var ZeroGitHash GitHash

func (h GitHash) IsZero() bool {
	return h == ZeroGitHash
}

func (h GitHash) String() string {
	return hex.EncodeToString(h[:])
}

// NewGitHash parses a 40-character hex Git object name into a GitHash.
// Malformed or short input decodes to the zero hash, matching NewHash's
// permissive parsing.
func NewGitHash(s string) GitHash {
	var h GitHash
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != GitHashSize {
		return h
	}
	copy(h[:], b)
	return h
}

// GitHashesSort sorts hashes in increasing byte order, used when a stable
// iteration order over a hash set is required (e.g. merge parent dedup).
func GitHashesSort(hs []GitHash) {
	sort.Slice(hs, func(i, j int) bool {
		return bytes.Compare(hs[i][:], hs[j][:]) < 0
	})
}
