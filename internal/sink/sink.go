// Package sink defines the external Object sink contract (SPEC_FULL.md
// §6, component J) and a concrete adapter, gitsink, that drives a real Git
// repository through its plumbing commands.
package sink

import (
	"context"
	"time"

	"github.com/alegrigoriev/hg2git/internal/plumbing"
)

// IndexEntry is one line the core submits to UpdateIndex: either a
// mode/sha1/path triple, or a deletion when Delete is set.
type IndexEntry struct {
	Mode   uint32
	Hash   plumbing.GitHash
	Path   string
	Delete bool
}

// Identity is an author or committer identity plus timestamp, as required
// by commit_tree/tag.
type Identity struct {
	Name  string
	Email string
	When  time.Time
}

// Env is the isolation context returned by MakeEnv: a per-branch working
// directory and index file so concurrent branch index writes don't
// collide (§5 "Shared resources").
type Env interface {
	WorkDir() string
	IndexFile() string
}

// TagFlags controls Tag's behavior.
type TagFlags struct {
	Annotated bool
}

// Sink is the seven-operation external collaborator contract from §6.
// Implementations MAY pipeline HashObject calls; all other calls are
// synchronous from the core's point of view.
type Sink interface {
	// MakeEnv builds an isolation context rooted at workDir, using
	// indexFile as the on-disk git index.
	MakeEnv(workDir, indexFile string) (Env, error)

	// HashObject computes (and, on the real adapter, stores) the Git
	// SHA-1 of data. path is advisory, used only for gitattributes-driven
	// filtering of non-symlink blobs (§4.B).
	HashObject(ctx context.Context, env Env, data []byte, path string, symlink bool) (plumbing.GitHash, error)

	// UpdateIndex applies entries to env's index. Entries with Delete set
	// remove the path; others set mode/hash at path.
	UpdateIndex(ctx context.Context, env Env, entries []IndexEntry) error

	// WriteTree serializes env's current index into a tree object and
	// returns its hash.
	WriteTree(ctx context.Context, env Env) (plumbing.GitHash, error)

	// CommitTree creates a commit object.
	CommitTree(ctx context.Context, env Env, tree plumbing.GitHash, parents []plumbing.GitHash, message string, author, committer Identity) (plumbing.GitHash, error)

	// QueueUpdateRef stages a ref update for the next CommitRefsUpdate.
	QueueUpdateRef(ref string, target plumbing.GitHash)

	// CommitRefsUpdate atomically applies every queued ref update.
	CommitRefsUpdate(ctx context.Context) error

	// Tag creates a tag named name pointing at target. If flags.Annotated
	// is false, message/tagger/date are ignored and a lightweight ref
	// under refs/tags/ is written instead of an annotated tag object.
	Tag(ctx context.Context, name string, target plumbing.GitHash, message string, tagger Identity, flags TagFlags) error
}
