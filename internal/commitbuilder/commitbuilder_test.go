package commitbuilder

import (
	"context"
	"testing"
	"time"

	"github.com/alegrigoriev/hg2git/internal/branch"
	"github.com/alegrigoriev/hg2git/internal/object"
	"github.com/alegrigoriev/hg2git/internal/plumbing"
	"github.com/alegrigoriev/hg2git/internal/sink"
)

// fakeSink is an in-memory sink.Sink for exercising the commit builder
// without a real git binary.
type fakeSink struct {
	objects map[plumbing.GitHash][]byte
	trees   map[string]plumbing.GitHash // env index fingerprint -> tree hash
	refs    map[string]plumbing.GitHash
	pending map[string]plumbing.GitHash
	index   map[string][]sink.IndexEntry
	commitN int
}

type fakeEnv struct{ name string }

func (e *fakeEnv) WorkDir() string   { return "/tmp/" + e.name }
func (e *fakeEnv) IndexFile() string { return "/tmp/" + e.name + "/index" }

// gitHashFromSum truncates a 32-byte content hash down to a 20-byte GitHash,
// for test doubles that have no real git binary to ask for an object name.
func gitHashFromSum(h plumbing.Hash) plumbing.GitHash {
	var out plumbing.GitHash
	copy(out[:], h[:])
	return out
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		objects: map[plumbing.GitHash][]byte{},
		refs:    map[string]plumbing.GitHash{},
		pending: map[string]plumbing.GitHash{},
		index:   map[string][]sink.IndexEntry{},
	}
}

func (s *fakeSink) MakeEnv(workDir, indexFile string) (sink.Env, error) {
	return &fakeEnv{name: workDir}, nil
}

func (s *fakeSink) HashObject(ctx context.Context, env sink.Env, data []byte, path string, symlink bool) (plumbing.GitHash, error) {
	h := gitHashFromSum(plumbing.SumOf(data))
	s.objects[h] = data
	return h, nil
}

func (s *fakeSink) UpdateIndex(ctx context.Context, env sink.Env, entries []sink.IndexEntry) error {
	name := env.(*fakeEnv).name
	merged := map[string]sink.IndexEntry{}
	for _, e := range s.index[name] {
		merged[e.Path] = e
	}
	for _, e := range entries {
		if e.Delete {
			delete(merged, e.Path)
			continue
		}
		merged[e.Path] = e
	}
	var out []sink.IndexEntry
	for _, e := range merged {
		out = append(out, e)
	}
	s.index[name] = out
	return nil
}

func (s *fakeSink) WriteTree(ctx context.Context, env sink.Env) (plumbing.GitHash, error) {
	name := env.(*fakeEnv).name
	hh := plumbing.NewHasher()
	for _, e := range s.index[name] {
		_, _ = hh.Write([]byte(e.Path))
		_, _ = hh.Write(e.Hash[:])
	}
	return gitHashFromSum(hh.Sum()), nil
}

func (s *fakeSink) CommitTree(ctx context.Context, env sink.Env, tree plumbing.GitHash, parents []plumbing.GitHash, message string, author, committer sink.Identity) (plumbing.GitHash, error) {
	s.commitN++
	hh := plumbing.NewHasher()
	_, _ = hh.Write(tree[:])
	for _, p := range parents {
		_, _ = hh.Write(p[:])
	}
	_, _ = hh.Write([]byte(message))
	return gitHashFromSum(hh.Sum()), nil
}

func (s *fakeSink) QueueUpdateRef(ref string, target plumbing.GitHash) { s.pending[ref] = target }

func (s *fakeSink) CommitRefsUpdate(ctx context.Context) error {
	for k, v := range s.pending {
		s.refs[k] = v
	}
	s.pending = map[string]plumbing.GitHash{}
	return nil
}

func (s *fakeSink) Tag(ctx context.Context, name string, target plumbing.GitHash, message string, tagger sink.Identity, flags sink.TagFlags) error {
	s.refs["refs/tags/"+name] = target
	return nil
}

func TestBuildEmitsCommitForFirstRevision(t *testing.T) {
	b := branch.New("default", nil, 0, "rev0")
	b.Stage.Tree.Set("a.txt", object.NewBlob([]byte("hello"), object.Props{}, nil))

	s := newFakeSink()
	env, _ := s.MakeEnv("branch0", "")

	out, err := Build(context.Background(), s, env, b, nil, RawMessage{
		Author:    sink.Identity{Name: "a", Email: "a@x", When: time.Unix(0, 0)},
		Committer: sink.Identity{Name: "a", Email: "a@x", When: time.Unix(0, 0)},
		Log:       "add a",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !out.Emitted {
		t.Fatal("expected a commit for the first revision")
	}
}

func TestBuildElidesEmptyCommit(t *testing.T) {
	b := branch.New("default", nil, 0, "rev0")
	b.Stage.Tree.Set("a.txt", object.NewBlob([]byte("hello"), object.Props{}, nil))

	s := newFakeSink()
	env, _ := s.MakeEnv("branch0", "")
	_, err := Build(context.Background(), s, env, b, nil, RawMessage{Log: "add a"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	b.AdvanceStage(1, "rev1")
	// AdvanceStage deep-clones HEAD's tree into the new stage (branch.go's
	// next()), so this is a distinct, still-identical tree — no aliasing.

	out, err := Build(context.Background(), s, env, b, []ParentRef{{Rev: b.HEAD}}, RawMessage{Log: "no-op"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if out.Emitted {
		t.Fatal("expected empty-commit elision for an unchanged single-parent revision")
	}
}
