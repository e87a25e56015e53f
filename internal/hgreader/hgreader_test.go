package hgreader

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/alegrigoriev/hg2git/internal/changeset"
)

func TestDecodeOrdersByRevAndBackfillsChildren(t *testing.T) {
	dump := `[
		{"rev": 1, "node": "r1", "author": "a", "desc": "second", "date": 2, "branch": "default", "parents": ["r0"]},
		{"rev": 0, "node": "r0", "author": "a", "desc": "first", "date": 1, "branch": "default", "parents": []}
	]`
	r, err := Decode(strings.NewReader(dump))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	rev0, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rev0.RevID != "r0" {
		t.Fatalf("expected r0 first, got %q", rev0.RevID)
	}
	if len(rev0.Children) != 1 || rev0.Children[0] != "r1" {
		t.Errorf("expected r0.Children = [r1], got %v", rev0.Children)
	}
}

func TestDecodeRejectsDuplicateRevID(t *testing.T) {
	dump := `[
		{"rev": 0, "node": "r0", "parents": []},
		{"rev": 1, "node": "r0", "parents": ["r0"]}
	]`
	if _, err := Decode(strings.NewReader(dump)); err == nil {
		t.Fatal("expected an error for a duplicate rev id")
	}
}

func TestDecodeRejectsParentAfterChild(t *testing.T) {
	dump := `[
		{"rev": 0, "node": "r0", "parents": ["r1"]},
		{"rev": 1, "node": "r1", "parents": []}
	]`
	if _, err := Decode(strings.NewReader(dump)); err == nil {
		t.Fatal("expected an error when a parent is referenced before it appears in the stream")
	}
}

func TestDecodeMapsFileActions(t *testing.T) {
	dump := `[{"rev": 0, "node": "r0", "parents": [], "files": [
		{"path": "a", "action": "add", "data": "aGk="},
		{"path": "b", "action": "modify", "data": "aGk="},
		{"path": "c", "action": "remove"}
	]}]`
	r, err := Decode(strings.NewReader(dump))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	rev, _ := r.Next()
	kinds := map[string]changeset.NodeKind{}
	for _, n := range rev.Nodes {
		kinds[n.Path] = n.Kind
	}
	if kinds["a"] != changeset.NodeAddFile {
		t.Errorf("a: got %v, want NodeAddFile", kinds["a"])
	}
	if kinds["b"] != changeset.NodeChangeFile {
		t.Errorf("b: got %v, want NodeChangeFile", kinds["b"])
	}
	if kinds["c"] != changeset.NodeDeleteFile {
		t.Errorf("c: got %v, want NodeDeleteFile", kinds["c"])
	}
}

func TestTreeReplaysAncestorDeltasFromRoot(t *testing.T) {
	dump := `[
		{"rev": 0, "node": "r0", "parents": [], "files": [
			{"path": "a", "action": "add", "data": "MQ=="},
			{"path": "b", "action": "add", "data": "Mg=="}
		]},
		{"rev": 1, "node": "r1", "parents": ["r0"], "files": [
			{"path": "b", "action": "remove"},
			{"path": "c", "action": "add", "data": "Mw=="}
		]}
	]`
	r, err := Decode(strings.NewReader(dump))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	tree, err := r.Tree("r1")
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	paths := map[string]bool{}
	for _, f := range tree.Files() {
		paths[f.Path] = true
	}
	if !paths["a"] || paths["b"] || !paths["c"] {
		t.Errorf("expected {a, c} present and b absent at r1, got %v", paths)
	}
}

func TestOpenDumpPassesThroughPlainFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dump.json")
	if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := OpenDump(path)
	if err != nil {
		t.Fatalf("OpenDump: %v", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("got %q, want []", data)
	}
}

func TestOpenDumpDecompressesZstdSuffixedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dump.json.zst")

	var compressed bytes.Buffer
	enc, err := zstd.NewWriter(&compressed)
	if err != nil {
		t.Fatalf("zstd.NewWriter: %v", err)
	}
	if _, err := enc.Write([]byte(`[{"rev": 0, "node": "r0", "parents": []}]`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := os.WriteFile(path, compressed.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	f, err := OpenDump(path)
	if err != nil {
		t.Fatalf("OpenDump: %v", err)
	}
	defer f.Close()

	r, err := Decode(f)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	rev, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rev.RevID != "r0" {
		t.Errorf("RevID = %q, want r0", rev.RevID)
	}
}
