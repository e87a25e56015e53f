package commitbuilder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alegrigoriev/hg2git/internal/object"
	"github.com/alegrigoriev/hg2git/internal/pathtree"
)

// description is the categorized diff produced by synthesize, feeding
// commit-message synthesis (§4.E step 8).
type description struct {
	Added      []string
	Deleted    []string
	Changed    []string
	RenamedFile []rename
	RenamedDir  []rename
}

type rename struct {
	From, To string
}

// synthesize categorizes a file-level diff list into added/deleted/changed
// plus file and directory rename pairs, per §4.E step 8.
func synthesize(diffs []pathtree.Diff) description {
	var d description

	var deleted, added []pathtree.Diff
	for _, diff := range diffs {
		switch {
		case diff.Left == nil && diff.Right != nil:
			added = append(added, diff)
		case diff.Left != nil && diff.Right == nil:
			deleted = append(deleted, diff)
		default:
			d.Changed = append(d.Changed, diff.Path)
		}
	}

	fileRenames, remainingDeleted, remainingAdded := matchFileRenames(deleted, added)
	d.RenamedFile = fileRenames

	dirRenames, remainingDeleted, remainingAdded := matchDirRenames(remainingDeleted, remainingAdded)
	d.RenamedDir = dirRenames

	for _, diff := range remainingDeleted {
		d.Deleted = append(d.Deleted, diff.Path)
	}
	for _, diff := range remainingAdded {
		d.Added = append(d.Added, diff.Path)
	}

	sort.Strings(d.Added)
	sort.Strings(d.Deleted)
	sort.Strings(d.Changed)
	return d
}

// matchFileRenames pairs a deleted file with an added file when their data
// SHA-1s are equal and non-empty (§4.E step 8: "Two files are considered
// renamed when deleted-file data SHA-1 equals added-file data SHA-1
// (skipping empty files)").
func matchFileRenames(deleted, added []pathtree.Diff) (renames []rename, remDeleted, remAdded []pathtree.Diff) {
	usedAdded := make(map[int]bool)
	var zero [20]byte

	for _, del := range deleted {
		delBlob, ok := del.Left.(*object.Blob)
		if !ok || len(delBlob.Data) == 0 {
			remDeleted = append(remDeleted, del)
			continue
		}
		delSum := delBlob.DataSHA1()
		if delSum == zero {
			remDeleted = append(remDeleted, del)
			continue
		}
		matched := -1
		for i, add := range added {
			if usedAdded[i] {
				continue
			}
			addBlob, ok := add.Right.(*object.Blob)
			if !ok || len(addBlob.Data) == 0 {
				continue
			}
			if addBlob.DataSHA1() == delSum {
				matched = i
				break
			}
		}
		if matched >= 0 {
			usedAdded[matched] = true
			renames = append(renames, rename{From: del.Path, To: added[matched].Path})
			continue
		}
		remDeleted = append(remDeleted, del)
	}
	for i, add := range added {
		if !usedAdded[i] {
			remAdded = append(remAdded, add)
		}
	}
	return renames, remDeleted, remAdded
}

// matchDirRenames groups the remaining deleted/added file paths by parent
// directory and treats a deleted directory D / added directory A pair as a
// rename when the per-file similarity test in §4.E step 8 holds:
// added + deleted < identical + different.
func matchDirRenames(deleted, added []pathtree.Diff) (renames []rename, remDeleted, remAdded []pathtree.Diff) {
	delByDir := groupByDir(deleted)
	addByDir := groupByDir(added)

	matchedDirs := make(map[string]string) // fromDir -> toDir
	usedAddDirs := make(map[string]bool)

	var fromDirs []string
	for dir := range delByDir {
		fromDirs = append(fromDirs, dir)
	}
	sort.Strings(fromDirs)

	for _, fromDir := range fromDirs {
		delFiles := delByDir[fromDir]
		var toDirs []string
		for dir := range addByDir {
			if !usedAddDirs[dir] {
				toDirs = append(toDirs, dir)
			}
		}
		sort.Strings(toDirs)

		for _, toDir := range toDirs {
			addFiles := addByDir[toDir]
			identical, different := compareFileSets(delFiles, addFiles)
			addedCount := len(addFiles) - identical - different
			deletedCount := len(delFiles) - identical - different
			if addedCount < 0 {
				addedCount = 0
			}
			if deletedCount < 0 {
				deletedCount = 0
			}
			if addedCount+deletedCount < identical+different {
				matchedDirs[fromDir] = toDir
				usedAddDirs[toDir] = true
				renames = append(renames, rename{From: fromDir, To: toDir})
				break
			}
		}
	}

	for dir, diffs := range delByDir {
		if _, ok := matchedDirs[dir]; !ok {
			remDeleted = append(remDeleted, diffs...)
		}
	}
	for dir, diffs := range addByDir {
		if !usedAddDirs[dir] {
			remAdded = append(remAdded, diffs...)
		}
	}
	return renames, remDeleted, remAdded
}

func groupByDir(diffs []pathtree.Diff) map[string][]pathtree.Diff {
	out := make(map[string][]pathtree.Diff)
	for _, d := range diffs {
		dir := parentDir(d.Path)
		out[dir] = append(out[dir], d)
	}
	return out
}

func parentDir(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return ""
}

func baseName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// compareFileSets counts how many basenames are common between two
// directory file sets, split into content-identical vs content-different.
func compareFileSets(deleted, added []pathtree.Diff) (identical, different int) {
	addByName := make(map[string]pathtree.Diff, len(added))
	for _, a := range added {
		addByName[baseName(a.Path)] = a
	}
	for _, d := range deleted {
		a, ok := addByName[baseName(d.Path)]
		if !ok {
			continue
		}
		db, dok := d.Left.(*object.Blob)
		ab, aok := a.Right.(*object.Blob)
		if dok && aok && db.Hash() == ab.Hash() {
			identical++
		} else {
			different++
		}
	}
	return identical, different
}

// Title renders the short, single-line summary of a description, used
// when it fits within 100 characters (§4.E step 8).
func (d description) Title() string {
	var parts []string
	if n := len(d.Added); n > 0 {
		parts = append(parts, fmt.Sprintf("add %d file(s)", n))
	}
	if n := len(d.Deleted); n > 0 {
		parts = append(parts, fmt.Sprintf("delete %d file(s)", n))
	}
	if n := len(d.Changed); n > 0 {
		parts = append(parts, fmt.Sprintf("change %d file(s)", n))
	}
	if n := len(d.RenamedFile); n > 0 {
		parts = append(parts, fmt.Sprintf("rename %d file(s)", n))
	}
	if n := len(d.RenamedDir); n > 0 {
		parts = append(parts, fmt.Sprintf("rename %d directory(ies)", n))
	}
	if len(parts) == 0 {
		return "empty commit"
	}
	return strings.Join(parts, ", ")
}

// Bullets renders one line per changed item, used when Title() would
// exceed the 100-character budget.
func (d description) Bullets() []string {
	var lines []string
	for _, p := range d.Added {
		lines = append(lines, "add: "+p)
	}
	for _, p := range d.Deleted {
		lines = append(lines, "delete: "+p)
	}
	for _, p := range d.Changed {
		lines = append(lines, "change: "+p)
	}
	for _, r := range d.RenamedFile {
		lines = append(lines, fmt.Sprintf("rename: %s -> %s", r.From, r.To))
	}
	for _, r := range d.RenamedDir {
		lines = append(lines, fmt.Sprintf("rename directory: %s -> %s", r.From, r.To))
	}
	return lines
}

// Synthesize renders the full synthesized message body: a title alone if
// it fits within 100 characters, else a short title plus bullets.
func (d description) Synthesize() string {
	title := d.Title()
	if len(title) <= 100 {
		return title
	}
	var b strings.Builder
	b.WriteString("update files\n\n")
	for _, l := range d.Bullets() {
		b.WriteString("- ")
		b.WriteString(l)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
