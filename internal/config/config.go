// Package config implements the Project config / branch map component
// (SPEC_FULL.md §4.F): a compiled, ordered list of project configs, each
// carrying branch-map entries that resolve branch names to target
// refnames, tag labels to tag refnames, message edit rules, and
// gitattributes overrides.
package config

import (
	"fmt"
	"regexp"

	"github.com/alegrigoriev/hg2git/internal/globmatch"
)

// EditRule is one entry of a branch's message edit pipeline (§4.E
// "Message edit pipeline"): a regex substitution applied to the log text
// before it is split into paragraphs.
type EditRule struct {
	Pattern     *regexp.Regexp
	Replacement string
	MaxCount    int // 0 means unlimited
	Final       bool

	HasRevRange  bool
	RevRangeFrom int
	RevRangeTo   int

	RevID string // non-empty restricts this rule to a single source rev id
}

// Applies reports whether this rule is in scope for the given revision.
func (r EditRule) Applies(rev int, revID string) bool {
	if r.HasRevRange && (rev < r.RevRangeFrom || rev > r.RevRangeTo) {
		return false
	}
	if r.RevID != "" && r.RevID != revID {
		return false
	}
	return true
}

// TagMap resolves a tag label to a target refname. An entry whose
// RefnameTemplate is explicitly empty (Blocked=true) encodes "explicitly
// unmapped; warn" from §4.F's map_tag contract.
type TagMap struct {
	Pattern         *globmatch.Pattern
	RefnameTemplate string
	Blocked         bool
}

// BranchMap is one entry of a project's branch-map list, per §4.F: a
// glob-spec matched against the Mercurial branch name, a refname template,
// an optional per-revision refname template, edit rules, tag mappings, and
// gitattributes overrides.
type BranchMap struct {
	Glob                 *globmatch.Pattern
	RefnameTemplate       string
	RevisionsRefTemplate  string
	EditRules             []EditRule
	TagMaps               []TagMap
	GitAttributes         map[string]string

	// Blocked records an explicitly-empty refname template: "An empty
	// refname explicitly blocks creation."
	Blocked bool
}

// Resolved is the outcome of a successful MapBranch lookup: the owning
// BranchMap plus the branch name it matched, so callers can expand
// templates.
type Resolved struct {
	Map        *BranchMap
	BranchName string
}

// Refname expands the {name} placeholder in the branch map's refname
// template.
func (r *Resolved) Refname() string {
	return expandTemplate(r.Map.RefnameTemplate, r.BranchName)
}

// RevisionsRef expands the {name} and {rev} placeholders in the branch
// map's per-revision refname template, falling back to the §4.D
// substitution rule ("derived by replacing the leading refs/heads/ (or
// refs/) prefix") applied to the resolved refname when none is configured.
func (r *Resolved) RevisionsRef(rev int) string {
	tmpl := r.Map.RevisionsRefTemplate
	if tmpl == "" {
		return fmt.Sprintf("%s/r%d", revisionsRefBase(r.Refname()), rev)
	}
	return expandTemplate(expandRev(tmpl, rev), r.BranchName)
}

// revisionsRefBase applies §4.D's substitution rule: the leading
// "refs/heads/" or "refs/" prefix of refname is replaced by
// "refs/revisions/". §9's open question leaves the case where refname
// starts with neither prefix underspecified; we adopt the rule verbatim by
// treating the whole refname as the part after a (zero-length) prefix, so
// it simply gets nested under "refs/revisions/" unchanged.
func revisionsRefBase(refname string) string {
	switch {
	case hasPrefix(refname, "refs/heads/"):
		return "refs/revisions/" + refname[len("refs/heads/"):]
	case hasPrefix(refname, "refs/"):
		return "refs/revisions/" + refname[len("refs/"):]
	default:
		return "refs/revisions/" + refname
	}
}

func expandTemplate(tmpl, name string) string {
	out := ""
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] == '{' {
			if end := indexByte(tmpl[i:], '}'); end > 0 {
				key := tmpl[i+1 : i+end]
				if key == "name" {
					out += name
					i += end
					continue
				}
			}
		}
		out += string(tmpl[i])
	}
	return out
}

func expandRev(tmpl string, rev int) string {
	out := ""
	for i := 0; i < len(tmpl); i++ {
		if tmpl[i] == '{' {
			if end := indexByte(tmpl[i:], '}'); end > 0 {
				key := tmpl[i+1 : i+end]
				if key == "rev" {
					out += fmt.Sprintf("%d", rev)
					i += end
					continue
				}
			}
		}
		out += string(tmpl[i])
	}
	return out
}

func indexByte(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}

// ProjectConfig groups a branch-map list under an optional project path
// glob (the CLI's repeatable `--project GLOB`, §6).
type ProjectConfig struct {
	PathGlob   *globmatch.Pattern // nil matches every project
	BranchMaps []BranchMap
}

func (p *ProjectConfig) matchesProject(projectPath string) bool {
	if p.PathGlob == nil {
		return true
	}
	return p.PathGlob.Match(projectPath)
}

// Config is the fully compiled mapping configuration (§4.F).
type Config struct {
	Projects []ProjectConfig

	// BranchesPrefix / TagsPrefix are the CLI's --branches / --tags
	// namespace roots, used by MapRef for final rewriting.
	BranchesPrefix string
	TagsPrefix     string
}

// DefaultConfig returns the built-in mapping used when --no-default-config
// is not given: every branch maps 1:1 under the configured namespace, tags
// likewise, no edit rules.
func DefaultConfig(branchesPrefix, tagsPrefix string) *Config {
	return &Config{
		BranchesPrefix: branchesPrefix,
		TagsPrefix:     tagsPrefix,
		Projects: []ProjectConfig{{
			BranchMaps: []BranchMap{{
				Glob:            globmatch.Compile("**"),
				RefnameTemplate: branchesPrefix + "{name}",
				TagMaps: []TagMap{{
					Pattern:         globmatch.Compile("**"),
					RefnameTemplate: tagsPrefix + "{name}",
				}},
			}},
		}},
	}
}

// MapBranch resolves branchName against every project's branch-map list in
// declaration order, returning the first match (§4.F: "returns the first
// matching BranchMap, or null").
func (c *Config) MapBranch(projectPath, branchName string) (*Resolved, bool) {
	for pi := range c.Projects {
		p := &c.Projects[pi]
		if !p.matchesProject(projectPath) {
			continue
		}
		for bi := range p.BranchMaps {
			bm := &p.BranchMaps[bi]
			if bm.Glob.Match(branchName) {
				return &Resolved{Map: bm, BranchName: branchName}, true
			}
		}
	}
	return nil, false
}

// TagMapState describes the three possible outcomes of MapTag, mirroring
// §4.F's map_tag contract exactly.
type TagMapState int

const (
	TagMapped TagMapState = iota
	TagExplicitlyUnmapped
	TagNoMapping
)

// MapTag resolves a tag label through the owning branch map's tag-map
// list.
func (bm *BranchMap) MapTag(label string) (refname string, state TagMapState) {
	for _, tm := range bm.TagMaps {
		if !tm.Pattern.Match(label) {
			continue
		}
		if tm.Blocked {
			return "", TagExplicitlyUnmapped
		}
		return expandTemplate(tm.RefnameTemplate, label), TagMapped
	}
	return "", TagNoMapping
}

// MapRef applies final namespace rewriting to a fully resolved refname
// (§4.F map_ref): substituting a leading refs/heads/ or refs/tags/ for the
// configured namespace roots when they differ from the defaults.
func (c *Config) MapRef(refname string) string {
	const (
		defaultHeads = "refs/heads/"
		defaultTags  = "refs/tags/"
	)
	switch {
	case hasPrefix(refname, defaultHeads) && c.BranchesPrefix != defaultHeads:
		return c.BranchesPrefix + refname[len(defaultHeads):]
	case hasPrefix(refname, defaultTags) && c.TagsPrefix != defaultTags:
		return c.TagsPrefix + refname[len(defaultTags):]
	default:
		return refname
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
