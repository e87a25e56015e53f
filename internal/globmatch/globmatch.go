// Package globmatch implements the small glob dialect used by branch-map
// and tag-map entries in internal/config: '*' and '?' within a path
// component, '**' as a greedy multi-component wildcard, and '/' as the
// component separator.
//
// The matching strategy (tokenize into per-component matchers, let '**'
// consume components greedily until the remaining tokens match) is adapted
// from the teacher corpus's modules/wildmatch package, trimmed down to the
// single-string, non-filesystem case branch names and tags actually need:
// no .gitignore "contents" mode, no .gitattributes mode, no Basename
// option.
package globmatch

import (
	"path/filepath"
	"strings"
)

// Pattern is a compiled glob pattern over "/"-separated components.
type Pattern struct {
	raw        string
	components []string
}

// Compile parses p into a Pattern. Compile never fails: malformed
// character classes are treated as literal text, matching the permissive
// style of config parsing elsewhere in this module (unresolvable entries
// are warnings, not fatal errors, per §7).
func Compile(p string) *Pattern {
	return &Pattern{raw: p, components: strings.Split(p, "/")}
}

func (p *Pattern) String() string { return p.raw }

// Match reports whether name (itself "/"-separated) matches the pattern.
func (p *Pattern) Match(name string) bool {
	return matchComponents(p.components, strings.Split(name, "/"))
}

func matchComponents(pattern, name []string) bool {
	if len(pattern) == 0 {
		return len(name) == 0
	}
	if pattern[0] == "**" {
		if len(pattern) == 1 {
			return true
		}
		for i := 0; i <= len(name); i++ {
			if matchComponents(pattern[1:], name[i:]) {
				return true
			}
		}
		return false
	}
	if len(name) == 0 {
		return false
	}
	ok, err := filepath.Match(pattern[0], name[0])
	if err != nil {
		ok = pattern[0] == name[0]
	}
	if !ok {
		return false
	}
	return matchComponents(pattern[1:], name[1:])
}
