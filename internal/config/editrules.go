package config

// EditMessage runs log through the branch map's edit-message pipeline
// (§4.E): rules apply in declaration order, each restricted to the
// revision by Applies, each substituting at most MaxCount occurrences (0 =
// unlimited), and a rule marked Final stops the pipeline once it has fired
// at least one replacement.
func (bm *BranchMap) EditMessage(log string, rev int, revID string) string {
	for _, rule := range bm.EditRules {
		if !rule.Applies(rev, revID) {
			continue
		}
		replaced, n := replaceN(rule.Pattern, log, rule.Replacement, rule.MaxCount)
		log = replaced
		if rule.Final && n > 0 {
			break
		}
	}
	return log
}

// replaceN substitutes at most max matches of re in s (max<=0 means
// unlimited), returning the result and how many substitutions were made.
func replaceN(re interface {
	FindAllStringIndex(string, int) [][]int
}, s, replacement string, max int) (string, int) {
	limit := -1
	if max > 0 {
		limit = max
	}
	locs := re.FindAllStringIndex(s, limit)
	if len(locs) == 0 {
		return s, 0
	}

	var out []byte
	last := 0
	for _, loc := range locs {
		out = append(out, s[last:loc[0]]...)
		out = append(out, expandBackrefs(s, loc, replacement)...)
		last = loc[1]
	}
	out = append(out, s[last:]...)
	return string(out), len(locs)
}

// expandBackrefs is intentionally minimal: EditRule replacements in this
// mapping format are plain literal text, not backreference templates, so
// this is a straight passthrough hook kept separate so a future $1-style
// extension has a single place to land.
func expandBackrefs(_ string, _ []int, replacement string) []byte {
	return []byte(replacement)
}
