package commitbuilder

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/alegrigoriev/hg2git/internal/config"
)

var changeIDPattern = regexp.MustCompile(`(?m)^Change-Id:\s*(\S+)\s*$`)

// RunEditRules applies a branch's message edit pipeline (§4.E "Message
// edit pipeline") before the log is split into paragraphs. Declared
// separately from config.BranchMap.EditMessage so commitbuilder can call
// it even when bm is nil (branches with no matching BranchMap still get an
// unedited, synthesized-if-empty message).
func RunEditRules(bm *config.BranchMap, log string, rev int, revID string) string {
	if bm == nil {
		return log
	}
	return bm.EditMessage(log, rev, revID)
}

// assembleMessage combines the revision's (possibly edited) log text with
// synthesized description, cherry-pick footer, and HG-revision decoration,
// per §4.E steps 7-8.
func assembleMessage(msg RawMessage, desc description) string {
	log := strings.TrimSpace(msg.Log)
	if log == "" {
		log = desc.Synthesize()
	}

	var b strings.Builder
	b.WriteString(log)

	footers := cherryPickFooters(msg.CherryPicks)
	if len(footers) > 0 {
		b.WriteString("\n\n")
		b.WriteString(strings.Join(footers, "\n"))

		if len(msg.CherryPicks) == 1 {
			if id, ok := changeID(msg.CherryPicks[0].OriginalMessage); ok {
				b.WriteString("\n\nChange-Id: ")
				b.WriteString(id)
			}
		}
	}

	if msg.DecorateRevisionID {
		b.WriteString("\n\nHG-revision: ")
		fmt.Fprintf(&b, "%d", msg.Rev)
	}

	return b.String()
}

// cherryPickFooters renders one "Cherry-picked-from:" line per remaining
// cherry-pick source, per §8 Property 5.
func cherryPickFooters(picks []CherryPick) []string {
	var lines []string
	for _, p := range picks {
		lines = append(lines, fmt.Sprintf("Cherry-picked-from: %s %s;%d", p.SourceCommit.String(), p.SourceRef, p.SourceRev))
	}
	return lines
}

func changeID(message string) (string, bool) {
	m := changeIDPattern.FindStringSubmatch(message)
	if m == nil {
		return "", false
	}
	return m[1], true
}
