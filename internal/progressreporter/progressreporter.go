// Package progressreporter implements the CLI's --progress[=SEC] output
// (SPEC_FULL.md §6): a rate-limited revision counter, rendered as an
// indeterminate mpb bar when stderr is a terminal and as plain log lines
// otherwise.
package progressreporter

import (
	"fmt"
	"os"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"
)

// Reporter rate-limits progress callbacks to at most once per interval, per
// §9 "Progress... not on the hot path".
type Reporter struct {
	interval time.Duration
	last     time.Time
	started  time.Time

	p   *mpb.Progress
	bar *mpb.Bar

	plain bool
}

// New builds a Reporter. A zero interval disables rate limiting (every
// call reports). quiet suppresses all output, matching --quiet.
func New(interval time.Duration, quiet bool) *Reporter {
	if quiet {
		return &Reporter{interval: interval, plain: true}
	}

	r := &Reporter{interval: interval, started: time.Now()}
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		r.plain = true
		return r
	}

	r.p = mpb.New(mpb.WithOutput(os.Stderr), mpb.WithAutoRefresh())
	r.bar = r.p.New(-1,
		mpb.BarStyle().Filler("#").Padding(" "),
		mpb.PrependDecorators(
			decor.Name("converting", decor.WC{W: len("converting"), C: decor.DindentRight}),
		),
		mpb.AppendDecorators(
			decor.Any(func(st decor.Statistics) string { return "" }),
		),
	)
	return r
}

// Report is called once per converted revision; it is the caller's
// responsibility not to call it faster than it can be usefully rendered —
// the Reporter itself only throttles the actual I/O.
func (r *Reporter) Report(rev int, branches int) {
	if r == nil {
		return
	}
	now := time.Now()
	if r.interval > 0 && !r.last.IsZero() && now.Sub(r.last) < r.interval {
		return
	}
	r.last = now

	if r.plain {
		if r.started.IsZero() {
			return // quiet mode
		}
		fmt.Fprintf(os.Stderr, "rev %d, %d branch(es), %s elapsed\n", rev, branches, now.Sub(r.started).Round(time.Second))
		return
	}

	r.bar.SetCurrent(int64(rev))
	r.bar.SetPriority(0)
}

// Close finalizes the progress bar, if one was created.
func (r *Reporter) Close() {
	if r == nil || r.p == nil {
		return
	}
	r.bar.SetTotal(-1, true)
	r.p.Wait()
}
