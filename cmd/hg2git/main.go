// Command hg2git converts a Mercurial-style changeset stream into a Git
// branch/tag ref set, per spec.md §6's CLI surface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/alegrigoriev/hg2git/internal/config"
	"github.com/alegrigoriev/hg2git/internal/convert"
	"github.com/alegrigoriev/hg2git/internal/hg2gerr"
	"github.com/alegrigoriev/hg2git/internal/hgreader"
	"github.com/alegrigoriev/hg2git/internal/logging"
	"github.com/alegrigoriev/hg2git/internal/progressreporter"
	"github.com/alegrigoriev/hg2git/internal/projector"
	"github.com/alegrigoriev/hg2git/internal/sink"
)

// CLI mirrors spec.md §6's CLI surface exactly: positional input path plus
// every flag enumerated there.
type CLI struct {
	InputRepo string `arg:"" name:"input" help:"Path to the Mercurial changelog dump (JSON)" type:"existingfile"`

	Log     string   `name:"log" help:"Log destination file" default:"-"`
	Verbose []string `name:"verbose" short:"v" help:"Increase verbosity; repeatable" enum:"dump,dump_all,revs,commits,all" sep:"none"`
	Quiet   bool     `name:"quiet" help:"Suppress all but warnings and errors"`

	EndRevision int `name:"end-revision" help:"Stop after converting this revision, inclusive"`

	// Progress takes an interval in seconds. An empty value cannot be told
	// apart from an absent flag and leaves progress reporting off; a value
	// that is not a positive integer selects every 2 seconds.
	Progress string `name:"progress" help:"Report progress every SEC seconds (2 if SEC is not a positive integer)" optional:""`

	Config            string   `name:"config" help:"Mapping config file (XML)" type:"existingfile"`
	Branches          string   `name:"branches" help:"Branch ref namespace prefix" default:"refs/heads/"`
	Tags              string   `name:"tags" help:"Tag ref namespace prefix" default:"refs/tags/"`
	ConvertHgignore   bool     `name:"convert-hgignore" help:"Translate .hgignore to .gitignore"`
	ConvertHgeol      bool     `name:"convert-hgeol" help:"Translate .hgeol to .gitattributes"`
	NoDefaultConfig   bool     `name:"no-default-config" help:"Disable the built-in 1:1 branch/tag mapping"`
	Project           []string `name:"project" help:"Restrict conversion to projects matching GLOB; repeatable"`
	TargetRepository  string   `name:"target-repository" help:"Path to the target (output) Git repository" required:""`
	DecorateCommitMsg []string `name:"decorate-commit-message" help:"Commit message decorations" enum:"revision-id"`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("hg2git"),
		kong.Description("Projects a Mercurial-style changeset history onto Git branches and tags"),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, &cli)
	if err != nil {
		fmt.Fprintln(os.Stderr, "hg2git:", err)
	}
	os.Exit(hg2gerr.ExitCode(err))
}

func run(ctx context.Context, cli *CLI) error {
	if err := logging.SetOutput(cli.Log); err != nil {
		return fmt.Errorf("opening log destination: %w", err)
	}
	logging.Configure(verbosityOf(cli.Verbose), cli.Quiet)

	f, err := hgreader.OpenDump(cli.InputRepo)
	if err != nil {
		return hg2gerr.Wrap(hg2gerr.ErrMissingInput, "%v", err)
	}
	defer f.Close()

	reader, err := hgreader.Decode(f)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	snk := sink.NewGitSink(cli.TargetRepository)

	var reporter *progressreporter.Reporter
	if interval, ok := parseProgressFlag(cli.Progress); ok {
		reporter = progressreporter.New(interval, cli.Quiet)
		defer reporter.Close()
	}

	decorate := false
	for _, d := range cli.DecorateCommitMsg {
		if d == "revision-id" {
			decorate = true
		}
	}

	orch := convert.New(reader, snk, convert.Options{
		Config:             cfg,
		Projector:          projector.Options{ConvertHgignore: cli.ConvertHgignore, ConvertHgeol: cli.ConvertHgeol},
		DecorateRevisionID: decorate,
		EndRevision:        cli.EndRevision,
		Progress: func(rev, branches int) {
			if reporter != nil {
				reporter.Report(rev, branches)
			}
		},
	})

	if err := orch.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return hg2gerr.Wrap(hg2gerr.ErrInterrupted, "%v", err)
		}
		return err
	}

	for _, w := range orch.Warnings {
		logging.Revision(w.Rev, w.RevID, "").Warn(w.Reason)
	}
	return nil
}

func loadConfig(cli *CLI) (*config.Config, error) {
	if cli.Config == "" {
		if cli.NoDefaultConfig {
			return &config.Config{BranchesPrefix: cli.Branches, TagsPrefix: cli.Tags}, nil
		}
		return config.DefaultConfig(cli.Branches, cli.Tags), nil
	}
	data, err := os.ReadFile(cli.Config)
	if err != nil {
		return nil, hg2gerr.Wrap(hg2gerr.ErrConfigParse, "%v", err)
	}
	cfg, err := config.Load(data, cli.Branches, cli.Tags)
	if err != nil {
		return nil, hg2gerr.Wrap(hg2gerr.ErrConfigParse, "%v", err)
	}
	return cfg, nil
}

func verbosityOf(levels []string) logging.Level {
	if len(levels) == 0 {
		return logging.LevelWarn
	}
	if len(levels) == 1 {
		return logging.LevelInfo
	}
	return logging.LevelDebug
}

// parseProgressFlag turns the --progress value into a reporting interval:
// an empty value (flag absent or given empty) means disabled, a positive
// integer means every SEC seconds, and any other value means every 2
// seconds.
func parseProgressFlag(raw string) (time.Duration, bool) {
	if raw == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 2 * time.Second, true
	}
	return time.Duration(secs) * time.Second, true
}
