// Package logging wires the converter's diagnostics through logrus, the
// teacher corpus's logging library (modules/trace), with rev/branch/
// component structured fields instead of bare fmt.Fprintf calls.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Level mirrors the CLI's repeatable --verbose flag (§6): each repetition
// lowers the effective threshold by one step.
type Level int

const (
	LevelWarn Level = iota
	LevelInfo
	LevelDebug
)

var log = logrus.New()

func init() {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: false,
		FullTimestamp:    true,
	})
	log.SetLevel(logrus.WarnLevel)
}

// Configure sets the effective log level from the CLI's -v/-vv/--quiet
// flags.
func Configure(level Level, quiet bool) {
	switch {
	case quiet:
		log.SetLevel(logrus.WarnLevel)
	case level >= LevelDebug:
		log.SetLevel(logrus.DebugLevel)
	case level >= LevelInfo:
		log.SetLevel(logrus.InfoLevel)
	default:
		log.SetLevel(logrus.WarnLevel)
	}
}

// SetOutput redirects log output, used by the CLI's --log FILE flag.
func SetOutput(path string) error {
	if path == "" || path == "-" {
		log.SetOutput(os.Stderr)
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	log.SetOutput(f)
	return nil
}

// Revision returns a logger scoped to one input revision, per the
// structured-field convention used throughout this package.
func Revision(rev int, revID, branch string) *logrus.Entry {
	return log.WithFields(logrus.Fields{"rev": rev, "rev_id": revID, "branch": branch})
}

// Component returns a logger scoped to a named internal component, for
// diagnostics not tied to a specific revision (e.g. sink setup).
func Component(name string) *logrus.Entry {
	return log.WithField("component", name)
}

func Warnf(format string, args ...any) { log.Warnf(format, args...) }
func Infof(format string, args ...any) { log.Infof(format, args...) }
func Errorf(format string, args ...any) { log.Errorf(format, args...) }
