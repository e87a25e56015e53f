// Package hg2gerr defines the sentinel-error hierarchy cmd/hg2git uses to
// map failures to the exact exit codes in spec.md §6, following the
// teacher's modules/zeta/error.go style: sentinel values plus errors.Is,
// not string matching.
package hg2gerr

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingInput means the positional input repo path does not exist
	// (exit code 1).
	ErrMissingInput = errors.New("input repository path does not exist")

	// ErrInputRepository means the input repo could not be opened/read
	// (exit code 2).
	ErrInputRepository = errors.New("input repository error")

	// ErrHistoryParse means a malformed RevisionNode, an unresolved parent
	// rev, or an inconsistent branch delete was seen (exit code 128).
	ErrHistoryParse = errors.New("history parse error")

	// ErrConfigParse means the mapping config (--config FILE) failed to
	// parse (exit code 128).
	ErrConfigParse = errors.New("config parse error")

	// ErrInterrupted means the run was cancelled by the operator (exit
	// code 130).
	ErrInterrupted = errors.New("interrupted")
)

// ExitCode maps err to the exit code spec.md §6 assigns its class, walking
// the error chain with errors.Is. Unrecognized errors (including sink I/O
// errors, which are fatal but have no dedicated exit code) map to 1.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInterrupted):
		return 130
	case errors.Is(err, ErrHistoryParse), errors.Is(err, ErrConfigParse):
		return 128
	case errors.Is(err, ErrInputRepository):
		return 2
	case errors.Is(err, ErrMissingInput):
		return 1
	default:
		return 1
	}
}

// Wrap annotates err as belonging to sentinel's class while preserving
// errors.Is(wrapped, sentinel).
func Wrap(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
