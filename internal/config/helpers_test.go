package config

import (
	"regexp"

	"github.com/alegrigoriev/hg2git/internal/globmatch"
)

func mustGlob(p string) *globmatch.Pattern { return globmatch.Compile(p) }

func mustRegexp(p string) *regexp.Regexp { return regexp.MustCompile(p) }
