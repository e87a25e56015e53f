package globmatch

import "testing"

func TestMatchSingleComponentWildcard(t *testing.T) {
	p := Compile("release-*")
	cases := map[string]bool{
		"release-7":       true,
		"release-7.1":     true,
		"release":         false,
		"release-7/extra": false,
	}
	for name, want := range cases {
		if got := p.Match(name); got != want {
			t.Errorf("Match(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestMatchDoubleStarConsumesComponentsGreedily(t *testing.T) {
	p := Compile("refs/**/head")
	cases := map[string]bool{
		"refs/head":             true,
		"refs/a/head":           true,
		"refs/a/b/c/head":       true,
		"refs/a/b/c/tail":       false,
		"other/a/head":         false,
	}
	for name, want := range cases {
		if got := p.Match(name); got != want {
			t.Errorf("Match(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestMatchTrailingDoubleStarMatchesEverythingUnderPrefix(t *testing.T) {
	p := Compile("feature/**")
	if !p.Match("feature/x/y/z") {
		t.Error("expected feature/** to match feature/x/y/z")
	}
	if p.Match("other/x") {
		t.Error("expected feature/** not to match a differing prefix")
	}
}

func TestMatchQuestionMarkSingleCharacter(t *testing.T) {
	p := Compile("v?.0")
	if !p.Match("v1.0") {
		t.Error("expected v?.0 to match v1.0")
	}
	if p.Match("v10.0") {
		t.Error("expected v?.0 not to match v10.0")
	}
}

func TestCompileNeverFailsOnMalformedCharacterClass(t *testing.T) {
	p := Compile("weird[abc")
	// Compile must not panic or return nil; an unmatched bracket is just
	// treated as literal text by filepath.Match's own error path.
	if p == nil {
		t.Fatal("Compile returned nil")
	}
	_ = p.Match("weird[abc")
}

func TestStringReturnsRawPattern(t *testing.T) {
	p := Compile("a/b/*")
	if p.String() != "a/b/*" {
		t.Errorf("String() = %q, want a/b/*", p.String())
	}
}
