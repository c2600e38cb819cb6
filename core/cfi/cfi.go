// Package cfi parses and orders canonical locations expressed as EPUB
// Canonical Fragment Identifiers, e.g. "epubcfi(/6/8!/4/4,/1:0,/1:20)".
//
// A Location is either a point (a single path) or a range (a parent path with
// start and end local paths). Locations are ordered by document order, which
// is stable across reloads of the same document because it depends only on
// the structure of the content, never on pagination.
package cfi

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/JuniperReader/core/errors"
)

// cfiGrammar is the participle grammar for a whole CFI.
//
//nolint:govet // participle grammar tags are not standard struct tags
type cfiGrammar struct {
	Path  *pathGrammar `Prefix @@`
	Start *pathGrammar `( "," @@`
	End   *pathGrammar `  "," @@ )? ")"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type pathGrammar struct {
	Steps  []*stepGrammar `@@*`
	Offset *offsetGrammar `@@?`
}

//nolint:govet // participle grammar tags are not standard struct tags
type stepGrammar struct {
	Indirect  bool    `@"!"?`
	Index     int     `"/" @Int`
	Assertion *string `@Assertion?`
}

//nolint:govet // participle grammar tags are not standard struct tags
type offsetGrammar struct {
	Char      int      `":" @Int`
	Temporal  *float64 `( "~" @(Float | Int) )?`
	Assertion *string  `@Assertion?`
}

var cfiLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Prefix", Pattern: `epubcfi\(`},
	{Name: "Assertion", Pattern: `\[[^\]]*\]`},
	{Name: "Float", Pattern: `[0-9]+\.[0-9]+`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Punct", Pattern: `[/!,:~()]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var cfiParser = participle.MustBuild[cfiGrammar](
	participle.Lexer(cfiLexer),
	participle.Elide("Whitespace"),
)

// Step is one element step of a path.
type Step struct {
	// Index is the even/odd child index of the step.
	Index int
	// Assertion is the optional ID assertion without brackets.
	Assertion string
	// Indirect is true when the step follows a "!" indirection into a
	// referenced content document.
	Indirect bool
}

// Offset is the terminal character offset of a path.
type Offset struct {
	Char      int
	Temporal  float64
	Assertion string
}

// Path is a sequence of steps with an optional terminal offset.
type Path struct {
	Steps  []Step
	Offset *Offset
}

// Location is a parsed canonical location.
type Location struct {
	raw    string
	Parent Path
	// Start and End are set for range locations and are relative to Parent.
	Start *Path
	End   *Path
}

// Parse parses a CFI string.
func Parse(s string) (Location, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Location{}, errors.NewParse("CFI", s, "empty location")
	}

	parsed, err := cfiParser.ParseString("", s)
	if err != nil {
		pe := errors.NewParse("CFI", s, "invalid syntax")
		pe.Err = errors.Join(errors.ErrMalformedLocation, err)
		return Location{}, pe
	}

	loc := Location{raw: s, Parent: convertPath(parsed.Path)}
	if parsed.Start != nil {
		start := convertPath(parsed.Start)
		end := convertPath(parsed.End)
		loc.Start, loc.End = &start, &end
	}
	if len(loc.Parent.Steps) == 0 {
		return Location{}, errors.NewParse("CFI", s, "location has no steps")
	}
	return loc, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(s string) Location {
	loc, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return loc
}

func convertPath(g *pathGrammar) Path {
	var p Path
	if g == nil {
		return p
	}
	for _, s := range g.Steps {
		step := Step{Index: s.Index, Indirect: s.Indirect}
		if s.Assertion != nil {
			step.Assertion = trimAssertion(*s.Assertion)
		}
		p.Steps = append(p.Steps, step)
	}
	if o := g.Offset; o != nil {
		off := &Offset{Char: o.Char}
		if o.Temporal != nil {
			off.Temporal = *o.Temporal
		}
		if o.Assertion != nil {
			off.Assertion = trimAssertion(*o.Assertion)
		}
		p.Offset = off
	}
	return p
}

func trimAssertion(s string) string {
	return strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
}

// String returns the location exactly as it was parsed.
func (l Location) String() string {
	return l.raw
}

// IsRange reports whether the location spans a range.
func (l Location) IsRange() bool {
	return l.Start != nil
}

// SpinePosition returns the 1-based even spine position n encoded by the
// second step of the parent path, i.e. the 8 in "/6/8!/4". The spine step
// must be followed by an indirection, either in the parent path or at the
// head of both range ends.
func (l Location) SpinePosition() (int, error) {
	steps := l.Parent.Steps
	if len(steps) < 2 || steps[0].Indirect || steps[1].Indirect {
		return 0, errors.NewParse("CFI", l.raw, "missing spine step")
	}
	if !l.indirectAfterSpine() {
		return 0, errors.NewParse("CFI", l.raw, "spine step is not followed by an indirection")
	}
	n := steps[1].Index
	if n < 2 || n%2 != 0 {
		return 0, errors.NewParse("CFI", l.raw, "spine position "+strconv.Itoa(n)+" is not a positive even number")
	}
	return n, nil
}

func (l Location) indirectAfterSpine() bool {
	steps := l.Parent.Steps
	if len(steps) > 2 {
		return steps[2].Indirect
	}
	if l.Parent.Offset != nil || l.Start == nil || l.End == nil {
		return false
	}
	return len(l.Start.Steps) > 0 && l.Start.Steps[0].Indirect &&
		len(l.End.Steps) > 0 && l.End.Steps[0].Indirect
}

// ChapterIndex maps the spine position n to the 0-based chapter index (n-2)/2.
func (l Location) ChapterIndex() (int, error) {
	n, err := l.SpinePosition()
	if err != nil {
		return 0, err
	}
	return (n - 2) / 2, nil
}

// ChapterIndex parses s and returns its chapter index.
func ChapterIndex(s string) (int, error) {
	loc, err := Parse(s)
	if err != nil {
		return 0, err
	}
	return loc.ChapterIndex()
}

// StartPoint returns the absolute path of the location's first point.
func (l Location) StartPoint() Path {
	if l.Start == nil {
		return l.Parent
	}
	return join(l.Parent, *l.Start)
}

// EndPoint returns the absolute path of the location's last point.
func (l Location) EndPoint() Path {
	if l.End == nil {
		return l.Parent
	}
	return join(l.Parent, *l.End)
}

func join(parent, local Path) Path {
	steps := make([]Step, 0, len(parent.Steps)+len(local.Steps))
	steps = append(steps, parent.Steps...)
	steps = append(steps, local.Steps...)
	return Path{Steps: steps, Offset: local.Offset}
}
