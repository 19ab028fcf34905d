// Package query implements the Query Model (spec §4.8): parsing a
// query string into a matcher the Search Worker can dispatch on
// without per-character branching, represented as a tagged variant
// per spec §9 rather than a closure.
package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"golang.org/x/text/unicode/norm"
)

// Kind distinguishes the matcher variants (spec §9).
type Kind int

const (
	// Literal is the implicit-substring matcher produced when the
	// query text has no wildcard characters.
	Literal Kind = iota
	// Wildcard is produced when the query text contains '*' or '?'.
	Wildcard
	// Exact and Prefix are not produced by Parse; NewExact and
	// NewPrefix build them. The Search Worker accepts them and
	// probes the Path Store's accelerator maps with their text
	// (spec §4.7).
	Exact
	Prefix
)

// Matcher is the parsed form of a query's filter expression, plus an
// optional /latest time-window modifier (spec §4.8).
type Matcher struct {
	Kind Kind
	// raw is the lowercased literal/prefix/exact text, or the
	// lowercased glob source for Wildcard.
	raw  string
	glob glob.Glob
	// Latest is non-nil when the query was submitted with a
	// /latest modifier active.
	Latest *LatestFilter
}

// LatestFilter restricts results to entries whose recorded change
// event falls within Window of "now" (spec §4.8, §3 recent_changes).
type LatestFilter struct {
	Window time.Duration
}

// lower folds query text the same way the Path Store folds filenames
// (NFC-normalize, then case-fold) so a query typed with a differently
// composed accent still matches.
func lower(s string) string { return strings.ToLower(norm.NFC.String(s)) }

// Parse turns a filter expression (never a leading-'/' slash command,
// which is an external collaborator's concern per spec §4.8) into a
// Matcher. latest, if non-nil, attaches the /latest modifier the
// external command layer has already parsed into a window.
func Parse(queryText string, latest *LatestFilter) (Matcher, error) {
	if strings.HasPrefix(queryText, "/") {
		return Matcher{}, fmt.Errorf("query: %q is a slash command, not a filter expression", queryText)
	}
	if strings.ContainsAny(queryText, "*?") {
		pattern := lower(queryText)
		g, err := glob.Compile(pattern)
		if err != nil {
			return Matcher{}, fmt.Errorf("query: invalid wildcard pattern %q: %w", queryText, err)
		}
		return Matcher{Kind: Wildcard, raw: pattern, glob: g, Latest: latest}, nil
	}
	return Matcher{Kind: Literal, raw: lower(queryText), Latest: latest}, nil
}

// NewExact builds an Exact matcher that accepts only the filename
// name (case-folded).
func NewExact(name string) Matcher { return Matcher{Kind: Exact, raw: lower(name)} }

// NewPrefix builds a Prefix matcher that accepts filenames starting
// with name (case-folded).
func NewPrefix(name string) Matcher { return Matcher{Kind: Prefix, raw: lower(name)} }

// AdmitsFastPath reports whether this matcher is a Literal at least
// minLen long, the condition under which the Search Worker also
// probes the Path Store's prefix accelerator before its linear scan
// (spec §4.7). It returns false for every other kind, Exact included.
func (m Matcher) AdmitsFastPath(minLen int) bool {
	return m.Kind == Literal && len(m.raw) >= minLen
}

// Text returns the normalized (lowercased) pattern/substring text.
func (m Matcher) Text() string { return m.raw }

// Matches reports whether name (the filename) or path (the full
// path) satisfy the matcher. Wildcard patterns match against the
// filename only, mirroring name-search tools' conventional
// glob-on-basename behavior (see DESIGN.md); the no-wildcard Literal
// case falls back to a full-path contains check per spec §4.8.
func (m Matcher) Matches(name, path string) bool {
	lname, lpath := lower(name), lower(path)
	switch m.Kind {
	case Exact:
		return lname == m.raw
	case Prefix:
		return strings.HasPrefix(lname, m.raw)
	case Wildcard:
		return m.glob.Match(lname)
	case Literal:
		return strings.Contains(lname, m.raw) || strings.Contains(lpath, m.raw)
	default:
		return false
	}
}

// RelevanceRank classifies a candidate against the matcher into the
// ordering buckets spec §4.7 names for sort=relevance: 0
// exact-filename-match, 1 filename-prefix-match, 2
// filename-contains-match, 3 path-contains-match, 4 no match. A
// Wildcard match on the filename ranks 2; since Matches applies the
// same tests, an item Matches accepted never ranks 4.
func (m Matcher) RelevanceRank(name, path string) int {
	lname, lpath := lower(name), lower(path)
	switch m.Kind {
	case Exact:
		if lname == m.raw {
			return 0
		}
	case Prefix:
		if strings.HasPrefix(lname, m.raw) {
			return 1
		}
	case Literal:
		switch {
		case lname == m.raw:
			return 0
		case strings.HasPrefix(lname, m.raw):
			return 1
		case strings.Contains(lname, m.raw):
			return 2
		case strings.Contains(lpath, m.raw):
			return 3
		}
	case Wildcard:
		if m.glob.Match(lname) {
			return 2
		}
	}
	return 4
}

// ParseWindow parses the /latest window grammar: digits followed by
// a unit (sec, m, h); an empty string yields the default 5 minutes
// (spec §4.8).
func ParseWindow(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 5 * time.Minute, nil
	}
	for _, unit := range []struct {
		suffix string
		scale  time.Duration
	}{
		{"sec", time.Second},
		{"m", time.Minute},
		{"h", time.Hour},
	} {
		if n, ok := strings.CutSuffix(s, unit.suffix); ok {
			val, err := strconv.Atoi(n)
			if err != nil || val <= 0 {
				return 0, fmt.Errorf("query: invalid /latest window %q", s)
			}
			return time.Duration(val) * unit.scale, nil
		}
	}
	return 0, fmt.Errorf("query: invalid /latest window %q", s)
}
