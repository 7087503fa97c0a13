// Package matcher implements the ordered list of path-prefix patterns used
// for first-match segment-term and request-URI extraction.
//
// Grounded on original_source/axiom/util_matcher.c: each prefix is
// normalized to end in exactly one '/', and matching scans prefixes in
// insertion order, returning the path segment immediately following the
// first prefix that occurs anywhere in the input.
package matcher

import "strings"

// Matcher holds an ordered set of normalized prefixes.
type Matcher struct {
	prefixes []string
}

// New returns an empty Matcher.
func New() *Matcher {
	return &Matcher{}
}

// AddPrefix registers str, normalized to lowercase with exactly one
// trailing '/' (trailing slashes are first stripped, then one is added
// back — so "/foo", "/foo/", and "/foo///" all normalize to "/foo/").
func (m *Matcher) AddPrefix(str string) {
	trimmed := strings.TrimRight(str, "/")
	m.prefixes = append(m.prefixes, strings.ToLower(trimmed)+"/")
}

// Match returns the first path segment following the earliest-registered
// prefix that occurs in input, or ("", false) if no prefix matches.
//
// The lookup is case-insensitive on the prefix but the returned segment
// preserves input's original case. If nothing follows the prefix, the
// empty string is returned with ok true (a prefix match with no trailing
// segment is still a match — this normalizes away the
// source's "trailing content re-includes the prefix" oddity).
func (m *Matcher) Match(input string) (string, bool) {
	return m.match(input, false)
}

// MatchCore is Match's counterpart used by the namer's "core" extraction:
// it returns the *last* path segment of whatever follows the prefix,
// rather than the first.
func (m *Matcher) MatchCore(input string) (string, bool) {
	return m.match(input, true)
}

func (m *Matcher) match(input string, core bool) (string, bool) {
	lower := strings.ToLower(input)
	for _, prefix := range m.prefixes {
		idx := strings.Index(lower, prefix)
		if idx < 0 {
			continue
		}
		rest := input[idx+len(prefix):]
		if core {
			if j := strings.LastIndex(rest, "/"); j >= 0 {
				return rest[j+1:], true
			}
			return rest, true
		}
		if j := strings.Index(rest, "/"); j >= 0 {
			return rest[:j], true
		}
		return rest, true
	}
	return "", false
}
