// SPDX-License-Identifier: AGPL-3.0-or-later

package expect

import (
	"fmt"
	"regexp"
)

// Tag names the outcome of an Expect call.
type Tag string

// EOF is reported when the output stream closes before any pattern matched.
const EOF Tag = "eof"

// Pattern pairs a compiled expression with the tag reported when it matches.
type Pattern struct {
	Tag Tag
	re  *regexp.Regexp
}

// Literal matches s verbatim.
func Literal(tag Tag, s string) Pattern {
	return Pattern{Tag: tag, re: regexp.MustCompile(regexp.QuoteMeta(s))}
}

// Regexp compiles expr into a pattern.
func Regexp(tag Tag, expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("pattern %s: %w", tag, err)
	}
	return Pattern{Tag: tag, re: re}, nil
}

// MustRegexp is like Regexp but panics on an invalid expression.
func MustRegexp(tag Tag, expr string) Pattern {
	p, err := Regexp(tag, expr)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the source expression.
func (p Pattern) String() string {
	if p.re == nil {
		return ""
	}
	return p.re.String()
}

// Rules is an ordered list of patterns. Patterns are tried in order against
// the buffered output and the first one that matches wins, even when a later
// pattern matches earlier in the stream. EOF is implicit.
type Rules []Pattern

// match returns the index of the winning pattern and the end offset of its
// match, or -1 when nothing matches.
func (r Rules) match(buf []byte) (int, int) {
	for i, p := range r {
		if p.re == nil {
			continue
		}
		if loc := p.re.FindIndex(buf); loc != nil {
			return i, loc[1]
		}
	}
	return -1, 0
}

// Match is the outcome of Expect.
type Match struct {
	Tag Tag
	// Index is the position of the winning pattern in the rules, -1 for EOF.
	Index int
	// Text is the output consumed by this call, up to and including the match.
	Text string
}

// EOF reports whether the stream ended without a pattern match.
func (m Match) EOF() bool { return m.Tag == EOF }
