// Package align snaps character spans to token boundaries so that
// hand-selected text ranges and model predictions land on whole words.
package align

import (
	"fmt"
	"regexp"
)

var tokenPattern = regexp.MustCompile(`\w+`)

// Span is a half-open character range [Begin, End) into a sentence.
type Span struct {
	Begin int
	End   int
}

// Valid reports whether the span is well formed for a text of the given length.
func (s Span) Valid(textLen int) bool {
	return s.Begin >= 0 && s.End > s.Begin && s.End <= textLen
}

// ExpandToTokenSpan widens a raw character span to the nearest token
// boundaries. A boundary offset that falls inside a token moves outward
// to include the whole token, an offset in whitespace or punctuation
// stays where it is. Spans that already sit on token boundaries are
// returned unchanged, so the expansion is idempotent.
func ExpandToTokenSpan(text string, span Span) (Span, error) {
	if !span.Valid(len(text)) {
		return Span{}, fmt.Errorf("invalid span [%d, %d) for text of length %d", span.Begin, span.End, len(text))
	}

	expanded := span
	matches := tokenPattern.FindAllStringIndex(text, -1)
	for _, match := range matches {
		if match[0] <= span.Begin && span.Begin <= match[1] {
			expanded.Begin = match[0]
			break
		}
	}
	for _, match := range matches {
		if match[0] <= span.End && span.End <= match[1] {
			expanded.End = match[1]
			break
		}
	}

	return expanded, nil
}
