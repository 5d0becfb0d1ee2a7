package moderation

import (
	"strings"
	"unicode"
)

// floodCheck pairs a heuristic with the term name reported on a match.
type floodCheck struct {
	name  string
	match func(string) bool
}

// floodChecks is applied in order; the first match wins.
var floodChecks = []floodCheck{
	{name: "char_flood", match: hasCharFlood},
	{name: "word_flood", match: hasWordFlood},
}

// hasCharFlood returns true if text contains 8 or more consecutive identical
// characters. RE2 has no backreferences, so this is a linear scan.
func hasCharFlood(text string) bool {
	const threshold = 8

	count := 1
	prev := rune(-1)
	for _, r := range text {
		if r == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = r
		}
	}
	return false
}

// hasWordFlood returns true if the same word appears 4 or more times
// consecutively, case-insensitive.
func hasWordFlood(text string) bool {
	const threshold = 4

	words := strings.FieldsFunc(text, unicode.IsSpace)
	if len(words) < threshold {
		return false
	}

	count := 1
	prev := ""
	for _, w := range words {
		lower := strings.ToLower(w)
		if lower == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = lower
		}
	}
	return false
}

// checkFlood runs the flood heuristics against text.
func (f *Filter) checkFlood(text string) FilterResult {
	for _, fc := range floodChecks {
		if fc.match(text) {
			return FilterResult{Blocked: true, Reason: ReasonFlood, Term: fc.name}
		}
	}
	return FilterResult{}
}
