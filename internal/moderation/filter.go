// Package moderation screens message text before it enters the room log. It
// combines a word/phrase blocklist with flood heuristics; a blocked message is
// dropped by the gateway and never delivered.
package moderation

import (
	"strings"
	"unicode"
)

// Block reasons carried in FilterResult.Reason.
const (
	ReasonKeyword = "blocked_keyword"
	ReasonFlood   = "flood"
)

// FilterResult is the outcome of a Check. The zero value means the text is
// clean.
type FilterResult struct {
	Blocked bool
	Reason  string
	Term    string // matched term or heuristic name
}

// Filter holds the blocklist. Matching is case-insensitive and word-bounded:
// "badword" blocks "badword!" but not "badwording". A Filter with no terms
// still applies the flood heuristics.
type Filter struct {
	words   map[string]bool
	phrases []string // multi-word terms, matched against the normalized text
}

// NewFilter creates a filter with no blocklist terms.
func NewFilter() *Filter {
	return NewFilterWithTerms(nil)
}

// NewFilterWithTerms creates a filter blocking the given words and phrases.
// Terms containing whitespace are treated as phrases.
func NewFilterWithTerms(terms []string) *Filter {
	f := &Filter{words: make(map[string]bool)}
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if strings.ContainsFunc(term, unicode.IsSpace) {
			f.phrases = append(f.phrases, term)
		} else {
			f.words[term] = true
		}
	}
	return f
}

// Check screens text against the blocklist and the flood heuristics. The
// first match wins.
func (f *Filter) Check(text string) FilterResult {
	tokens := tokenize(text)

	for _, tok := range tokens {
		if f.words[tok] {
			return FilterResult{Blocked: true, Reason: ReasonKeyword, Term: tok}
		}
	}

	if len(f.phrases) > 0 {
		normalized := strings.Join(tokens, " ")
		for _, phrase := range f.phrases {
			if containsPhrase(normalized, phrase) {
				return FilterResult{Blocked: true, Reason: ReasonKeyword, Term: phrase}
			}
		}
	}

	return f.checkFlood(text)
}

// tokenize lowercases text and splits it into words, stripping punctuation at
// token boundaries so "badword!" matches the term "badword".
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}

// containsPhrase reports whether phrase occurs in normalized as a whole-word
// sequence.
func containsPhrase(normalized, phrase string) bool {
	idx := 0
	for {
		i := strings.Index(normalized[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)

		startOK := start == 0 || normalized[start-1] == ' '
		endOK := end == len(normalized) || normalized[end] == ' '
		if startOK && endOK {
			return true
		}
		idx = start + 1
	}
}
