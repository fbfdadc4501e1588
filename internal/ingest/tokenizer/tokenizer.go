// Package tokenizer turns free text into index terms. It lower-cases input,
// splits on non-alphanumeric boundaries, removes stop-words and one-letter
// words, and can apply a simple suffix-based stemmer.
package tokenizer

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Tokenizer splits documents into distinct terms.
type Tokenizer struct {
	stem      bool
	stopWords bool
}

type Option func(*Tokenizer)

// WithStemming strips common English suffixes so that "cats" and "cat" index
// under one term.
func WithStemming(stem bool) Option {
	return func(t *Tokenizer) { t.stem = stem }
}

// WithStopWords controls whether common English function words are dropped.
// They are dropped by default.
func WithStopWords(drop bool) Option {
	return func(t *Tokenizer) { t.stopWords = drop }
}

func New(opts ...Option) *Tokenizer {
	t := &Tokenizer{stopWords: true}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Terms returns the distinct terms of text in order of first occurrence.
func (t *Tokenizer) Terms(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(words))
	terms := make([]string, 0, len(words)/2)
	for _, word := range words {
		if len([]rune(word)) < 2 {
			continue
		}
		if t.stopWords {
			if _, isStop := stopWords[word]; isStop {
				continue
			}
		}
		if t.stem {
			word = stem(word)
		}
		if word == "" {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		terms = append(terms, word)
	}
	return terms
}

// stem applies a simple suffix-stripping stemmer to the given word.
func stem(word string) string {
	for _, rule := range suffixRules {
		if strings.HasSuffix(word, rule.suffix) {
			newWord := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(newWord) >= rule.minLen {
				return newWord
			}
		}
	}
	return word
}

var suffixRules = []struct {
	suffix      string
	replacement string
	minLen      int
}{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"eness", "ene", 2},
	{"tion", "t", 3},
	{"sion", "s", 3},
	{"ying", "y", 2},
	{"ling", "l", 3},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"est", "", 3},
	{"ful", "", 3},
	{"ous", "", 3},
	{"ess", "", 3},
	{"ble", "", 3},
	{"ed", "", 3},
	{"er", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}
