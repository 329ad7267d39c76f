package textutil

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// tokenSplitPattern matches sequences that are not letters, digits, '+' or '#'
// so terms like "c++" and "c#" survive tokenization.
var tokenSplitPattern = regexp.MustCompile(`[^a-z0-9+#]+`)

var stopwords = map[string]struct{}{
	"and": {}, "the": {}, "for": {}, "with": {}, "you": {}, "your": {}, "our": {},
	"are": {}, "will": {}, "this": {}, "that": {}, "from": {}, "have": {}, "has": {},
	"who": {}, "all": {}, "but": {}, "not": {}, "can": {}, "into": {}, "their": {},
	"they": {}, "was": {}, "were": {}, "been": {}, "also": {}, "any": {}, "more": {},
	"such": {}, "about": {}, "what": {}, "when": {}, "which": {}, "other": {}, "than": {},
	"work": {}, "team": {}, "role": {}, "years": {}, "experience": {},
}

// Fingerprint represents a term-frequency vector for text similarity comparison.
type Fingerprint struct {
	tokens map[string]float64
	norm   float64
}

// NewFingerprint creates a fingerprint from the provided text.
// Returns nil if the text produces no valid tokens.
func NewFingerprint(text string) *Fingerprint {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	counts := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		counts[token]++
	}
	var norm float64
	for _, count := range counts {
		norm += count * count
	}
	return &Fingerprint{tokens: counts, norm: math.Sqrt(norm)}
}

// Tokenize splits text into lowercase tokens, filtering short tokens and stopwords.
func Tokenize(text string) []string {
	raw := tokenSplitPattern.Split(strings.ToLower(text), -1)
	terms := make([]string, 0, len(raw))
	for _, token := range raw {
		if strings.Trim(token, "+#") == "" {
			continue
		}
		if len(token) < 3 && !strings.ContainsAny(token, "+#") {
			continue
		}
		if _, stop := stopwords[token]; stop {
			continue
		}
		terms = append(terms, token)
	}
	return terms
}

// TokenCount returns the number of unique tokens in the fingerprint.
func (f *Fingerprint) TokenCount() int {
	if f == nil {
		return 0
	}
	return len(f.tokens)
}

// Has reports whether the fingerprint contains term.
func (f *Fingerprint) Has(term string) bool {
	if f == nil {
		return false
	}
	_, ok := f.tokens[term]
	return ok
}

// TopTerms returns up to limit terms ordered by descending frequency, ties
// broken alphabetically.
func (f *Fingerprint) TopTerms(limit int) []string {
	if f == nil || limit <= 0 {
		return nil
	}
	terms := make([]string, 0, len(f.tokens))
	for term := range f.tokens {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		ci, cj := f.tokens[terms[i]], f.tokens[terms[j]]
		if ci != cj {
			return ci > cj
		}
		return terms[i] < terms[j]
	})
	if len(terms) > limit {
		terms = terms[:limit]
	}
	return terms
}
