package evidence

import (
	"sort"
	"strings"
	"time"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"before": {}, "by": {}, "can": {}, "did": {}, "do": {}, "does": {},
	"for": {}, "from": {}, "has": {}, "have": {}, "if": {}, "in": {},
	"is": {}, "it": {}, "its": {}, "of": {}, "on": {}, "or": {}, "than": {},
	"that": {}, "the": {}, "their": {}, "then": {}, "there": {}, "this": {},
	"to": {}, "was": {}, "were": {}, "will": {}, "with": {}, "would": {},
}

// tokenize lowercases text and splits it on non-alphanumeric runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Keywords extracts up to max content-bearing terms from text, ordered by
// frequency then first appearance. Stop words and single letters are dropped.
func Keywords(text string, max int) []string {
	counts := make(map[string]int)
	first := make(map[string]int)
	for i, tok := range tokenize(text) {
		if len(tok) < 2 {
			continue
		}
		if _, skip := stopWords[tok]; skip {
			continue
		}
		counts[tok]++
		if _, seen := first[tok]; !seen {
			first[tok] = i
		}
	}
	terms := make([]string, 0, len(counts))
	for t := range counts {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return first[terms[i]] < first[terms[j]]
	})
	if max > 0 && len(terms) > max {
		terms = terms[:max]
	}
	return terms
}

// Relevance scores how well candidate text matches the query's keyword set
// as the fraction of query keywords present, in [0,1].
func Relevance(query, candidate string) float64 {
	keys := Keywords(query, 0)
	if len(keys) == 0 {
		return 0
	}
	have := make(map[string]struct{})
	for _, tok := range tokenize(candidate) {
		have[tok] = struct{}{}
	}
	matched := 0
	for _, k := range keys {
		if _, ok := have[k]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(keys))
}

// DeriveQueries builds up to three search queries from a market question:
// the question itself, the question anchored to the expiry month, and its
// top keywords joined. Duplicates are collapsed; a zero expiry skips the
// anchored variant.
func DeriveQueries(question string, expiresAt time.Time) []string {
	title := strings.TrimSpace(question)
	queries := []string{title}
	if !expiresAt.IsZero() {
		queries = append(queries, title+" "+expiresAt.Format("January 2006"))
	}
	if keys := Keywords(question, 6); len(keys) > 0 {
		queries = append(queries, strings.Join(keys, " "))
	}
	seen := make(map[string]struct{}, len(queries))
	out := queries[:0]
	for _, q := range queries {
		if q == "" {
			continue
		}
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
	}
	return out
}
