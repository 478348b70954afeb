// Package rules implements the deterministic resolvability checks that run
// between evidence gathering and model consensus. It is a pure function of
// the market text and expiry; it performs no I/O.
package rules

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Checks holds the four boolean rule outcomes for a market question.
type Checks struct {
	IsResolvable      bool
	HasClearOutcome   bool
	HasVerifiableDate bool
	IsObjective       bool
}

// Result is the rules engine's output: the checks, a 0-100 sub-score where
// each passing check contributes 25 points, and a reasoning string
// enumerating the failures.
type Result struct {
	Checks    Checks
	Score     int
	Reasoning string
	Failures  []string
}

// Config bounds the verifiable-date window relative to evaluation time.
type Config struct {
	MinExpiry time.Duration // expiry must be at least this far in the future
	MaxExpiry time.Duration // and at most this far
}

// Engine evaluates resolvability rules. Safe for concurrent use.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	if cfg.MinExpiry <= 0 {
		cfg.MinExpiry = time.Hour
	}
	if cfg.MaxExpiry <= 0 {
		cfg.MaxExpiry = 365 * 24 * time.Hour
	}
	return &Engine{cfg: cfg}
}

// Leading auxiliary verbs that mark a binary-question shape.
var auxiliaryVerbs = []string{"will", "is", "does", "can", "has", "did", "are", "was", "shall"}

// ambiguityTerms undermine a clear yes/no outcome.
var ambiguityTerms = []string{
	"maybe", "might", "probably", "likely", "unlikely", "around",
	"approximately", "roughly", "about", "most", "some", "could",
	"possibly", "perhaps", "sort of", "kind of",
}

// subjectiveTerms mark opinion questions no source can settle.
var subjectiveTerms = []string{
	"best", "worst", "better", "worse", "greatest", "should",
	"beautiful", "ugly", "good", "bad", "amazing", "terrible",
	"favorite", "coolest", "smartest", "funniest", "deserve",
}

// dateTokenPattern recognizes explicit date references inside the text:
// month names, 4-digit years, and numeric dates.
var dateTokenPattern = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december|20\d{2}|\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|tomorrow|today|end of (the )?(year|month|week|quarter))\b`)

// Evaluate runs all four checks against the question at the given evaluation
// time. Identical inputs always produce identical output.
func (e *Engine) Evaluate(question, description string, expiresAt, now time.Time) Result {
	text := strings.TrimSpace(question)
	combined := strings.ToLower(text + " " + description)

	checks := Checks{
		IsResolvable:      isBinaryShape(text),
		HasClearOutcome:   !containsAny(combined, ambiguityTerms),
		HasVerifiableDate: e.hasVerifiableDate(combined, expiresAt, now),
		IsObjective:       !containsAny(combined, subjectiveTerms),
	}

	var failures []string
	if !checks.IsResolvable {
		failures = append(failures, "question is not phrased as a binary yes/no")
	}
	if !checks.HasClearOutcome {
		failures = append(failures, "question contains ambiguous qualifiers")
	}
	if !checks.HasVerifiableDate {
		failures = append(failures, "no verifiable resolution date within the allowed window")
	}
	if !checks.IsObjective {
		failures = append(failures, "question contains subjective terms")
	}

	score := 0
	for _, ok := range []bool{checks.IsResolvable, checks.HasClearOutcome, checks.HasVerifiableDate, checks.IsObjective} {
		if ok {
			score += 25
		}
	}

	reasoning := "all resolvability checks passed"
	if len(failures) > 0 {
		reasoning = fmt.Sprintf("%d of 4 checks failed: %s", len(failures), strings.Join(failures, "; "))
	}

	return Result{Checks: checks, Score: score, Reasoning: reasoning, Failures: failures}
}

// isBinaryShape accepts questions starting with an auxiliary verb or ending
// in a question mark.
func isBinaryShape(question string) bool {
	if question == "" {
		return false
	}
	if strings.HasSuffix(question, "?") {
		return true
	}
	lower := strings.ToLower(question)
	for _, verb := range auxiliaryVerbs {
		if strings.HasPrefix(lower, verb+" ") {
			return true
		}
	}
	return false
}

// hasVerifiableDate passes when the expiry falls inside the configured
// window, or the text itself names a recognizable date.
func (e *Engine) hasVerifiableDate(text string, expiresAt, now time.Time) bool {
	if !expiresAt.IsZero() {
		until := expiresAt.Sub(now)
		if until >= e.cfg.MinExpiry && until <= e.cfg.MaxExpiry {
			return true
		}
	}
	return dateTokenPattern.MatchString(text)
}

// containsAny matches terms on word boundaries so "most" does not fire on
// "almost".
func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if containsWord(text, term) {
			return true
		}
	}
	return false
}

func containsWord(text, word string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordRune(text[start-1])
		afterOK := end == len(text) || !isWordRune(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordRune(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
