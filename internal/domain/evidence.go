package domain

import "time"

// SourceContent is the text extracted from a market's source URL.
type SourceContent struct {
	URL         string
	Title       string
	Description string
	Author      string
	PublishedAt *time.Time
	Text        string // main-content extraction, length-capped
	URLScore    int    // 0 unreachable, partial for 4xx/slow, 100 for clean 2xx
	Reachable   bool
}

// NewsArticle is a single search hit from the news search sub-step.
type NewsArticle struct {
	Title       string
	URL         string
	Source      string // hostname
	PublishedAt *time.Time
	Snippet     string
	Relevance   float64 // token-overlap score in [0,1]
}

// SocialMention is a reference to the question found on a social platform.
type SocialMention struct {
	Platform string
	URL      string
	Content  string
	PostedAt *time.Time
}

// OfficialSource is a hit from a category-restricted authoritative search.
type OfficialSource struct {
	Name     string
	URL      string
	Content  string
	Verified bool // URL matches the category's domain allowlist
}

// EvidenceBundle is an immutable snapshot of everything gathered for one
// evaluation pass. A new pipeline run produces a new bundle; bundles are
// never mutated after collection.
type EvidenceBundle struct {
	MarketID    string
	Source      *SourceContent
	News        []NewsArticle
	Social      []SocialMention
	Official    []OfficialSource
	Blacklisted bool // source domain is blacklisted; forces trust to zero
	TrustedNews bool // source domain is in the trusted-news set
	SocialHost  bool // source domain is a social platform
	CollectedAt time.Time
}

// Empty reports whether the bundle carries no usable evidence at all: no
// extracted source text, no news hits, and no official sources. Callers treat
// an empty bundle as "insufficient evidence", not as an error.
func (b EvidenceBundle) Empty() bool {
	hasText := b.Source != nil && b.Source.Text != ""
	return !hasText && len(b.News) == 0 && len(b.Official) == 0
}

// Strength scores the bundle 0-100: +20 for extracted source content,
// +10 per news article capped at 30, +15 per official source capped at 30,
// +10 per verified official source, total capped at 100. A blacklisted
// source domain zeroes the score regardless of other signals.
func (b EvidenceBundle) Strength() int {
	if b.Blacklisted {
		return 0
	}

	score := 0
	if b.Source != nil && b.Source.Text != "" {
		score += 20
	}
	score += min(len(b.News)*10, 30)
	score += min(len(b.Official)*15, 30)
	for _, o := range b.Official {
		if o.Verified {
			score += 10
		}
	}
	return min(score, 100)
}

// SourceURLs lists every URL referenced by the bundle, for the Sources field
// of a ResolutionResult.
func (b EvidenceBundle) SourceURLs() []string {
	var urls []string
	if b.Source != nil && b.Source.URL != "" {
		urls = append(urls, b.Source.URL)
	}
	for _, n := range b.News {
		urls = append(urls, n.URL)
	}
	for _, o := range b.Official {
		urls = append(urls, o.URL)
	}
	return urls
}
