package domain

import (
	"context"
	"time"
)

// URLCheck is the result of a reachability probe against a source URL.
type URLCheck struct {
	Reachable  bool
	StatusCode int
	Score      int // 0 unreachable, 50 for 4xx/slow, 100 for clean 2xx
	Latency    time.Duration
}

// PageFetcher probes and extracts web content. Both operations carry their
// own timeouts; a hung fetch must never stall the worker pool.
type PageFetcher interface {
	Check(ctx context.Context, rawURL string) URLCheck
	Extract(ctx context.Context, rawURL string) (SourceContent, error)
}

// SearchResult is one ranked hit from the external search capability.
type SearchResult struct {
	Title       string
	URL         string
	Source      string // hostname
	Snippet     string
	PublishedAt *time.Time
}

// SearchOpts restricts a search query.
type SearchOpts struct {
	// Sites limits results to the given domains (official-source search).
	Sites []string
	Limit int
}

// SearchClient is the external query-to-ranked-results capability.
type SearchClient interface {
	Search(ctx context.Context, query string, opts SearchOpts) ([]SearchResult, error)
}

// Ledger submits oracle state changes to the hosting chain. Each call is an
// opaque signed transaction; the core supplies typed parameters only.
type Ledger interface {
	ProposeOutcome(ctx context.Context, marketID string, outcome Outcome, confidence float64) (txRef string, err error)
	Finalize(ctx context.Context, marketID string, outcome Outcome) (txRef string, err error)
	Freeze(ctx context.Context, marketID string, reason string) (txRef string, err error)
}

// GovernanceSource reads the token-holder vote on a proposed outcome.
type GovernanceSource interface {
	Tally(ctx context.Context, marketID string) (GovernanceTally, error)
}

// MirrorSource looks up a prior probability from a mirror market on another
// platform. It returns nil when no mirror exists; that is not an error.
type MirrorSource interface {
	PriorProbability(ctx context.Context, question string) (*float64, error)
}

// BlobWriter writes audit artifacts (evidence bundles, escalation reports)
// to object storage.
type BlobWriter interface {
	Put(ctx context.Context, key string, contentType string, data []byte) error
}
