package evidence

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/verdictd/verdictd/internal/domain"
)

type stubFetcher struct {
	check   domain.URLCheck
	content domain.SourceContent
	err     error
	checked []string
}

func (s *stubFetcher) Check(_ context.Context, rawURL string) domain.URLCheck {
	s.checked = append(s.checked, rawURL)
	return s.check
}

func (s *stubFetcher) Extract(_ context.Context, rawURL string) (domain.SourceContent, error) {
	if s.err != nil {
		return domain.SourceContent{}, s.err
	}
	c := s.content
	c.URL = rawURL
	return c, nil
}

type stubSearch struct {
	results map[string][]domain.SearchResult // keyed by first site restriction, "" for open search
	queries []string
}

func (s *stubSearch) Search(_ context.Context, query string, opts domain.SearchOpts) ([]domain.SearchResult, error) {
	s.queries = append(s.queries, query)
	key := ""
	if len(opts.Sites) > 0 {
		key = opts.Sites[0]
	}
	return s.results[key], nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGatherBlacklistedSkipsFetch(t *testing.T) {
	fetcher := &stubFetcher{}
	g := NewGatherer(fetcher, nil, 10, discard())

	bundle, err := g.Gather(context.Background(), domain.Market{
		ID:        "m1",
		Question:  "Will satire win?",
		SourceURL: "https://www.theonion.com/article",
	})
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if !bundle.Blacklisted {
		t.Fatal("expected blacklisted bundle")
	}
	if bundle.Strength() != 0 {
		t.Fatalf("blacklisted strength = %d, want 0", bundle.Strength())
	}
	if len(fetcher.checked) != 0 {
		t.Fatal("blacklisted source should not be fetched")
	}
}

func TestGatherCollectsSourceAndNews(t *testing.T) {
	fetcher := &stubFetcher{
		check: domain.URLCheck{Reachable: true, StatusCode: 200, Score: 100},
		content: domain.SourceContent{
			Title: "Bitcoin passes milestone",
			Text:  "Bitcoin traded above the target price on major exchanges.",
		},
	}
	search := &stubSearch{results: map[string][]domain.SearchResult{
		"": {
			{Title: "Bitcoin price hits $100k", URL: "https://reuters.com/a", Source: "reuters.com", Snippet: "bitcoin reach 100k December"},
			{Title: "Unrelated celebrity news", URL: "https://example.org/b", Source: "example.org", Snippet: "red carpet gossip"},
		},
		"sec.gov": {
			{Title: "SEC statement", URL: "https://www.sec.gov/news", Snippet: "digital asset markets"},
			{Title: "Aggregator copy", URL: "https://blog.example.net/sec", Snippet: "reposted statement"},
		},
		"twitter.com": {
			{Title: "Trader thread", URL: "https://x.com/trader/status/9", Snippet: "100k incoming"},
		},
	}}
	g := NewGatherer(fetcher, search, 10, discard())

	m := domain.Market{
		ID:        "m2",
		Question:  "Will Bitcoin reach $100k by December 31?",
		SourceURL: "https://www.coindesk.com/markets/btc",
		Category:  domain.CategoryCrypto,
		ExpiresAt: time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
	bundle, err := g.Gather(context.Background(), m)
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	anchored := false
	for _, q := range search.queries {
		if strings.Contains(q, "December 2025") {
			anchored = true
		}
	}
	if !anchored {
		t.Fatalf("queries %v missing the expiry-month search", search.queries)
	}

	if bundle.Source == nil || bundle.Source.Text == "" {
		t.Fatal("expected extracted source content")
	}
	if !bundle.TrustedNews {
		t.Fatal("coindesk.com should classify as trusted news")
	}
	if len(bundle.News) != 1 {
		t.Fatalf("news = %d, want 1 (irrelevant hit filtered)", len(bundle.News))
	}
	if bundle.News[0].URL != "https://reuters.com/a" {
		t.Fatalf("unexpected news hit %q", bundle.News[0].URL)
	}
	if len(bundle.Social) != 1 || bundle.Social[0].Platform != "x.com" {
		t.Fatalf("social = %+v, want one x.com mention", bundle.Social)
	}
	if len(bundle.Official) != 2 {
		t.Fatalf("official = %d, want 2", len(bundle.Official))
	}
	if !bundle.Official[0].Verified {
		t.Fatal("sec.gov hit should be verified")
	}
	if bundle.Official[1].Verified {
		t.Fatal("off-allowlist hit should not be verified")
	}
	if bundle.Strength() < 50 {
		t.Fatalf("strength = %d, want >= 50", bundle.Strength())
	}
}

func TestGatherUnreachableSource(t *testing.T) {
	fetcher := &stubFetcher{check: domain.URLCheck{Reachable: false, Score: 0}}
	g := NewGatherer(fetcher, nil, 10, discard())

	bundle, err := g.Gather(context.Background(), domain.Market{
		ID:        "m3",
		Question:  "Will the site come back?",
		SourceURL: "https://unreachable.example.io/page",
	})
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if bundle.Source == nil || bundle.Source.Reachable {
		t.Fatal("expected unreachable source record")
	}
	if !bundle.Empty() {
		t.Fatal("bundle with no text and no hits should be empty")
	}
}

func TestClassifyURL(t *testing.T) {
	cases := []struct {
		url                            string
		trusted, social, blacklisted bool
	}{
		{"https://www.reuters.com/world", true, false, false},
		{"https://uk.reuters.com/world", true, false, false},
		{"https://x.com/somebody/status/1", false, true, false},
		{"https://theonion.com/story", false, false, true},
		{"reuters.com/no-scheme", true, false, false},
		{"https://notreuters.com/world", false, false, false},
		{"", false, false, false},
	}
	for _, tc := range cases {
		got := ClassifyURL(tc.url)
		if got.TrustedNews != tc.trusted || got.Social != tc.social || got.Blacklisted != tc.blacklisted {
			t.Errorf("ClassifyURL(%q) = %+v", tc.url, got)
		}
	}
}

func TestKeywordsAndRelevance(t *testing.T) {
	keys := Keywords("Will Bitcoin reach $100,000 by December 31, 2025?", 0)
	joined := strings.Join(keys, " ")
	for _, want := range []string{"bitcoin", "reach", "december"} {
		if !strings.Contains(joined, want) {
			t.Errorf("keywords %v missing %q", keys, want)
		}
	}
	for _, stop := range []string{"will", "by"} {
		if strings.Contains(" "+joined+" ", " "+stop+" ") {
			t.Errorf("keywords %v contain stop word %q", keys, stop)
		}
	}

	if r := Relevance("Will Bitcoin reach $100k?", "Bitcoin may reach new highs"); r <= 0 {
		t.Fatalf("relevance = %v, want > 0", r)
	}
	if r := Relevance("Will Bitcoin reach $100k?", "Weather forecast sunny"); r != 0 {
		t.Fatalf("relevance for unrelated text = %v, want 0", r)
	}
	if r := Relevance("", "anything"); r != 0 {
		t.Fatalf("relevance for empty query = %v, want 0", r)
	}
}

func TestDeriveQueriesAnchorsExpiryMonth(t *testing.T) {
	expiry := time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)
	queries := DeriveQueries("Will Bitcoin reach $100k?", expiry)
	if len(queries) != 3 {
		t.Fatalf("queries = %v, want 3", queries)
	}
	if queries[0] != "Will Bitcoin reach $100k?" {
		t.Fatalf("first query = %q, want the raw question", queries[0])
	}
	if queries[1] != "Will Bitcoin reach $100k? January 2026" {
		t.Fatalf("second query = %q, want the question anchored to the expiry month", queries[1])
	}
	if strings.Contains(queries[2], "January") {
		t.Fatalf("keyword query %q should not carry the expiry month", queries[2])
	}
}

func TestDeriveQueriesDedupes(t *testing.T) {
	queries := DeriveQueries("Will Bitcoin reach $100k by December?", time.Time{})
	if len(queries) < 2 {
		t.Fatalf("expected multiple derived queries, got %v", queries)
	}
	seen := make(map[string]struct{})
	for _, q := range queries {
		if _, dup := seen[q]; dup {
			t.Fatalf("duplicate query %q", q)
		}
		seen[q] = struct{}{}
	}
}
