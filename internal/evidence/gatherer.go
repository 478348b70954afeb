package evidence

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/verdictd/verdictd/internal/domain"
)

// Gatherer collects an evidence bundle for a market: source URL probe and
// extraction, news search, and category-restricted official-source search.
// Every sub-step is best effort; a failed step leaves its slot empty rather
// than failing the bundle.
type Gatherer struct {
	fetcher  domain.PageFetcher
	search   domain.SearchClient
	log      *slog.Logger
	maxNews  int
	minScore float64 // minimum relevance for a news hit to be kept
}

// NewGatherer wires a gatherer. search may be nil; the news and official
// sub-steps are then skipped.
func NewGatherer(fetcher domain.PageFetcher, search domain.SearchClient, maxNews int, logger *slog.Logger) *Gatherer {
	if maxNews <= 0 {
		maxNews = 10
	}
	return &Gatherer{
		fetcher:  fetcher,
		search:   search,
		log:      logger.With("component", "evidence"),
		maxNews:  maxNews,
		minScore: 0.2,
	}
}

// Gather assembles a fresh bundle for the market. The returned bundle is
// never nil and is never mutated afterwards.
func (g *Gatherer) Gather(ctx context.Context, m domain.Market) (domain.EvidenceBundle, error) {
	bundle := domain.EvidenceBundle{
		MarketID:    m.ID,
		CollectedAt: time.Now().UTC(),
	}

	if m.SourceURL != "" {
		class := ClassifyURL(m.SourceURL)
		bundle.Blacklisted = class.Blacklisted
		bundle.TrustedNews = class.TrustedNews
		bundle.SocialHost = class.Social

		if class.Blacklisted {
			g.log.Warn("source domain blacklisted",
				"market_id", m.ID, "host", class.Host)
			// No point fetching; the bundle's strength is zero either way.
			return bundle, nil
		}
		bundle.Source = g.gatherSource(ctx, m)
	}

	if g.search != nil {
		bundle.News = g.gatherNews(ctx, m)
		bundle.Social = g.gatherSocial(ctx, m)
		bundle.Official = g.gatherOfficial(ctx, m)
	}

	g.log.Debug("evidence collected",
		"market_id", m.ID,
		"news", len(bundle.News),
		"social", len(bundle.Social),
		"official", len(bundle.Official),
		"strength", bundle.Strength())
	return bundle, nil
}

// gatherSource probes the market's source URL and, when reachable, extracts
// its main content.
func (g *Gatherer) gatherSource(ctx context.Context, m domain.Market) *domain.SourceContent {
	check := g.fetcher.Check(ctx, m.SourceURL)
	content := domain.SourceContent{
		URL:       m.SourceURL,
		URLScore:  check.Score,
		Reachable: check.Reachable,
	}
	if !check.Reachable {
		g.log.Debug("source unreachable", "market_id", m.ID, "url", m.SourceURL,
			"status", check.StatusCode)
		return &content
	}

	extracted, err := g.fetcher.Extract(ctx, m.SourceURL)
	if err != nil {
		g.log.Debug("source extraction failed", "market_id", m.ID,
			"url", m.SourceURL, "error", err)
		return &content
	}
	extracted.URLScore = check.Score
	extracted.Reachable = true
	return &extracted
}

// gatherNews runs the derived queries, scores each hit's relevance against
// the question, dedupes by URL, and keeps the top hits.
func (g *Gatherer) gatherNews(ctx context.Context, m domain.Market) []domain.NewsArticle {
	seen := make(map[string]struct{})
	var articles []domain.NewsArticle

	for _, query := range DeriveQueries(m.Question, m.ExpiresAt) {
		results, err := g.search.Search(ctx, query, domain.SearchOpts{Limit: g.maxNews})
		if err != nil {
			g.log.Debug("news search failed", "market_id", m.ID,
				"query", query, "error", err)
			continue
		}
		for _, r := range results {
			if r.URL == "" {
				continue
			}
			if _, dup := seen[r.URL]; dup {
				continue
			}
			seen[r.URL] = struct{}{}

			rel := Relevance(m.Question, r.Title+" "+r.Snippet)
			if rel < g.minScore {
				continue
			}
			articles = append(articles, domain.NewsArticle{
				Title:       r.Title,
				URL:         r.URL,
				Source:      r.Source,
				PublishedAt: r.PublishedAt,
				Snippet:     r.Snippet,
				Relevance:   rel,
			})
		}
	}

	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].Relevance > articles[j].Relevance
	})
	if len(articles) > g.maxNews {
		articles = articles[:g.maxNews]
	}
	return articles
}

// gatherSocial searches the user-generated platforms for mentions of the
// question. Mentions are context for the reasoning backends only and carry
// no evidence weight of their own.
func (g *Gatherer) gatherSocial(ctx context.Context, m domain.Market) []domain.SocialMention {
	results, err := g.search.Search(ctx, m.Question, domain.SearchOpts{
		Sites: socialDomains,
		Limit: 5,
	})
	if err != nil {
		g.log.Debug("social search failed", "market_id", m.ID, "error", err)
		return nil
	}

	mentions := make([]domain.SocialMention, 0, len(results))
	for _, r := range results {
		if r.URL == "" {
			continue
		}
		mentions = append(mentions, domain.SocialMention{
			Platform: hostOf(r.URL),
			URL:      r.URL,
			Content:  r.Snippet,
			PostedAt: r.PublishedAt,
		})
	}
	return mentions
}

// gatherOfficial searches the category's authoritative-domain allowlist for
// material about the question. Hits whose URL actually lands on an allowlist
// domain are marked verified.
func (g *Gatherer) gatherOfficial(ctx context.Context, m domain.Market) []domain.OfficialSource {
	sites := OfficialDomainsFor(m.Category)
	results, err := g.search.Search(ctx, m.Question, domain.SearchOpts{
		Sites: sites,
		Limit: 5,
	})
	if err != nil {
		g.log.Debug("official-source search failed", "market_id", m.ID, "error", err)
		return nil
	}

	sources := make([]domain.OfficialSource, 0, len(results))
	for _, r := range results {
		if r.URL == "" {
			continue
		}
		sources = append(sources, domain.OfficialSource{
			Name:     r.Title,
			URL:      r.URL,
			Content:  r.Snippet,
			Verified: IsOfficialURL(r.URL, m.Category),
		})
	}
	return sources
}
