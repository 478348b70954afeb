// Package search implements the external search capability against a
// JSON search API (Brave-compatible result shape).
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/verdictd/verdictd/internal/domain"
)

// Config identifies the search endpoint.
type Config struct {
	BaseURL string // API root, e.g. "https://api.search.brave.com/res/v1"
	APIKey  string
	Timeout time.Duration
}

// Client queries the search API. Site restrictions are expressed as site:
// operators appended to the query.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

var _ domain.SearchClient = (*Client)(nil)

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type apiResponse struct {
	Web struct {
		Results []apiResult `json:"results"`
	} `json:"web"`
}

type apiResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Age         string `json:"page_age"`
}

// Search runs one query and maps the ranked hits.
func (c *Client) Search(ctx context.Context, query string, opts domain.SearchOpts) ([]domain.SearchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	params := url.Values{}
	params.Set("q", withSiteFilter(query, opts.Sites))
	params.Set("count", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/web/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("search: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("search: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: status %d", resp.StatusCode)
	}

	var api apiResponse
	if err := json.Unmarshal(body, &api); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(api.Web.Results))
	for _, r := range api.Web.Results {
		if r.URL == "" {
			continue
		}
		results = append(results, domain.SearchResult{
			Title:       r.Title,
			URL:         r.URL,
			Source:      hostname(r.URL),
			Snippet:     r.Description,
			PublishedAt: parseAge(r.Age),
		})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// withSiteFilter appends OR-joined site: operators for the allowlist.
func withSiteFilter(query string, sites []string) string {
	if len(sites) == 0 {
		return query
	}
	ops := make([]string, len(sites))
	for i, s := range sites {
		ops[i] = "site:" + s
	}
	return query + " (" + strings.Join(ops, " OR ") + ")"
}

func hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func parseAge(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
