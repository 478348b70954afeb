// Package mirror looks up prior probabilities from an equivalent market on
// another prediction platform. The prior is advisory context for the
// reasoning backends, never a decision input on its own.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/verdictd/verdictd/internal/domain"
	"github.com/verdictd/verdictd/internal/evidence"
)

// Config identifies the mirror platform's public market API.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// MinSimilarity is the token-overlap threshold for accepting a mirror
	// match, in [0,1].
	MinSimilarity float64
}

// Client implements the mirror lookup against a Gamma-style markets API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

var _ domain.MirrorSource = (*Client)(nil)

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MinSimilarity <= 0 {
		cfg.MinSimilarity = 0.6
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type apiMarket struct {
	Question string   `json:"question"`
	Outcomes []string `json:"outcomes"`
	// OutcomePrices are decimal strings aligned with Outcomes.
	OutcomePrices []string `json:"outcome_prices"`
	Active        bool     `json:"active"`
}

// PriorProbability searches the mirror platform for a market matching the
// question and returns its current yes-price as a probability. A missing or
// weak match returns nil without error.
func (c *Client) PriorProbability(ctx context.Context, question string) (*float64, error) {
	params := url.Values{}
	params.Set("q", question)
	params.Set("limit", "5")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/markets/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("mirror: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mirror: search: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("mirror: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("mirror: status %d", resp.StatusCode)
	}

	var markets []apiMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, fmt.Errorf("mirror: decode response: %w", err)
	}

	for _, m := range markets {
		if !m.Active {
			continue
		}
		if evidence.Relevance(question, m.Question) < c.cfg.MinSimilarity {
			continue
		}
		if p := yesPrice(m); p != nil {
			return p, nil
		}
	}
	return nil, nil
}

// yesPrice picks the price aligned with the "Yes" outcome.
func yesPrice(m apiMarket) *float64 {
	for i, outcome := range m.Outcomes {
		if i >= len(m.OutcomePrices) {
			break
		}
		if outcome != "Yes" && outcome != "yes" {
			continue
		}
		p, err := strconv.ParseFloat(m.OutcomePrices[i], 64)
		if err != nil || p < 0 || p > 1 {
			return nil
		}
		return &p
	}
	return nil
}
