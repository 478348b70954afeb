package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/verdictd/verdictd/internal/domain"
)

// GovernanceClient reads the token-holder vote on a proposed outcome from
// the governance API.
type GovernanceClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ domain.GovernanceSource = (*GovernanceClient)(nil)

func NewGovernanceClient(baseURL string, timeout time.Duration) *GovernanceClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &GovernanceClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type tallyResponse struct {
	VotesFor     float64 `json:"votes_for"`
	VotesAgainst float64 `json:"votes_against"`
	TotalVoters  int     `json:"total_voters"`
}

// Tally fetches the current stake-weighted vote for a market's proposal.
// A market nobody has voted on returns an unparticipated tally, not an error.
func (g *GovernanceClient) Tally(ctx context.Context, marketID string) (domain.GovernanceTally, error) {
	path := fmt.Sprintf("/v1/proposals/%s/tally", url.PathEscape(marketID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return domain.GovernanceTally{}, fmt.Errorf("chain/governance: build request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return domain.GovernanceTally{}, fmt.Errorf("chain/governance: tally %s: %w", marketID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.GovernanceTally{Participated: false}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return domain.GovernanceTally{}, fmt.Errorf("chain/governance: tally %s: status %d", marketID, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.GovernanceTally{}, fmt.Errorf("chain/governance: read tally: %w", err)
	}

	var tr tallyResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return domain.GovernanceTally{}, fmt.Errorf("chain/governance: decode tally: %w", err)
	}

	return domain.GovernanceTally{
		VotesFor:     tr.VotesFor,
		VotesAgainst: tr.VotesAgainst,
		Participated: tr.TotalVoters > 0,
	}, nil
}
