// Package chain talks to the oracle's on-chain surface through a resolver
// relay: the oracle signs typed outcome attestations and the relay constructs
// and submits the actual transactions, so the oracle never holds gas funds.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/verdictd/verdictd/internal/crypto"
	"github.com/verdictd/verdictd/internal/domain"
)

// RelayConfig identifies the resolver relay endpoint.
type RelayConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// RelayClient implements the ledger contract against the relay API.
type RelayClient struct {
	cfg        RelayConfig
	signer     *crypto.OutcomeSigner
	httpClient *http.Client
}

var _ domain.Ledger = (*RelayClient)(nil)

func NewRelayClient(cfg RelayConfig, signer *crypto.OutcomeSigner) *RelayClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &RelayClient{
		cfg:        cfg,
		signer:     signer,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type attestation struct {
	MarketID   string  `json:"market_id"`
	Outcome    string  `json:"outcome"`
	Confidence float64 `json:"confidence"`
	Timestamp  int64   `json:"timestamp"`
	Oracle     string  `json:"oracle"`
	Signature  string  `json:"signature"`
	Reason     string  `json:"reason,omitempty"`
}

type relayResponse struct {
	TxHash string `json:"tx_hash"`
	Error  string `json:"error"`
}

// ProposeOutcome signs and submits a provisional outcome. The market enters
// its waiting window on-chain; the relay returns the transaction reference.
func (r *RelayClient) ProposeOutcome(ctx context.Context, marketID string, outcome domain.Outcome, confidence float64) (string, error) {
	txRef, err := r.submit(ctx, "/v1/outcomes/propose", marketID, string(outcome), confidence, "")
	if err != nil {
		return "", fmt.Errorf("chain: propose outcome %s: %w", marketID, err)
	}
	return txRef, nil
}

// Finalize signs and submits the finalization of a previously proposed
// outcome, releasing settlement.
func (r *RelayClient) Finalize(ctx context.Context, marketID string, outcome domain.Outcome) (string, error) {
	txRef, err := r.submit(ctx, "/v1/outcomes/finalize", marketID, string(outcome), 100, "")
	if err != nil {
		return "", fmt.Errorf("chain: finalize %s: %w", marketID, err)
	}
	return txRef, nil
}

// Freeze halts settlement for a market pending human review.
func (r *RelayClient) Freeze(ctx context.Context, marketID string, reason string) (string, error) {
	txRef, err := r.submit(ctx, "/v1/outcomes/freeze", marketID, "frozen", 0, reason)
	if err != nil {
		return "", fmt.Errorf("chain: freeze %s: %w", marketID, err)
	}
	return txRef, nil
}

func (r *RelayClient) submit(ctx context.Context, path, marketID, outcome string, confidence float64, reason string) (string, error) {
	ts := time.Now().Unix()
	sig, err := r.signer.SignOutcome(marketID, outcome, confidence, ts)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(attestation{
		MarketID:   marketID,
		Outcome:    outcome,
		Confidence: confidence,
		Timestamp:  ts,
		Oracle:     r.signer.Address().Hex(),
		Signature:  sig,
		Reason:     reason,
	})
	if err != nil {
		return "", fmt.Errorf("encode attestation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var relay relayResponse
	if err := json.Unmarshal(body, &relay); err != nil {
		return "", fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || relay.Error != "" {
		return "", fmt.Errorf("relay rejected (status %d): %s", resp.StatusCode, relay.Error)
	}
	if relay.TxHash == "" {
		return "", fmt.Errorf("relay returned no transaction reference")
	}
	return relay.TxHash, nil
}
