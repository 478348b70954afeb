package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verdictd/verdictd/internal/domain"
)

// ResolutionStore implements domain.ResolutionStore using PostgreSQL.
type ResolutionStore struct {
	pool *pgxpool.Pool
}

// NewResolutionStore creates a new ResolutionStore backed by the given pool.
func NewResolutionStore(pool *pgxpool.Pool) *ResolutionStore {
	return &ResolutionStore{pool: pool}
}

// Insert appends a resolution result. Rows are never updated.
func (s *ResolutionStore) Insert(ctx context.Context, r domain.ResolutionResult) error {
	evidence, err := json.Marshal(r.Evidence)
	if err != nil {
		return fmt.Errorf("postgres: marshal evidence: %w", err)
	}
	consensus, err := json.Marshal(r.Consensus)
	if err != nil {
		return fmt.Errorf("postgres: marshal consensus: %w", err)
	}
	sources, err := json.Marshal(orEmptySlice(r.Sources))
	if err != nil {
		return fmt.Errorf("postgres: marshal sources: %w", err)
	}

	const query = `
		INSERT INTO resolution_results (
			id, market_id, outcome, confidence, action,
			evidence, consensus, reasoning, sources, forced, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = s.pool.Exec(ctx, query,
		r.ID, r.MarketID, string(r.Outcome), r.Confidence, string(r.Action),
		evidence, consensus, r.Reasoning, sources, r.Forced, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert resolution result %s: %w", r.ID, err)
	}
	return nil
}

const resolutionCols = `id, market_id, outcome, confidence, action,
	evidence, consensus, reasoning, sources, forced, created_at`

func scanResolution(row pgx.Row) (domain.ResolutionResult, error) {
	var r domain.ResolutionResult
	var outcome, action string
	var evidence, consensus, sources []byte

	err := row.Scan(
		&r.ID, &r.MarketID, &outcome, &r.Confidence, &action,
		&evidence, &consensus, &r.Reasoning, &sources, &r.Forced, &r.CreatedAt,
	)
	if err != nil {
		return domain.ResolutionResult{}, err
	}

	r.Outcome = domain.Outcome(outcome)
	r.Action = domain.ResolutionAction(action)
	if err := json.Unmarshal(evidence, &r.Evidence); err != nil {
		return domain.ResolutionResult{}, fmt.Errorf("unmarshal evidence: %w", err)
	}
	if err := json.Unmarshal(consensus, &r.Consensus); err != nil {
		return domain.ResolutionResult{}, fmt.Errorf("unmarshal consensus: %w", err)
	}
	if err := json.Unmarshal(sources, &r.Sources); err != nil {
		return domain.ResolutionResult{}, fmt.Errorf("unmarshal sources: %w", err)
	}
	return r, nil
}

// LatestByMarket returns the most recent resolution result for a market.
func (s *ResolutionStore) LatestByMarket(ctx context.Context, marketID string) (domain.ResolutionResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+resolutionCols+` FROM resolution_results
		WHERE market_id = $1 ORDER BY created_at DESC LIMIT 1`, marketID)
	r, err := scanResolution(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ResolutionResult{}, domain.ErrNotFound
		}
		return domain.ResolutionResult{}, fmt.Errorf("postgres: latest resolution for %s: %w", marketID, err)
	}
	return r, nil
}

// ListByMarket returns resolution results for a market, newest first.
func (s *ResolutionStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.ResolutionResult, error) {
	query := `SELECT ` + resolutionCols + ` FROM resolution_results
		WHERE market_id = $1 ORDER BY created_at DESC`
	args := []any{marketID}
	query, args = appendPagination(query, args, 2, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resolutions for %s: %w", marketID, err)
	}
	defer rows.Close()

	var results []domain.ResolutionResult
	for rows.Next() {
		r, err := scanResolution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan resolution result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list resolutions rows: %w", err)
	}
	return results, nil
}

// Compile-time interface check.
var _ domain.ResolutionStore = (*ResolutionStore)(nil)
