package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verdictd/verdictd/internal/domain"
)

// ValidationStore implements domain.ValidationStore using PostgreSQL.
// Structured sub-records (risk flags, layer scores, evidence, consensus) are
// stored as JSONB so the full decision context survives verbatim.
type ValidationStore struct {
	pool *pgxpool.Pool
}

// NewValidationStore creates a new ValidationStore backed by the given pool.
func NewValidationStore(pool *pgxpool.Pool) *ValidationStore {
	return &ValidationStore{pool: pool}
}

// Insert appends a validation result. Rows are never updated.
func (s *ValidationStore) Insert(ctx context.Context, r domain.ValidationResult) error {
	riskFlags, err := json.Marshal(orEmptySlice(r.RiskFlags))
	if err != nil {
		return fmt.Errorf("postgres: marshal risk flags: %w", err)
	}
	layers, err := json.Marshal(r.Layers)
	if err != nil {
		return fmt.Errorf("postgres: marshal layers: %w", err)
	}
	evidence, err := json.Marshal(r.Evidence)
	if err != nil {
		return fmt.Errorf("postgres: marshal evidence: %w", err)
	}
	consensus, err := json.Marshal(r.Consensus)
	if err != nil {
		return fmt.Errorf("postgres: marshal consensus: %w", err)
	}

	const query = `
		INSERT INTO validation_results (
			id, market_id, score, confidence, status, action,
			risk_flags, layers, evidence, consensus, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = s.pool.Exec(ctx, query,
		r.ID, r.MarketID, r.Score, r.Confidence,
		string(r.Status), string(r.Action),
		riskFlags, layers, evidence, consensus, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert validation result %s: %w", r.ID, err)
	}
	return nil
}

const validationCols = `id, market_id, score, confidence, status, action,
	risk_flags, layers, evidence, consensus, created_at`

func scanValidation(row pgx.Row) (domain.ValidationResult, error) {
	var r domain.ValidationResult
	var status, action string
	var riskFlags, layers, evidence, consensus []byte

	err := row.Scan(
		&r.ID, &r.MarketID, &r.Score, &r.Confidence, &status, &action,
		&riskFlags, &layers, &evidence, &consensus, &r.CreatedAt,
	)
	if err != nil {
		return domain.ValidationResult{}, err
	}

	r.Status = domain.ValidationStatus(status)
	r.Action = domain.ValidationAction(action)
	if err := json.Unmarshal(riskFlags, &r.RiskFlags); err != nil {
		return domain.ValidationResult{}, fmt.Errorf("unmarshal risk flags: %w", err)
	}
	if err := json.Unmarshal(layers, &r.Layers); err != nil {
		return domain.ValidationResult{}, fmt.Errorf("unmarshal layers: %w", err)
	}
	if err := json.Unmarshal(evidence, &r.Evidence); err != nil {
		return domain.ValidationResult{}, fmt.Errorf("unmarshal evidence: %w", err)
	}
	if err := json.Unmarshal(consensus, &r.Consensus); err != nil {
		return domain.ValidationResult{}, fmt.Errorf("unmarshal consensus: %w", err)
	}
	return r, nil
}

// LatestByMarket returns the most recent validation result for a market.
func (s *ValidationStore) LatestByMarket(ctx context.Context, marketID string) (domain.ValidationResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+validationCols+` FROM validation_results
		WHERE market_id = $1 ORDER BY created_at DESC LIMIT 1`, marketID)
	r, err := scanValidation(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ValidationResult{}, domain.ErrNotFound
		}
		return domain.ValidationResult{}, fmt.Errorf("postgres: latest validation for %s: %w", marketID, err)
	}
	return r, nil
}

// ListByMarket returns validation results for a market, newest first.
func (s *ValidationStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.ValidationResult, error) {
	query := `SELECT ` + validationCols + ` FROM validation_results
		WHERE market_id = $1 ORDER BY created_at DESC`
	args := []any{marketID}
	query, args = appendPagination(query, args, 2, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list validations for %s: %w", marketID, err)
	}
	defer rows.Close()

	var results []domain.ValidationResult
	for rows.Next() {
		r, err := scanValidation(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan validation result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list validations rows: %w", err)
	}
	return results, nil
}

// orEmptySlice keeps nil string slices encoding as [] rather than null.
func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Compile-time interface check.
var _ domain.ValidationStore = (*ValidationStore)(nil)
