package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verdictd/verdictd/internal/domain"
)

// AdminActionStore implements domain.AdminActionStore using PostgreSQL.
// Every manual override attempt lands here, making the audit trail complete.
type AdminActionStore struct {
	pool *pgxpool.Pool
}

// NewAdminActionStore creates a new AdminActionStore backed by the given pool.
func NewAdminActionStore(pool *pgxpool.Pool) *AdminActionStore {
	return &AdminActionStore{pool: pool}
}

// Insert appends a new admin action record.
func (s *AdminActionStore) Insert(ctx context.Context, a domain.AdminAction) error {
	const query = `
		INSERT INTO admin_actions (
			id, admin_address, market_id, action, reason,
			old_value, new_value, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		a.ID, a.AdminAddress, a.MarketID, string(a.Action),
		a.Reason, a.OldValue, a.NewValue, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert admin action %s: %w", a.ID, err)
	}
	return nil
}

// List returns admin actions with pagination and optional time filtering,
// newest first.
func (s *AdminActionStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AdminAction, error) {
	query := `SELECT id, admin_address, market_id, action, reason,
		old_value, new_value, created_at FROM admin_actions WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"
	query, args = appendPagination(query, args, argIdx, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list admin actions: %w", err)
	}
	defer rows.Close()

	var actions []domain.AdminAction
	for rows.Next() {
		var a domain.AdminAction
		var action string
		if err := rows.Scan(
			&a.ID, &a.AdminAddress, &a.MarketID, &action,
			&a.Reason, &a.OldValue, &a.NewValue, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan admin action: %w", err)
		}
		a.Action = domain.AdminActionType(action)
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list admin actions rows: %w", err)
	}
	return actions, nil
}

// Compile-time interface check.
var _ domain.AdminActionStore = (*AdminActionStore)(nil)
