package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market metadata. Markets are mutated only through
// Upsert and UpdateStatus; results never modify the market row in place.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id string) (Market, error)
	UpdateStatus(ctx context.Context, id string, status MarketStatus) error
	ListByStatus(ctx context.Context, status MarketStatus, opts ListOpts) ([]Market, error)
	// ListExpired returns non-terminal markets whose expiry has passed,
	// candidates for the resolution queue.
	ListExpired(ctx context.Context, now time.Time, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// ValidationStore is the append-only table of validation results.
type ValidationStore interface {
	Insert(ctx context.Context, result ValidationResult) error
	LatestByMarket(ctx context.Context, marketID string) (ValidationResult, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]ValidationResult, error)
}

// ResolutionStore is the append-only table of resolution results.
type ResolutionStore interface {
	Insert(ctx context.Context, result ResolutionResult) error
	LatestByMarket(ctx context.Context, marketID string) (ResolutionResult, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]ResolutionResult, error)
}

// AdminActionStore is the append-only admin audit table.
type AdminActionStore interface {
	Insert(ctx context.Context, action AdminAction) error
	List(ctx context.Context, opts ListOpts) ([]AdminAction, error)
}

// EventStore is the append-only event log.
type EventStore interface {
	Append(ctx context.Context, event Event) error
	List(ctx context.Context, opts ListOpts) ([]Event, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Event, error)
}

// HeartbeatStore persists in-flight proposal tracking so a restart does not
// lose markets mid-window.
type HeartbeatStore interface {
	Put(ctx context.Context, record HeartbeatRecord) error
	Get(ctx context.Context, marketID string) (HeartbeatRecord, error)
	Delete(ctx context.Context, marketID string) error
	List(ctx context.Context) ([]HeartbeatRecord, error)
}

// Store aggregates every persistence port the orchestrator needs. Both the
// postgres and the in-memory adapter satisfy it.
type Store interface {
	Markets() MarketStore
	Validations() ValidationStore
	Resolutions() ResolutionStore
	AdminActions() AdminActionStore
	Events() EventStore
	Heartbeats() HeartbeatStore
}
