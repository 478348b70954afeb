package postgres

import (
	"github.com/verdictd/verdictd/internal/domain"
)

// Store bundles all PostgreSQL-backed stores behind the aggregate
// domain.Store port.
type Store struct {
	markets     *MarketStore
	validations *ValidationStore
	resolutions *ResolutionStore
	admins      *AdminActionStore
	events      *EventStore
	heartbeats  *HeartbeatStore
}

// NewStore creates the aggregate store from a connected Client.
func NewStore(c *Client) *Store {
	pool := c.Pool()
	return &Store{
		markets:     NewMarketStore(pool),
		validations: NewValidationStore(pool),
		resolutions: NewResolutionStore(pool),
		admins:      NewAdminActionStore(pool),
		events:      NewEventStore(pool),
		heartbeats:  NewHeartbeatStore(pool),
	}
}

func (s *Store) Markets() domain.MarketStore           { return s.markets }
func (s *Store) Validations() domain.ValidationStore   { return s.validations }
func (s *Store) Resolutions() domain.ResolutionStore   { return s.resolutions }
func (s *Store) AdminActions() domain.AdminActionStore { return s.admins }
func (s *Store) Events() domain.EventStore             { return s.events }
func (s *Store) Heartbeats() domain.HeartbeatStore     { return s.heartbeats }

// Compile-time interface check.
var _ domain.Store = (*Store)(nil)
