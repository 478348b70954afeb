// Package memory is the in-process store adapter: full fidelity with the
// postgres adapter's contract, no external dependency. Used by tests and by
// single-node deployments that opt out of postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/verdictd/verdictd/internal/domain"
)

// Store holds everything in maps guarded by one mutex. The oracle's write
// rates are far below the point where sharding would matter.
type Store struct {
	mu          sync.RWMutex
	markets     map[string]domain.Market
	validations map[string][]domain.ValidationResult
	resolutions map[string][]domain.ResolutionResult
	admin       []domain.AdminAction
	events      []domain.Event
	nextEventID int64
	heartbeats  map[string]domain.HeartbeatRecord
}

var _ domain.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		markets:     make(map[string]domain.Market),
		validations: make(map[string][]domain.ValidationResult),
		resolutions: make(map[string][]domain.ResolutionResult),
		heartbeats:  make(map[string]domain.HeartbeatRecord),
		nextEventID: 1,
	}
}

func (s *Store) Markets() domain.MarketStore           { return (*marketStore)(s) }
func (s *Store) Validations() domain.ValidationStore   { return (*validationStore)(s) }
func (s *Store) Resolutions() domain.ResolutionStore   { return (*resolutionStore)(s) }
func (s *Store) AdminActions() domain.AdminActionStore { return (*adminStore)(s) }
func (s *Store) Events() domain.EventStore             { return (*eventStore)(s) }
func (s *Store) Heartbeats() domain.HeartbeatStore     { return (*heartbeatStore)(s) }

type marketStore Store

func (s *marketStore) Upsert(_ context.Context, market domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.markets[market.ID]; ok && market.CreatedAt.IsZero() {
		market.CreatedAt = existing.CreatedAt
	} else if market.CreatedAt.IsZero() {
		market.CreatedAt = time.Now().UTC()
	}
	market.UpdatedAt = time.Now().UTC()
	s.markets[market.ID] = market
	return nil
}

func (s *marketStore) GetByID(_ context.Context, id string) (domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	market, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return market, nil
}

func (s *marketStore) UpdateStatus(_ context.Context, id string, status domain.MarketStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	market, ok := s.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	market.Status = status
	market.UpdatedAt = time.Now().UTC()
	s.markets[id] = market
	return nil
}

func (s *marketStore) ListByStatus(_ context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Market
	for _, m := range s.markets {
		if m.Status == status {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return paginate(out, opts), nil
}

func (s *marketStore) ListExpired(_ context.Context, now time.Time, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Market
	for _, m := range s.markets {
		if !m.Status.Terminal() && m.Expired(now) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return paginate(out, opts), nil
}

func (s *marketStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.markets)), nil
}

type validationStore Store

func (s *validationStore) Insert(_ context.Context, result domain.ValidationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validations[result.MarketID] = append(s.validations[result.MarketID], result)
	return nil
}

func (s *validationStore) LatestByMarket(_ context.Context, marketID string) (domain.ValidationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := s.validations[marketID]
	if len(results) == 0 {
		return domain.ValidationResult{}, domain.ErrNotFound
	}
	return results[len(results)-1], nil
}

func (s *validationStore) ListByMarket(_ context.Context, marketID string, opts domain.ListOpts) ([]domain.ValidationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paginate(append([]domain.ValidationResult(nil), s.validations[marketID]...), opts), nil
}

type resolutionStore Store

func (s *resolutionStore) Insert(_ context.Context, result domain.ResolutionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolutions[result.MarketID] = append(s.resolutions[result.MarketID], result)
	return nil
}

func (s *resolutionStore) LatestByMarket(_ context.Context, marketID string) (domain.ResolutionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := s.resolutions[marketID]
	if len(results) == 0 {
		return domain.ResolutionResult{}, domain.ErrNotFound
	}
	return results[len(results)-1], nil
}

func (s *resolutionStore) ListByMarket(_ context.Context, marketID string, opts domain.ListOpts) ([]domain.ResolutionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paginate(append([]domain.ResolutionResult(nil), s.resolutions[marketID]...), opts), nil
}

type adminStore Store

func (s *adminStore) Insert(_ context.Context, action domain.AdminAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admin = append(s.admin, action)
	return nil
}

func (s *adminStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AdminAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paginate(append([]domain.AdminAction(nil), s.admin...), opts), nil
}

type eventStore Store

func (s *eventStore) Append(_ context.Context, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.ID = s.nextEventID
	s.nextEventID++
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	s.events = append(s.events, event)
	return nil
}

func (s *eventStore) List(_ context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paginate(filterEvents(s.events, "", opts), opts), nil
}

func (s *eventStore) ListByMarket(_ context.Context, marketID string, opts domain.ListOpts) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paginate(filterEvents(s.events, marketID, opts), opts), nil
}

type heartbeatStore Store

func (s *heartbeatStore) Put(_ context.Context, record domain.HeartbeatRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heartbeats[record.MarketID] = record
	return nil
}

func (s *heartbeatStore) Get(_ context.Context, marketID string) (domain.HeartbeatRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.heartbeats[marketID]
	if !ok {
		return domain.HeartbeatRecord{}, domain.ErrNotFound
	}
	return record, nil
}

func (s *heartbeatStore) Delete(_ context.Context, marketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.heartbeats, marketID)
	return nil
}

func (s *heartbeatStore) List(_ context.Context) ([]domain.HeartbeatRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.HeartbeatRecord, 0, len(s.heartbeats))
	for _, r := range s.heartbeats {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProposedAt.Before(out[j].ProposedAt) })
	return out, nil
}

func filterEvents(events []domain.Event, marketID string, opts domain.ListOpts) []domain.Event {
	var out []domain.Event
	for _, e := range events {
		if marketID != "" && e.MarketID != marketID {
			continue
		}
		if opts.Since != nil && e.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && e.CreatedAt.After(*opts.Until) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}
