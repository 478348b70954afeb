package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/verdictd/verdictd/internal/domain"
)

func TestMarketLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	m := domain.Market{
		ID:        "m1",
		Question:  "Will it happen?",
		Status:    domain.StatusPendingValidation,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := s.Markets().Upsert(ctx, m); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := s.Markets().GetByID(ctx, "m1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Question != m.Question || got.CreatedAt.IsZero() {
		t.Fatalf("got %+v", got)
	}

	if err := s.Markets().UpdateStatus(ctx, "m1", domain.StatusActive); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	active, err := s.Markets().ListByStatus(ctx, domain.StatusActive, domain.ListOpts{})
	if err != nil || len(active) != 1 {
		t.Fatalf("ListByStatus: %v, %d", err, len(active))
	}

	if _, err := s.Markets().GetByID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Markets().UpdateStatus(ctx, "missing", domain.StatusActive); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListExpiredSkipsTerminal(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()

	s.Markets().Upsert(ctx, domain.Market{ID: "live", Status: domain.StatusActive, ExpiresAt: now.Add(-time.Hour)})
	s.Markets().Upsert(ctx, domain.Market{ID: "done", Status: domain.StatusResolved, ExpiresAt: now.Add(-time.Hour)})
	s.Markets().Upsert(ctx, domain.Market{ID: "future", Status: domain.StatusActive, ExpiresAt: now.Add(time.Hour)})

	expired, err := s.Markets().ListExpired(ctx, now, domain.ListOpts{})
	if err != nil {
		t.Fatalf("ListExpired: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "live" {
		t.Fatalf("expired = %+v", expired)
	}
}

func TestResultsAppendOnly(t *testing.T) {
	ctx := context.Background()
	s := New()

	first := domain.ValidationResult{ID: "v1", MarketID: "m1", Status: domain.ValidationFlagged}
	second := domain.ValidationResult{ID: "v2", MarketID: "m1", Status: domain.ValidationApproved}
	s.Validations().Insert(ctx, first)
	s.Validations().Insert(ctx, second)

	latest, err := s.Validations().LatestByMarket(ctx, "m1")
	if err != nil || latest.ID != "v2" {
		t.Fatalf("latest = %+v, err %v", latest, err)
	}
	all, _ := s.Validations().ListByMarket(ctx, "m1", domain.ListOpts{})
	if len(all) != 2 {
		t.Fatalf("history = %d, want 2", len(all))
	}
}

func TestEventLogAssignsIDs(t *testing.T) {
	ctx := context.Background()
	s := New()

	s.Events().Append(ctx, domain.Event{Type: domain.EventMarketCreated, MarketID: "m1"})
	s.Events().Append(ctx, domain.Event{Type: domain.EventValidationCompleted, MarketID: "m1"})
	s.Events().Append(ctx, domain.Event{Type: domain.EventMarketCreated, MarketID: "m2"})

	all, _ := s.Events().List(ctx, domain.ListOpts{})
	if len(all) != 3 || all[0].ID != 1 || all[2].ID != 3 {
		t.Fatalf("events = %+v", all)
	}
	byMarket, _ := s.Events().ListByMarket(ctx, "m1", domain.ListOpts{})
	if len(byMarket) != 2 {
		t.Fatalf("byMarket = %d, want 2", len(byMarket))
	}
}

func TestHeartbeatRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	record := domain.HeartbeatRecord{
		MarketID:   "m1",
		Outcome:    domain.OutcomeYes,
		Confidence: 88,
		ProposedAt: time.Now(),
	}
	s.Heartbeats().Put(ctx, record)

	got, err := s.Heartbeats().Get(ctx, "m1")
	if err != nil || got.Outcome != domain.OutcomeYes {
		t.Fatalf("Get: %+v, %v", got, err)
	}
	list, _ := s.Heartbeats().List(ctx)
	if len(list) != 1 {
		t.Fatalf("List = %d", len(list))
	}

	s.Heartbeats().Delete(ctx, "m1")
	if _, err := s.Heartbeats().Get(ctx, "m1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
