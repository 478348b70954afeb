package heartbeat

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/verdictd/verdictd/internal/domain"
	"github.com/verdictd/verdictd/internal/events"
	"github.com/verdictd/verdictd/internal/store/memory"
)

type fakeLedger struct {
	finalized []string
	frozen    []string
}

func (f *fakeLedger) ProposeOutcome(context.Context, string, domain.Outcome, float64) (string, error) {
	return "0xprop", nil
}

func (f *fakeLedger) Finalize(_ context.Context, marketID string, _ domain.Outcome) (string, error) {
	f.finalized = append(f.finalized, marketID)
	return "0xfin", nil
}

func (f *fakeLedger) Freeze(_ context.Context, marketID string, _ string) (string, error) {
	f.frozen = append(f.frozen, marketID)
	return "0xfrz", nil
}

type fakeGovernance struct {
	tally domain.GovernanceTally
}

func (f *fakeGovernance) Tally(context.Context, string) (domain.GovernanceTally, error) {
	return f.tally, nil
}

type fakeSealer struct {
	verdict    domain.Answer
	confidence float64
}

func (f *fakeSealer) Seal(_ context.Context, _ domain.Market, _ domain.Outcome) (domain.ConsensusResult, error) {
	return domain.ConsensusResult{
		Mode:         domain.ConsensusUnanimity,
		FinalVerdict: f.verdict,
		Verdicts: []domain.ModelVerdict{
			{Provider: "a", Answer: f.verdict, Confidence: f.confidence},
			{Provider: "b", Answer: f.verdict, Confidence: f.confidence},
		},
		AgreementLevel: 1.0,
		AvgConfidence:  f.confidence,
	}, nil
}

type fixture struct {
	monitor *Monitor
	store   *memory.Store
	ledger  *fakeLedger
	clock   time.Time
}

func newFixture(t *testing.T, gov domain.GovernanceTally, sealVerdict domain.Answer) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	ledger := &fakeLedger{}
	emitter := events.NewEmitter(store.Events(), nil, logger)

	f := &fixture{
		store:  store,
		ledger: ledger,
		clock:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.monitor = NewMonitor(
		Config{Interval: 15 * time.Minute, Window: 2 * time.Hour},
		store, ledger, &fakeGovernance{tally: gov}, &fakeSealer{verdict: sealVerdict, confidence: 92},
		emitter, nil, logger,
	)
	f.monitor.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) propose(t *testing.T, marketID string) {
	t.Helper()
	ctx := context.Background()
	f.store.Markets().Upsert(ctx, domain.Market{ID: marketID, Status: domain.StatusProposed})
	if err := f.monitor.Track(ctx, marketID, domain.OutcomeYes, 90); err != nil {
		t.Fatalf("Track: %v", err)
	}
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func eventTypes(t *testing.T, store *memory.Store) []domain.EventType {
	t.Helper()
	evs, err := store.Events().List(context.Background(), domain.ListOpts{})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	types := make([]domain.EventType, len(evs))
	for i, e := range evs {
		types[i] = e.Type
	}
	return types
}

func TestHealthyProposalFinalizesAfterWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.GovernanceTally{}, domain.AnswerYes)
	f.propose(t, "m1")

	// Beats inside the window keep the record alive.
	f.advance(30 * time.Minute)
	f.monitor.Tick(ctx)
	if f.monitor.Tracked() != 1 {
		t.Fatal("record should survive a mid-window beat")
	}
	if len(f.ledger.finalized) != 0 {
		t.Fatal("must not finalize before the window elapses")
	}

	// Past the window the next beat finalizes.
	f.advance(2 * time.Hour)
	f.monitor.Tick(ctx)
	if len(f.ledger.finalized) != 1 || f.ledger.finalized[0] != "m1" {
		t.Fatalf("finalized = %v", f.ledger.finalized)
	}
	if len(f.ledger.frozen) != 0 {
		t.Fatalf("healthy market must never escalate, frozen = %v", f.ledger.frozen)
	}
	if f.monitor.Tracked() != 0 {
		t.Fatal("record must be retired after finalization")
	}

	m, _ := f.store.Markets().GetByID(ctx, "m1")
	if m.Status != domain.StatusResolved {
		t.Fatalf("status = %s, want resolved", m.Status)
	}
	if _, err := f.store.Heartbeats().Get(ctx, "m1"); err == nil {
		t.Fatal("durable record must be deleted on finalization")
	}
}

func TestGovernanceDisagreementEscalates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		domain.GovernanceTally{VotesFor: 10, VotesAgainst: 500, Participated: true},
		domain.AnswerYes)
	f.propose(t, "m1")

	f.advance(20 * time.Minute)
	f.monitor.Tick(ctx)

	if len(f.ledger.finalized) != 0 {
		t.Fatal("escalated market must not finalize")
	}
	if len(f.ledger.frozen) != 0 {
		t.Fatalf("escalation must not touch the ledger, frozen = %v", f.ledger.frozen)
	}
	m, _ := f.store.Markets().GetByID(ctx, "m1")
	if m.Status != domain.StatusReview {
		t.Fatalf("status = %s, want review", m.Status)
	}
	if f.monitor.Tracked() != 0 {
		t.Fatal("record must be retired on escalation")
	}
}

func TestSealUncertaintyEscalates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.GovernanceTally{}, domain.AnswerUncertain)
	f.propose(t, "m1")

	f.advance(20 * time.Minute)
	f.monitor.Tick(ctx)

	m, _ := f.store.Markets().GetByID(ctx, "m1")
	if m.Status != domain.StatusReview {
		t.Fatal("seal uncertainty must escalate")
	}
	if len(f.ledger.frozen) != 0 {
		t.Fatalf("escalation must not touch the ledger, frozen = %v", f.ledger.frozen)
	}
	types := eventTypes(t, f.store)
	found := false
	for _, ty := range types {
		if ty == domain.EventMarketEscalated {
			found = true
		}
	}
	if !found {
		t.Fatalf("events = %v, missing escalation", types)
	}
}

func TestSealContradictionEscalates(t *testing.T) {
	ctx := context.Background()
	// Seal unanimously answers no against a proposed yes.
	f := newFixture(t, domain.GovernanceTally{}, domain.AnswerNo)
	f.propose(t, "m1")

	f.advance(20 * time.Minute)
	f.monitor.Tick(ctx)

	m, _ := f.store.Markets().GetByID(ctx, "m1")
	if m.Status != domain.StatusReview {
		t.Fatal("a seal contradicting the proposal must escalate")
	}
	if len(f.ledger.frozen) != 0 {
		t.Fatalf("escalation must not touch the ledger, frozen = %v", f.ledger.frozen)
	}
}

func TestTrackIsIdempotent(t *testing.T) {
	f := newFixture(t, domain.GovernanceTally{}, domain.AnswerYes)
	f.propose(t, "m1")
	f.propose(t, "m1")
	if f.monitor.Tracked() != 1 {
		t.Fatalf("tracked = %d, want 1", f.monitor.Tracked())
	}
}

func TestReloadResumesMidWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.GovernanceTally{}, domain.AnswerYes)
	f.propose(t, "m1")

	// A fresh monitor over the same store starts empty, then resumes the
	// persisted record.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fresh := NewMonitor(
		Config{Interval: 15 * time.Minute, Window: 2 * time.Hour},
		f.store, f.ledger, &fakeGovernance{}, &fakeSealer{verdict: domain.AnswerYes, confidence: 90},
		events.NewEmitter(f.store.Events(), nil, logger), nil, logger,
	)
	if fresh.Tracked() != 0 {
		t.Fatal("fresh monitor should start empty")
	}
	if err := fresh.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if fresh.Tracked() != 1 {
		t.Fatalf("tracked after reload = %d, want 1", fresh.Tracked())
	}
}

func TestHeartbeatOKEmitsEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.GovernanceTally{}, domain.AnswerYes)
	f.propose(t, "m1")

	f.advance(30 * time.Minute)
	f.monitor.Tick(ctx)

	types := eventTypes(t, f.store)
	if len(types) == 0 || types[len(types)-1] != domain.EventHeartbeatOK {
		t.Fatalf("events = %v, want trailing heartbeat_ok", types)
	}
}
