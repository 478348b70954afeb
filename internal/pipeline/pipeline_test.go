package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/verdictd/verdictd/internal/consensus"
	"github.com/verdictd/verdictd/internal/decision"
	"github.com/verdictd/verdictd/internal/domain"
	"github.com/verdictd/verdictd/internal/events"
	"github.com/verdictd/verdictd/internal/queue"
	"github.com/verdictd/verdictd/internal/rules"
	"github.com/verdictd/verdictd/internal/store/memory"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubEvidence serves a canned bundle for every market.
type stubEvidence struct {
	bundle domain.EvidenceBundle
	err    error
}

func (s *stubEvidence) Gather(_ context.Context, m domain.Market) (domain.EvidenceBundle, error) {
	if s.err != nil {
		return domain.EvidenceBundle{}, s.err
	}
	b := s.bundle
	b.MarketID = m.ID
	return b, nil
}

type stubBackend struct {
	name   string
	answer domain.Answer
	conf   float64
}

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) Judge(_ context.Context, _ domain.ModelPrompt) (domain.ModelVerdict, error) {
	return domain.ModelVerdict{
		Answer:     s.answer,
		Confidence: s.conf,
		Reasoning:  "stub",
		CreatedAt:  time.Now(),
	}, nil
}

// failingBackend simulates an unreachable provider.
type failingBackend struct{ name string }

func (f *failingBackend) Name() string { return f.name }

func (f *failingBackend) Judge(context.Context, domain.ModelPrompt) (domain.ModelVerdict, error) {
	return domain.ModelVerdict{}, errors.New("upstream timeout")
}

type stubLedger struct {
	proposed  []string
	finalized []string
	frozen    []string
}

func (s *stubLedger) ProposeOutcome(_ context.Context, marketID string, _ domain.Outcome, _ float64) (string, error) {
	s.proposed = append(s.proposed, marketID)
	return "0xtx", nil
}

func (s *stubLedger) Finalize(_ context.Context, marketID string, _ domain.Outcome) (string, error) {
	s.finalized = append(s.finalized, marketID)
	return "0xfin", nil
}

func (s *stubLedger) Freeze(_ context.Context, marketID string, _ string) (string, error) {
	s.frozen = append(s.frozen, marketID)
	return "0xfrz", nil
}

type stubTracker struct {
	tracked []string
}

func (s *stubTracker) Track(_ context.Context, marketID string, _ domain.Outcome, _ float64) error {
	s.tracked = append(s.tracked, marketID)
	return nil
}

func consensusEngine(t *testing.T, backends ...domain.ModelBackend) *consensus.Engine {
	t.Helper()
	return consensus.NewEngine(backends, nil, consensus.Config{Timeout: time.Second}, discard())
}

func decisionEngine() *decision.Engine {
	return decision.NewEngine(
		decision.Weights{URL: 0.15, Content: 0.15, Resolvability: 0.20, Consensus: 0.50},
		decision.Thresholds{
			ValidationScore:      70,
			ValidationConfidence: 70,
			Agreement:            0.66,
			ResolutionConfidence: 80,
			EvidenceStrength:     50,
		},
	)
}

func rulesEngine() *rules.Engine {
	return rules.NewEngine(rules.Config{MinExpiry: time.Hour, MaxExpiry: 365 * 24 * time.Hour})
}

func strongBundle() domain.EvidenceBundle {
	return domain.EvidenceBundle{
		Source:      &domain.SourceContent{URL: "https://coindesk.com/btc", Text: "price data", URLScore: 100, Reachable: true},
		TrustedNews: true,
		News: []domain.NewsArticle{
			{URL: "https://reuters.com/1", Title: "BTC crosses 100k"},
			{URL: "https://apnews.com/2", Title: "Bitcoin milestone"},
			{URL: "https://bbc.com/3", Title: "Crypto rally"},
		},
		Official: []domain.OfficialSource{{URL: "https://sec.gov/x", Verified: true}},
	}
}

func newValidator(t *testing.T, store *memory.Store, ev EvidenceSource, cons ConsensusRunner) *Validator {
	t.Helper()
	emitter := events.NewEmitter(store.Events(), nil, discard())
	return NewValidator(ev, rulesEngine(), cons, decisionEngine(), store, nil, emitter, nil, discard())
}

func newResolver(t *testing.T, store *memory.Store, ev EvidenceSource, cons ConsensusRunner, ledger domain.Ledger, tracker ProposalTracker) *Resolver {
	t.Helper()
	return NewResolver(ResolverDeps{
		Evidence:  ev,
		Consensus: cons,
		Decide:    decisionEngine(),
		Store:     store,
		Ledger:    ledger,
		Tracker:   tracker,
		Emitter:   events.NewEmitter(store.Events(), nil, discard()),
		Logger:    discard(),
	})
}

// Scenario: a market sourced from a blacklisted domain is rejected outright,
// with a blacklist indicator in its risk flags, without any model calls.
func TestValidateBlacklistedSourceRejects(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	market := domain.Market{
		ID:        "m-aliens",
		Question:  "Aliens will land in Times Square by tomorrow",
		SourceURL: "https://theonion.com/aliens",
		Status:    domain.StatusPendingValidation,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}
	store.Markets().Upsert(ctx, market)

	// Backends that would approve anything; they must not rescue the market.
	v := newValidator(t, store,
		&stubEvidence{bundle: domain.EvidenceBundle{Blacklisted: true}},
		consensusEngine(t, &stubBackend{name: "a", answer: domain.AnswerYes, conf: 99}),
	)

	result, err := v.Run(ctx, market)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != domain.ValidationRejected || result.Action != domain.ActionRejectAndBurn {
		t.Fatalf("result = %s/%s", result.Status, result.Action)
	}
	hasFlag := false
	for _, f := range result.RiskFlags {
		if strings.Contains(f, "blacklist") {
			hasFlag = true
		}
	}
	if !hasFlag {
		t.Fatalf("risk flags = %v, missing blacklist indicator", result.RiskFlags)
	}

	m, _ := store.Markets().GetByID(ctx, market.ID)
	if m.Status != domain.StatusRejected {
		t.Fatalf("status = %s, want rejected", m.Status)
	}
	if _, err := store.Validations().LatestByMarket(ctx, market.ID); err != nil {
		t.Fatalf("validation not persisted: %v", err)
	}
}

// Scenario: a well-formed crypto market with trusted sourcing and unanimous
// confident backends is approved, then resolves yes and is proposed on the
// ledger.
func TestValidateThenResolveBitcoinMarket(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	market := domain.Market{
		ID:        "m-btc",
		Question:  "Will Bitcoin reach $100,000 by December 2025?",
		SourceURL: "https://coindesk.com/markets/btc",
		Category:  domain.CategoryCrypto,
		Liquidity: 250_000,
		Status:    domain.StatusPendingValidation,
		ExpiresAt: time.Now().Add(30 * 24 * time.Hour),
	}
	store.Markets().Upsert(ctx, market)

	cons := consensusEngine(t,
		&stubBackend{name: "a", answer: domain.AnswerYes, conf: 93},
		&stubBackend{name: "b", answer: domain.AnswerYes, conf: 91},
	)
	ev := &stubEvidence{bundle: strongBundle()}

	v := newValidator(t, store, ev, cons)
	valResult, err := v.Run(ctx, market)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if valResult.Status != domain.ValidationApproved {
		t.Fatalf("validation = %s (score %.1f)", valResult.Status, valResult.Score)
	}
	m, _ := store.Markets().GetByID(ctx, market.ID)
	if m.Status != domain.StatusActive {
		t.Fatalf("status after validation = %s", m.Status)
	}

	// The market expires; resolution runs over the same strong evidence.
	ledger := &stubLedger{}
	tracker := &stubTracker{}
	r := newResolver(t, store, ev, cons, ledger, tracker)

	resResult, err := r.Run(ctx, m)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resResult.Outcome != domain.OutcomeYes || resResult.Action != domain.ActionPayYesHolders {
		t.Fatalf("resolution = %s/%s", resResult.Outcome, resResult.Action)
	}
	if len(ledger.proposed) != 1 || len(tracker.tracked) != 1 {
		t.Fatalf("proposed = %v, tracked = %v", ledger.proposed, tracker.tracked)
	}

	m, _ = store.Markets().GetByID(ctx, market.ID)
	if m.Status != domain.StatusProposed {
		t.Fatalf("status after resolution = %s", m.Status)
	}
	if got := resResult.Consensus.RecomputeAgreement(); got != resResult.Consensus.AgreementLevel {
		t.Fatalf("agreement round trip: %v vs %v", got, resResult.Consensus.AgreementLevel)
	}
}

// Scenario: the seal pass with a 2/3 split yields uncertain with zero
// confidence; two-thirds agreement is not enough for unanimity.
func TestSealSplitVoteIsUncertain(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	market := domain.Market{ID: "m-seal", Question: "Will X happen?", Status: domain.StatusProposed}
	store.Markets().Upsert(ctx, market)

	cons := consensusEngine(t,
		&stubBackend{name: "a", answer: domain.AnswerYes, conf: 95},
		&stubBackend{name: "b", answer: domain.AnswerYes, conf: 94},
		&stubBackend{name: "c", answer: domain.AnswerNo, conf: 90},
	)
	r := newResolver(t, store, &stubEvidence{bundle: strongBundle()}, cons, &stubLedger{}, &stubTracker{})

	seal, err := r.Seal(ctx, market, domain.OutcomeYes)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if seal.FinalVerdict != domain.AnswerUncertain || seal.AvgConfidence != 0 {
		t.Fatalf("seal = %s/%v, want uncertain/0", seal.FinalVerdict, seal.AvgConfidence)
	}
}

// Manual resolution paths keep the outcome but send the market to review.
func TestResolveLowAgreementGoesToReview(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	market := domain.Market{ID: "m-split", Question: "Will Y happen?", Status: domain.StatusPendingResolution}
	store.Markets().Upsert(ctx, market)

	cons := consensusEngine(t,
		&stubBackend{name: "a", answer: domain.AnswerYes, conf: 90},
		&stubBackend{name: "b", answer: domain.AnswerNo, conf: 90},
	)
	ledger := &stubLedger{}
	r := newResolver(t, store, &stubEvidence{bundle: strongBundle()}, cons, ledger, &stubTracker{})

	result, err := r.Run(ctx, market)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Action != domain.ActionManualResolution {
		t.Fatalf("action = %s", result.Action)
	}
	if len(ledger.proposed) != 0 {
		t.Fatal("manual resolutions must not reach the ledger")
	}
	m, _ := store.Markets().GetByID(ctx, market.ID)
	if m.Status != domain.StatusReview {
		t.Fatalf("status = %s, want review", m.Status)
	}
}

// Scenario: every backend errors, so the decision table yields an
// unresolvable refund with zero confidence. The seal pass can never confirm
// a refund, so the result must bypass the proposal window entirely and land
// in review without any ledger call.
func TestResolveBackendOutageStaysOffLedger(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	market := domain.Market{ID: "m-outage", Question: "Will Q happen?", Status: domain.StatusPendingResolution}
	store.Markets().Upsert(ctx, market)

	cons := consensusEngine(t,
		&failingBackend{name: "a"},
		&failingBackend{name: "b"},
	)
	ledger := &stubLedger{}
	tracker := &stubTracker{}
	r := newResolver(t, store, &stubEvidence{bundle: strongBundle()}, cons, ledger, tracker)

	result, err := r.Run(ctx, market)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Outcome != domain.OutcomeUnresolvable || result.Action != domain.ActionRefundAll {
		t.Fatalf("result = %s/%s, want unresolvable/refund_all", result.Outcome, result.Action)
	}
	if len(ledger.proposed) != 0 || len(tracker.tracked) != 0 {
		t.Fatalf("refund must not enter the proposal window: proposed = %v, tracked = %v",
			ledger.proposed, tracker.tracked)
	}
	if len(ledger.finalized) != 0 || len(ledger.frozen) != 0 {
		t.Fatalf("refund from an outage must not move funds: finalized = %v, frozen = %v",
			ledger.finalized, ledger.frozen)
	}
	m, _ := store.Markets().GetByID(ctx, market.ID)
	if m.Status != domain.StatusReview {
		t.Fatalf("status = %s, want review", m.Status)
	}
}

// A forced refund settles on the ledger directly; there is no heartbeat
// window because unanimity can only confirm yes/no answers.
func TestForceResolveRefundSettlesImmediately(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	market := domain.Market{ID: "m-refund", Question: "Will W happen?", Status: domain.StatusReview}
	store.Markets().Upsert(ctx, market)

	ledger := &stubLedger{}
	tracker := &stubTracker{}
	r := newResolver(t, store, &stubEvidence{}, consensusEngine(t, &stubBackend{name: "a"}), ledger, tracker)

	result, err := r.ForceResolve(ctx, market, domain.OutcomeUnresolvable, "0xadmin", "event cancelled")
	if err != nil {
		t.Fatalf("ForceResolve: %v", err)
	}
	if result.Action != domain.ActionRefundAll || !result.Forced {
		t.Fatalf("result = %+v", result)
	}
	if len(ledger.finalized) != 1 || ledger.finalized[0] != market.ID {
		t.Fatalf("finalized = %v, want [%s]", ledger.finalized, market.ID)
	}
	if len(ledger.proposed) != 0 || len(tracker.tracked) != 0 {
		t.Fatalf("forced refund must skip the proposal window: proposed = %v, tracked = %v",
			ledger.proposed, tracker.tracked)
	}
	m, _ := store.Markets().GetByID(ctx, market.ID)
	if m.Status != domain.StatusResolved {
		t.Fatalf("status = %s, want resolved", m.Status)
	}
}

func TestForceResolveAuditable(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	market := domain.Market{ID: "m-force", Question: "Will Z happen?", Status: domain.StatusReview}
	store.Markets().Upsert(ctx, market)

	ledger := &stubLedger{}
	tracker := &stubTracker{}
	r := newResolver(t, store, &stubEvidence{}, consensusEngine(t, &stubBackend{name: "a"}), ledger, tracker)

	result, err := r.ForceResolve(ctx, market, domain.OutcomeNo, "0xadmin", "court ruling")
	if err != nil {
		t.Fatalf("ForceResolve: %v", err)
	}
	if !result.Forced || result.Confidence != 100 {
		t.Fatalf("result = %+v", result)
	}
	if len(ledger.proposed) != 1 || len(tracker.tracked) != 1 {
		t.Fatal("forced outcomes still go through proposal and heartbeat")
	}
}

type stubMonitor struct{ tracked int }

func (s *stubMonitor) Reload(context.Context) error { return nil }
func (s *stubMonitor) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
func (s *stubMonitor) Tracked() int { return s.tracked }

func TestPollSchedulesExpiredMarkets(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	now := time.Now()

	store.Markets().Upsert(ctx, domain.Market{
		ID: "fresh", Status: domain.StatusPendingValidation, ExpiresAt: now.Add(time.Hour),
	})
	store.Markets().Upsert(ctx, domain.Market{
		ID: "expired", Status: domain.StatusActive, ExpiresAt: now.Add(-time.Hour),
	})
	store.Markets().Upsert(ctx, domain.Market{
		ID: "settled", Status: domain.StatusResolved, ExpiresAt: now.Add(-time.Hour),
	})

	o := NewOrchestrator(
		OrchestratorConfig{PollInterval: time.Minute},
		queue.Config{Workers: 1},
		OrchestratorDeps{
			Store:   store,
			Monitor: &stubMonitor{},
			Emitter: events.NewEmitter(store.Events(), nil, discard()),
			Logger:  discard(),
		},
	)

	o.Poll(ctx)

	depth, _ := o.QueueStats()
	if depth != 2 {
		t.Fatalf("queue depth = %d, want 2 (fresh validate + expired resolve)", depth)
	}
	m, _ := store.Markets().GetByID(ctx, "expired")
	if m.Status != domain.StatusPendingResolution {
		t.Fatalf("expired market status = %s", m.Status)
	}

	// Polling again must not duplicate entries.
	o.Poll(ctx)
	depth, _ = o.QueueStats()
	if depth != 2 {
		t.Fatalf("queue depth after re-poll = %d, want 2", depth)
	}
}
