package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/verdictd/verdictd/internal/decision"
	"github.com/verdictd/verdictd/internal/domain"
	"github.com/verdictd/verdictd/internal/events"
	"github.com/verdictd/verdictd/internal/metrics"
)

// ProposalTracker registers a proposed outcome with the heartbeat monitor.
type ProposalTracker interface {
	Track(ctx context.Context, marketID string, outcome domain.Outcome, confidence float64) error
}

// Resolver drives an expired market through the resolution flow and, when
// the decision settles, proposes the outcome on the ledger and hands the
// market to the heartbeat monitor.
type Resolver struct {
	evidence  EvidenceSource
	consensus ConsensusRunner
	decide    *decision.Engine
	store     domain.Store
	ledger    domain.Ledger
	mirror    domain.MirrorSource // optional
	tracker   ProposalTracker
	cache     domain.MarketCache
	emitter   *events.Emitter
	archive   domain.BlobWriter // optional evidence archive
	metrics   *metrics.Recorder
	log       *slog.Logger
}

// ResolverDeps collects the resolver's collaborators; mirror, cache, and
// archive may be nil.
type ResolverDeps struct {
	Evidence  EvidenceSource
	Consensus ConsensusRunner
	Decide    *decision.Engine
	Store     domain.Store
	Ledger    domain.Ledger
	Mirror    domain.MirrorSource
	Tracker   ProposalTracker
	Cache     domain.MarketCache
	Emitter   *events.Emitter
	Archive   domain.BlobWriter
	Metrics   *metrics.Recorder
	Logger    *slog.Logger
}

func NewResolver(deps ResolverDeps) *Resolver {
	return &Resolver{
		evidence:  deps.Evidence,
		consensus: deps.Consensus,
		decide:    deps.Decide,
		store:     deps.Store,
		ledger:    deps.Ledger,
		mirror:    deps.Mirror,
		tracker:   deps.Tracker,
		cache:     deps.Cache,
		emitter:   deps.Emitter,
		archive:   deps.Archive,
		metrics:   deps.Metrics,
		log:       deps.Logger.With("component", "resolver"),
	}
}

// Run resolves the market and persists the result. Confident yes/no
// decisions are proposed on the ledger and enter the heartbeat window;
// refunds and manual actions land in human review.
func (r *Resolver) Run(ctx context.Context, market domain.Market) (domain.ResolutionResult, error) {
	start := time.Now()

	if err := r.store.Markets().UpdateStatus(ctx, market.ID, domain.StatusResolving); err != nil {
		return domain.ResolutionResult{}, fmt.Errorf("pipeline: mark resolving %s: %w", market.ID, err)
	}

	bundle, err := r.evidence.Gather(ctx, market)
	if err != nil {
		r.metrics.PipelineFailure("resolve")
		return domain.ResolutionResult{}, fmt.Errorf("pipeline: gather evidence for %s: %w", market.ID, err)
	}

	prompt := domain.ModelPrompt{
		Task:              domain.TaskResolve,
		Question:          market.Question,
		Description:       market.Description,
		ExpiresAt:         market.ExpiresAt,
		Evidence:          bundle,
		MirrorProbability: r.mirrorPrior(ctx, market),
	}

	consensusResult, err := r.consensus.Run(ctx, domain.ConsensusMajority, prompt)
	if err != nil {
		r.metrics.PipelineFailure("resolve")
		return domain.ResolutionResult{}, fmt.Errorf("pipeline: resolution consensus for %s: %w", market.ID, err)
	}
	consensusResult = r.consensus.Audit(ctx, prompt, consensusResult)

	result := r.decide.DecideResolution(decision.ResolutionInput{
		Market:    market,
		Evidence:  bundle,
		Consensus: consensusResult,
	})

	if err := r.finish(ctx, market, result); err != nil {
		return domain.ResolutionResult{}, err
	}
	r.archiveBundle(ctx, result)

	r.metrics.PipelineRun("resolve", time.Since(start).Seconds())
	r.metrics.Decision("resolve", string(result.Outcome))
	r.log.Info("market resolved",
		"market_id", market.ID,
		"outcome", string(result.Outcome),
		"action", string(result.Action),
		"confidence", result.Confidence)
	return result, nil
}

// ForceResolve applies an admin override: the result bypasses the decision
// table but still flows through persistence and routing, so the audit trail
// stays intact. Forced yes/no outcomes keep their heartbeat window; a forced
// refund settles immediately.
func (r *Resolver) ForceResolve(ctx context.Context, market domain.Market, outcome domain.Outcome, admin, reason string) (domain.ResolutionResult, error) {
	result := decision.ForcedResolution(market.ID, outcome, admin, reason)
	if err := r.finish(ctx, market, result); err != nil {
		return domain.ResolutionResult{}, err
	}
	r.log.Warn("forced resolution",
		"market_id", market.ID, "outcome", string(outcome), "admin", admin)
	return result, nil
}

// Seal re-runs consensus in unanimity mode over fresh evidence. Used by the
// heartbeat monitor to re-verify a proposed outcome.
func (r *Resolver) Seal(ctx context.Context, market domain.Market, outcome domain.Outcome) (domain.ConsensusResult, error) {
	bundle, err := r.evidence.Gather(ctx, market)
	if err != nil {
		return domain.ConsensusResult{}, fmt.Errorf("pipeline: seal evidence for %s: %w", market.ID, err)
	}

	return r.consensus.Run(ctx, domain.ConsensusUnanimity, domain.ModelPrompt{
		Task:        domain.TaskResolve,
		Question:    market.Question,
		Description: market.Description,
		ExpiresAt:   market.ExpiresAt,
		Evidence:    bundle,
		Claim:       fmt.Sprintf("previously proposed outcome: %s", outcome),
	})
}

// finish persists the result and routes the market. Only a confident yes/no
// settlement enters the proposal path and its heartbeat window: the seal
// consensus re-verifies yes/no answers and can never confirm a refund, so an
// unresolvable outcome parked there would escalate on its first beat. Manual
// actions and algorithmic refunds go to human review instead; a forced
// refund is settled on the ledger directly because the admin already decided.
func (r *Resolver) finish(ctx context.Context, market domain.Market, result domain.ResolutionResult) error {
	if err := r.store.Resolutions().Insert(ctx, result); err != nil {
		r.metrics.PipelineFailure("resolve")
		return fmt.Errorf("pipeline: persist resolution for %s: %w", market.ID, err)
	}

	if result.Outcome == domain.OutcomeUnresolvable && result.Forced {
		return r.settle(ctx, market, result)
	}
	if result.Action == domain.ActionManualResolution || result.Outcome == domain.OutcomeUnresolvable {
		if err := r.store.Markets().UpdateStatus(ctx, market.ID, domain.StatusReview); err != nil {
			return fmt.Errorf("pipeline: mark review %s: %w", market.ID, err)
		}
		r.invalidate(ctx, market.ID)
		r.emitter.Emit(ctx, domain.EventMarketEscalated, market.ID, map[string]any{
			"outcome": string(result.Outcome),
			"action":  string(result.Action),
			"reason":  result.Reasoning,
		})
		return nil
	}

	txRef, err := r.ledger.ProposeOutcome(ctx, market.ID, result.Outcome, result.Confidence)
	if err != nil {
		r.metrics.PipelineFailure("resolve")
		return fmt.Errorf("pipeline: propose outcome for %s: %w", market.ID, err)
	}
	if err := r.tracker.Track(ctx, market.ID, result.Outcome, result.Confidence); err != nil {
		return err
	}
	if err := r.store.Markets().UpdateStatus(ctx, market.ID, domain.StatusProposed); err != nil {
		return fmt.Errorf("pipeline: mark proposed %s: %w", market.ID, err)
	}
	r.invalidate(ctx, market.ID)

	r.emitter.Emit(ctx, domain.EventResolutionProposed, market.ID, map[string]any{
		"outcome":    string(result.Outcome),
		"action":     string(result.Action),
		"confidence": result.Confidence,
		"forced":     result.Forced,
		"tx_ref":     txRef,
	})
	return nil
}

// settle finalizes an outcome on the ledger without a heartbeat window.
// Reached only by forced refunds, where waiting would add nothing.
func (r *Resolver) settle(ctx context.Context, market domain.Market, result domain.ResolutionResult) error {
	txRef, err := r.ledger.Finalize(ctx, market.ID, result.Outcome)
	if err != nil {
		r.metrics.PipelineFailure("resolve")
		return fmt.Errorf("pipeline: settle %s: %w", market.ID, err)
	}
	if err := r.store.Markets().UpdateStatus(ctx, market.ID, domain.StatusResolved); err != nil {
		return fmt.Errorf("pipeline: mark resolved %s: %w", market.ID, err)
	}
	r.invalidate(ctx, market.ID)

	r.emitter.Emit(ctx, domain.EventMarketFinalized, market.ID, map[string]any{
		"outcome":    string(result.Outcome),
		"action":     string(result.Action),
		"confidence": result.Confidence,
		"forced":     result.Forced,
		"tx_ref":     txRef,
	})
	return nil
}

// mirrorPrior fetches the optional prior probability. Failures degrade to
// no prior; the mirror is advisory context only.
func (r *Resolver) mirrorPrior(ctx context.Context, market domain.Market) *float64 {
	if r.mirror == nil {
		return nil
	}
	prior, err := r.mirror.PriorProbability(ctx, market.Question)
	if err != nil {
		r.log.Debug("mirror lookup failed", "market_id", market.ID, "error", err)
		return nil
	}
	return prior
}

// archiveBundle writes the full result, evidence included, to object
// storage for later audits.
func (r *Resolver) archiveBundle(ctx context.Context, result domain.ResolutionResult) {
	if r.archive == nil {
		return
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		r.log.Error("encode resolution archive", "market_id", result.MarketID, "error", err)
		return
	}
	key := fmt.Sprintf("resolutions/%s/%s.json", result.MarketID, result.CreatedAt.Format("20060102T150405Z"))
	if err := r.archive.Put(ctx, key, "application/json", data); err != nil {
		r.log.Warn("archive resolution", "market_id", result.MarketID, "error", err)
	}
}

func (r *Resolver) invalidate(ctx context.Context, marketID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(ctx, marketID); err != nil {
		r.log.Warn("cache invalidate", "market_id", marketID, "error", err)
	}
}
