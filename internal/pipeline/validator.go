// Package pipeline wires the evaluation stages into the validation and
// resolution flows and owns the orchestration loops that feed them.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/verdictd/verdictd/internal/decision"
	"github.com/verdictd/verdictd/internal/domain"
	"github.com/verdictd/verdictd/internal/events"
	"github.com/verdictd/verdictd/internal/metrics"
	"github.com/verdictd/verdictd/internal/rules"
)

// EvidenceSource produces the evidence bundle for a market.
type EvidenceSource interface {
	Gather(ctx context.Context, market domain.Market) (domain.EvidenceBundle, error)
}

// ConsensusRunner runs consensus rounds over a set of reasoning backends.
type ConsensusRunner interface {
	Run(ctx context.Context, mode domain.ConsensusMode, prompt domain.ModelPrompt) (domain.ConsensusResult, error)
	Audit(ctx context.Context, prompt domain.ModelPrompt, result domain.ConsensusResult) domain.ConsensusResult
}

// Validator drives one market through the validation flow: evidence, rules,
// consensus, decision, persistence.
type Validator struct {
	evidence  EvidenceSource
	rules     *rules.Engine
	consensus ConsensusRunner
	decide    *decision.Engine
	store     domain.Store
	cache     domain.MarketCache
	emitter   *events.Emitter
	metrics   *metrics.Recorder
	log       *slog.Logger
}

func NewValidator(evidence EvidenceSource, rulesEngine *rules.Engine, consensus ConsensusRunner, decide *decision.Engine, store domain.Store, cache domain.MarketCache, emitter *events.Emitter, recorder *metrics.Recorder, logger *slog.Logger) *Validator {
	return &Validator{
		evidence:  evidence,
		rules:     rulesEngine,
		consensus: consensus,
		decide:    decide,
		store:     store,
		cache:     cache,
		emitter:   emitter,
		metrics:   recorder,
		log:       logger.With("component", "validator"),
	}
}

// Run validates the market and persists the result. The returned record is
// the one that was stored.
func (v *Validator) Run(ctx context.Context, market domain.Market) (domain.ValidationResult, error) {
	start := time.Now()

	bundle, err := v.evidence.Gather(ctx, market)
	if err != nil {
		v.metrics.PipelineFailure("validate")
		return domain.ValidationResult{}, fmt.Errorf("pipeline: gather evidence for %s: %w", market.ID, err)
	}

	ruleResult := v.rules.Evaluate(market.Question, market.Description, market.ExpiresAt, time.Now().UTC())

	var consensusResult domain.ConsensusResult
	if !bundle.Blacklisted {
		// A blacklisted source is a hard reject; skip the model spend.
		consensusResult, err = v.consensus.Run(ctx, domain.ConsensusMajority, domain.ModelPrompt{
			Task:        domain.TaskValidate,
			Question:    market.Question,
			Description: market.Description,
			ExpiresAt:   market.ExpiresAt,
			Evidence:    bundle,
		})
		if err != nil {
			v.metrics.PipelineFailure("validate")
			return domain.ValidationResult{}, fmt.Errorf("pipeline: validation consensus for %s: %w", market.ID, err)
		}
	}

	result := v.decide.DecideValidation(decision.ValidationInput{
		Market:        market,
		Evidence:      bundle,
		RuleScore:     float64(ruleResult.Score),
		RuleReasoning: ruleResult.Reasoning,
		RuleFailures:  ruleResult.Failures,
		Consensus:     consensusResult,
	})

	if err := v.store.Validations().Insert(ctx, result); err != nil {
		v.metrics.PipelineFailure("validate")
		return domain.ValidationResult{}, fmt.Errorf("pipeline: persist validation for %s: %w", market.ID, err)
	}
	if err := v.store.Markets().UpdateStatus(ctx, market.ID, statusForValidation(result.Status)); err != nil {
		return domain.ValidationResult{}, fmt.Errorf("pipeline: update status for %s: %w", market.ID, err)
	}
	v.invalidate(ctx, market.ID)

	v.emitter.Emit(ctx, domain.EventValidationCompleted, market.ID, map[string]any{
		"status":     string(result.Status),
		"action":     string(result.Action),
		"score":      result.Score,
		"confidence": result.Confidence,
		"risk_flags": result.RiskFlags,
	})
	v.metrics.PipelineRun("validate", time.Since(start).Seconds())
	v.metrics.Decision("validate", string(result.Status))

	v.log.Info("market validated",
		"market_id", market.ID,
		"status", string(result.Status),
		"score", result.Score,
		"flags", len(result.RiskFlags))
	return result, nil
}

func (v *Validator) invalidate(ctx context.Context, marketID string) {
	if v.cache == nil {
		return
	}
	if err := v.cache.Invalidate(ctx, marketID); err != nil {
		v.log.Warn("cache invalidate", "market_id", marketID, "error", err)
	}
}

func statusForValidation(status domain.ValidationStatus) domain.MarketStatus {
	switch status {
	case domain.ValidationApproved:
		return domain.StatusActive
	case domain.ValidationFlagged:
		return domain.StatusFlagged
	default:
		return domain.StatusRejected
	}
}
