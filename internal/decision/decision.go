// Package decision folds rule scores, evidence strength, and consensus
// results into final verdicts. It is a pure decision table: first matching
// row wins, and every input that shaped the outcome is embedded in the
// returned record for auditability.
package decision

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/verdictd/verdictd/internal/domain"
)

// Weights splits the combined validation score across its four inputs.
// The weights must sum to 1.
type Weights struct {
	URL           float64
	Content       float64
	Resolvability float64
	Consensus     float64
}

// Thresholds are the decision-table cut lines.
type Thresholds struct {
	ValidationScore      float64 // combined score for auto-approval, 0-100
	ValidationConfidence float64 // consensus confidence for auto-approval, 0-100
	Agreement            float64 // minimum agreement fraction, 0-1
	ResolutionConfidence float64 // confidence for auto-settlement, 0-100
	EvidenceStrength     float64 // minimum bundle strength for auto-settlement
}

// Engine evaluates decision tables. Stateless and safe for concurrent use.
type Engine struct {
	weights    Weights
	thresholds Thresholds
}

func NewEngine(weights Weights, thresholds Thresholds) *Engine {
	return &Engine{weights: weights, thresholds: thresholds}
}

// ValidationInput carries everything the validation table consumes.
type ValidationInput struct {
	Market        domain.Market
	Evidence      domain.EvidenceBundle
	RuleScore     float64 // resolvability sub-score, 0-100
	RuleReasoning string
	RuleFailures  []string
	Consensus     domain.ConsensusResult
}

// DecideValidation runs the validation decision table. Rows in order:
// blacklisted source; consensus says not binary-resolvable; both thresholds
// cleared; borderline score or few risk flags; reject.
func (e *Engine) DecideValidation(in ValidationInput) domain.ValidationResult {
	urlScore := float64(0)
	contentScore := float64(0)
	if in.Evidence.Source != nil {
		urlScore = float64(in.Evidence.Source.URLScore)
		if in.Evidence.Source.Text != "" {
			contentScore = 100
		}
	}

	score := e.weights.URL*urlScore +
		e.weights.Content*contentScore +
		e.weights.Resolvability*in.RuleScore +
		e.weights.Consensus*in.Consensus.AvgConfidence

	flags := riskFlags(in)

	result := domain.ValidationResult{
		ID:         uuid.NewString(),
		MarketID:   in.Market.ID,
		Score:      score,
		Confidence: in.Consensus.AvgConfidence,
		RiskFlags:  flags,
		Layers: []domain.LayerResult{
			{Name: "url", Score: urlScore, Passed: urlScore >= 50, Detail: in.Market.SourceURL},
			{Name: "content", Score: contentScore, Passed: contentScore > 0},
			{Name: "resolvability", Score: in.RuleScore, Passed: in.RuleScore >= 75, Detail: in.RuleReasoning},
			{Name: "consensus", Score: in.Consensus.AvgConfidence, Passed: in.Consensus.FinalVerdict == domain.AnswerYes, Detail: in.Consensus.Reasoning},
		},
		Evidence:  in.Evidence,
		Consensus: in.Consensus,
		CreatedAt: time.Now().UTC(),
	}

	switch {
	case in.Evidence.Blacklisted:
		result.Status = domain.ValidationRejected
		result.Action = domain.ActionRejectAndBurn
	case in.Consensus.FinalVerdict == domain.AnswerNo:
		result.Status = domain.ValidationRejected
		result.Action = domain.ActionRejectAndBurn
	case score >= e.thresholds.ValidationScore && in.Consensus.AvgConfidence >= e.thresholds.ValidationConfidence:
		result.Status = domain.ValidationApproved
		result.Action = domain.ActionApproveMarket
	case score >= 50 || len(flags) <= 2:
		result.Status = domain.ValidationFlagged
		result.Action = domain.ActionFlagForReview
	default:
		result.Status = domain.ValidationRejected
		result.Action = domain.ActionRejectAndBurn
	}
	return result
}

// riskFlags enumerates every signal a reviewer should see, in a stable order.
func riskFlags(in ValidationInput) []string {
	var flags []string
	if in.Evidence.Blacklisted {
		flags = append(flags, "blacklisted_source_domain")
	}
	if in.Evidence.SocialHost {
		flags = append(flags, "social_media_source")
	}
	if in.Evidence.Source != nil && !in.Evidence.Source.Reachable {
		flags = append(flags, "source_unreachable")
	}
	if in.Evidence.Empty() {
		flags = append(flags, "insufficient_evidence")
	}
	for _, f := range in.RuleFailures {
		flags = append(flags, "rule: "+f)
	}
	if in.Consensus.FinalVerdict == domain.AnswerNo {
		flags = append(flags, "consensus_not_binary")
	}
	if in.Consensus.FinalVerdict == domain.AnswerUncertain {
		flags = append(flags, "consensus_uncertain")
	}
	return flags
}

// ResolutionInput carries everything the resolution table consumes.
type ResolutionInput struct {
	Market    domain.Market
	Evidence  domain.EvidenceBundle
	Consensus domain.ConsensusResult
}

// DecideResolution runs the resolution decision table. Rows in order: no
// verdicts collected; agreement below threshold; confidence below threshold;
// strong evidence plus agreement settles; anything else goes to manual.
func (e *Engine) DecideResolution(in ResolutionInput) domain.ResolutionResult {
	result := domain.ResolutionResult{
		ID:        uuid.NewString(),
		MarketID:  in.Market.ID,
		Evidence:  in.Evidence,
		Consensus: in.Consensus,
		Sources:   in.Evidence.SourceURLs(),
		CreatedAt: time.Now().UTC(),
	}

	strength := float64(in.Evidence.Strength())
	usable := usableVerdicts(in.Consensus.Verdicts)
	outcome := answerToOutcome(in.Consensus.FinalVerdict)

	switch {
	case usable == 0:
		result.Outcome = domain.OutcomeUnresolvable
		result.Action = domain.ActionRefundAll
		result.Confidence = 0
		result.Reasoning = "no reasoning backend returned a usable verdict"

	case in.Consensus.AgreementLevel < e.thresholds.Agreement:
		result.Outcome = domain.OutcomeUnresolvable
		result.Action = domain.ActionManualResolution
		result.Confidence = in.Consensus.AvgConfidence
		result.Reasoning = fmt.Sprintf("backend agreement %.0f%% below the %.0f%% threshold",
			in.Consensus.AgreementLevel*100, e.thresholds.Agreement*100)

	case in.Consensus.AvgConfidence < e.thresholds.ResolutionConfidence:
		result.Outcome = outcome
		result.Action = domain.ActionManualResolution
		result.Confidence = in.Consensus.AvgConfidence
		result.Reasoning = fmt.Sprintf("confidence %.0f below the %.0f threshold; outcome retained for review",
			in.Consensus.AvgConfidence, e.thresholds.ResolutionConfidence)

	case strength >= e.thresholds.EvidenceStrength && in.Consensus.AgreementLevel >= e.thresholds.Agreement:
		result.Outcome = outcome
		result.Action = domain.SettlementAction(outcome)
		result.Confidence = math.Round((in.Consensus.AvgConfidence + strength) / 2)
		result.Reasoning = in.Consensus.Reasoning

	default:
		result.Outcome = outcome
		result.Action = domain.ActionManualResolution
		result.Confidence = in.Consensus.AvgConfidence
		result.Reasoning = fmt.Sprintf("evidence strength %.0f below the %.0f threshold",
			strength, e.thresholds.EvidenceStrength)
	}
	return result
}

// ForcedResolution builds an admin-override result. Forced results carry
// confidence 100 and name the actor, so they stay distinguishable from
// algorithmic results in the audit trail.
func ForcedResolution(marketID string, outcome domain.Outcome, admin, reason string) domain.ResolutionResult {
	return domain.ResolutionResult{
		ID:         uuid.NewString(),
		MarketID:   marketID,
		Outcome:    outcome,
		Confidence: 100,
		Action:     domain.SettlementAction(outcome),
		Reasoning:  fmt.Sprintf("MANUAL OVERRIDE by %s: %s", admin, reason),
		Forced:     true,
		CreatedAt:  time.Now().UTC(),
	}
}

func usableVerdicts(verdicts []domain.ModelVerdict) int {
	n := 0
	for _, v := range verdicts {
		if !v.Errored {
			n++
		}
	}
	return n
}

func answerToOutcome(a domain.Answer) domain.Outcome {
	switch a {
	case domain.AnswerYes:
		return domain.OutcomeYes
	case domain.AnswerNo:
		return domain.OutcomeNo
	default:
		return domain.OutcomeUnresolvable
	}
}
