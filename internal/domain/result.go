package domain

import "time"

// ValidationStatus is the overall verdict of a validation pass.
type ValidationStatus string

const (
	ValidationApproved ValidationStatus = "approved"
	ValidationFlagged  ValidationStatus = "flagged"
	ValidationRejected ValidationStatus = "rejected"
)

// ValidationAction is what the platform should do with the market.
type ValidationAction string

const (
	ActionApproveMarket       ValidationAction = "approve_market"
	ActionFlagForReview       ValidationAction = "flag_for_review"
	ActionRejectAndBurn       ValidationAction = "reject_and_burn"
	ActionRequestModification ValidationAction = "request_modification"
)

// LayerResult is one pipeline stage's sub-score, embedded in the final record
// so decisions remain auditable layer by layer.
type LayerResult struct {
	Name   string
	Score  float64 // 0-100
	Passed bool
	Detail string
}

// ValidationResult is the append-only record of one validation pass. A later
// re-validation creates a new record; existing records are never mutated.
type ValidationResult struct {
	ID         string
	MarketID   string
	Score      float64 // combined weighted score, 0-100
	Confidence float64 // 0-100
	Status     ValidationStatus
	Action     ValidationAction
	RiskFlags  []string
	Layers     []LayerResult
	Evidence   EvidenceBundle
	Consensus  ConsensusResult
	CreatedAt  time.Time
}

// Outcome is the resolved truth-value of a market.
type Outcome string

const (
	OutcomeYes          Outcome = "yes"
	OutcomeNo           Outcome = "no"
	OutcomeUnresolvable Outcome = "unresolvable"
)

// ResolutionAction is the settlement instruction accompanying an outcome.
type ResolutionAction string

const (
	ActionPayYesHolders     ResolutionAction = "pay_yes_holders"
	ActionPayNoHolders      ResolutionAction = "pay_no_holders"
	ActionRefundAll         ResolutionAction = "refund_all"
	ActionManualResolution  ResolutionAction = "flag_for_manual_resolution"
)

// SettlementAction maps an outcome to its payout action.
func SettlementAction(o Outcome) ResolutionAction {
	switch o {
	case OutcomeYes:
		return ActionPayYesHolders
	case OutcomeNo:
		return ActionPayNoHolders
	default:
		return ActionRefundAll
	}
}

// ResolutionResult is the append-only record of one resolution pass.
type ResolutionResult struct {
	ID         string
	MarketID   string
	Outcome    Outcome
	Confidence float64 // 0-100
	Action     ResolutionAction
	Evidence   EvidenceBundle
	Consensus  ConsensusResult
	Reasoning  string
	Sources    []string
	// Forced marks an admin override. Forced results carry confidence 100 and
	// a reasoning string that names the admin, so they stay distinguishable
	// from algorithmic results in the audit trail.
	Forced    bool
	CreatedAt time.Time
}
