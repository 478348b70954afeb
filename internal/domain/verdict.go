package domain

import (
	"context"
	"time"
)

// Answer is a reasoning backend's position on a question.
type Answer string

const (
	AnswerYes       Answer = "yes"
	AnswerNo        Answer = "no"
	AnswerUncertain Answer = "uncertain"
)

// PromptTask selects which question the backends are asked.
type PromptTask string

const (
	// TaskValidate asks whether the question is a well-formed, objectively
	// resolvable binary question. Backends answer yes (valid binary) or no.
	TaskValidate PromptTask = "validate"
	// TaskResolve asks for the factual outcome of an expired question.
	TaskResolve PromptTask = "resolve"
	// TaskAudit asks whether a verdict's reasoning follows from the evidence.
	TaskAudit PromptTask = "audit"
)

// ModelPrompt is the structured payload sent to every reasoning backend.
type ModelPrompt struct {
	Task        PromptTask
	Question    string
	Description string
	ExpiresAt   time.Time
	Evidence    EvidenceBundle
	// MirrorProbability is an optional prior from a mirror market on another
	// platform, in [0,1] for the yes outcome. Nil when unavailable.
	MirrorProbability *float64
	// Claim carries the verdict under review for TaskAudit.
	Claim string
}

// ModelVerdict is one backend's structured answer. Confidence uses a 0-100
// scale internally; backends reporting [0,1] are normalized by the client.
type ModelVerdict struct {
	Provider   string
	Answer     Answer
	Confidence float64 // 0-100
	Reasoning  string  // bounded length, trimmed by the client
	Errored    bool    // synthesized from a failure or unparseable output
	CreatedAt  time.Time
}

// ModelBackend is an independent reasoning capability. Judge must never
// return a verdict and an error together; failures surface as the error and
// the consensus engine degrades them to low-confidence uncertain verdicts.
type ModelBackend interface {
	Name() string
	Judge(ctx context.Context, prompt ModelPrompt) (ModelVerdict, error)
}

// ConsensusMode selects the agreement rule.
type ConsensusMode string

const (
	// ConsensusMajority accepts the plurality answer.
	ConsensusMajority ConsensusMode = "majority"
	// ConsensusUnanimity requires every backend to agree; any dissent or
	// backend failure yields uncertain with zero confidence. Used for the
	// seal pass before finalization.
	ConsensusUnanimity ConsensusMode = "unanimity"
)

// ConsensusResult aggregates the verdicts of one consensus round.
type ConsensusResult struct {
	Mode          ConsensusMode
	Verdicts      []ModelVerdict
	FinalVerdict  Answer
	// AgreementLevel is the fraction of non-errored verdicts agreeing with
	// FinalVerdict. Always recomputed from Verdicts, never asserted.
	AgreementLevel float64
	AvgConfidence  float64 // mean confidence of non-errored verdicts, 0-100
	Reasoning      string
}

// RecomputeAgreement derives the agreement level from the stored verdict
// list. Recomputing must reproduce the stored AgreementLevel exactly.
func (r ConsensusResult) RecomputeAgreement() float64 {
	total := 0
	agree := 0
	for _, v := range r.Verdicts {
		if v.Errored {
			continue
		}
		total++
		if v.Answer == r.FinalVerdict {
			agree++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(agree) / float64(total)
}
