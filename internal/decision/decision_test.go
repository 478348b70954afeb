package decision

import (
	"strings"
	"testing"

	"github.com/verdictd/verdictd/internal/domain"
)

func defaultEngine() *Engine {
	return NewEngine(
		Weights{URL: 0.15, Content: 0.15, Resolvability: 0.20, Consensus: 0.50},
		Thresholds{
			ValidationScore:      70,
			ValidationConfidence: 70,
			Agreement:            0.66,
			ResolutionConfidence: 80,
			EvidenceStrength:     50,
		},
	)
}

func consensusOf(answer domain.Answer, agreement, confidence float64, verdicts ...domain.ModelVerdict) domain.ConsensusResult {
	if len(verdicts) == 0 {
		verdicts = []domain.ModelVerdict{{Provider: "a", Answer: answer, Confidence: confidence}}
	}
	return domain.ConsensusResult{
		Mode:           domain.ConsensusMajority,
		Verdicts:       verdicts,
		FinalVerdict:   answer,
		AgreementLevel: agreement,
		AvgConfidence:  confidence,
	}
}

func strongEvidence() domain.EvidenceBundle {
	return domain.EvidenceBundle{
		Source: &domain.SourceContent{URL: "https://coindesk.com/a", Text: "text", URLScore: 100, Reachable: true},
		News: []domain.NewsArticle{
			{URL: "https://reuters.com/1"}, {URL: "https://apnews.com/2"}, {URL: "https://bbc.com/3"},
		},
		Official: []domain.OfficialSource{{URL: "https://sec.gov/x", Verified: true}},
	}
}

func TestValidationBlacklistAlwaysRejects(t *testing.T) {
	e := defaultEngine()
	// Perfect scores everywhere else must not save a blacklisted source.
	res := e.DecideValidation(ValidationInput{
		Market:    domain.Market{ID: "m1", SourceURL: "https://theonion.com/a"},
		Evidence:  domain.EvidenceBundle{Blacklisted: true},
		RuleScore: 100,
		Consensus: consensusOf(domain.AnswerYes, 1.0, 99),
	})
	if res.Status != domain.ValidationRejected || res.Action != domain.ActionRejectAndBurn {
		t.Fatalf("blacklisted: %s/%s", res.Status, res.Action)
	}
	found := false
	for _, f := range res.RiskFlags {
		if strings.Contains(f, "blacklist") {
			found = true
		}
	}
	if !found {
		t.Fatalf("risk flags missing blacklist indicator: %v", res.RiskFlags)
	}
}

func TestValidationNotBinaryRejects(t *testing.T) {
	e := defaultEngine()
	res := e.DecideValidation(ValidationInput{
		Market:    domain.Market{ID: "m2"},
		Evidence:  strongEvidence(),
		RuleScore: 100,
		Consensus: consensusOf(domain.AnswerNo, 1.0, 95),
	})
	if res.Status != domain.ValidationRejected || res.Action != domain.ActionRejectAndBurn {
		t.Fatalf("not binary: %s/%s", res.Status, res.Action)
	}
}

func TestValidationApproved(t *testing.T) {
	e := defaultEngine()
	res := e.DecideValidation(ValidationInput{
		Market:    domain.Market{ID: "m3", SourceURL: "https://coindesk.com/a"},
		Evidence:  strongEvidence(),
		RuleScore: 100,
		Consensus: consensusOf(domain.AnswerYes, 1.0, 92),
	})
	if res.Status != domain.ValidationApproved || res.Action != domain.ActionApproveMarket {
		t.Fatalf("approve: %s/%s (score %.1f)", res.Status, res.Action, res.Score)
	}
	// 0.15*100 + 0.15*100 + 0.20*100 + 0.50*92 = 96
	if res.Score != 96 {
		t.Fatalf("score = %v, want 96", res.Score)
	}
	if len(res.Layers) != 4 {
		t.Fatalf("layers = %d, want 4", len(res.Layers))
	}
}

func TestValidationBorderlineFlags(t *testing.T) {
	e := defaultEngine()
	res := e.DecideValidation(ValidationInput{
		Market:    domain.Market{ID: "m4"},
		Evidence:  strongEvidence(),
		RuleScore: 75,
		Consensus: consensusOf(domain.AnswerYes, 0.5, 55),
	})
	// score = 15 + 15 + 15 + 27.5 = 72.5 but confidence 55 < 70.
	if res.Status != domain.ValidationFlagged || res.Action != domain.ActionFlagForReview {
		t.Fatalf("borderline: %s/%s (score %.1f)", res.Status, res.Action, res.Score)
	}
}

func TestValidationHopelessRejects(t *testing.T) {
	e := defaultEngine()
	res := e.DecideValidation(ValidationInput{
		Market: domain.Market{ID: "m5"},
		Evidence: domain.EvidenceBundle{
			Source: &domain.SourceContent{Reachable: false},
		},
		RuleScore:    0,
		RuleFailures: []string{"not binary", "no date", "subjective"},
		Consensus:    consensusOf(domain.AnswerUncertain, 0.4, 20),
	})
	if res.Status != domain.ValidationRejected {
		t.Fatalf("hopeless: %s (score %.1f, flags %v)", res.Status, res.Score, res.RiskFlags)
	}
}

func TestResolutionNoVerdictsRefunds(t *testing.T) {
	e := defaultEngine()
	res := e.DecideResolution(ResolutionInput{
		Market: domain.Market{ID: "m6"},
		Consensus: domain.ConsensusResult{
			Verdicts: []domain.ModelVerdict{{Errored: true}, {Errored: true}},
		},
	})
	if res.Outcome != domain.OutcomeUnresolvable || res.Action != domain.ActionRefundAll {
		t.Fatalf("no verdicts: %s/%s", res.Outcome, res.Action)
	}
}

func TestResolutionLowAgreementManual(t *testing.T) {
	e := defaultEngine()
	res := e.DecideResolution(ResolutionInput{
		Market:    domain.Market{ID: "m7"},
		Evidence:  strongEvidence(),
		Consensus: consensusOf(domain.AnswerYes, 0.5, 90),
	})
	if res.Outcome != domain.OutcomeUnresolvable || res.Action != domain.ActionManualResolution {
		t.Fatalf("low agreement: %s/%s", res.Outcome, res.Action)
	}
}

func TestResolutionLowConfidenceKeepsOutcome(t *testing.T) {
	e := defaultEngine()
	res := e.DecideResolution(ResolutionInput{
		Market:    domain.Market{ID: "m8"},
		Evidence:  strongEvidence(),
		Consensus: consensusOf(domain.AnswerNo, 1.0, 65),
	})
	if res.Outcome != domain.OutcomeNo || res.Action != domain.ActionManualResolution {
		t.Fatalf("low confidence: %s/%s", res.Outcome, res.Action)
	}
}

func TestResolutionSettles(t *testing.T) {
	e := defaultEngine()
	ev := strongEvidence()
	res := e.DecideResolution(ResolutionInput{
		Market:    domain.Market{ID: "m9"},
		Evidence:  ev,
		Consensus: consensusOf(domain.AnswerYes, 1.0, 92),
	})
	if res.Outcome != domain.OutcomeYes || res.Action != domain.ActionPayYesHolders {
		t.Fatalf("settle: %s/%s", res.Outcome, res.Action)
	}
	// confidence = round(avg(92, strength)); strength = 20+30+15+10 = 75.
	if res.Confidence != 84 {
		t.Fatalf("confidence = %v, want 84", res.Confidence)
	}
	if len(res.Sources) == 0 {
		t.Fatal("expected source list")
	}
}

func TestResolutionWeakEvidenceManual(t *testing.T) {
	e := defaultEngine()
	res := e.DecideResolution(ResolutionInput{
		Market:    domain.Market{ID: "m10"},
		Evidence:  domain.EvidenceBundle{News: []domain.NewsArticle{{URL: "https://reuters.com/1"}}},
		Consensus: consensusOf(domain.AnswerYes, 1.0, 95),
	})
	// strength = 10 < 50
	if res.Outcome != domain.OutcomeYes || res.Action != domain.ActionManualResolution {
		t.Fatalf("weak evidence: %s/%s", res.Outcome, res.Action)
	}
}

func TestForcedResolutionAuditable(t *testing.T) {
	res := ForcedResolution("m11", domain.OutcomeNo, "admin@example.com", "court ruling published")
	if !res.Forced || res.Confidence != 100 {
		t.Fatalf("forced = %+v", res)
	}
	if res.Action != domain.ActionPayNoHolders {
		t.Fatalf("action = %s", res.Action)
	}
	if !strings.Contains(res.Reasoning, "MANUAL OVERRIDE") || !strings.Contains(res.Reasoning, "admin@example.com") {
		t.Fatalf("reasoning = %q", res.Reasoning)
	}
}
