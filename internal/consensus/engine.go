// Package consensus fans one prompt out to N independent reasoning backends
// and folds their verdicts into a single agreement result. Backend failures
// degrade to uncertain verdicts; they never abort a round.
package consensus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/verdictd/verdictd/internal/domain"
)

// Config tunes one engine instance.
type Config struct {
	// Timeout bounds each individual backend call.
	Timeout time.Duration
	// AgreementThreshold is the minimum agreement fraction, in (0,1].
	AgreementThreshold float64
	// ConfidenceThreshold is the minimum average confidence, 0-100.
	ConfidenceThreshold float64
}

// Engine runs consensus rounds. The auditor is optional; when nil the audit
// pass is a pass-through.
type Engine struct {
	backends []domain.ModelBackend
	auditor  domain.ModelBackend
	cfg      Config
	log      *slog.Logger
}

func NewEngine(backends []domain.ModelBackend, auditor domain.ModelBackend, cfg Config, logger *slog.Logger) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.AgreementThreshold <= 0 {
		cfg.AgreementThreshold = 0.66
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 80
	}
	return &Engine{
		backends: backends,
		auditor:  auditor,
		cfg:      cfg,
		log:      logger.With("component", "consensus"),
	}
}

// Backends returns how many reasoning backends the engine queries.
func (e *Engine) Backends() int { return len(e.backends) }

// Run queries every backend concurrently and aggregates per the mode.
func (e *Engine) Run(ctx context.Context, mode domain.ConsensusMode, prompt domain.ModelPrompt) (domain.ConsensusResult, error) {
	if len(e.backends) == 0 {
		return domain.ConsensusResult{}, fmt.Errorf("consensus: no backends configured")
	}

	verdicts := e.collect(ctx, prompt)

	var result domain.ConsensusResult
	switch mode {
	case domain.ConsensusUnanimity:
		result = e.sealVerdicts(verdicts)
	default:
		result = e.majorityVerdicts(verdicts)
	}

	e.log.Info("consensus round complete",
		"mode", string(result.Mode),
		"task", string(prompt.Task),
		"final", string(result.FinalVerdict),
		"agreement", result.AgreementLevel,
		"avg_confidence", result.AvgConfidence)
	return result, nil
}

// collect fans the prompt out with a per-backend timeout. A failed or
// timed-out backend contributes a synthesized errored verdict in its slot.
func (e *Engine) collect(ctx context.Context, prompt domain.ModelPrompt) []domain.ModelVerdict {
	verdicts := make([]domain.ModelVerdict, len(e.backends))

	var wg sync.WaitGroup
	for i, backend := range e.backends {
		wg.Add(1)
		go func(i int, backend domain.ModelBackend) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
			defer cancel()

			verdict, err := backend.Judge(callCtx, prompt)
			if err != nil {
				e.log.Warn("backend failed",
					"provider", backend.Name(), "task", string(prompt.Task), "error", err)
				verdicts[i] = erroredVerdict(backend.Name(), err)
				return
			}
			verdict.Provider = backend.Name()
			verdict.Confidence = clampConfidence(verdict.Confidence)
			verdicts[i] = verdict
		}(i, backend)
	}
	wg.Wait()
	return verdicts
}

// majorityVerdicts picks the plurality answer among non-errored verdicts.
// Ties and all-errored rounds fall back to uncertain.
func (e *Engine) majorityVerdicts(verdicts []domain.ModelVerdict) domain.ConsensusResult {
	counts := make(map[domain.Answer]int)
	usable := 0
	for _, v := range verdicts {
		if v.Errored {
			continue
		}
		counts[v.Answer]++
		usable++
	}

	final := domain.AnswerUncertain
	if usable > 0 {
		best, tied := 0, false
		for _, answer := range []domain.Answer{domain.AnswerYes, domain.AnswerNo, domain.AnswerUncertain} {
			switch {
			case counts[answer] > best:
				best, final, tied = counts[answer], answer, false
			case counts[answer] == best && counts[answer] > 0 && answer != final:
				tied = true
			}
		}
		if tied {
			final = domain.AnswerUncertain
		}
	}

	result := domain.ConsensusResult{
		Mode:         domain.ConsensusMajority,
		Verdicts:     verdicts,
		FinalVerdict: final,
	}
	result.AgreementLevel = result.RecomputeAgreement()
	result.AvgConfidence = averageConfidence(verdicts)
	result.Reasoning = combineReasoning(verdicts, final)
	return result
}

// sealVerdicts requires every backend, errored ones included, to agree. Any
// single dissent or failure yields uncertain with zero confidence.
func (e *Engine) sealVerdicts(verdicts []domain.ModelVerdict) domain.ConsensusResult {
	result := domain.ConsensusResult{
		Mode:     domain.ConsensusUnanimity,
		Verdicts: verdicts,
	}

	unanimous := len(verdicts) > 0
	first := domain.AnswerUncertain
	for i, v := range verdicts {
		if v.Errored {
			unanimous = false
			break
		}
		if i == 0 {
			first = v.Answer
			continue
		}
		if v.Answer != first {
			unanimous = false
			break
		}
	}

	if !unanimous {
		result.FinalVerdict = domain.AnswerUncertain
		result.AgreementLevel = result.RecomputeAgreement()
		result.AvgConfidence = 0
		result.Reasoning = "seal consensus broken: backends did not unanimously agree"
		return result
	}

	result.FinalVerdict = first
	result.AgreementLevel = result.RecomputeAgreement()
	result.AvgConfidence = averageConfidence(verdicts)
	result.Reasoning = combineReasoning(verdicts, first)
	return result
}

// Accepted reports whether a majority result clears both configured
// thresholds and may proceed to the decision engine at full strength.
func (e *Engine) Accepted(r domain.ConsensusResult) bool {
	return r.AgreementLevel >= e.cfg.AgreementThreshold &&
		r.AvgConfidence >= e.cfg.ConfidenceThreshold
}

// Audit runs the optional hallucination check: a separate reasoning call
// judging whether the result's reasoning follows from the evidence. A failed
// audit downgrades the result to uncertain with the audit's stated reason.
// With no auditor configured the result passes through untouched.
func (e *Engine) Audit(ctx context.Context, prompt domain.ModelPrompt, result domain.ConsensusResult) domain.ConsensusResult {
	if e.auditor == nil || result.FinalVerdict == domain.AnswerUncertain {
		return result
	}

	auditPrompt := prompt
	auditPrompt.Task = domain.TaskAudit
	auditPrompt.Claim = fmt.Sprintf("verdict %q with reasoning: %s", result.FinalVerdict, result.Reasoning)

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	verdict, err := e.auditor.Judge(callCtx, auditPrompt)
	if err != nil {
		// The audit is an extra safety net, not a dependency. Keep the
		// primary result when the auditor itself is unavailable.
		e.log.Warn("audit pass unavailable", "provider", e.auditor.Name(), "error", err)
		return result
	}
	if verdict.Answer == domain.AnswerYes {
		return result
	}

	e.log.Warn("audit rejected verdict",
		"provider", e.auditor.Name(),
		"original", string(result.FinalVerdict),
		"reason", verdict.Reasoning)
	result.FinalVerdict = domain.AnswerUncertain
	result.AvgConfidence = 0
	result.AgreementLevel = result.RecomputeAgreement()
	result.Reasoning = fmt.Sprintf("audit rejected the verdict: %s", verdict.Reasoning)
	return result
}

func erroredVerdict(provider string, err error) domain.ModelVerdict {
	return domain.ModelVerdict{
		Provider:   provider,
		Answer:     domain.AnswerUncertain,
		Confidence: 0,
		Reasoning:  fmt.Sprintf("backend error: %v", err),
		Errored:    true,
		CreatedAt:  time.Now().UTC(),
	}
}

func averageConfidence(verdicts []domain.ModelVerdict) float64 {
	sum, n := 0.0, 0
	for _, v := range verdicts {
		if v.Errored {
			continue
		}
		sum += v.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func combineReasoning(verdicts []domain.ModelVerdict, final domain.Answer) string {
	parts := make([]string, 0, len(verdicts))
	for _, v := range verdicts {
		if v.Errored || v.Reasoning == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (%s, %.0f): %s", v.Provider, v.Answer, v.Confidence, v.Reasoning))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("final verdict %s with no backend reasoning available", final)
	}
	return strings.Join(parts, " | ")
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	}
	return c
}
