package model

import (
	"fmt"
	"strings"

	"github.com/verdictd/verdictd/internal/domain"
)

// systemMessage sets the task-specific instruction and the required output
// schema. The schema is enforced by parsing, not by trusting the model.
func systemMessage(task domain.PromptTask) string {
	var instruction string
	switch task {
	case domain.TaskValidate:
		instruction = "You evaluate whether a prediction-market question is a well-formed, objectively resolvable binary (yes/no) question. Answer \"yes\" if it is valid and resolvable, \"no\" if it is not."
	case domain.TaskAudit:
		instruction = "You audit a verdict produced by another system. Answer \"yes\" if the verdict's reasoning logically follows from the evidence provided, \"no\" if it does not."
	default:
		instruction = "You resolve an expired prediction-market question strictly from the evidence provided. Answer \"yes\" or \"no\" only when the evidence clearly supports it; otherwise answer \"uncertain\"."
	}
	return instruction + ` Respond with a single JSON object and nothing else: {"answer": "yes"|"no"|"uncertain", "confidence": <0-100>, "reasoning": "<short explanation>"}`
}

// userMessage flattens the prompt into the user turn: question, expiry,
// evidence summary, and the optional mirror-market prior.
func userMessage(p domain.ModelPrompt) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Question: %s\n", p.Question)
	if p.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", p.Description)
	}
	if !p.ExpiresAt.IsZero() {
		fmt.Fprintf(&b, "Resolution deadline: %s\n", p.ExpiresAt.Format("2006-01-02 15:04 UTC"))
	}
	if p.MirrorProbability != nil {
		fmt.Fprintf(&b, "Prior from a mirror market on another platform: %.0f%% yes\n", *p.MirrorProbability*100)
	}
	if p.Claim != "" {
		fmt.Fprintf(&b, "Verdict under review: %s\n", p.Claim)
	}

	writeEvidence(&b, p.Evidence)
	return b.String()
}

func writeEvidence(b *strings.Builder, e domain.EvidenceBundle) {
	if e.Empty() {
		b.WriteString("\nNo evidence could be collected for this question.\n")
		return
	}

	b.WriteString("\nEvidence:\n")
	if e.Source != nil && e.Source.Text != "" {
		fmt.Fprintf(b, "Source page (%s): %s\n", e.Source.URL, e.Source.Text)
	}
	for i, n := range e.News {
		fmt.Fprintf(b, "News %d [%s] %s: %s\n", i+1, n.Source, n.Title, n.Snippet)
	}
	for i, s := range e.Social {
		fmt.Fprintf(b, "Social %d [%s] (unverified chatter): %s\n", i+1, s.Platform, s.Content)
	}
	for i, o := range e.Official {
		verified := ""
		if o.Verified {
			verified = " (verified official source)"
		}
		fmt.Fprintf(b, "Official %d%s [%s]: %s\n", i+1, verified, o.URL, o.Content)
	}
}
