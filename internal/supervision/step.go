package supervision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"

	"github.com/openclaw/dispatch/internal/backend"
	"github.com/openclaw/dispatch/internal/plan"
)

// Decision is the step reviewer's verdict on one step outcome.
type Decision struct {
	Decision     string `json:"decision"`
	Reason       string `json:"reason"`
	SuggestedFix string `json:"suggested_fix,omitempty"`
}

const (
	DecisionOK     = "ok"
	DecisionAdjust = "adjust"
)

// StepReviewer grades a step outcome against its stated intent using
// a lightweight grading model. An unreachable or incoherent grader is
// never treated as approval: every failure path yields adjust.
type StepReviewer struct {
	backend backend.Completer
	model   string
	logger  *logging.Logger
}

// NewStepReviewer builds a reviewer. model may be empty to use the
// backend's default.
func NewStepReviewer(b backend.Completer, model string) *StepReviewer {
	return &StepReviewer{
		backend: b,
		model:   model,
		logger:  logging.New().WithComponent("step-supervisor"),
	}
}

const gradingSystemPrompt = `You are a quality reviewer for an automation system.
Given a step's intent and its outcome, decide whether the outcome satisfies the intent.
Respond with a JSON object only: {"decision": "ok" | "adjust", "reason": "...", "suggested_fix": "..."}.
Use "adjust" when the outcome is an error, is empty, or does not address the intent.
suggested_fix is optional and should be a short argument change, not prose.`

// Review grades one step result.
func (r *StepReviewer) Review(ctx context.Context, step plan.Step, result *plan.StepResult) Decision {
	prompt := buildGradingPrompt(step, result)

	raw, err := r.backend.Generate(ctx, []llm.Message{
		{Role: "system", Content: gradingSystemPrompt},
		{Role: "user", Content: prompt},
	}, r.model)
	if err != nil {
		r.logger.Warn("grading backend unavailable, forcing adjust", map[string]interface{}{
			"step_id": step.ID,
			"error":   err.Error(),
		})
		return Decision{
			Decision: DecisionAdjust,
			Reason:   "grading backend unavailable: " + err.Error(),
		}
	}

	return parseDecision(raw)
}

func buildGradingPrompt(step plan.Step, result *plan.StepResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Step %s: %s\n", step.ID, step.Label)
	if step.Description != "" {
		fmt.Fprintf(&b, "Intent: %s\n", step.Description)
	}
	fmt.Fprintf(&b, "Action: %s via %s", step.Action, step.Executor)
	if step.Tool != "" {
		fmt.Fprintf(&b, " (%s)", step.Tool)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Status: %s\n", result.Status)
	if len(result.Result) > 0 {
		if data, err := json.Marshal(result.Result); err == nil {
			fmt.Fprintf(&b, "Outcome: %s\n", truncate(string(data), 2000))
		}
	}
	for _, msg := range result.Messages {
		fmt.Fprintf(&b, "[%s] %s\n", msg.Role, truncate(msg.Content, 500))
	}
	return b.String()
}

// parseDecision extracts a verdict from grader output. Malformed
// responses fall back to adjust with a generic reason.
func parseDecision(raw string) Decision {
	body := plan.ExtractJSON(raw)
	if body == "" {
		return Decision{
			Decision: DecisionAdjust,
			Reason:   "grader returned no parseable verdict",
		}
	}

	var d Decision
	if err := json.Unmarshal([]byte(body), &d); err != nil {
		return Decision{
			Decision: DecisionAdjust,
			Reason:   "grader returned malformed verdict",
		}
	}

	switch strings.ToLower(strings.TrimSpace(d.Decision)) {
	case DecisionOK:
		d.Decision = DecisionOK
	case DecisionAdjust:
		d.Decision = DecisionAdjust
	default:
		d.Decision = DecisionAdjust
		if d.Reason == "" {
			d.Reason = "grader verdict unrecognized"
		}
	}
	return d
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
