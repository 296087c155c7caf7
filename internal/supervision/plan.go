// Package supervision grades plans and step outcomes. Reviews are
// advisory: findings are logged and published, execution proceeds.
package supervision

import (
	"github.com/vinayprograms/agentkit/logging"

	"github.com/openclaw/dispatch/internal/events"
	"github.com/openclaw/dispatch/internal/plan"
	"github.com/openclaw/dispatch/internal/skills"
)

// Severity classifies a plan finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one advisory defect found in a plan.
type Finding struct {
	Severity Severity
	StepID   string
	Message  string
}

// PlanReviewer validates a plan before execution. It never blocks:
// the planner model is unreliable, and rejecting plans outright gives
// worse results than best-effort execution with logged defects.
type PlanReviewer struct {
	skills *skills.Registry
	sink   events.Sink
	logger *logging.Logger
}

// NewPlanReviewer builds a reviewer over the known skill set.
func NewPlanReviewer(reg *skills.Registry, sink events.Sink) *PlanReviewer {
	if sink == nil {
		sink = events.NopSink{}
	}
	return &PlanReviewer{
		skills: reg,
		sink:   sink,
		logger: logging.New().WithComponent("plan-supervisor"),
	}
}

// Review checks the plan and returns it unchanged. Findings go to the
// log and event sink.
func (r *PlanReviewer) Review(p *plan.Plan) *plan.Plan {
	for _, f := range r.Check(p) {
		fields := map[string]interface{}{
			"severity": string(f.Severity),
		}
		if f.StepID != "" {
			fields["step_id"] = f.StepID
		}
		if f.Severity == SeverityError {
			r.logger.Error(f.Message, fields)
		} else {
			r.logger.Warn(f.Message, fields)
		}

		ev := events.New(events.KindSupervisorDecision)
		ev.StepID = f.StepID
		ev.Verdict = string(f.Severity)
		ev.Detail = f.Message
		r.sink.Publish(ev)
	}
	return p
}

// Check returns the findings without logging them.
func (r *PlanReviewer) Check(p *plan.Plan) []Finding {
	var findings []Finding

	if len(p.Steps) == 0 {
		return append(findings, Finding{
			Severity: SeverityError,
			Message:  "plan has no steps",
		})
	}

	if len(p.Steps) > 1 {
		hasCompletion := false
		for _, s := range p.Steps {
			if s.Action == plan.ActionCompletion {
				hasCompletion = true
				break
			}
		}
		if !hasCompletion {
			findings = append(findings, Finding{
				Severity: SeverityWarning,
				Message:  "multi-step plan has no completion step to assemble a response",
			})
		}
	}

	for _, s := range p.Steps {
		if s.Tool == "consult_expert" {
			if _, ok := s.Args["skill"]; !ok {
				findings = append(findings, Finding{
					Severity: SeverityError,
					StepID:   s.ID,
					Message:  "consult_expert step is missing a skill argument",
				})
			}
		}

		if name := s.SkillName(); name != "" && r.skills != nil {
			if r.skills.Get(name) == nil {
				findings = append(findings, Finding{
					Severity: SeverityWarning,
					StepID:   s.ID,
					Message:  "step references unknown skill " + name,
				})
			}
		}

		if s.Action == plan.ActionTool && s.Executor != plan.ExecutorAgent {
			findings = append(findings, Finding{
				Severity: SeverityWarning,
				StepID:   s.ID,
				Message:  "tool step routed to non-agent executor " + string(s.Executor),
			})
		}
	}

	return findings
}
