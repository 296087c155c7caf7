// Package engine runs the per-request pipeline: route, review the
// plan, execute steps in order, grade each outcome, and retry once on
// an adjust verdict.
package engine

import (
	"context"

	"github.com/google/uuid"
	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"

	"github.com/openclaw/dispatch/internal/events"
	"github.com/openclaw/dispatch/internal/executor"
	"github.com/openclaw/dispatch/internal/orchestrator"
	"github.com/openclaw/dispatch/internal/plan"
	"github.com/openclaw/dispatch/internal/supervision"
)

// Outcome is the result of one orchestration run. Either Answer is
// set (direct response, or assembled from the final step), or Paused
// reports a confirmation gate that stopped execution.
type Outcome struct {
	Answer  string
	Plan    *plan.Plan
	Results []*plan.StepResult
	Paused  *executor.ConfirmationError
}

// Engine wires the pipeline for one tenant.
type Engine struct {
	orchestrator *orchestrator.Orchestrator
	executor     *executor.Executor
	planReview   *supervision.PlanReviewer
	stepReview   *supervision.StepReviewer
	sink         events.Sink
	logger       *logging.Logger
}

// New assembles an engine from tenant-scoped components. stepReview
// may be nil to disable grading.
func New(o *orchestrator.Orchestrator, exec *executor.Executor, planReview *supervision.PlanReviewer, stepReview *supervision.StepReviewer, sink events.Sink) *Engine {
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Engine{
		orchestrator: o,
		executor:     exec,
		planReview:   planReview,
		stepReview:   stepReview,
		sink:         sink,
		logger:       logging.New().WithComponent("engine"),
	}
}

// Run processes one request end to end. history carries prior
// conversation messages; the engine appends step output to its own
// copy so later completion steps see earlier results.
func (e *Engine) Run(ctx context.Context, req executor.Request, history []llm.Message) *Outcome {
	if req.ConversationID == "" {
		req.ConversationID = uuid.New().String()
	}

	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "engine.run")
	span.SetAttributes(
		attribute.String("tenant", req.Tenant),
		attribute.String("conversation_id", req.ConversationID),
	)
	defer span.End()

	routed := e.orchestrator.Process(ctx, req.Prompt, history)
	if answer, ok := routed.Answer(); ok {
		span.SetAttributes(attribute.String("engine.outcome", "direct"))
		return &Outcome{Answer: answer}
	}

	p, _ := routed.Plan()
	if e.planReview != nil {
		p = e.planReview.Review(p)
	}

	outcome := &Outcome{Plan: p}
	working := make([]llm.Message, len(history))
	copy(working, history)

	for _, step := range p.Steps {
		result, err := e.executor.Run(ctx, step, req, working)
		if ce, ok := executor.IsConfirmation(err); ok {
			ev := events.New(events.KindConfirmationNeeded)
			ev.Tenant = req.Tenant
			ev.RunID = req.ConversationID
			ev.StepID = step.ID
			ev.Tool = ce.Tool
			e.sink.Publish(ev)

			outcome.Paused = ce
			span.SetAttributes(attribute.String("engine.outcome", "paused"))
			return outcome
		}

		result = e.reviewAndRetry(ctx, step, result, req, working)
		outcome.Results = append(outcome.Results, result)
		working = append(working, result.Messages...)
	}

	outcome.Answer = assembleAnswer(outcome.Results)

	ev := events.New(events.KindRunFinished)
	ev.Tenant = req.Tenant
	ev.RunID = req.ConversationID
	e.sink.Publish(ev)
	span.SetAttributes(attribute.String("engine.outcome", "completed"))
	return outcome
}

// reviewAndRetry grades a step outcome and, on an adjust verdict with
// a usable fix, re-runs the step once with the fix merged into its
// args. The second outcome stands regardless of its grade.
func (e *Engine) reviewAndRetry(ctx context.Context, step plan.Step, result *plan.StepResult, req executor.Request, history []llm.Message) *plan.StepResult {
	if e.stepReview == nil {
		return result
	}

	decision := e.stepReview.Review(ctx, step, result)

	ev := events.New(events.KindSupervisorDecision)
	ev.Tenant = req.Tenant
	ev.RunID = req.ConversationID
	ev.StepID = step.ID
	ev.Verdict = decision.Decision
	ev.Detail = decision.Reason
	e.sink.Publish(ev)

	if decision.Decision != supervision.DecisionAdjust || decision.SuggestedFix == "" {
		return result
	}

	e.logger.Info("retrying step with adjustment", map[string]interface{}{
		"step_id":    step.ID,
		"adjustment": decision.SuggestedFix,
	})
	adjEv := events.New(events.KindPlanAdjusted)
	adjEv.Tenant = req.Tenant
	adjEv.RunID = req.ConversationID
	adjEv.StepID = step.ID
	adjEv.Detail = decision.SuggestedFix
	e.sink.Publish(adjEv)

	adjusted := step
	adjusted.Args = step.CloneArgs()
	adjusted.Args["adjustment"] = decision.SuggestedFix

	retried, err := e.executor.Run(ctx, adjusted, req, history)
	if _, ok := executor.IsConfirmation(err); ok {
		// The retry hit a confirmation gate; keep the original
		// outcome rather than pausing mid-adjustment.
		return result
	}
	return retried
}

// assembleAnswer extracts text for the caller from the final step
// that produced any, preferring completions.
func assembleAnswer(results []*plan.StepResult) string {
	for i := len(results) - 1; i >= 0; i-- {
		r := results[i]
		if r.Status != plan.StatusOK {
			continue
		}
		if text, ok := r.Result["completion"].(string); ok && text != "" {
			return text
		}
		if text, ok := r.Result["output"].(string); ok && text != "" {
			return text
		}
	}
	return ""
}
