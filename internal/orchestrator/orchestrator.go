// Package orchestrator holds the entry decision point: one completion
// call that either answers directly or emits a structured plan. It
// never propagates an error to its caller.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"

	"github.com/openclaw/dispatch/internal/backend"
	"github.com/openclaw/dispatch/internal/events"
	"github.com/openclaw/dispatch/internal/plan"
	"github.com/openclaw/dispatch/internal/skills"
)

// Result is a tagged union: exactly one of Answer or Plan is set.
type Result struct {
	answer string
	plan   *plan.Plan
}

// DirectAnswer wraps a plain-text response.
func DirectAnswer(text string) Result {
	return Result{answer: text}
}

// Planned wraps a structured plan.
func Planned(p *plan.Plan) Result {
	return Result{plan: p}
}

// Answer returns the direct answer and whether one is present.
func (r Result) Answer() (string, bool) {
	return r.answer, r.plan == nil
}

// Plan returns the plan and whether one is present.
func (r Result) Plan() (*plan.Plan, bool) {
	return r.plan, r.plan != nil
}

// HistoryWindow caps how much conversation history the routing call
// sees.
const HistoryWindow = 6

// DefaultFallbackSkill handles requests when the routing call itself
// fails.
const DefaultFallbackSkill = "general/research"

// Orchestrator decides between answering directly and planning.
type Orchestrator struct {
	backend       backend.Completer
	skills        *skills.Registry
	sink          events.Sink
	logger        *logging.Logger
	model         string
	fallbackSkill string
	now           func() time.Time
}

// New builds an orchestrator. model may be empty to use the backend
// default.
func New(b backend.Completer, skillReg *skills.Registry, sink events.Sink, model string) *Orchestrator {
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Orchestrator{
		backend:       b,
		skills:        skillReg,
		sink:          sink,
		logger:        logging.New().WithComponent("orchestrator"),
		model:         model,
		fallbackSkill: DefaultFallbackSkill,
		now:           time.Now,
	}
}

// WithFallbackSkill overrides the skill used when routing fails.
func (o *Orchestrator) WithFallbackSkill(name string) *Orchestrator {
	o.fallbackSkill = name
	return o
}

// Process routes one request. The returned Result is always valid;
// backend failures degrade to a single-step fallback plan so the
// caller never sees an error from this layer.
func (o *Orchestrator) Process(ctx context.Context, prompt string, history []llm.Message) Result {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "orchestrate")
	defer span.End()

	messages := o.buildMessages(prompt, history)
	raw, err := o.backend.Generate(ctx, messages, o.model)
	if err != nil {
		o.logger.Error("routing call failed, using fallback plan", map[string]interface{}{
			"error": err.Error(),
		})
		span.RecordError(err)
		p := o.fallbackPlan(prompt)
		o.publishPlan(p)
		return Planned(p)
	}

	p, ok := plan.ParseResponse(raw)
	if !ok {
		span.SetAttributes(attribute.String("orchestrate.outcome", "direct"))
		return DirectAnswer(strings.TrimSpace(raw))
	}

	span.SetAttributes(
		attribute.String("orchestrate.outcome", "plan"),
		attribute.Int("plan.steps", len(p.Steps)),
	)
	o.publishPlan(p)
	return Planned(p)
}

func (o *Orchestrator) publishPlan(p *plan.Plan) {
	o.logger.Info("plan created", map[string]interface{}{
		"description": p.Description,
		"steps":       len(p.Steps),
	})
	ev := events.New(events.KindPlanCreated)
	ev.Detail = p.Description
	ev.Fields = map[string]interface{}{"step_count": len(p.Steps)}
	o.sink.Publish(ev)
}

// fallbackPlan delegates the whole request to a generic research
// skill.
func (o *Orchestrator) fallbackPlan(prompt string) *plan.Plan {
	return &plan.Plan{
		Description: "fallback: delegate request to research",
		Steps: []plan.Step{{
			ID:       "1",
			Label:    "Step 1",
			Executor: plan.ExecutorSkill,
			Action:   plan.ActionSkill,
			Tool:     o.fallbackSkill,
			Args:     map[string]interface{}{"goal": prompt},
		}},
	}
}

func (o *Orchestrator) buildMessages(prompt string, history []llm.Message) []llm.Message {
	messages := []llm.Message{{Role: "system", Content: o.systemPrompt()}}
	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: prompt})
	return messages
}

func (o *Orchestrator) systemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current date and time: %s\n\n", o.now().Format("Monday, 2 January 2006 15:04 MST"))
	b.WriteString(routingPreamble)
	b.WriteString("\n\nAvailable skills by category:\n")
	b.WriteString(o.routingTable())
	b.WriteString("\n\n")
	b.WriteString(fewShotExamples)
	return b.String()
}

// routingTable renders category -> skill names from the live registry.
func (o *Orchestrator) routingTable() string {
	if o.skills == nil {
		return "(none)"
	}
	byCategory := make(map[string][]string)
	for _, s := range o.skills.All() {
		cat := s.Category
		if cat == "" {
			cat = "general"
		}
		byCategory[cat] = append(byCategory[cat], s.Name)
	}
	if len(byCategory) == 0 {
		return "(none)"
	}

	categories := make([]string, 0, len(byCategory))
	for cat := range byCategory {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	var b strings.Builder
	for _, cat := range categories {
		names := byCategory[cat]
		sort.Strings(names)
		fmt.Fprintf(&b, "- %s: %s\n", cat, strings.Join(names, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

const routingPreamble = `You are the routing layer of an automation assistant.
Decide whether to answer the user directly or to emit an execution plan.
Answer directly for questions you can fully resolve with text alone.
Emit a plan when the request needs tools, skills, memory recall or a model completion.
A plan is a JSON object: {"description": "...", "steps": [{"id": "1", "label": "...", "executor": "agent"|"litellm"|"remote"|"skill", "action": "tool"|"memory"|"completion"|"skill", "tool": "...", "args": {...}}]}.
Emit either plain text or a single JSON plan, never both.`

const fewShotExamples = `Examples:

User: What's 15 * 7?
Response: 105

User: Turn off the kitchen lights
Response:
` + "```json" + `
{"description": "Control the lights", "steps": [{"id": "1", "label": "Step 1", "executor": "skill", "action": "skill", "tool": "general/homey", "args": {"goal": "Turn off the kitchen lights"}}]}
` + "```" + `

User: Summarize yesterday's discussion about the deployment
Response:
` + "```json" + `
{"description": "Recall and summarize", "steps": [{"id": "1", "label": "Step 1", "executor": "agent", "action": "memory", "args": {"query": "deployment discussion"}}, {"id": "2", "label": "Step 2", "executor": "litellm", "action": "completion", "args": {}}]}
` + "```"
