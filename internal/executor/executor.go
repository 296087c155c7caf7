// Package executor runs individual plan steps. Ordinary failures
// become error-status results; the only condition that escapes as an
// error is a dangerous tool awaiting user confirmation.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"

	"github.com/openclaw/dispatch/internal/backend"
	"github.com/openclaw/dispatch/internal/delegate"
	"github.com/openclaw/dispatch/internal/events"
	"github.com/openclaw/dispatch/internal/memory"
	"github.com/openclaw/dispatch/internal/plan"
	"github.com/openclaw/dispatch/internal/skills"
	"github.com/openclaw/dispatch/internal/tools"
)

// Request carries the per-request context a step executes under.
type Request struct {
	Prompt         string
	Tenant         string
	ConversationID string
	Cwd            string
}

// Executor dispatches plan steps to tools, skills, memory or the
// completion backend.
type Executor struct {
	tools        *tools.Registry
	skills       *skills.Registry
	backend      backend.Completer
	memory       memory.Searcher
	delegator    *delegate.Loop
	sink         events.Sink
	logger       *logging.Logger
	defaultModel string
	toolTimeout  time.Duration
	memoryLimit  int
}

// New builds an executor over tenant-scoped collaborators.
func New(toolReg *tools.Registry, skillReg *skills.Registry, b backend.Completer, mem memory.Searcher, sink events.Sink) *Executor {
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Executor{
		tools:       toolReg,
		skills:      skillReg,
		backend:     b,
		memory:      mem,
		delegator:   delegate.NewLoop(b, toolReg, skillReg, sink),
		sink:        sink,
		logger:      logging.New().WithComponent("executor"),
		toolTimeout: 2 * time.Minute,
		memoryLimit: 5,
	}
}

// WithDefaultModel sets the model used by completion steps that carry
// no model override.
func (e *Executor) WithDefaultModel(model string) *Executor {
	e.defaultModel = model
	return e
}

// WithToolTimeout bounds each tool invocation.
func (e *Executor) WithToolTimeout(d time.Duration) *Executor {
	e.toolTimeout = d
	e.delegator.WithToolTimeout(d)
	return e
}

// WithBudgets caps delegation turn budgets and per-tool call counts.
func (e *Executor) WithBudgets(maxTurns, toolCeiling int) *Executor {
	e.delegator.WithTurnCap(maxTurns)
	e.delegator.WithToolCeiling(toolCeiling)
	return e
}

// Run executes one step. The returned error is non-nil only for
// *ConfirmationError; everything else is reported through the result
// status.
func (e *Executor) Run(ctx context.Context, step plan.Step, req Request, history []llm.Message) (*plan.StepResult, error) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "step.run")
	span.SetAttributes(
		attribute.String("step.id", step.ID),
		attribute.String("step.executor", string(step.Executor)),
		attribute.String("step.action", string(step.Action)),
	)
	defer span.End()

	start := time.Now()
	result, err := e.dispatch(ctx, step, req, history)

	status := "confirmation_required"
	if result != nil {
		status = string(result.Status)
	}
	span.SetAttributes(attribute.String("step.status", status))
	e.logger.Info("step finished", map[string]interface{}{
		"step_id":     step.ID,
		"action":      string(step.Action),
		"status":      status,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	ev := events.New(events.KindStepFinished)
	ev.Tenant = req.Tenant
	ev.RunID = req.ConversationID
	ev.StepID = step.ID
	ev.Tool = step.Tool
	ev.Detail = status
	e.sink.Publish(ev)

	return result, err
}

func (e *Executor) dispatch(ctx context.Context, step plan.Step, req Request, history []llm.Message) (*plan.StepResult, error) {
	switch {
	case step.Executor == plan.ExecutorAgent && step.Action == plan.ActionMemory:
		return e.runMemory(ctx, step, req), nil
	case step.Executor == plan.ExecutorAgent && step.Action == plan.ActionTool:
		return e.runTool(ctx, step, req)
	case (step.Executor == plan.ExecutorLiteLLM || step.Executor == plan.ExecutorRemote) && step.Action == plan.ActionCompletion:
		return e.runCompletion(ctx, step, req, history), nil
	case step.Action == plan.ActionSkill || step.Executor == plan.ExecutorSkill:
		return e.runSkill(ctx, step, req), nil
	default:
		return &plan.StepResult{
			Step:   step,
			Status: plan.StatusSkipped,
			Result: map[string]interface{}{
				"reason": fmt.Sprintf("unsupported executor/action: %s/%s", step.Executor, step.Action),
			},
		}, nil
	}
}

// runMemory queries the tenant's memory namespace and surfaces each
// recalled record as a system message.
func (e *Executor) runMemory(ctx context.Context, step plan.Step, req Request) *plan.StepResult {
	if e.memory == nil {
		return &plan.StepResult{
			Step:   step,
			Status: plan.StatusError,
			Result: map[string]interface{}{"error": "memory service is not configured"},
		}
	}

	query := step.StringArg("query")
	if query == "" {
		query = req.Prompt
	}
	limit := step.IntArg("limit", e.memoryLimit)

	records, err := e.memory.Search(ctx, req.Tenant, query, limit)
	if err != nil {
		return &plan.StepResult{
			Step:   step,
			Status: plan.StatusError,
			Result: map[string]interface{}{"error": "memory search failed: " + err.Error()},
		}
	}

	messages := make([]llm.Message, 0, len(records))
	for _, rec := range records {
		messages = append(messages, llm.Message{
			Role:    "system",
			Content: fmt.Sprintf("Recalled memory (%s): %s", rec.ID, rec.Content),
		})
	}
	return &plan.StepResult{
		Step:     step,
		Status:   plan.StatusOK,
		Result:   map[string]interface{}{"query": query, "count": len(records)},
		Messages: messages,
	}
}

// runTool resolves and invokes a native tool, falling back to a
// one-shot skill completion when the name is a delegation marker.
func (e *Executor) runTool(ctx context.Context, step plan.Step, req Request) (*plan.StepResult, error) {
	tool := e.tools.Get(step.Tool)
	if tool == nil {
		return e.runSkillAsTool(ctx, step, req), nil
	}

	if allowed, restricted := allowedTools(step.Args); restricted && !contains(allowed, step.Tool) {
		return &plan.StepResult{
			Step:   step,
			Status: plan.StatusSkipped,
			Result: map[string]interface{}{
				"reason": fmt.Sprintf("tool %s is not in the step's allowed_tools list", step.Tool),
			},
		}, nil
	}

	if tool.RequiresConfirmation() && !step.BoolArg("confirm_dangerous_action") {
		return nil, &ConfirmationError{Step: step, Tool: step.Tool}
	}

	args := step.CloneArgs()
	delete(args, "confirm_dangerous_action")
	delete(args, "allowed_tools")

	cwd := step.StringArg("cwd")
	if cwd == "" {
		cwd = req.Cwd
	}
	if tools.AcceptsParam(tool, "cwd") {
		if cwd != "" {
			args["cwd"] = cwd
		}
	} else {
		delete(args, "cwd")
	}

	callCtx := ctx
	if e.toolTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.toolTimeout)
		defer cancel()
	}

	output, err := tool.Execute(callCtx, args)

	ev := events.New(events.KindToolCall)
	ev.Tenant = req.Tenant
	ev.RunID = req.ConversationID
	ev.StepID = step.ID
	ev.Tool = step.Tool
	if err != nil {
		ev.Detail = "error: " + err.Error()
	} else {
		ev.Detail = preview(output, 200)
	}
	e.sink.Publish(ev)

	if err != nil {
		return &plan.StepResult{
			Step:   step,
			Status: plan.StatusError,
			Result: map[string]interface{}{
				"error": fmt.Sprintf("tool %s failed: %v", step.Tool, err),
			},
		}, nil
	}

	messages := []llm.Message{{
		Role:    "system",
		Content: fmt.Sprintf("Tool %s output:\n%s", step.Tool, output),
	}}
	if isErrorOutput(output) {
		messages = append(messages, llm.Message{
			Role:    "system",
			Content: "The tool reported an error. Diagnose the cause and adjust the arguments or approach instead of repeating the same call.",
		})
	}
	return &plan.StepResult{
		Step:     step,
		Status:   plan.StatusOK,
		Result:   map[string]interface{}{"output": output},
		Messages: messages,
	}, nil
}

// runSkillAsTool treats an unresolved tool name as a skill delegation
// marker and runs the rendered instructions as a one-shot completion.
func (e *Executor) runSkillAsTool(ctx context.Context, step plan.Step, req Request) *plan.StepResult {
	skill := e.skills.Get(step.Tool)
	if skill == nil {
		return &plan.StepResult{
			Step:   step,
			Status: plan.StatusMissing,
			Result: map[string]interface{}{
				"error": fmt.Sprintf("%q is neither a registered tool nor a known skill", step.Tool),
			},
		}
	}

	goal := step.StringArg("goal")
	if goal == "" {
		goal = req.Prompt
	}
	renderArgs := step.CloneArgs()
	renderArgs["goal"] = goal
	instructions, err := skill.Render(renderArgs)
	if err != nil {
		return &plan.StepResult{
			Step:   step,
			Status: plan.StatusError,
			Result: map[string]interface{}{
				"error": fmt.Sprintf("rendering skill %s: %v", skill.Name, err),
			},
		}
	}
	output, err := e.backend.Generate(ctx, []llm.Message{
		{Role: "system", Content: instructions},
		{Role: "user", Content: goal},
	}, skill.Model)
	if err != nil {
		return &plan.StepResult{
			Step:   step,
			Status: plan.StatusError,
			Result: map[string]interface{}{
				"error": fmt.Sprintf("skill %s completion failed: %v", skill.Name, err),
			},
		}
	}

	return &plan.StepResult{
		Step:   step,
		Status: plan.StatusOK,
		Result: map[string]interface{}{"output": output, "skill": skill.Name},
		Messages: []llm.Message{{
			Role:    "system",
			Content: fmt.Sprintf("Skill %s output:\n%s", skill.Name, output),
		}},
	}
}

// runCompletion calls the completion backend with the accumulated
// history plus the user prompt.
func (e *Executor) runCompletion(ctx context.Context, step plan.Step, req Request, history []llm.Message) *plan.StepResult {
	model := step.StringArg("model")
	if model == "" {
		model = e.defaultModel
	}

	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, llm.Message{Role: "user", Content: req.Prompt})

	completion, err := e.backend.Generate(ctx, messages, model)
	if err != nil {
		return &plan.StepResult{
			Step:   step,
			Status: plan.StatusError,
			Result: map[string]interface{}{"error": "completion failed: " + err.Error()},
		}
	}

	return &plan.StepResult{
		Step:     step,
		Status:   plan.StatusOK,
		Result:   map[string]interface{}{"completion": completion, "model": model},
		Messages: []llm.Message{{Role: "assistant", Content: completion}},
	}
}

// runSkill drains a full budgeted delegation and folds its terminal
// result into a StepResult.
func (e *Executor) runSkill(ctx context.Context, step plan.Step, req Request) *plan.StepResult {
	name := step.SkillName()
	if name == "" {
		name = step.Tool
	}
	goal := step.StringArg("goal")
	if goal == "" {
		goal = req.Prompt
	}

	var terminal *delegate.Event
	for ev := range e.delegator.Run(ctx, name, goal, step.Args) {
		if ev.Kind == delegate.EventResult {
			terminal = &ev
		}
	}
	if terminal == nil {
		// Consumer cancellation drained the stream without a result.
		return &plan.StepResult{
			Step:   step,
			Status: plan.StatusError,
			Result: map[string]interface{}{"error": "delegation ended without a result"},
		}
	}

	result := map[string]interface{}{
		"output": terminal.Content,
		"skill":  name,
		"status": terminal.Status,
	}
	switch terminal.Status {
	case delegate.ResultMissing:
		return &plan.StepResult{Step: step, Status: plan.StatusMissing, Result: result}
	case delegate.ResultFailed:
		return &plan.StepResult{Step: step, Status: plan.StatusError, Result: result}
	default:
		return &plan.StepResult{
			Step:   step,
			Status: plan.StatusOK,
			Result: result,
			Messages: []llm.Message{{
				Role:    "system",
				Content: fmt.Sprintf("Skill %s output:\n%s", name, terminal.Content),
			}},
		}
	}
}

// isErrorOutput reports whether tool output is itself an error string.
func isErrorOutput(output string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(output))
	return strings.HasPrefix(trimmed, "error:") || strings.HasPrefix(trimmed, "error ")
}

func allowedTools(args map[string]interface{}) ([]string, bool) {
	raw, ok := args["allowed_tools"]
	if !ok {
		return nil, false
	}
	switch v := raw.(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out, true
	case []string:
		return v, true
	case string:
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				out = append(out, t)
			}
		}
		return out, true
	}
	return nil, false
}

func contains(list []string, name string) bool {
	for _, item := range list {
		if item == name {
			return true
		}
	}
	return false
}

func preview(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
