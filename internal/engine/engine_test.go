package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/openclaw/dispatch/internal/backend"
	"github.com/openclaw/dispatch/internal/events"
	"github.com/openclaw/dispatch/internal/executor"
	"github.com/openclaw/dispatch/internal/orchestrator"
	"github.com/openclaw/dispatch/internal/plan"
	"github.com/openclaw/dispatch/internal/skills"
	"github.com/openclaw/dispatch/internal/supervision"
	"github.com/openclaw/dispatch/internal/tools"
)

type recordingTool struct {
	name    string
	confirm bool
	output  string
	calls   int
	argLog  []map[string]interface{}
}

func (r *recordingTool) Name() string                       { return r.name }
func (r *recordingTool) Description() string                { return "records calls" }
func (r *recordingTool) Parameters() map[string]interface{} { return nil }
func (r *recordingTool) RequiresConfirmation() bool         { return r.confirm }

func (r *recordingTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	r.calls++
	r.argLog = append(r.argLog, args)
	return r.output, nil
}

type pipeline struct {
	engine *Engine
	router *backend.Fake
	grader *backend.Fake
	tools  []*recordingTool
}

// buildPipeline wires an engine whose routing and grading calls are
// separately scripted.
func buildPipeline(routerTurns, graderTurns []backend.ScriptedTurn, toolList ...*recordingTool) *pipeline {
	reg := tools.NewRegistry()
	for _, tl := range toolList {
		reg.Register(tl)
	}
	skillReg := skills.NewRegistry(nil)

	router := backend.NewFake(routerTurns...)
	grader := backend.NewFake(graderTurns...)

	exec := executor.New(reg, skillReg, router, nil, nil)
	orch := orchestrator.New(router, skillReg, nil, "")
	planReview := supervision.NewPlanReviewer(skillReg, nil)
	stepReview := supervision.NewStepReviewer(grader, "")

	return &pipeline{
		engine: New(orch, exec, planReview, stepReview, nil),
		router: router,
		grader: grader,
		tools:  toolList,
	}
}

func okVerdict() backend.ScriptedTurn {
	return backend.ScriptedTurn{Content: "{\"decision\": \"ok\", \"reason\": \"fine\"}"}
}

func toolPlan(toolName string) backend.ScriptedTurn {
	return backend.ScriptedTurn{
		Content: "```json\n{\"description\": \"run a tool\", \"steps\": [{\"id\": \"1\", \"executor\": \"agent\", \"action\": \"tool\", \"tool\": \"" + toolName + "\", \"args\": {\"cmd\": \"ls\"}}]}\n```",
	}
}

func TestDirectAnswerBypassesExecution(t *testing.T) {
	p := buildPipeline(
		[]backend.ScriptedTurn{{Content: "105"}},
		[]backend.ScriptedTurn{okVerdict()},
	)

	outcome := p.engine.Run(context.Background(), executor.Request{Prompt: "What's 15 * 7?"}, nil)
	if outcome.Answer != "105" {
		t.Errorf("answer = %q", outcome.Answer)
	}
	if outcome.Plan != nil || len(outcome.Results) != 0 {
		t.Error("direct answers must not execute anything")
	}
	if p.grader.Calls() != 0 {
		t.Error("grader consulted for a direct answer")
	}
}

func TestPlanExecutesAndGrades(t *testing.T) {
	tool := &recordingTool{name: "shell", output: "files listed"}
	p := buildPipeline(
		[]backend.ScriptedTurn{toolPlan("shell")},
		[]backend.ScriptedTurn{okVerdict()},
		tool,
	)

	outcome := p.engine.Run(context.Background(), executor.Request{Prompt: "list files"}, nil)
	if outcome.Paused != nil {
		t.Fatalf("unexpected pause: %v", outcome.Paused)
	}
	if len(outcome.Results) != 1 {
		t.Fatalf("results = %d", len(outcome.Results))
	}
	if outcome.Results[0].Status != plan.StatusOK {
		t.Errorf("status = %s", outcome.Results[0].Status)
	}
	if tool.calls != 1 {
		t.Errorf("tool calls = %d", tool.calls)
	}
	if p.grader.Calls() != 1 {
		t.Errorf("grader calls = %d", p.grader.Calls())
	}
}

func TestAdjustVerdictRetriesOnce(t *testing.T) {
	tool := &recordingTool{name: "shell", output: "Error: bad path"}
	p := buildPipeline(
		[]backend.ScriptedTurn{toolPlan("shell")},
		[]backend.ScriptedTurn{
			{Content: "{\"decision\": \"adjust\", \"reason\": \"wrong path\", \"suggested_fix\": \"use /srv\"}"},
		},
		tool,
	)

	outcome := p.engine.Run(context.Background(), executor.Request{Prompt: "list files"}, nil)
	if tool.calls != 2 {
		t.Fatalf("tool calls = %d, want exactly one retry", tool.calls)
	}
	if got := tool.argLog[1]["adjustment"]; got != "use /srv" {
		t.Errorf("retry args = %+v", tool.argLog[1])
	}
	if _, ok := tool.argLog[0]["adjustment"]; ok {
		t.Error("first attempt must not carry an adjustment")
	}
	// The fake grader repeats its adjust verdict, but the engine
	// retries once and then moves on.
	if len(outcome.Results) != 1 {
		t.Errorf("results = %d", len(outcome.Results))
	}
}

type captureSink struct {
	published []events.Event
}

func (c *captureSink) Publish(ev events.Event) { c.published = append(c.published, ev) }
func (c *captureSink) Close() error            { return nil }

func (c *captureSink) count(kind events.Kind) int {
	n := 0
	for _, ev := range c.published {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func TestRetryPublishesPlanAdjustedEvent(t *testing.T) {
	tool := &recordingTool{name: "shell", output: "Error: bad path"}
	reg := tools.NewRegistry()
	reg.Register(tool)
	skillReg := skills.NewRegistry(nil)
	sink := &captureSink{}

	router := backend.NewFake(toolPlan("shell"))
	grader := backend.NewFake(backend.ScriptedTurn{
		Content: "{\"decision\": \"adjust\", \"reason\": \"wrong path\", \"suggested_fix\": \"use /srv\"}",
	})
	eng := New(
		orchestrator.New(router, skillReg, sink, ""),
		executor.New(reg, skillReg, router, nil, sink),
		supervision.NewPlanReviewer(skillReg, sink),
		supervision.NewStepReviewer(grader, ""),
		sink,
	)

	eng.Run(context.Background(), executor.Request{Prompt: "list files"}, nil)

	if got := sink.count(events.KindPlanAdjusted); got != 1 {
		t.Errorf("plan_adjusted events = %d, want 1", got)
	}
	var adj events.Event
	for _, ev := range sink.published {
		if ev.Kind == events.KindPlanAdjusted {
			adj = ev
		}
	}
	if adj.StepID != "1" || adj.Detail != "use /srv" {
		t.Errorf("plan_adjusted event = %+v", adj)
	}
}

func TestNoRetryNoPlanAdjustedEvent(t *testing.T) {
	tool := &recordingTool{name: "shell", output: "ran"}
	reg := tools.NewRegistry()
	reg.Register(tool)
	skillReg := skills.NewRegistry(nil)
	sink := &captureSink{}

	router := backend.NewFake(toolPlan("shell"))
	grader := backend.NewFake(okVerdict())
	eng := New(
		orchestrator.New(router, skillReg, sink, ""),
		executor.New(reg, skillReg, router, nil, sink),
		supervision.NewPlanReviewer(skillReg, sink),
		supervision.NewStepReviewer(grader, ""),
		sink,
	)

	eng.Run(context.Background(), executor.Request{Prompt: "list files"}, nil)

	if got := sink.count(events.KindPlanAdjusted); got != 0 {
		t.Errorf("plan_adjusted events = %d, want none on an ok verdict", got)
	}
}

func TestAdjustWithoutFixDoesNotRetry(t *testing.T) {
	tool := &recordingTool{name: "shell", output: "ran"}
	p := buildPipeline(
		[]backend.ScriptedTurn{toolPlan("shell")},
		[]backend.ScriptedTurn{
			{Content: "{\"decision\": \"adjust\", \"reason\": \"vague unease\"}"},
		},
		tool,
	)

	p.engine.Run(context.Background(), executor.Request{Prompt: "list files"}, nil)
	if tool.calls != 1 {
		t.Errorf("tool calls = %d; an adjust verdict without a fix is not actionable", tool.calls)
	}
}

func TestConfirmationPausesRun(t *testing.T) {
	dangerous := &recordingTool{name: "wipe", confirm: true, output: "wiped"}
	second := &recordingTool{name: "shell", output: "ran"}
	routerPlan := backend.ScriptedTurn{
		Content: "{\"steps\": [" +
			"{\"id\": \"1\", \"executor\": \"agent\", \"action\": \"tool\", \"tool\": \"wipe\"}," +
			"{\"id\": \"2\", \"executor\": \"agent\", \"action\": \"tool\", \"tool\": \"shell\"}]}",
	}
	p := buildPipeline(
		[]backend.ScriptedTurn{routerPlan},
		[]backend.ScriptedTurn{okVerdict()},
		dangerous, second,
	)

	outcome := p.engine.Run(context.Background(), executor.Request{Prompt: "wipe it"}, nil)
	if outcome.Paused == nil {
		t.Fatal("expected a paused outcome")
	}
	if outcome.Paused.Tool != "wipe" {
		t.Errorf("paused tool = %q", outcome.Paused.Tool)
	}
	if dangerous.calls != 0 {
		t.Error("dangerous tool ran without confirmation")
	}
	if second.calls != 0 {
		t.Error("steps after the pause must not execute")
	}
	if len(outcome.Results) != 0 {
		t.Errorf("results = %d", len(outcome.Results))
	}
}

func TestStepOutputFeedsLaterCompletion(t *testing.T) {
	tool := &recordingTool{name: "shell", output: "three files"}
	routerPlan := backend.ScriptedTurn{
		Content: "{\"steps\": [" +
			"{\"id\": \"1\", \"executor\": \"agent\", \"action\": \"tool\", \"tool\": \"shell\"}," +
			"{\"id\": \"2\", \"executor\": \"litellm\", \"action\": \"completion\"}]}",
	}
	// Router fake also serves the completion step; its second turn is
	// the assembled answer.
	p := buildPipeline(
		[]backend.ScriptedTurn{routerPlan, {Content: "there are three files"}},
		[]backend.ScriptedTurn{okVerdict()},
		tool,
	)

	outcome := p.engine.Run(context.Background(), executor.Request{Prompt: "count files"}, nil)
	if outcome.Answer != "there are three files" {
		t.Errorf("answer = %q", outcome.Answer)
	}

	// The completion request must include the tool output message.
	completionReq := p.router.Requests[len(p.router.Requests)-1]
	found := false
	for _, m := range completionReq {
		if m.Role == "system" && strings.Contains(m.Content, "three files") {
			found = true
		}
	}
	if !found {
		t.Error("completion step did not receive earlier step output")
	}
}
