// Package delegate runs the bounded agentic loop used when a plan
// step hands work to a skill. Each invocation owns its own state and
// emits a typed event stream ending in exactly one result event.
package delegate

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
	"github.com/openclaw/dispatch/internal/events"
	"github.com/openclaw/dispatch/internal/skills"
	"github.com/openclaw/dispatch/internal/tools"
)

// EventKind identifies a delegation event.
type EventKind string

const (
	EventThinking   EventKind = "thinking"
	EventContent    EventKind = "content"
	EventToolStart  EventKind = "tool_start"
	EventToolOutput EventKind = "tool_output"
	EventError      EventKind = "error"
	EventResult     EventKind = "result"
)

// Terminal statuses carried by the result event.
const (
	ResultOK       = "ok"
	ResultMissing  = "missing"
	ResultFailed   = "failed"
	ResultTimedOut = "timed_out"
	ResultEmpty    = "empty"
)

// Event is one unit of delegation progress. Kind EventResult is
// terminal and appears exactly once per invocation.
type Event struct {
	Kind    EventKind
	Content string
	Tool    string
	Args    map[string]interface{}
	Output  string
	Status  string
	Err     error
}

// DefaultToolCallCeiling bounds repeated calls to a single tool
// within one delegation.
const DefaultToolCallCeiling = 5

// Loop drives skill delegations. The registries are tenant-scoped and
// treated as read-only; per-invocation state never outlives Run.
type Loop struct {
	backend     backend.Completer
	tools       *tools.Registry
	skills      *skills.Registry
	sink        events.Sink
	logger      *logging.Logger
	toolTimeout time.Duration
	toolCeiling int
	turnCap     int
}

// NewLoop builds a delegation loop over tenant-scoped registries.
func NewLoop(b backend.Completer, toolReg *tools.Registry, skillReg *skills.Registry, sink events.Sink) *Loop {
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Loop{
		backend:     b,
		tools:       toolReg,
		skills:      skillReg,
		sink:        sink,
		logger:      logging.New().WithComponent("delegate"),
		toolTimeout: 2 * time.Minute,
		toolCeiling: DefaultToolCallCeiling,
	}
}

// WithToolTimeout sets the per-tool-invocation deadline.
func (l *Loop) WithToolTimeout(d time.Duration) *Loop {
	l.toolTimeout = d
	return l
}

// WithToolCeiling sets the per-tool call cap.
func (l *Loop) WithToolCeiling(n int) *Loop {
	if n > 0 {
		l.toolCeiling = n
	}
	return l
}

// WithTurnCap bounds every delegation's turn budget regardless of what
// the skill declares.
func (l *Loop) WithTurnCap(n int) *Loop {
	if n > 0 {
		l.turnCap = n
	}
	return l
}

// state is the per-invocation bookkeeping. It is created in Run and
// discarded when the loop terminates; concurrent delegations to the
// same skill never observe each other's counters.
type state struct {
	turnCount   int
	toolCalls   map[string]int
	accumulated strings.Builder
	messages    []llm.Message
}

// Run starts a delegation and returns its event stream. The channel
// is closed after the terminal result event. Cancelling ctx stops the
// loop promptly, including an in-flight tool call.
func (l *Loop) Run(ctx context.Context, skillName, goal string, args map[string]interface{}) <-chan Event {
	out := make(chan Event, 8)
	go func() {
		defer close(out)
		l.run(ctx, out, skillName, goal, args)
	}()
	return out
}

func (l *Loop) run(ctx context.Context, out chan<- Event, skillName, goal string, args map[string]interface{}) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "delegate.run")
	span.SetAttributes(attribute.String("skill.name", skillName))
	defer span.End()

	skill := l.skills.Get(skillName)
	if skill == nil {
		l.logger.Warn("skill not found", map[string]interface{}{"skill": skillName})
		l.emit(ctx, out, Event{
			Kind:    EventResult,
			Status:  ResultMissing,
			Content: fmt.Sprintf("skill %q is not available", skillName),
		})
		return
	}

	renderArgs := map[string]interface{}{"goal": goal}
	for k, v := range args {
		renderArgs[k] = v
	}
	instructions, err := skill.Render(renderArgs)
	if err != nil {
		l.emit(ctx, out, Event{
			Kind:    EventResult,
			Status:  ResultFailed,
			Content: "could not prepare skill instructions: " + err.Error(),
			Err:     err,
		})
		return
	}

	toolset := l.tools
	if allowed := skill.ToolAllowlist(); len(allowed) > 0 {
		toolset = l.tools.Subset(allowed)
	}
	defs := toolset.Definitions()

	st := &state{
		toolCalls: make(map[string]int),
		messages: []llm.Message{
			{Role: "system", Content: instructions},
			{Role: "user", Content: goal},
		},
	}
	maxTurns := skill.TurnBudget()
	if l.turnCap > 0 && maxTurns > l.turnCap {
		maxTurns = l.turnCap
	}
	span.SetAttributes(attribute.Int("skill.max_turns", maxTurns))

	sawAnything := false
	for {
		if st.turnCount >= maxTurns {
			l.emit(ctx, out, Event{
				Kind:    EventResult,
				Status:  ResultTimedOut,
				Content: l.timedOutMessage(st),
			})
			return
		}
		st.turnCount++

		stream, err := l.backend.StreamChat(ctx, st.messages, skill.Model, defs)
		if err != nil {
			l.emit(ctx, out, Event{
				Kind:    EventResult,
				Status:  ResultFailed,
				Content: "completion backend failed: " + err.Error(),
				Err:     err,
			})
			return
		}

		var turnContent strings.Builder
		var calls []backend.TurnEvent
		failed := false
		var streamErr error
		for ev := range stream {
			switch ev.Kind {
			case backend.EventContent:
				turnContent.WriteString(ev.Delta)
				if !l.emit(ctx, out, Event{Kind: EventContent, Content: ev.Delta}) {
					return
				}
			case backend.EventToolStart:
				calls = append(calls, ev)
			case backend.EventError:
				failed = true
				streamErr = ev.Err
			}
		}
		if failed {
			l.emit(ctx, out, Event{
				Kind:    EventResult,
				Status:  ResultFailed,
				Content: "completion stream failed: " + streamErr.Error(),
				Err:     streamErr,
			})
			return
		}

		if turnContent.Len() > 0 {
			sawAnything = true
			st.accumulated.WriteString(turnContent.String())
		}

		if len(calls) == 0 {
			if !sawAnything {
				l.emit(ctx, out, Event{
					Kind:    EventResult,
					Status:  ResultEmpty,
					Content: "the skill produced no content and made no tool calls",
				})
				return
			}
			l.emit(ctx, out, Event{
				Kind:    EventResult,
				Status:  ResultOK,
				Content: strings.TrimSpace(st.accumulated.String()),
			})
			return
		}

		sawAnything = true
		assistant := llm.Message{Role: "assistant", Content: turnContent.String()}
		for _, call := range calls {
			assistant.ToolCalls = append(assistant.ToolCalls, llm.ToolCallResponse{
				ID:   call.ToolID,
				Name: call.ToolName,
				Args: call.Args,
			})
		}
		st.messages = append(st.messages, assistant)

		for _, call := range calls {
			st.toolCalls[call.ToolName]++
			if st.toolCalls[call.ToolName] > l.toolCeiling {
				l.emit(ctx, out, Event{
					Kind:    EventResult,
					Status:  ResultTimedOut,
					Content: l.timedOutMessage(st),
				})
				return
			}

			if !l.emit(ctx, out, Event{Kind: EventThinking, Content: "calling " + call.ToolName, Tool: call.ToolName}) {
				return
			}
			if !l.emit(ctx, out, Event{Kind: EventToolStart, Tool: call.ToolName, Args: call.Args}) {
				return
			}

			output, toolErr := l.invokeTool(ctx, toolset, call)
			if toolErr != nil {
				output = "Error: " + toolErr.Error()
				if !l.emit(ctx, out, Event{Kind: EventError, Tool: call.ToolName, Err: toolErr}) {
					return
				}
			}
			if !l.emit(ctx, out, Event{Kind: EventToolOutput, Tool: call.ToolName, Output: output}) {
				return
			}

			ev := events.New(events.KindToolCall)
			ev.Tool = call.ToolName
			ev.Detail = preview(output, 200)
			l.sink.Publish(ev)

			st.messages = append(st.messages, llm.Message{
				Role:       "tool",
				Content:    output,
				ToolCallID: call.ToolID,
			})
		}
	}
}

func (l *Loop) invokeTool(ctx context.Context, toolset *tools.Registry, call backend.TurnEvent) (string, error) {
	tool := toolset.Get(call.ToolName)
	if tool == nil {
		return "", fmt.Errorf("tool %q is not available to this skill", call.ToolName)
	}

	callCtx := ctx
	if l.toolTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, l.toolTimeout)
		defer cancel()
	}
	return tool.Execute(callCtx, call.Args)
}

func (l *Loop) timedOutMessage(st *state) string {
	partial := strings.TrimSpace(st.accumulated.String())
	msg := fmt.Sprintf("the skill timed out after %d turns", st.turnCount)
	if partial != "" {
		msg += "; partial output: " + partial
	}
	return msg
}

// emit sends an event unless the consumer went away.
func (l *Loop) emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func preview(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
