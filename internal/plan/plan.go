// Package plan defines the execution plan data model shared by the
// orchestrator, executor and supervisors.
package plan

import (
	"github.com/vinayprograms/agentkit/llm"
)

// ExecutorKind identifies the backend a step runs against.
type ExecutorKind string

const (
	ExecutorAgent   ExecutorKind = "agent"
	ExecutorLiteLLM ExecutorKind = "litellm"
	ExecutorRemote  ExecutorKind = "remote"
	ExecutorSkill   ExecutorKind = "skill"
)

// Action identifies what a step does.
type Action string

const (
	ActionTool       Action = "tool"
	ActionMemory     Action = "memory"
	ActionCompletion Action = "completion"
	ActionSkill      Action = "skill"
)

// Status is the outcome of one step execution.
type Status string

const (
	StatusOK         Status = "ok"
	StatusError      Status = "error"
	StatusSkipped    Status = "skipped"
	StatusMissing    Status = "missing"
	StatusInProgress Status = "in_progress"
)

// Step is one unit of work inside a Plan. Steps execute in insertion
// order; a step's id is unique within its plan.
type Step struct {
	ID          string                 `json:"id"`
	Label       string                 `json:"label"`
	Executor    ExecutorKind           `json:"executor"`
	Action      Action                 `json:"action"`
	Tool        string                 `json:"tool,omitempty"`
	Args        map[string]interface{} `json:"args,omitempty"`
	Description string                 `json:"description,omitempty"`
}

// Plan is an ordered sequence of steps produced once per request.
// It is immutable after creation; supervisors annotate via logging,
// never by mutating steps.
type Plan struct {
	Description string `json:"description"`
	Steps       []Step `json:"steps"`
}

// StepResult captures the outcome of executing one step. It is created
// once and never mutated afterwards.
type StepResult struct {
	Step     Step                   `json:"step"`
	Status   Status                 `json:"status"`
	Result   map[string]interface{} `json:"result,omitempty"`
	Messages []llm.Message          `json:"messages,omitempty"`
}

// CloneArgs returns a shallow copy of the step's args so callers can
// adjust arguments without touching the plan.
func (s Step) CloneArgs() map[string]interface{} {
	if s.Args == nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(s.Args))
	for k, v := range s.Args {
		out[k] = v
	}
	return out
}

// SkillName returns the skill a step delegates to, or "" when the
// step does not delegate. Delegation is named either by the tool
// field on skill steps or by a skill argument on consult_expert
// steps.
func (s Step) SkillName() string {
	if name := s.StringArg("skill"); name != "" {
		return name
	}
	if s.Action == ActionSkill || s.Executor == ExecutorSkill {
		return s.Tool
	}
	return ""
}

// StringArg returns a string-valued argument, or "" when absent or of
// another type.
func (s Step) StringArg(key string) string {
	if s.Args == nil {
		return ""
	}
	v, ok := s.Args[key].(string)
	if !ok {
		return ""
	}
	return v
}

// IntArg returns an integer-valued argument, coercing JSON numbers and
// numeric strings; def is returned when the value is absent or cannot
// be coerced.
func (s Step) IntArg(key string, def int) int {
	if s.Args == nil {
		return def
	}
	switch v := s.Args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n := 0
		ok := true
		for _, r := range v {
			if r < '0' || r > '9' {
				ok = false
				break
			}
			n = n*10 + int(r-'0')
		}
		if ok && v != "" {
			return n
		}
		return def
	default:
		return def
	}
}

// BoolArg reports whether a boolean-valued argument is explicitly true.
func (s Step) BoolArg(key string) bool {
	if s.Args == nil {
		return false
	}
	v, ok := s.Args[key].(bool)
	return ok && v
}
