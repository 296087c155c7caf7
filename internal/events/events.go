// Package events defines the progress event model emitted during
// orchestration and the sinks that carry it.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies an event type.
type Kind string

const (
	KindPlanCreated        Kind = "plan_created"
	KindPlanAdjusted       Kind = "plan_adjusted"
	KindStepStarted        Kind = "step_started"
	KindStepFinished       Kind = "step_finished"
	KindToolCall           Kind = "tool_call"
	KindSupervisorDecision Kind = "supervisor_decision"
	KindConfirmationNeeded Kind = "confirmation_needed"
	KindRunFinished        Kind = "run_finished"
)

// Event is a single progress record for a run.
type Event struct {
	ID        string                 `json:"id"`
	Kind      Kind                   `json:"kind"`
	Tenant    string                 `json:"tenant,omitempty"`
	RunID     string                 `json:"run_id,omitempty"`
	StepID    string                 `json:"step_id,omitempty"`
	Tool      string                 `json:"tool,omitempty"`
	Verdict   string                 `json:"verdict,omitempty"`
	Detail    string                 `json:"detail,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// New builds an event with a fresh ID and timestamp.
func New(kind Kind) Event {
	return Event{
		ID:        uuid.New().String(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}
}

// Sink receives events. Implementations must tolerate concurrent
// publishers and must never block orchestration on delivery failure.
type Sink interface {
	Publish(ev Event)
	Close() error
}
