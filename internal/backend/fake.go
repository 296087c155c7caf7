package backend

import (
	"context"
	"sync"

	"github.com/vinayprograms/agentkit/llm"
)

// ScriptedTurn is one pre-canned model turn for tests.
type ScriptedTurn struct {
	Content   string
	ToolCalls []llm.ToolCallResponse
	Err       error
}

// Fake is a Completer that replays scripted turns in order. The last
// turn repeats once the script is exhausted.
type Fake struct {
	mu       sync.Mutex
	turns    []ScriptedTurn
	next     int
	Requests [][]llm.Message
	Models   []string
}

// NewFake builds a fake over the given script.
func NewFake(turns ...ScriptedTurn) *Fake {
	return &Fake{turns: turns}
}

func (f *Fake) take(messages []llm.Message, model string) ScriptedTurn {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Requests = append(f.Requests, messages)
	f.Models = append(f.Models, model)

	if len(f.turns) == 0 {
		return ScriptedTurn{}
	}
	turn := f.turns[f.next]
	if f.next < len(f.turns)-1 {
		f.next++
	}
	return turn
}

// Calls reports how many turns were requested.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Requests)
}

func (f *Fake) Generate(ctx context.Context, messages []llm.Message, model string) (string, error) {
	turn := f.take(messages, model)
	if turn.Err != nil {
		return "", turn.Err
	}
	return turn.Content, nil
}

func (f *Fake) StreamChat(ctx context.Context, messages []llm.Message, model string, tools []llm.ToolDef) (<-chan TurnEvent, error) {
	turn := f.take(messages, model)

	events := make(chan TurnEvent, len(turn.ToolCalls)+2)
	go func() {
		defer close(events)
		if turn.Err != nil {
			emit(ctx, events, TurnEvent{Kind: EventError, Err: turn.Err})
			return
		}
		if turn.Content != "" {
			if !emit(ctx, events, TurnEvent{Kind: EventContent, Delta: turn.Content}) {
				return
			}
		}
		for _, call := range turn.ToolCalls {
			ev := TurnEvent{
				Kind:     EventToolStart,
				ToolID:   call.ID,
				ToolName: call.Name,
				Args:     call.Args,
			}
			if !emit(ctx, events, ev) {
				return
			}
		}
	}()
	return events, nil
}
