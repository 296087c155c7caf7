// Package backend abstracts chat completion providers behind a small
// interface so orchestration code never imports a provider SDK
// directly.
package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vinayprograms/agentkit/llm"
)

// TurnEventKind identifies what a TurnEvent carries.
type TurnEventKind string

const (
	// EventContent carries assistant text for the current turn.
	EventContent TurnEventKind = "content"
	// EventToolStart signals the model requested a tool invocation.
	EventToolStart TurnEventKind = "tool_start"
	// EventError signals the turn failed; the stream ends after it.
	EventError TurnEventKind = "error"
)

// TurnEvent is one unit of model output within a turn.
type TurnEvent struct {
	Kind     TurnEventKind
	Delta    string
	ToolID   string
	ToolName string
	Args     map[string]interface{}
	Err      error
}

// Completer produces model completions. Generate returns a single
// text completion. StreamChat runs one turn and emits events on the
// returned channel, which is closed when the turn ends.
type Completer interface {
	Generate(ctx context.Context, messages []llm.Message, model string) (string, error)
	StreamChat(ctx context.Context, messages []llm.Message, model string, tools []llm.ToolDef) (<-chan TurnEvent, error)
}

// ProviderOpener builds a provider for a model name. Lets the client
// honor per-skill model overrides without re-reading configuration.
type ProviderOpener func(model string) (llm.Provider, error)

// Client adapts an agentkit provider to the Completer interface.
// When a turn names a model different from the default, Opener is
// consulted for a matching provider.
type Client struct {
	provider     llm.Provider
	defaultModel string
	opener       ProviderOpener
	timeout      time.Duration
}

// NewClient wraps provider as a Completer. A zero timeout disables
// per-call deadlines.
func NewClient(provider llm.Provider, defaultModel string, timeout time.Duration) *Client {
	return &Client{provider: provider, defaultModel: defaultModel, timeout: timeout}
}

// WithOpener sets the provider factory used for model overrides.
func (c *Client) WithOpener(open ProviderOpener) *Client {
	c.opener = open
	return c
}

func (c *Client) providerFor(model string) (llm.Provider, error) {
	if model == "" || model == c.defaultModel || c.opener == nil {
		return c.provider, nil
	}
	return c.opener(model)
}

func (c *Client) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Generate runs a single completion and returns the assistant text.
func (c *Client) Generate(ctx context.Context, messages []llm.Message, model string) (string, error) {
	provider, err := c.providerFor(model)
	if err != nil {
		return "", fmt.Errorf("resolving provider: %w", err)
	}

	callCtx, cancel := c.callCtx(ctx)
	defer cancel()

	resp, err := provider.Chat(callCtx, llm.ChatRequest{Messages: messages})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// StreamChat runs one chat turn and emits its output as events. The
// underlying provider call is synchronous; content and tool requests
// are replayed onto the channel in order.
func (c *Client) StreamChat(ctx context.Context, messages []llm.Message, model string, tools []llm.ToolDef) (<-chan TurnEvent, error) {
	provider, err := c.providerFor(model)
	if err != nil {
		return nil, fmt.Errorf("resolving provider: %w", err)
	}

	events := make(chan TurnEvent, 8)
	go func() {
		defer close(events)

		callCtx, cancel := c.callCtx(ctx)
		defer cancel()

		resp, err := provider.Chat(callCtx, llm.ChatRequest{
			Messages: messages,
			Tools:    tools,
		})
		if err != nil {
			emit(ctx, events, TurnEvent{Kind: EventError, Err: err})
			return
		}

		if strings.TrimSpace(resp.Content) != "" {
			if !emit(ctx, events, TurnEvent{Kind: EventContent, Delta: resp.Content}) {
				return
			}
		}
		for _, call := range resp.ToolCalls {
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

func emit(ctx context.Context, ch chan<- TurnEvent, ev TurnEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
