package backend

import (
	"context"
	"testing"
	"time"

	"github.com/vinayprograms/agentkit/llm"
)

func TestClientGenerate(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.SetResponse("hello there")

	client := NewClient(provider, "default-model", 0)
	out, err := client.Generate(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, "")
	if err != nil {
		t.Fatal(err)
	}
	if out != "hello there" {
		t.Errorf("out = %q", out)
	}
}

func TestClientStreamChatContent(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.SetResponse("streamed answer")

	client := NewClient(provider, "default-model", time.Minute)
	events, err := client.StreamChat(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, "", nil)
	if err != nil {
		t.Fatal(err)
	}

	var got []TurnEvent
	for ev := range events {
		got = append(got, ev)
	}
	if len(got) != 1 {
		t.Fatalf("events = %d", len(got))
	}
	if got[0].Kind != EventContent || got[0].Delta != "streamed answer" {
		t.Errorf("event = %+v", got[0])
	}
}

func TestFakeReplaysScript(t *testing.T) {
	fake := NewFake(
		ScriptedTurn{Content: "first"},
		ScriptedTurn{Content: "second"},
	)

	ctx := context.Background()
	if out, _ := fake.Generate(ctx, nil, "m1"); out != "first" {
		t.Errorf("turn 1 = %q", out)
	}
	if out, _ := fake.Generate(ctx, nil, "m2"); out != "second" {
		t.Errorf("turn 2 = %q", out)
	}
	// The script repeats its last turn once exhausted.
	if out, _ := fake.Generate(ctx, nil, "m3"); out != "second" {
		t.Errorf("turn 3 = %q", out)
	}
	if fake.Calls() != 3 {
		t.Errorf("calls = %d", fake.Calls())
	}
	if fake.Models[0] != "m1" || fake.Models[2] != "m3" {
		t.Errorf("models = %v", fake.Models)
	}
}

func TestFakeStreamsToolCalls(t *testing.T) {
	fake := NewFake(ScriptedTurn{
		Content: "thinking out loud",
		ToolCalls: []llm.ToolCallResponse{
			{ID: "c1", Name: "search", Args: map[string]interface{}{"query": "weather"}},
		},
	})

	events, err := fake.StreamChat(context.Background(), nil, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	var got []TurnEvent
	for ev := range events {
		got = append(got, ev)
	}
	if len(got) != 2 {
		t.Fatalf("events = %+v", got)
	}
	if got[0].Kind != EventContent {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Kind != EventToolStart || got[1].ToolName != "search" || got[1].Args["query"] != "weather" {
		t.Errorf("second = %+v", got[1])
	}
}
