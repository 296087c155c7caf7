package plan

import "testing"

func TestParseResponseFencedJSON(t *testing.T) {
	raw := "Here is the plan:\n```json\n{\"description\": \"do things\", \"steps\": [{\"id\": \"1\", \"label\": \"First\", \"executor\": \"agent\", \"action\": \"tool\", \"tool\": \"shell\", \"args\": {\"cmd\": \"ls\"}}]}\n```\nDone."

	p, ok := ParseResponse(raw)
	if !ok {
		t.Fatal("expected a plan")
	}
	if p.Description != "do things" {
		t.Errorf("description = %q", p.Description)
	}
	if len(p.Steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(p.Steps))
	}
	s := p.Steps[0]
	if s.ID != "1" || s.Tool != "shell" || s.Executor != ExecutorAgent || s.Action != ActionTool {
		t.Errorf("step = %+v", s)
	}
}

func TestParseResponseBareFence(t *testing.T) {
	raw := "```\n{\"steps\": [{\"tool\": \"general/homey\"}]}\n```"
	p, ok := ParseResponse(raw)
	if !ok {
		t.Fatal("expected a plan")
	}
	if p.Steps[0].Tool != "general/homey" {
		t.Errorf("tool = %q", p.Steps[0].Tool)
	}
}

func TestParseResponseBraceSlice(t *testing.T) {
	raw := "Sure, here you go: {\"steps\": [{\"id\": \"a\", \"tool\": \"search\"}]} hope that helps"
	p, ok := ParseResponse(raw)
	if !ok {
		t.Fatal("expected a plan")
	}
	if len(p.Steps) != 1 || p.Steps[0].ID != "a" {
		t.Errorf("steps = %+v", p.Steps)
	}
}

func TestParseResponseNoBraces(t *testing.T) {
	if _, ok := ParseResponse("105"); ok {
		t.Error("plain text must not parse as a plan")
	}
	if _, ok := ParseResponse("The answer is forty-two."); ok {
		t.Error("prose must not parse as a plan")
	}
}

func TestParseResponsePlanKeyRename(t *testing.T) {
	raw := "{\"plan\": [{\"tool\": \"search\"}]}"
	p, ok := ParseResponse(raw)
	if !ok {
		t.Fatal("expected a plan from the plan key")
	}
	if len(p.Steps) != 1 {
		t.Errorf("steps = %d", len(p.Steps))
	}
}

func TestParseResponseSynthesizesDefaults(t *testing.T) {
	raw := "{\"steps\": [{\"skill\": \"research\"}, {\"tool\": \"shell\"}]}"
	p, ok := ParseResponse(raw)
	if !ok {
		t.Fatal("expected a plan")
	}
	first := p.Steps[0]
	if first.ID != "1" {
		t.Errorf("synthesized id = %q, want 1", first.ID)
	}
	if first.Label != "Step 1" {
		t.Errorf("synthesized label = %q", first.Label)
	}
	if first.Executor != ExecutorSkill || first.Action != ActionSkill {
		t.Errorf("synthesized executor/action = %s/%s", first.Executor, first.Action)
	}
	if first.Tool != "research" {
		t.Errorf("tool from skill key = %q", first.Tool)
	}
	if p.Steps[1].ID != "2" {
		t.Errorf("second synthesized id = %q, want 2", p.Steps[1].ID)
	}
}

func TestParseResponseDropsNonObjects(t *testing.T) {
	raw := "{\"steps\": [\"just a string\", {\"tool\": \"search\"}, 42]}"
	p, ok := ParseResponse(raw)
	if !ok {
		t.Fatal("expected a plan")
	}
	if len(p.Steps) != 1 {
		t.Fatalf("steps = %d, want 1 after dropping non-objects", len(p.Steps))
	}
	// The surviving element keeps its array position for id synthesis.
	if p.Steps[0].ID != "2" {
		t.Errorf("id = %q, want 2", p.Steps[0].ID)
	}
}

func TestParseResponseZeroValidSteps(t *testing.T) {
	for _, raw := range []string{
		"{\"steps\": []}",
		"{\"steps\": [\"a\", \"b\"]}",
		"{\"steps\": \"not an array\"}",
		"{\"other\": true}",
		"{broken json",
	} {
		if _, ok := ParseResponse(raw); ok {
			t.Errorf("%q: expected direct-answer fallback", raw)
		}
	}
}

func TestParseResponseNumericID(t *testing.T) {
	raw := "{\"steps\": [{\"id\": 3, \"tool\": \"search\"}]}"
	p, ok := ParseResponse(raw)
	if !ok {
		t.Fatal("expected a plan")
	}
	if p.Steps[0].ID != "3" {
		t.Errorf("id = %q, want 3", p.Steps[0].ID)
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`prefix {"a": 1} suffix`, `{"a": 1}`},
		{`{"a": {"b": 2}}`, `{"a": {"b": 2}}`},
		{`{"a": "has } brace"}`, `{"a": "has } brace"}`},
		{`{"a": "escaped \" quote}"}`, `{"a": "escaped \" quote}"}`},
		{`no json here`, ``},
		{`{"unterminated": true`, ``},
	}
	for _, tc := range cases {
		if got := ExtractJSON(tc.in); got != tc.want {
			t.Errorf("ExtractJSON(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStepArgHelpers(t *testing.T) {
	s := Step{Args: map[string]interface{}{
		"query":   "lights",
		"limit":   float64(7),
		"strlim":  "12",
		"badlim":  "x2",
		"confirm": true,
	}}

	if got := s.StringArg("query"); got != "lights" {
		t.Errorf("StringArg = %q", got)
	}
	if got := s.IntArg("limit", 5); got != 7 {
		t.Errorf("IntArg float = %d", got)
	}
	if got := s.IntArg("strlim", 5); got != 12 {
		t.Errorf("IntArg string = %d", got)
	}
	if got := s.IntArg("badlim", 5); got != 5 {
		t.Errorf("IntArg bad string = %d, want default", got)
	}
	if got := s.IntArg("absent", 5); got != 5 {
		t.Errorf("IntArg absent = %d, want default", got)
	}
	if !s.BoolArg("confirm") {
		t.Error("BoolArg true not detected")
	}
	if s.BoolArg("query") {
		t.Error("non-bool must not count as true")
	}
}

func TestCloneArgsIsolation(t *testing.T) {
	s := Step{Args: map[string]interface{}{"a": 1}}
	clone := s.CloneArgs()
	clone["a"] = 2
	clone["b"] = 3
	if s.Args["a"] != 1 {
		t.Error("clone mutation leaked into the step")
	}
	if _, ok := s.Args["b"]; ok {
		t.Error("clone addition leaked into the step")
	}
}
