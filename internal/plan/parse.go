package plan

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// fencedBlock matches ```json ... ``` and bare ``` ... ``` blocks.
var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)```")

// ParseResponse turns raw model output into a Plan, or reports that the
// text should be treated as a direct answer. Repair tiers, in order:
// fenced code block, then the substring between the first '{' and the
// last '}', then give up. Parsing defects never surface as errors; the
// caller always gets either a plan or the stripped raw text.
func ParseResponse(raw string) (*Plan, bool) {
	text := strings.TrimSpace(raw)
	if !strings.Contains(text, "{") || !strings.Contains(text, "}") {
		return nil, false
	}

	candidate := extractCandidate(text)

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return nil, false
	}

	// Planners sometimes emit "plan" where "steps" is expected.
	rawSteps, ok := obj["steps"]
	if !ok {
		rawSteps, ok = obj["plan"]
	}
	if !ok {
		return nil, false
	}

	arr, ok := rawSteps.([]interface{})
	if !ok {
		return nil, false
	}

	p := &Plan{}
	if desc, ok := obj["description"].(string); ok {
		p.Description = desc
	}

	for i, el := range arr {
		stepObj, ok := el.(map[string]interface{})
		if !ok {
			continue
		}
		p.Steps = append(p.Steps, repairStep(stepObj, i))
	}

	if len(p.Steps) == 0 {
		return nil, false
	}
	return p, true
}

// extractCandidate picks the JSON-bearing slice of the text: a fenced
// block when present, else first '{' through last '}'.
func extractCandidate(text string) string {
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}

// repairStep fills in defaults for fields the planner omitted. idx is
// the zero-based array position; synthesized ids are 1-based.
func repairStep(obj map[string]interface{}, idx int) Step {
	s := Step{
		Executor: ExecutorSkill,
		Action:   ActionSkill,
	}

	if id, ok := obj["id"]; ok {
		s.ID = stringify(id)
	}
	if s.ID == "" {
		s.ID = fmt.Sprintf("%d", idx+1)
	}

	if label, ok := obj["label"].(string); ok && label != "" {
		s.Label = label
	} else {
		s.Label = fmt.Sprintf("Step %d", idx+1)
	}

	if ex, ok := obj["executor"].(string); ok && ex != "" {
		s.Executor = ExecutorKind(ex)
	}
	if ac, ok := obj["action"].(string); ok && ac != "" {
		s.Action = Action(ac)
	}

	if tool, ok := obj["tool"].(string); ok && tool != "" {
		s.Tool = tool
	} else if skill, ok := obj["skill"].(string); ok && skill != "" {
		s.Tool = skill
	}

	if args, ok := obj["args"].(map[string]interface{}); ok {
		s.Args = args
	}
	if desc, ok := obj["description"].(string); ok {
		s.Description = desc
	}

	return s
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return ""
	}
}

// ExtractJSON extracts the first balanced JSON object from content that
// may contain surrounding prose. Returns "" when no complete object is
// found.
func ExtractJSON(content string) string {
	start := strings.Index(content, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}
