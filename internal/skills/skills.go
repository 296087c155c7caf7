// Package skills provides prompt-defined sub-agent ("skill") loading
// and lookup. Skills are folders containing SKILL.md with yaml
// frontmatter and an instruction template body.
package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultMaxTurns bounds a skill delegation loop when the skill does
// not configure its own budget.
const DefaultMaxTurns = 10

// Skill represents a loaded skill.
type Skill struct {
	// From frontmatter
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	Category     string `yaml:"category,omitempty"`
	AllowedTools string `yaml:"allowed-tools,omitempty"`
	Model        string `yaml:"model,omitempty"`
	MaxTurns     int    `yaml:"max-turns,omitempty"`

	// From content
	Instructions string `yaml:"-"`

	// Location
	Path string `yaml:"-"`
}

// QualifiedName returns category/name when a category is set, else the
// bare name. Planners reference skills by qualified name.
func (s *Skill) QualifiedName() string {
	if s.Category == "" {
		return s.Name
	}
	return s.Category + "/" + s.Name
}

// ToolAllowlist returns the allowed tool names, or nil when the skill
// places no restriction.
func (s *Skill) ToolAllowlist() []string {
	if strings.TrimSpace(s.AllowedTools) == "" {
		return nil
	}
	parts := strings.Split(s.AllowedTools, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// TurnBudget returns the skill's max-turn budget, applying the default.
func (s *Skill) TurnBudget() int {
	if s.MaxTurns > 0 {
		return s.MaxTurns
	}
	return DefaultMaxTurns
}

var templateVar = regexp.MustCompile(`\$([a-zA-Z_][a-zA-Z0-9_]*)`)

// Render interpolates $variables in the instruction template from args.
// It fails when the template references a variable the args do not
// provide.
func (s *Skill) Render(args map[string]interface{}) (string, error) {
	var missing []string
	rendered := templateVar.ReplaceAllStringFunc(s.Instructions, func(match string) string {
		name := strings.TrimPrefix(match, "$")
		if v, ok := args[name]; ok {
			return fmt.Sprintf("%v", v)
		}
		missing = append(missing, name)
		return match
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("skill %s: unresolved template variables: %s", s.Name, strings.Join(missing, ", "))
	}
	return rendered, nil
}

// Load loads a skill from a directory containing SKILL.md.
func Load(skillDir string) (*Skill, error) {
	content, err := os.ReadFile(filepath.Join(skillDir, "SKILL.md"))
	if err != nil {
		return nil, fmt.Errorf("failed to read SKILL.md: %w", err)
	}

	skill, err := Parse(string(content))
	if err != nil {
		return nil, err
	}
	skill.Path = skillDir
	return skill, nil
}

// Parse parses SKILL.md content.
func Parse(content string) (*Skill, error) {
	frontmatter, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, err
	}

	skill := &Skill{}
	if err := yaml.Unmarshal([]byte(frontmatter), skill); err != nil {
		return nil, fmt.Errorf("invalid frontmatter: %w", err)
	}
	if skill.Name == "" {
		return nil, fmt.Errorf("missing required field: name")
	}
	if skill.Description == "" {
		return nil, fmt.Errorf("missing required field: description")
	}
	if err := validateName(skill.Name); err != nil {
		return nil, err
	}

	skill.Instructions = strings.TrimSpace(body)
	return skill, nil
}

// splitFrontmatter extracts yaml frontmatter from markdown.
func splitFrontmatter(content string) (frontmatter, body string, err error) {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", "", fmt.Errorf("missing frontmatter delimiter")
	}

	var fmLines []string
	var bodyStart int
	inFrontmatter := true

	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			inFrontmatter = false
			bodyStart = i + 1
			break
		}
		fmLines = append(fmLines, lines[i])
	}
	if inFrontmatter {
		return "", "", fmt.Errorf("unclosed frontmatter")
	}

	frontmatter = strings.Join(fmLines, "\n")
	if bodyStart < len(lines) {
		body = strings.Join(lines[bodyStart:], "\n")
	}
	return frontmatter, body, nil
}

// validateName validates a skill name.
func validateName(name string) error {
	if len(name) == 0 || len(name) > 64 {
		return fmt.Errorf("name must be 1-64 characters")
	}
	if strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-") {
		return fmt.Errorf("name cannot start or end with hyphen")
	}
	if strings.Contains(name, "--") {
		return fmt.Errorf("name cannot contain consecutive hyphens")
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-') {
			return fmt.Errorf("name can only contain lowercase letters, numbers, and hyphens")
		}
	}
	return nil
}

// Discover loads all skills found under a directory. Invalid skills are
// skipped.
func Discover(skillsDir string) ([]*Skill, error) {
	entries, err := os.ReadDir(skillsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []*Skill
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(skillsDir, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, "SKILL.md")); os.IsNotExist(err) {
			continue
		}
		skill, err := Load(dir)
		if err != nil {
			continue
		}
		out = append(out, skill)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
