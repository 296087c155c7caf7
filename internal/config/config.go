// Package config loads dispatch.toml.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the full service configuration.
type Config struct {
	Models    Models                  `toml:"models"`
	Timeouts  Timeouts                `toml:"timeouts"`
	Budgets   Budgets                 `toml:"budgets"`
	Skills    Skills                  `toml:"skills"`
	Memory    Memory                  `toml:"memory"`
	Events    Events                  `toml:"events"`
	Telemetry Telemetry               `toml:"telemetry"`
	Tenants   map[string]TenantConfig `toml:"tenants"`
}

// Models names the model for each role.
type Models struct {
	Default string `toml:"default"`
	Grader  string `toml:"grader"`
	Router  string `toml:"router"`
}

// Timeouts bounds individual external calls, in seconds.
type Timeouts struct {
	CompletionSeconds int `toml:"completion_seconds"`
	ToolSeconds       int `toml:"tool_seconds"`
}

// Completion returns the completion deadline.
func (t Timeouts) Completion() time.Duration {
	return time.Duration(t.CompletionSeconds) * time.Second
}

// Tool returns the tool invocation deadline.
func (t Timeouts) Tool() time.Duration {
	return time.Duration(t.ToolSeconds) * time.Second
}

// Budgets caps agentic loops.
type Budgets struct {
	MaxTurns    int `toml:"max_turns"`
	ToolCeiling int `toml:"tool_ceiling"`
}

// Skills configures skill discovery.
type Skills struct {
	Paths     []string `toml:"paths"`
	HotReload bool     `toml:"hot_reload"`
}

// Memory configures the note index.
type Memory struct {
	Path string `toml:"path"`
}

// Events configures the event sink.
type Events struct {
	NATSURL       string `toml:"nats_url"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// Telemetry configures trace export.
type Telemetry struct {
	Enabled  bool   `toml:"enabled"`
	Protocol string `toml:"protocol"`
	Endpoint string `toml:"endpoint"`
}

// TenantConfig grants a tenant its tool set. An empty Tools list
// grants everything.
type TenantConfig struct {
	Tools []string `toml:"tools"`
}

// Permissions converts the tool list to the registry filter shape.
// nil means unrestricted.
func (t TenantConfig) Permissions() map[string]bool {
	if len(t.Tools) == 0 {
		return nil
	}
	perms := make(map[string]bool, len(t.Tools))
	for _, name := range t.Tools {
		perms[name] = true
	}
	return perms
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Models: Models{
			Default: "claude-sonnet-4-5",
			Grader:  "claude-haiku-4-5",
		},
		Timeouts: Timeouts{
			CompletionSeconds: 120,
			ToolSeconds:       120,
		},
		Budgets: Budgets{
			MaxTurns:    10,
			ToolCeiling: 5,
		},
		Skills: Skills{
			Paths: []string{"./skills"},
		},
		Events: Events{
			SubjectPrefix: "dispatch.events",
		},
	}
}

// Load reads path over the defaults. A missing file returns the
// defaults untouched.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Models.Default == "" {
		return fmt.Errorf("models.default must be set")
	}
	if c.Budgets.MaxTurns <= 0 {
		return fmt.Errorf("budgets.max_turns must be positive")
	}
	if c.Budgets.ToolCeiling <= 0 {
		return fmt.Errorf("budgets.tool_ceiling must be positive")
	}
	if c.Timeouts.CompletionSeconds < 0 || c.Timeouts.ToolSeconds < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// GraderModel returns the grading model, falling back to the default.
func (c *Config) GraderModel() string {
	if c.Models.Grader != "" {
		return c.Models.Grader
	}
	return c.Models.Default
}

// RouterModel returns the routing model, falling back to the default.
func (c *Config) RouterModel() string {
	if c.Models.Router != "" {
		return c.Models.Router
	}
	return c.Models.Default
}
