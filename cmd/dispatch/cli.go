// Package main defines the dispatch CLI using kong.
package main

// CLI is the command tree.
type CLI struct {
	Run     RunCmd     `cmd:"" help:"Process one request through the orchestration pipeline"`
	Skills  SkillsCmd  `cmd:"" help:"List discovered skills"`
	Memory  MemoryCmd  `cmd:"" help:"Inspect and edit tenant memory"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

// RunCmd processes a single request.
type RunCmd struct {
	Prompt  string `arg:"" help:"The request to process"`
	Tenant  string `short:"t" default:"default" help:"Tenant context to run under"`
	Config  string `short:"c" default:"dispatch.toml" help:"Config file path"`
	Cwd     string `help:"Working directory passed to tools that accept one"`
	Confirm bool   `help:"Approve dangerous tool calls without pausing"`
}

// SkillsCmd lists the skills visible to the engine.
type SkillsCmd struct {
	Config string `short:"c" default:"dispatch.toml" help:"Config file path"`
}

// VersionCmd prints build information.
type VersionCmd struct{}
