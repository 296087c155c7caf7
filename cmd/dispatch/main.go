package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/vinayprograms/agentkit/credentials"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// globalCreds holds loaded credentials (file > env fallback happens
// in GetAPIKey).
var globalCreds *credentials.Credentials

func init() {
	if creds, _, err := credentials.Load(); err == nil && creds != nil {
		globalCreds = creds
	}
	_ = godotenv.Load()
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("dispatch"),
		kong.Description("Multi-tenant agent task orchestration engine"),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch kctx.Command() {
	case "run <prompt>":
		err = cli.Run.Execute(ctx)
	case "skills":
		err = cli.Skills.Execute()
	case "memory add <content>":
		err = cli.Memory.Add.Execute(ctx)
	case "memory search <query>":
		err = cli.Memory.Search.Execute(ctx)
	case "memory forget <id>":
		err = cli.Memory.Forget.Execute(ctx)
	case "version":
		fmt.Printf("dispatch %s (%s, built %s)\n", version, commit, buildTime)
	default:
		err = fmt.Errorf("unknown command %q", kctx.Command())
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
