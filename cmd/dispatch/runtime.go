package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/telemetry"

	"github.com/openclaw/dispatch/internal/backend"
	"github.com/openclaw/dispatch/internal/config"
	"github.com/openclaw/dispatch/internal/engine"
	"github.com/openclaw/dispatch/internal/events"
	"github.com/openclaw/dispatch/internal/executor"
	"github.com/openclaw/dispatch/internal/memory"
	"github.com/openclaw/dispatch/internal/orchestrator"
	"github.com/openclaw/dispatch/internal/skills"
	"github.com/openclaw/dispatch/internal/supervision"
	"github.com/openclaw/dispatch/internal/tenant"
	"github.com/openclaw/dispatch/internal/tools"
)

// runtime wires the pipeline for one CLI invocation.
type runtime struct {
	cfg     *config.Config
	skills  *skills.Registry
	tools   *tools.Registry
	tenants *tenant.Directory
	client  *backend.Client
	sink    events.Sink
	store   *memory.BleveStore
	telem   telemetry.Exporter
	closers []func()
}

func newRuntime(configPath string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg}

	if err := rt.setupTelemetry(); err != nil {
		return nil, err
	}
	if err := rt.setupBackend(); err != nil {
		rt.close()
		return nil, err
	}
	if err := rt.setupCollaborators(); err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) addCloser(fn func()) {
	rt.closers = append(rt.closers, fn)
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

func (rt *runtime) setupTelemetry() error {
	var err error
	if rt.cfg.Telemetry.Enabled {
		rt.telem, err = telemetry.NewExporter(rt.cfg.Telemetry.Protocol, rt.cfg.Telemetry.Endpoint)
		if err != nil {
			return fmt.Errorf("creating telemetry exporter: %w", err)
		}
	} else {
		rt.telem = telemetry.NewNoopExporter()
	}
	rt.addCloser(func() { rt.telem.Close() })
	return nil
}

func (rt *runtime) setupBackend() error {
	provider, err := openProvider(rt.cfg.Models.Default)
	if err != nil {
		return err
	}
	rt.client = backend.NewClient(provider, rt.cfg.Models.Default, rt.cfg.Timeouts.Completion()).
		WithOpener(openProvider)
	return nil
}

func (rt *runtime) setupCollaborators() error {
	rt.skills = skills.NewRegistry(rt.cfg.Skills.Paths)
	rt.tools = tools.NewRegistry()
	rt.tenants = tenant.NewDirectory(rt.tools)
	for name, tc := range rt.cfg.Tenants {
		rt.tenants.Register(name, tc.Permissions())
	}
	if _, err := rt.tenants.Get("default"); err != nil {
		rt.tenants.Register("default", nil)
	}

	store, err := memory.OpenBleve(rt.cfg.Memory.Path)
	if err != nil {
		return fmt.Errorf("opening memory store: %w", err)
	}
	rt.store = store
	rt.addCloser(func() { store.Close() })

	if rt.cfg.Events.NATSURL != "" {
		sink, err := events.NewNATSSink(rt.cfg.Events.NATSURL, rt.cfg.Events.SubjectPrefix)
		if err != nil {
			return fmt.Errorf("connecting event sink: %w", err)
		}
		rt.sink = events.Fanout{sink, events.NewLogSink()}
		rt.addCloser(func() { sink.Close() })
	} else {
		rt.sink = events.NewLogSink()
	}
	return nil
}

// engineFor assembles the pipeline for one tenant.
func (rt *runtime) engineFor(name string) (*engine.Engine, error) {
	t, err := rt.tenants.Get(name)
	if err != nil {
		return nil, err
	}

	exec := executor.New(t.Tools(), rt.skills, rt.client, rt.store, rt.sink).
		WithDefaultModel(rt.cfg.Models.Default).
		WithToolTimeout(rt.cfg.Timeouts.Tool()).
		WithBudgets(rt.cfg.Budgets.MaxTurns, rt.cfg.Budgets.ToolCeiling)
	orch := orchestrator.New(rt.client, rt.skills, rt.sink, rt.cfg.RouterModel())
	planReview := supervision.NewPlanReviewer(rt.skills, rt.sink)
	stepReview := supervision.NewStepReviewer(rt.client, rt.cfg.GraderModel())

	return engine.New(orch, exec, planReview, stepReview, rt.sink), nil
}

// openProvider builds an agentkit provider for a model name.
func openProvider(model string) (llm.Provider, error) {
	providerName := llm.InferProviderFromModel(model)
	if providerName == "" {
		return nil, fmt.Errorf("cannot infer provider for model %q", model)
	}

	apiKey := ""
	if globalCreds != nil {
		apiKey = globalCreds.GetAPIKey(providerName)
	}
	if apiKey == "" {
		apiKey = os.Getenv("LLM_API_KEY")
	}

	provider, err := llm.NewProvider(llm.ProviderConfig{
		Provider: providerName,
		Model:    model,
		APIKey:   apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating provider for %s: %w", model, err)
	}
	return provider, nil
}

// Execute runs one request through the pipeline.
func (c *RunCmd) Execute(ctx context.Context) error {
	rt, err := newRuntime(c.Config)
	if err != nil {
		return err
	}
	defer rt.close()

	if rt.cfg.Skills.HotReload {
		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go rt.skills.Watch(watchCtx)
	}

	eng, err := rt.engineFor(c.Tenant)
	if err != nil {
		return err
	}

	req := executor.Request{
		Prompt: c.Prompt,
		Tenant: c.Tenant,
		Cwd:    c.Cwd,
	}
	outcome := eng.Run(ctx, req, nil)

	if outcome.Paused != nil {
		if !c.Confirm {
			fmt.Printf("Paused: %s\nRe-run with --confirm to approve.\n", outcome.Paused.Error())
			return nil
		}
		step := outcome.Paused.Step
		step.Args = step.CloneArgs()
		step.Args["confirm_dangerous_action"] = true
		result, err := resumeStep(ctx, rt, c.Tenant, step, req)
		if err != nil {
			return err
		}
		fmt.Println(renderResult(result))
		return nil
	}

	if outcome.Answer != "" {
		fmt.Println(outcome.Answer)
		return nil
	}
	for _, r := range outcome.Results {
		fmt.Println(renderResult(r))
	}
	return nil
}

// Execute lists skills.
func (c *SkillsCmd) Execute() error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	reg := skills.NewRegistry(cfg.Skills.Paths)
	all := reg.All()
	sort.Slice(all, func(i, j int) bool { return all[i].QualifiedName() < all[j].QualifiedName() })
	for _, s := range all {
		fmt.Printf("%-30s %s\n", s.QualifiedName(), s.Description)
	}
	return nil
}
