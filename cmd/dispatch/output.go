package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/openclaw/dispatch/internal/executor"
	"github.com/openclaw/dispatch/internal/plan"
)

// resumeStep re-runs a confirmation-gated step with approval set.
func resumeStep(ctx context.Context, rt *runtime, tenantName string, step plan.Step, req executor.Request) (*plan.StepResult, error) {
	t, err := rt.tenants.Get(tenantName)
	if err != nil {
		return nil, err
	}
	exec := executor.New(t.Tools(), rt.skills, rt.client, rt.store, rt.sink).
		WithDefaultModel(rt.cfg.Models.Default).
		WithToolTimeout(rt.cfg.Timeouts.Tool()).
		WithBudgets(rt.cfg.Budgets.MaxTurns, rt.cfg.Budgets.ToolCeiling)

	result, err := exec.Run(ctx, step, req, nil)
	if err != nil {
		return nil, fmt.Errorf("resuming step %s: %w", step.ID, err)
	}
	return result, nil
}

func renderResult(r *plan.StepResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] step %s (%s/%s)", r.Status, r.Step.ID, r.Step.Executor, r.Step.Action)
	if text, ok := r.Result["completion"].(string); ok && text != "" {
		b.WriteString("\n" + text)
	} else if text, ok := r.Result["output"].(string); ok && text != "" {
		b.WriteString("\n" + text)
	} else if reason, ok := r.Result["reason"].(string); ok {
		b.WriteString(": " + reason)
	} else if errText, ok := r.Result["error"].(string); ok {
		b.WriteString(": " + errText)
	}
	return b.String()
}
