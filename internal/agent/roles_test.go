package agent

import (
	"context"
	"strings"
	"testing"
)

func TestInterpolate(t *testing.T) {
	got := interpolate("plan for {{backlog}} using {{plan_result}}", map[string]string{
		"backlog":     "ship v2",
		"plan_result": "step list",
	})
	want := "plan for ship v2 using step list"
	if got != want {
		t.Errorf("interpolate = %q, want %q", got, want)
	}
}

func TestInterpolate_UnknownPlaceholderKept(t *testing.T) {
	got := interpolate("review {{executor_result}}", map[string]string{"other": "x"})
	if !strings.Contains(got, "{{executor_result}}") {
		t.Errorf("unknown placeholder was removed: %q", got)
	}
}

func TestLLMAdapter_InvokeBuildsPrompt(t *testing.T) {
	var gotSystem, gotUser string
	client := NewClient(providerFunc(func(ctx context.Context, system, user string) (string, error) {
		gotSystem, gotUser = system, user
		return "plan ready", nil
	}))

	adapter := NewLLMAdapter("planner", "be a planner", "Backlog:\n{{backlog}}", client)
	out, err := adapter.Invoke(context.Background(), "plan", map[string]string{"backlog": "fix auth"})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if out != "plan ready" {
		t.Errorf("output = %q", out)
	}
	if gotSystem != "be a planner" {
		t.Errorf("system prompt = %q", gotSystem)
	}
	if !strings.Contains(gotUser, "fix auth") {
		t.Errorf("user prompt missing input: %q", gotUser)
	}
}

func TestStockRolesWireTemplates(t *testing.T) {
	var prompts []string
	client := NewClient(providerFunc(func(ctx context.Context, system, user string) (string, error) {
		prompts = append(prompts, user)
		return "ok", nil
	}))

	planner := NewPlanner(client)
	executor := NewExecutor(client)
	reviewer := NewReviewer(client)

	ctx := context.Background()
	planner.Invoke(ctx, "plan", map[string]string{"backlog": "the backlog"})
	executor.Invoke(ctx, "execute", map[string]string{"planner_result": "the plan"})
	reviewer.Invoke(ctx, "review", map[string]string{"executor_result": "the report"})

	if !strings.Contains(prompts[0], "the backlog") {
		t.Errorf("planner prompt missing backlog: %q", prompts[0])
	}
	if !strings.Contains(prompts[1], "the plan") {
		t.Errorf("executor prompt missing plan output: %q", prompts[1])
	}
	if !strings.Contains(prompts[2], "the report") {
		t.Errorf("reviewer prompt missing execution report: %q", prompts[2])
	}
}

// providerFunc adapts a func to the Provider interface.
type providerFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

func (f providerFunc) Name() string { return "func" }

func (f providerFunc) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f(ctx, systemPrompt, userPrompt)
}
