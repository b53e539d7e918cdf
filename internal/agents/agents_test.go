package agents

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"supernova/api/internal/routes"
)

func TestLaunchAndStep(t *testing.T) {
	runtime := NewRuntime(nil)
	ctx := context.Background()

	if got := runtime.Step(ctx); got.Active != 0 || len(got.Steps) != 0 {
		t.Fatalf("expected idle runtime, got %+v", got)
	}

	result, err := runtime.Launch(ctx, LaunchInput{Agents: []string{"ObserverAgent", "MetaValidatorAgent"}, APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	want := LaunchResult{Launched: []string{"MetaValidatorAgent", "ObserverAgent"}, LLMBackend: "dummy", APIKeySet: true}
	if diff := cmp.Diff(want, result); diff != "" {
		t.Fatalf("launch mismatch (-want +got):\n%s", diff)
	}

	runtime.Step(ctx)
	got := runtime.Step(ctx)
	if diff := cmp.Diff(StepResult{Steps: map[string]int{"MetaValidatorAgent": 2, "ObserverAgent": 2}, Active: 2}, got); diff != "" {
		t.Fatalf("step mismatch (-want +got):\n%s", diff)
	}
}

func TestLaunchRejectsUnknownAgents(t *testing.T) {
	runtime := NewRuntime(nil)
	var validation *routes.ValidationError
	if _, err := runtime.Launch(context.Background(), LaunchInput{Agents: []string{"Skynet"}}); !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := runtime.Launch(context.Background(), LaunchInput{}); !errors.As(err, &validation) {
		t.Fatalf("expected validation error for empty launch, got %v", err)
	}
}

func TestExplainAudit(t *testing.T) {
	got := ExplainAudit(map[string]any{"id": "a1", "steps": []any{"x", "y"}, "actor": "bot"})
	want := "Audit trace a1 with 3 fields (actor, id, steps). steps has 2 entries."
	if got != want {
		t.Fatalf("ExplainAudit() = %q, want %q", got, want)
	}
	if got := ExplainAudit(nil); !strings.Contains(got, "empty") {
		t.Fatalf("unexpected empty explanation %q", got)
	}
}

func TestAgentRoutes(t *testing.T) {
	registry := routes.NewRegistry()
	NewRuntime([]string{"B", "A"}).RegisterRoutes(registry)
	ctx := context.Background()

	listed, err := registry.Dispatch(ctx, "list_agents", nil, routes.Call{})
	if err != nil {
		t.Fatalf("list_agents error = %v", err)
	}
	if diff := cmp.Diff([]string{"A", "B"}, listed.(map[string]any)["agents"]); diff != "" {
		t.Fatalf("agents mismatch (-want +got):\n%s", diff)
	}

	if _, err := registry.Dispatch(ctx, "launch_agents", map[string]any{"agents": []any{"A"}, "provider": "openai"}, routes.Call{}); err != nil {
		t.Fatalf("launch_agents error = %v", err)
	}
	if _, err := registry.Dispatch(ctx, "launch_agents", map[string]any{"agents": "A"}, routes.Call{}); err == nil {
		t.Fatal("expected non-list agents payload to fail")
	}

	stepped, err := registry.Dispatch(ctx, "step_agents", nil, routes.Call{})
	if err != nil {
		t.Fatalf("step_agents error = %v", err)
	}
	if stepped.(StepResult).Steps["A"] != 1 {
		t.Fatalf("unexpected step result %+v", stepped)
	}

	explained, err := registry.Dispatch(ctx, "explain_audit", map[string]any{"trace": map[string]any{"k": 1}}, routes.Call{})
	if err != nil {
		t.Fatalf("explain_audit error = %v", err)
	}
	if _, ok := explained.(string); !ok {
		t.Fatalf("expected string explanation, got %T", explained)
	}
	if _, err := registry.Dispatch(ctx, "explain_audit", map[string]any{}, routes.Call{}); err == nil {
		t.Fatal("expected missing trace to fail")
	}
}
