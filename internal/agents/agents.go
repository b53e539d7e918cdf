// Package agents is the in-process stand-in for the agent backend: a fixed
// catalog that can be launched, stepped and asked to explain audit traces.
package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"supernova/api/internal/routes"
)

const Category = "agents"

// DefaultCatalog lists the agents the dashboard can launch.
var DefaultCatalog = []string{
	"CI_PRProtectorAgent",
	"CodeGuardianAgent",
	"CollaborativePlannerAgent",
	"GuardianInterceptorAgent",
	"MetaValidatorAgent",
	"ObserverAgent",
}

type agentState struct {
	backend  string
	provider string
	steps    int
}

type Runtime struct {
	catalog []string

	mu       sync.Mutex
	launched map[string]*agentState
}

func NewRuntime(catalog []string) *Runtime {
	if len(catalog) == 0 {
		catalog = DefaultCatalog
	}
	sorted := append([]string(nil), catalog...)
	sort.Strings(sorted)
	return &Runtime{catalog: sorted, launched: make(map[string]*agentState)}
}

func (r *Runtime) List() []string {
	return append([]string(nil), r.catalog...)
}

func (r *Runtime) known(name string) bool {
	i := sort.SearchStrings(r.catalog, name)
	return i < len(r.catalog) && r.catalog[i] == name
}

type LaunchInput struct {
	Agents     []string
	LLMBackend string
	Provider   string
	APIKey     string
}

type LaunchResult struct {
	Launched   []string `json:"launched"`
	LLMBackend string   `json:"llm_backend"`
	Provider   string   `json:"provider,omitempty"`
	APIKeySet  bool     `json:"api_key_set"`
}

// Launch starts the named agents. Relaunching an agent resets its steps.
func (r *Runtime) Launch(_ context.Context, input LaunchInput) (LaunchResult, error) {
	if len(input.Agents) == 0 {
		return LaunchResult{}, routes.Invalid("agents", "at least one agent is required")
	}
	for _, name := range input.Agents {
		if !r.known(name) {
			return LaunchResult{}, routes.Invalid("agents", "unknown agent %q", name)
		}
	}
	backend := strings.TrimSpace(input.LLMBackend)
	if backend == "" {
		backend = "dummy"
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	launched := make([]string, 0, len(input.Agents))
	for _, name := range input.Agents {
		r.launched[name] = &agentState{backend: backend, provider: strings.TrimSpace(input.Provider)}
		launched = append(launched, name)
	}
	sort.Strings(launched)
	return LaunchResult{
		Launched:   launched,
		LLMBackend: backend,
		Provider:   strings.TrimSpace(input.Provider),
		APIKeySet:  strings.TrimSpace(input.APIKey) != "",
	}, nil
}

type StepResult struct {
	Steps  map[string]int `json:"steps"`
	Active int            `json:"active"`
}

// Step advances every launched agent by one tick.
func (r *Runtime) Step(context.Context) StepResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	steps := make(map[string]int, len(r.launched))
	for name, state := range r.launched {
		state.steps++
		steps[name] = state.steps
	}
	return StepResult{Steps: steps, Active: len(r.launched)}
}

// ExplainAudit renders a short human-readable summary of an audit trace.
func ExplainAudit(trace map[string]any) string {
	if len(trace) == 0 {
		return "Audit trace is empty."
	}
	keys := make([]string, 0, len(trace))
	for key := range trace {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	if id, ok := trace["id"].(string); ok && id != "" {
		fmt.Fprintf(&b, "Audit trace %s", id)
	} else {
		b.WriteString("Audit trace")
	}
	fmt.Fprintf(&b, " with %d fields (%s).", len(keys), strings.Join(keys, ", "))
	for _, key := range keys {
		if steps, ok := trace[key].([]any); ok {
			fmt.Fprintf(&b, " %s has %d entries.", key, len(steps))
		}
	}
	return b.String()
}

func (r *Runtime) RegisterRoutes(registry *routes.Registry) {
	registry.RegisterOnce("list_agents", r.handleList, "List launchable agents", Category)
	registry.RegisterOnce("launch_agents", r.handleLaunch, "Launch agents on an LLM backend", Category)
	registry.RegisterOnce("step_agents", r.handleStep, "Advance launched agents one step", Category)
	registry.RegisterOnce("explain_audit", handleExplainAudit, "Explain an audit trace", Category)
}

func (r *Runtime) handleList(context.Context, map[string]any, routes.Call) (any, error) {
	return map[string]any{"agents": r.List()}, nil
}

func (r *Runtime) handleLaunch(ctx context.Context, payload map[string]any, _ routes.Call) (any, error) {
	names, err := routes.Strings(payload, "agents")
	if err != nil {
		return nil, routes.Invalid("agents", "%v", err)
	}
	return r.Launch(ctx, LaunchInput{
		Agents:     names,
		LLMBackend: routes.String(payload, "llm_backend"),
		Provider:   routes.String(payload, "provider"),
		APIKey:     routes.String(payload, "api_key"),
	})
}

func (r *Runtime) handleStep(ctx context.Context, _ map[string]any, _ routes.Call) (any, error) {
	return r.Step(ctx), nil
}

func handleExplainAudit(_ context.Context, payload map[string]any, _ routes.Call) (any, error) {
	trace, ok := routes.Object(payload, "trace")
	if !ok {
		return nil, routes.Invalid("trace", "must be an object")
	}
	return ExplainAudit(trace), nil
}
