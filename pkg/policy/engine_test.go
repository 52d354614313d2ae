package policy

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/unitflow/unitflow/pkg/engine"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}
	return e
}

// smallPlan is a plan document that passes every built-in policy.
func smallPlan() *PlanDocument {
	return &PlanDocument{
		ID:            "plan-1",
		Primary:       "analyze",
		Requested:     []string{"analyze"},
		ClosureSize:   2,
		LayerCount:    2,
		MaxLayerWidth: 1,
		Units: []UnitDocument{
			{ID: "fetch", Category: "data", Layer: 0, TimeoutMS: 30000, MaxRetries: 2},
			{ID: "analyze", Category: "transform", Layer: 1, TimeoutMS: 5000, Dependencies: []string{"fetch"}},
		},
	}
}

func TestEngine_BuiltinPoliciesLoaded(t *testing.T) {
	e := testEngine(t)

	policies := e.ListPolicies()
	if len(policies) != 5 {
		t.Errorf("expected 5 built-in policies, got %d", len(policies))
	}

	for _, name := range []string{"plan-size", "layer-width", "unit-timeouts", "retry-budget", "external-units"} {
		if _, err := e.GetPolicy(name); err != nil {
			t.Errorf("expected policy %s to be loaded: %v", name, err)
		}
	}

	if _, err := e.GetPolicy("missing"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestEngine_CleanPlanIsAllowed(t *testing.T) {
	e := testEngine(t)

	result, err := e.EvaluatePlan(context.Background(), smallPlan(), nil)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	if !result.Allowed {
		t.Errorf("expected plan to be allowed, violations: %+v", result.Violations)
	}
	if len(result.Violations) != 0 {
		t.Errorf("expected no violations, got %+v", result.Violations)
	}
	if len(result.EvaluatedPolicies) != 5 {
		t.Errorf("expected 5 evaluated policies, got %d", len(result.EvaluatedPolicies))
	}
}

func TestEngine_OversizedPlanDenied(t *testing.T) {
	e := testEngine(t)

	plan := smallPlan()
	plan.ClosureSize = 150

	result, err := e.EvaluatePlan(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	if result.Allowed {
		t.Error("expected oversized plan to be denied")
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "plan-size" && v.Severity == SeverityError {
			found = true
		}
	}
	if !found {
		t.Errorf("expected plan-size error violation, got %+v", result.Violations)
	}
}

func TestEngine_LargePlanWarnsOnly(t *testing.T) {
	e := testEngine(t)

	plan := smallPlan()
	plan.ClosureSize = 30

	result, err := e.EvaluatePlan(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	if !result.Allowed {
		t.Errorf("expected plan to be allowed, violations: %+v", result.Violations)
	}
	if len(result.Violations) != 1 || result.Violations[0].Severity != SeverityWarning {
		t.Errorf("expected one warning, got %+v", result.Violations)
	}
}

func TestEngine_MissingTimeoutWarns(t *testing.T) {
	e := testEngine(t)

	plan := smallPlan()
	plan.Units[0].TimeoutMS = 0

	result, err := e.EvaluatePlan(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	if !result.Allowed {
		t.Errorf("expected plan to be allowed, violations: %+v", result.Violations)
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "unit-timeouts" && v.Unit == "fetch" && v.Severity == SeverityWarning {
			found = true
		}
	}
	if !found {
		t.Errorf("expected unit-timeouts warning for fetch, got %+v", result.Violations)
	}
}

func TestEngine_ExcessiveTimeoutDenied(t *testing.T) {
	e := testEngine(t)

	plan := smallPlan()
	plan.Units[0].TimeoutMS = 600000

	result, err := e.EvaluatePlan(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	if result.Allowed {
		t.Error("expected plan with excessive timeout to be denied")
	}
}

func TestEngine_ExcessiveRetriesDenied(t *testing.T) {
	e := testEngine(t)

	plan := smallPlan()
	plan.Units[0].MaxRetries = 10

	result, err := e.EvaluatePlan(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	if result.Allowed {
		t.Error("expected plan with excessive retries to be denied")
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "retry-budget" && v.Unit == "fetch" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected retry-budget violation for fetch, got %+v", result.Violations)
	}
}

func TestEngine_ExternalUnitsInProduction(t *testing.T) {
	e := testEngine(t)

	plan := smallPlan()
	plan.Units[0].Tags = []string{"http", "external"}

	// Blocked without approval.
	result, err := e.EvaluatePlan(context.Background(), plan, &Context{Environment: "production"})
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if result.Allowed {
		t.Error("expected external unit to be blocked in production")
	}

	// Allowed with approval.
	result, err = e.EvaluatePlan(context.Background(), plan, &Context{
		Environment: "production",
		Metadata:    map[string]interface{}{"approved": true},
	})
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("expected approved plan to be allowed, violations: %+v", result.Violations)
	}

	// Dry runs only warn.
	result, err = e.EvaluatePlan(context.Background(), plan, &Context{
		Environment: "production",
		DryRun:      true,
	})
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("expected dry run to be allowed, violations: %+v", result.Violations)
	}
	if len(result.Violations) == 0 {
		t.Error("expected dry run to carry a warning")
	}

	// Staging is unrestricted.
	result, err = e.EvaluatePlan(context.Background(), plan, &Context{Environment: "staging"})
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if !result.Allowed || len(result.Violations) != 0 {
		t.Errorf("expected staging plan to pass cleanly, got %+v", result.Violations)
	}
}

func TestEngine_DisableAndEnablePolicy(t *testing.T) {
	e := testEngine(t)

	plan := smallPlan()
	plan.ClosureSize = 150

	if err := e.DisablePolicy("plan-size"); err != nil {
		t.Fatalf("failed to disable policy: %v", err)
	}

	result, err := e.EvaluatePlan(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("expected plan to be allowed with plan-size disabled, violations: %+v", result.Violations)
	}
	if len(result.EvaluatedPolicies) != 4 {
		t.Errorf("expected 4 evaluated policies, got %d", len(result.EvaluatedPolicies))
	}

	if err := e.EnablePolicy("plan-size"); err != nil {
		t.Fatalf("failed to enable policy: %v", err)
	}

	result, err = e.EvaluatePlan(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if result.Allowed {
		t.Error("expected plan to be denied after re-enabling plan-size")
	}

	if err := e.DisablePolicy("missing"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestBuildPlanDocument(t *testing.T) {
	registry := engine.NewRegistry()
	defs := []*engine.UnitDefinition{
		{
			ID:       "fetch",
			Name:     "Fetch",
			Category: "data",
			Tags:     []string{"external"},
			Timeout:  30 * time.Second,
			Executor: engine.ExecutorFunc(func(ctx context.Context, input engine.Record) (engine.Record, error) {
				return input, nil
			}),
		},
		{
			ID:           "analyze",
			Name:         "Analyze",
			Category:     "transform",
			Dependencies: []string{"fetch"},
			Executor: engine.ExecutorFunc(func(ctx context.Context, input engine.Record) (engine.Record, error) {
				return input, nil
			}),
		},
	}
	if err := registry.RegisterAll(defs); err != nil {
		t.Fatalf("failed to register units: %v", err)
	}
	if err := registry.ValidateGraph(); err != nil {
		t.Fatalf("failed to validate registry: %v", err)
	}

	plan, err := engine.NewPlanner(registry).BuildPlan(engine.RequestedSet{Primary: "analyze"})
	if err != nil {
		t.Fatalf("failed to build plan: %v", err)
	}

	doc := BuildPlanDocument(plan, registry)

	if doc.Primary != "analyze" {
		t.Errorf("expected primary 'analyze', got %s", doc.Primary)
	}
	if doc.ClosureSize != 2 || doc.LayerCount != 2 || doc.MaxLayerWidth != 1 {
		t.Errorf("unexpected plan shape: %+v", doc)
	}
	if len(doc.Units) != 2 {
		t.Fatalf("expected 2 unit documents, got %d", len(doc.Units))
	}

	byID := map[string]UnitDocument{}
	for _, u := range doc.Units {
		byID[u.ID] = u
	}
	fetch := byID["fetch"]
	if fetch.Category != "data" || fetch.Layer != 0 || fetch.TimeoutMS != 30000 {
		t.Errorf("unexpected fetch document: %+v", fetch)
	}
	analyze := byID["analyze"]
	if analyze.Layer != 1 || len(analyze.Dependencies) != 1 || analyze.Dependencies[0] != "fetch" {
		t.Errorf("unexpected analyze document: %+v", analyze)
	}
}
