package engine

import (
	"errors"
	"testing"
)

func validatedRegistry(t *testing.T, defs ...*UnitDefinition) *Registry {
	t.Helper()
	r := NewRegistry()
	if err := r.RegisterAll(defs); err != nil {
		t.Fatalf("RegisterAll failed: %v", err)
	}
	return r
}

func TestPlanner_BuildPlan_SingleUnit(t *testing.T) {
	r := validatedRegistry(t, unit("solo"))
	planner := NewPlanner(r)

	plan, err := planner.BuildPlan(RequestedSet{Primary: "solo"})
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}

	if len(plan.Closure) != 1 || plan.Closure[0] != "solo" {
		t.Errorf("Expected closure [solo], got %v", plan.Closure)
	}
	if len(plan.Layers) != 1 {
		t.Fatalf("Expected 1 layer, got %d", len(plan.Layers))
	}
	if plan.ID == "" {
		t.Error("Expected a plan id")
	}
}

func TestPlanner_BuildPlan_ClosureExpansion(t *testing.T) {
	r := validatedRegistry(t,
		unit("base"),
		unit("mid", "base"),
		unit("top", "mid"),
	)
	planner := NewPlanner(r)

	plan, err := planner.BuildPlan(RequestedSet{Primary: "top"})
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}

	if len(plan.Closure) != 3 {
		t.Fatalf("Expected closure of 3, got %v", plan.Closure)
	}
	if len(plan.Layers) != 3 {
		t.Fatalf("Expected 3 layers, got %d", len(plan.Layers))
	}
	if plan.Layers[0][0] != "base" || plan.Layers[1][0] != "mid" || plan.Layers[2][0] != "top" {
		t.Errorf("Expected layers [base][mid][top], got %v", plan.Layers)
	}
}

func TestPlanner_BuildPlan_DiamondLayers(t *testing.T) {
	r := validatedRegistry(t,
		unit("base"),
		unit("left", "base"),
		unit("right", "base"),
		unit("top", "left", "right"),
	)
	planner := NewPlanner(r)

	plan, err := planner.BuildPlan(RequestedSet{Primary: "top"})
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}

	if len(plan.Layers) != 3 {
		t.Fatalf("Expected 3 layers, got %v", plan.Layers)
	}
	if len(plan.Layers[1]) != 2 {
		t.Errorf("Expected left and right in the middle layer, got %v", plan.Layers[1])
	}
	if plan.Layer("base") != 0 || plan.Layer("top") != 2 {
		t.Errorf("Expected base in layer 0 and top in layer 2, got %d and %d",
			plan.Layer("base"), plan.Layer("top"))
	}
}

func TestPlanner_BuildPlan_IndependentRequestedShareLayer(t *testing.T) {
	r := validatedRegistry(t, unit("a"), unit("b"), unit("c"))
	planner := NewPlanner(r)

	plan, err := planner.BuildPlan(RequestedSet{
		Primary:   "b",
		Secondary: []string{"c", "a"},
	})
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}

	if len(plan.Layers) != 1 {
		t.Fatalf("Expected a single layer, got %v", plan.Layers)
	}
	layer := plan.Layers[0]
	if layer[0] != "b" || layer[1] != "c" || layer[2] != "a" {
		t.Errorf("Expected request-order tie-break [b c a], got %v", layer)
	}
}

func TestPlanner_BuildPlan_UnknownPrimary(t *testing.T) {
	planner := NewPlanner(validatedRegistry(t, unit("a")))

	_, err := planner.BuildPlan(RequestedSet{Primary: "ghost"})
	if err == nil {
		t.Fatal("Expected unknown primary to fail")
	}

	var engErr *EngineError
	if !errors.As(err, &engErr) || engErr.Code != ErrCodeUnknownDep {
		t.Errorf("Expected code %s, got %v", ErrCodeUnknownDep, err)
	}
}

func TestPlanner_BuildPlan_MissingPrimary(t *testing.T) {
	planner := NewPlanner(validatedRegistry(t, unit("a")))

	_, err := planner.BuildPlan(RequestedSet{Secondary: []string{"a"}})
	if err == nil {
		t.Fatal("Expected request without primary to fail")
	}
}

func TestPlanner_BuildPlan_ExtraEdgeCycle(t *testing.T) {
	r := validatedRegistry(t, unit("a"), unit("b", "a"))
	planner := NewPlanner(r)

	_, err := planner.BuildPlan(RequestedSet{
		Primary: "b",
		ExtraDependencies: []DependencyEdge{
			{Unit: "a", DependsOn: "b"},
		},
	})
	if err == nil {
		t.Fatal("Expected extra-edge cycle to fail")
	}

	var engErr *EngineError
	if !errors.As(err, &engErr) || engErr.Code != ErrCodeCycleDetected {
		t.Errorf("Expected code %s, got %v", ErrCodeCycleDetected, err)
	}
}

func TestPlanner_BuildPlan_ExtraEdgeReordersLayers(t *testing.T) {
	r := validatedRegistry(t, unit("a"), unit("b"))
	planner := NewPlanner(r)

	plan, err := planner.BuildPlan(RequestedSet{
		Primary:   "b",
		Secondary: []string{"a"},
		ExtraDependencies: []DependencyEdge{
			{Unit: "b", DependsOn: "a"},
		},
	})
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}

	if len(plan.Layers) != 2 || plan.Layers[0][0] != "a" || plan.Layers[1][0] != "b" {
		t.Errorf("Expected extra edge to force [a][b], got %v", plan.Layers)
	}
	if deps := plan.Dependencies["b"]; len(deps) != 1 || deps[0] != "a" {
		t.Errorf("Expected b to depend on a, got %v", deps)
	}
}

func TestPlanner_BuildPlan_ExplicitParameterMappings(t *testing.T) {
	fetch := unit("fetch")
	fetch.Outputs = map[string]OutputField{"body": {Type: FieldTypeString}}
	analyze := unit("analyze", "fetch")
	analyze.Inputs = map[string]InputField{
		"text":  {Type: FieldTypeString, Required: true},
		"limit": {Type: FieldTypeInteger},
	}

	planner := NewPlanner(validatedRegistry(t, fetch, analyze))

	plan, err := planner.BuildPlan(RequestedSet{
		Primary: "analyze",
		Parameters: map[string]map[string]interface{}{
			"analyze": {
				"text":  `{{ $json.body }}`,
				"limit": 10,
			},
		},
	})
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}

	mappings := plan.Mappings["analyze"]
	if mappings["text"].Kind != MappingExpression {
		t.Errorf("Expected text to be an expression mapping, got %v", mappings["text"].Kind)
	}
	if mappings["limit"].Kind != MappingLiteral || mappings["limit"].Value != 10 {
		t.Errorf("Expected limit literal 10, got %+v", mappings["limit"])
	}
	if plan.Producers["analyze"] != "fetch" {
		t.Errorf("Expected fetch as the bound producer, got %q", plan.Producers["analyze"])
	}
}

func TestPlanner_BuildPlan_ImplicitSameNameMapping(t *testing.T) {
	fetch := unit("fetch")
	fetch.Outputs = map[string]OutputField{"body": {Type: FieldTypeString}}
	analyze := unit("analyze", "fetch")
	analyze.Inputs = map[string]InputField{"body": {Type: FieldTypeString, Required: true}}

	planner := NewPlanner(validatedRegistry(t, fetch, analyze))

	plan, err := planner.BuildPlan(RequestedSet{Primary: "analyze"})
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}

	mapping := plan.Mappings["analyze"]["body"]
	if mapping.Kind != MappingReference {
		t.Fatalf("Expected implicit reference mapping, got %v", mapping.Kind)
	}
	if mapping.Source != "fetch" || mapping.Field != "body" {
		t.Errorf("Expected reference fetch.body, got %s.%s", mapping.Source, mapping.Field)
	}
}

func TestPlanner_BuildPlan_NoImplicitMappingWithTwoDeps(t *testing.T) {
	left := unit("left")
	left.Outputs = map[string]OutputField{"value": {Type: FieldTypeNumber}}
	right := unit("right")
	right.Outputs = map[string]OutputField{"value": {Type: FieldTypeNumber}}
	merge := unit("merge", "left", "right")
	merge.Inputs = map[string]InputField{"value": {Type: FieldTypeNumber}}

	planner := NewPlanner(validatedRegistry(t, left, right, merge))

	plan, err := planner.BuildPlan(RequestedSet{Primary: "merge"})
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}

	if _, bound := plan.Mappings["merge"]["value"]; bound {
		t.Error("Expected no implicit mapping with an ambiguous producer")
	}
	if _, bound := plan.Producers["merge"]; bound {
		t.Error("Expected no short-form producer with two dependencies")
	}
}

func TestPlanner_BuildPlan_ParameterOutsidePlan(t *testing.T) {
	planner := NewPlanner(validatedRegistry(t, unit("a"), unit("b")))

	_, err := planner.BuildPlan(RequestedSet{
		Primary: "a",
		Parameters: map[string]map[string]interface{}{
			"b": {"x": 1},
		},
	})
	if err == nil {
		t.Fatal("Expected parameters for an out-of-plan unit to fail")
	}
}

func TestPlanner_BuildPlan_MalformedExpressionParameter(t *testing.T) {
	planner := NewPlanner(validatedRegistry(t, unit("a")))

	_, err := planner.BuildPlan(RequestedSet{
		Primary: "a",
		Parameters: map[string]map[string]interface{}{
			"a": {"text": `{{ $json.body `},
		},
	})
	if err == nil {
		t.Fatal("Expected malformed expression to fail at build time")
	}

	var engErr *EngineError
	if !errors.As(err, &engErr) || engErr.Code != ErrCodeExprSyntax {
		t.Errorf("Expected code %s, got %v", ErrCodeExprSyntax, err)
	}
}

func TestPlanner_BuildPlan_UndeclaredParameterCarriedAsLiteral(t *testing.T) {
	free := unit("free")
	planner := NewPlanner(validatedRegistry(t, free))

	plan, err := planner.BuildPlan(RequestedSet{
		Primary: "free",
		Parameters: map[string]map[string]interface{}{
			"free": {"anything": "goes"},
		},
	})
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}

	mapping := plan.Mappings["free"]["anything"]
	if mapping.Kind != MappingLiteral || mapping.Value != "goes" {
		t.Errorf("Expected undeclared parameter as literal, got %+v", mapping)
	}
}
