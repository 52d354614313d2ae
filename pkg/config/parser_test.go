package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/unitflow/unitflow/pkg/engine"
)

const validCatalog = `
catalog: {
	name: "test-catalog"
	version: "1.0"
}

units: {
	double: {
		name: "Double"
		category: "transform"
		timeout: "5s"
		inputs: {
			value: {type: "number", required: true}
		}
		outputs: {
			result: {type: "number"}
		}
		script: """
			result = input["value"] * 2
			"""
	}
	report: {
		name: "Report"
		dependencies: ["double"]
		inputs: {
			result: {type: "number", required: true}
		}
		outputs: {
			text: {type: "string"}
		}
		script: """
			text = "result is " + str(input["result"])
			"""
	}
}
`

func TestParser_ParseInline(t *testing.T) {
	parser := NewParser()

	tests := []struct {
		name      string
		content   string
		wantErrs  bool
		checkFunc func(*testing.T, *ParsedCatalog)
	}{
		{
			name:    "valid catalog",
			content: validCatalog,
			checkFunc: func(t *testing.T, pc *ParsedCatalog) {
				if pc.Catalog.Name != "test-catalog" {
					t.Errorf("expected catalog name 'test-catalog', got %s", pc.Catalog.Name)
				}
				if len(pc.Units) != 2 {
					t.Fatalf("expected 2 units, got %d", len(pc.Units))
				}
				// Units are sorted by id.
				if pc.Units[0].ID != "double" || pc.Units[1].ID != "report" {
					t.Errorf("unexpected unit order: %s, %s", pc.Units[0].ID, pc.Units[1].ID)
				}
				if pc.Units[0].Timeout != "5s" {
					t.Errorf("expected timeout '5s', got %s", pc.Units[0].Timeout)
				}
				if len(pc.Units[1].Dependencies) != 1 || pc.Units[1].Dependencies[0] != "double" {
					t.Errorf("unexpected dependencies: %v", pc.Units[1].Dependencies)
				}
			},
		},
		{
			name: "map key becomes unit id",
			content: `
units: {
	fetch: {
		name: "Fetch"
		script: "out = 1"
	}
}
`,
			checkFunc: func(t *testing.T, pc *ParsedCatalog) {
				if len(pc.Units) != 1 {
					t.Fatalf("expected 1 unit, got %d", len(pc.Units))
				}
				if pc.Units[0].ID != "fetch" {
					t.Errorf("expected id 'fetch', got %s", pc.Units[0].ID)
				}
			},
		},
		{
			name: "invalid CUE syntax",
			content: `
units: {
	broken syntax here
}
`,
			wantErrs: true,
		},
		{
			name:     "no units declared",
			content:  `catalog: {name: "empty"}`,
			wantErrs: true,
		},
		{
			name: "missing script",
			content: `
units: {
	broken: {
		name: "Broken"
	}
}
`,
			wantErrs: true,
		},
		{
			name: "invalid timeout",
			content: `
units: {
	slow: {
		name: "Slow"
		timeout: "5 parsecs"
		script: "out = 1"
	}
}
`,
			wantErrs: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc, err := parser.ParseInline(tt.content)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.wantErrs {
				if len(pc.Errors) == 0 {
					t.Errorf("expected validation errors, got none")
				}
				return
			}

			if len(pc.Errors) > 0 {
				t.Fatalf("unexpected validation errors: %v", pc.Errors)
			}
			if tt.checkFunc != nil {
				tt.checkFunc(t, pc)
			}
		})
	}
}

func TestParser_ParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.cue")
	if err := os.WriteFile(path, []byte(validCatalog), 0o644); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}

	parser := NewParser()
	pc, err := parser.Parse([]string{path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pc.Errors) > 0 {
		t.Fatalf("unexpected validation errors: %v", pc.Errors)
	}
	if len(pc.Units) != 2 {
		t.Errorf("expected 2 units, got %d", len(pc.Units))
	}
	if len(pc.SourceFiles) != 1 || pc.SourceFiles[0] != path {
		t.Errorf("unexpected source files: %v", pc.SourceFiles)
	}
}

func TestParser_ParseUnifiesSources(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "meta.cue")
	second := filepath.Join(dir, "units.cue")

	if err := os.WriteFile(first, []byte(`catalog: {name: "split"}`), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if err := os.WriteFile(second, []byte(`
units: {
	only: {
		name: "Only"
		script: "out = 1"
	}
}
`), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	parser := NewParser()
	pc, err := parser.Parse([]string{first, second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pc.Errors) > 0 {
		t.Fatalf("unexpected validation errors: %v", pc.Errors)
	}
	if pc.Catalog.Name != "split" {
		t.Errorf("expected catalog name 'split', got %s", pc.Catalog.Name)
	}
	if len(pc.Units) != 1 {
		t.Errorf("expected 1 unit, got %d", len(pc.Units))
	}
}

func TestParser_ParseNoSources(t *testing.T) {
	parser := NewParser()
	if _, err := parser.Parse(nil); err == nil {
		t.Error("expected error for empty sources")
	}
}

func TestParsedCatalog_ToDefinitions(t *testing.T) {
	parser := NewParser()
	pc, err := parser.ParseInline(validCatalog)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pc.Errors) > 0 {
		t.Fatalf("unexpected validation errors: %v", pc.Errors)
	}

	defs, err := pc.ToDefinitions()
	if err != nil {
		t.Fatalf("failed to convert: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}

	double := defs[0]
	if double.ID != "double" {
		t.Fatalf("expected first definition 'double', got %s", double.ID)
	}
	if double.Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", double.Timeout)
	}
	field, ok := double.Inputs["value"]
	if !ok {
		t.Fatal("expected input field 'value'")
	}
	if field.Type != engine.FieldTypeNumber || !field.Required {
		t.Errorf("unexpected input field: %+v", field)
	}
	if double.Executor == nil {
		t.Fatal("expected a script executor")
	}

	// The converted executor runs the unit's Starlark body.
	out, err := double.Executor.Invoke(context.Background(), engine.Record{"value": 21.0})
	if err != nil {
		t.Fatalf("executor failed: %v", err)
	}
	if out["result"] != 42.0 {
		t.Errorf("expected result 42.0, got %v", out["result"])
	}
}

func TestParsedCatalog_ToDefinitionsRejectsErrors(t *testing.T) {
	pc := &ParsedCatalog{
		Errors: []ValidationError{{Message: "broken"}},
	}
	if _, err := pc.ToDefinitions(); err == nil {
		t.Error("expected error for catalog with validation errors")
	}
}

func TestCatalogRegistersWithEngine(t *testing.T) {
	parser := NewParser()
	pc, err := parser.ParseInline(validCatalog)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	defs, err := pc.ToDefinitions()
	if err != nil {
		t.Fatalf("failed to convert: %v", err)
	}

	registry := engine.NewRegistry()
	if err := registry.RegisterAll(defs); err != nil {
		t.Fatalf("failed to register catalog units: %v", err)
	}
	if err := registry.ValidateGraph(); err != nil {
		t.Fatalf("failed to validate registry: %v", err)
	}

	planner := engine.NewPlanner(registry)
	plan, err := planner.BuildPlan(engine.RequestedSet{Primary: "report"})
	if err != nil {
		t.Fatalf("failed to build plan: %v", err)
	}
	if len(plan.Layers) != 2 {
		t.Errorf("expected 2 layers, got %d", len(plan.Layers))
	}
}
