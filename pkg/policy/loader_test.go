package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

const sampleRego = `# Denies plans with more than three layers
package unitflow.policies.depth

import rego.v1

deny contains violation if {
	input.plan.layer_count > 3
	violation := {
		"message": "plan is too deep",
		"severity": "warning",
	}
}
`

func TestLoader_LoadRegoFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan-depth.rego")
	if err := os.WriteFile(path, []byte(sampleRego), 0o644); err != nil {
		t.Fatalf("failed to write policy: %v", err)
	}

	loader := NewLoader(zerolog.Nop())
	policies, err := loader.LoadFromPaths(context.Background(), []string{path})
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	if len(policies) != 1 {
		t.Fatalf("expected 1 policy, got %d", len(policies))
	}

	p := policies[0]
	if p.Name != "plan-depth" {
		t.Errorf("expected name 'plan-depth', got %s", p.Name)
	}
	if p.Description != "Denies plans with more than three layers" {
		t.Errorf("unexpected description: %s", p.Description)
	}
	if p.Severity != SeverityWarning {
		t.Errorf("expected default warning severity, got %s", p.Severity)
	}
	if !p.Enabled {
		t.Error("expected loaded policy to be enabled")
	}
}

func TestLoader_LoadDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.rego"), []byte(sampleRego), 0o644); err != nil {
		t.Fatalf("failed to write policy: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.json"), []byte(`{
		"name": "json-policy",
		"rego": "package unitflow.policies.json\n",
		"severity": "error"
	}`), 0o644); err != nil {
		t.Fatalf("failed to write policy: %v", err)
	}
	// Non-policy files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	loader := NewLoader(zerolog.Nop())
	policies, err := loader.LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	if len(policies) != 2 {
		t.Fatalf("expected 2 policies, got %d", len(policies))
	}

	byName := map[string]Policy{}
	for _, p := range policies {
		byName[p.Name] = p
	}
	if byName["json-policy"].Severity != SeverityError {
		t.Errorf("expected json policy to keep error severity, got %s", byName["json-policy"].Severity)
	}
}

func TestLoader_CacheAndClear(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cached.rego")
	if err := os.WriteFile(path, []byte(sampleRego), 0o644); err != nil {
		t.Fatalf("failed to write policy: %v", err)
	}

	loader := NewLoader(zerolog.Nop())
	first, err := loader.loadFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}

	// Second load returns the cached policy even after the file changes.
	if err := os.WriteFile(path, []byte("# changed\npackage unitflow.policies.depth\n"), 0o644); err != nil {
		t.Fatalf("failed to rewrite policy: %v", err)
	}
	second, err := loader.loadFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if second.Rego != first.Rego {
		t.Error("expected cached policy to be returned")
	}

	loader.ClearCache()
	third, err := loader.loadFromFile(context.Background(), path)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if third.Rego == first.Rego {
		t.Error("expected fresh policy after cache clear")
	}
}

func TestLoader_LoadedPolicyCompilesAndEvaluates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan-depth.rego")
	if err := os.WriteFile(path, []byte(sampleRego), 0o644); err != nil {
		t.Fatalf("failed to write policy: %v", err)
	}

	e := testEngine(t)
	if err := e.LoadPolicies(context.Background(), []string{path}); err != nil {
		t.Fatalf("failed to load policies: %v", err)
	}

	plan := smallPlan()
	plan.LayerCount = 5

	result, err := e.EvaluatePlan(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	found := false
	for _, v := range result.Violations {
		if v.Policy == "plan-depth" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected plan-depth violation, got %+v", result.Violations)
	}
	if !result.Allowed {
		t.Error("expected warning violation to keep plan allowed")
	}
}

func TestLoader_UnreadablePathFails(t *testing.T) {
	loader := NewLoader(zerolog.Nop())
	if _, err := loader.LoadFromPaths(context.Background(), []string{"/does/not/exist"}); err == nil {
		t.Error("expected error for missing path")
	}
}
