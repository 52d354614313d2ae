package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func echoExecutor() Executor {
	return ExecutorFunc(func(_ context.Context, input Record) (Record, error) {
		return input, nil
	})
}

func unit(id string, deps ...string) *UnitDefinition {
	return &UnitDefinition{
		ID:           id,
		Name:         id,
		Dependencies: deps,
		Executor:     echoExecutor(),
	}
}

func TestRegistry_Register_Duplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(unit("fetch")); err != nil {
		t.Fatalf("Expected first registration to succeed, got: %v", err)
	}

	err := r.Register(unit("fetch"))
	if err == nil {
		t.Fatal("Expected duplicate registration to fail")
	}

	var engErr *EngineError
	if !errors.As(err, &engErr) {
		t.Fatalf("Expected *EngineError, got %T", err)
	}
	if engErr.Code != ErrCodeDuplicateUnitID {
		t.Errorf("Expected code %s, got %s", ErrCodeDuplicateUnitID, engErr.Code)
	}

	if r.Count() != 1 {
		t.Errorf("Expected registry to keep the original unit, count = %d", r.Count())
	}
}

func TestRegistry_Register_NilExecutor(t *testing.T) {
	r := NewRegistry()
	def := unit("fetch")
	def.Executor = nil

	if err := r.Register(def); err == nil {
		t.Fatal("Expected registration without executor to fail")
	}
}

func TestRegistry_ValidateGraph_UnknownDependency(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(unit("analyze", "fetch")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	err := r.ValidateGraph()
	if err == nil {
		t.Fatal("Expected validation to fail for unknown dependency")
	}

	var engErr *EngineError
	if !errors.As(err, &engErr) {
		t.Fatalf("Expected *EngineError, got %T", err)
	}
	if engErr.Code != ErrCodeUnknownDep {
		t.Errorf("Expected code %s, got %s", ErrCodeUnknownDep, engErr.Code)
	}
}

func TestRegistry_ValidateGraph_Cycle(t *testing.T) {
	r := NewRegistry()
	for _, def := range []*UnitDefinition{
		unit("a", "b"),
		unit("b", "c"),
		unit("c", "a"),
	} {
		if err := r.Register(def); err != nil {
			t.Fatalf("Register %s failed: %v", def.ID, err)
		}
	}

	err := r.ValidateGraph()
	if err == nil {
		t.Fatal("Expected cycle to be rejected")
	}

	var engErr *EngineError
	if !errors.As(err, &engErr) {
		t.Fatalf("Expected *EngineError, got %T", err)
	}
	if engErr.Code != ErrCodeCycleDetected {
		t.Errorf("Expected code %s, got %s", ErrCodeCycleDetected, engErr.Code)
	}
	if !strings.Contains(engErr.Message, "->") {
		t.Errorf("Expected cycle path in message, got %q", engErr.Message)
	}
}

func TestRegistry_ValidateGraph_DiamondIsAcyclic(t *testing.T) {
	r := NewRegistry()
	for _, def := range []*UnitDefinition{
		unit("base"),
		unit("left", "base"),
		unit("right", "base"),
		unit("top", "left", "right"),
	} {
		if err := r.Register(def); err != nil {
			t.Fatalf("Register %s failed: %v", def.ID, err)
		}
	}

	if err := r.ValidateGraph(); err != nil {
		t.Fatalf("Expected diamond to validate, got: %v", err)
	}

	if ok, _ := r.Validated(); !ok {
		t.Error("Expected registry to report validated")
	}
}

func TestRegistry_Register_InvalidatesGraph(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(unit("a")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.ValidateGraph(); err != nil {
		t.Fatalf("ValidateGraph failed: %v", err)
	}

	if err := r.Register(unit("b", "a")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if ok, _ := r.Validated(); ok {
		t.Error("Expected registration to reset the validated flag")
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	def := unit("fetch")
	def.Category = "data"
	def.Tags = []string{"http"}
	if err := r.Register(def); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if !r.Unregister("fetch") {
		t.Fatal("Expected Unregister to report removal")
	}
	if r.Exists("fetch") {
		t.Error("Expected unit to be gone")
	}
	if len(r.ListByCategory("data")) != 0 {
		t.Error("Expected category index to be cleaned up")
	}
	if len(r.ListByTag("http")) != 0 {
		t.Error("Expected tag index to be cleaned up")
	}
	if r.Unregister("fetch") {
		t.Error("Expected second Unregister to report no removal")
	}
}

func TestRegistry_Indexes(t *testing.T) {
	r := NewRegistry()
	a := unit("a")
	a.Category = "data"
	a.Tags = []string{"io", "net"}
	b := unit("b")
	b.Category = "data"
	b.Tags = []string{"io"}
	c := unit("c")
	c.Category = "math"

	if err := r.RegisterAll([]*UnitDefinition{a, b, c}); err != nil {
		t.Fatalf("RegisterAll failed: %v", err)
	}

	if got := len(r.ListByCategory("data")); got != 2 {
		t.Errorf("Expected 2 units in category data, got %d", got)
	}
	if got := len(r.ListByTag("io")); got != 2 {
		t.Errorf("Expected 2 units with tag io, got %d", got)
	}
	if got := len(r.ListByTag("net")); got != 1 {
		t.Errorf("Expected 1 unit with tag net, got %d", got)
	}

	categories := r.Categories()
	if len(categories) != 2 || categories[0] != "data" || categories[1] != "math" {
		t.Errorf("Expected sorted categories [data math], got %v", categories)
	}
}
