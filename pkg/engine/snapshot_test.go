package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	source := NewRegistry()
	fetch := unit("fetch")
	fetch.Category = "data"
	fetch.Timeout = 30 * time.Second
	fetch.Outputs = map[string]OutputField{
		"body": {Type: FieldTypeString},
	}
	report := unit("report", "fetch")
	report.MaxRetries = 2
	report.Inputs = map[string]InputField{
		"body": {Type: FieldTypeString, Required: true},
	}
	if err := source.RegisterAll([]*UnitDefinition{fetch, report}); err != nil {
		t.Fatalf("RegisterAll failed: %v", err)
	}

	data, err := source.ExportSnapshot().MarshalYAML()
	if err != nil {
		t.Fatalf("MarshalYAML failed: %v", err)
	}

	snap, err := UnmarshalSnapshotYAML(data)
	if err != nil {
		t.Fatalf("UnmarshalSnapshotYAML failed: %v", err)
	}
	if len(snap.Units) != 2 {
		t.Fatalf("Expected 2 snapshotted units, got %d", len(snap.Units))
	}

	restored := NewRegistry()
	bindings := map[string]Executor{
		"fetch": ExecutorFunc(func(_ context.Context, _ Record) (Record, error) {
			return Record{"body": "hello"}, nil
		}),
		"report": echoExecutor(),
	}
	if err := restored.ImportSnapshot(snap, bindings); err != nil {
		t.Fatalf("ImportSnapshot failed: %v", err)
	}

	if restored.Count() != 2 {
		t.Fatalf("Expected 2 restored units, got %d", restored.Count())
	}
	if ok, verr := restored.Validated(); !ok {
		t.Fatalf("Expected restored registry to be validated, got: %v", verr)
	}

	def := restored.Get("report")
	if def == nil {
		t.Fatal("Expected report to survive the round trip")
	}
	if len(def.Dependencies) != 1 || def.Dependencies[0] != "fetch" {
		t.Fatalf("Expected dependency on fetch, got %v", def.Dependencies)
	}
	if def.MaxRetries != 2 {
		t.Fatalf("Expected MaxRetries 2, got %d", def.MaxRetries)
	}
	if !def.Inputs["body"].Required {
		t.Fatal("Expected required input flag to survive the round trip")
	}

	// The rebound executor must answer for the restored definition.
	output, err := restored.Get("fetch").Executor.Invoke(context.Background(), Record{})
	if err != nil {
		t.Fatalf("Rebound executor failed: %v", err)
	}
	if output["body"] != "hello" {
		t.Fatalf("Expected rebound executor output, got %v", output)
	}
}

func TestSnapshot_ImportMissingExecutor(t *testing.T) {
	source := NewRegistry()
	if err := source.RegisterAll([]*UnitDefinition{unit("fetch"), unit("report", "fetch")}); err != nil {
		t.Fatalf("RegisterAll failed: %v", err)
	}

	restored := NewRegistry()
	err := restored.ImportSnapshot(source.ExportSnapshot(), map[string]Executor{
		"fetch": echoExecutor(),
	})
	if err == nil {
		t.Fatal("Expected import without a report binding to fail")
	}

	var engErr *EngineError
	if !errors.As(err, &engErr) {
		t.Fatalf("Expected *EngineError, got %T", err)
	}
	if engErr.Code != ErrCodeValidation || engErr.Unit != "report" {
		t.Fatalf("Expected %s for report, got code=%s unit=%s", ErrCodeValidation, engErr.Code, engErr.Unit)
	}
}

func TestSnapshot_ImportNil(t *testing.T) {
	if err := NewRegistry().ImportSnapshot(nil, nil); err == nil {
		t.Fatal("Expected nil snapshot to be rejected")
	}
}

func TestUnmarshalSnapshotYAML_Invalid(t *testing.T) {
	_, err := UnmarshalSnapshotYAML([]byte("units:\n  - {id: [not, a, string"))
	if err == nil {
		t.Fatal("Expected malformed YAML to be rejected")
	}

	var engErr *EngineError
	if !errors.As(err, &engErr) || engErr.Code != ErrCodeValidation {
		t.Fatalf("Expected %s, got %v", ErrCodeValidation, err)
	}
}
