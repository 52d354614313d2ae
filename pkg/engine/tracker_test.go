package engine

import (
	"testing"
	"time"
)

func TestTracker_RecordsTransitionsInOrder(t *testing.T) {
	tr := NewTracker()

	tr.Record(TraceEntry{UnitID: "a", From: UnitStatusPending, To: UnitStatusRunning, Attempt: 1})
	tr.Record(TraceEntry{UnitID: "a", From: UnitStatusRunning, To: UnitStatusSucceeded, Attempt: 1})

	trace := tr.Trace()
	if len(trace) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(trace))
	}
	if trace[0].To != UnitStatusRunning || trace[1].To != UnitStatusSucceeded {
		t.Errorf("Expected running then succeeded, got %s then %s", trace[0].To, trace[1].To)
	}
	if trace[0].Timestamp.IsZero() {
		t.Error("Expected zero timestamps to be filled in")
	}
}

func TestTracker_EntriesFor(t *testing.T) {
	tr := NewTracker()
	tr.Record(TraceEntry{UnitID: "a", From: UnitStatusPending, To: UnitStatusRunning})
	tr.Record(TraceEntry{UnitID: "b", From: UnitStatusPending, To: UnitStatusSkipped})
	tr.Record(TraceEntry{UnitID: "a", From: UnitStatusRunning, To: UnitStatusFailed})

	entries := tr.EntriesFor("a")
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries for a, got %d", len(entries))
	}
	if entries[1].To != UnitStatusFailed {
		t.Errorf("Expected final transition to failed, got %s", entries[1].To)
	}
}

func TestTracker_LayerWindows(t *testing.T) {
	tr := NewTracker()

	tr.LayerStarted(0, []string{"a", "b"})
	time.Sleep(5 * time.Millisecond)
	tr.LayerCompleted(0)
	tr.LayerStarted(1, []string{"c"})
	tr.LayerCompleted(1)

	layers := tr.Layers()
	if len(layers) != 2 {
		t.Fatalf("Expected 2 layer summaries, got %d", len(layers))
	}
	if layers[0].Duration <= 0 {
		t.Errorf("Expected positive duration for layer 0, got %v", layers[0].Duration)
	}
	if len(layers[0].Units) != 2 || len(layers[1].Units) != 1 {
		t.Errorf("Expected unit lists [2 1], got %v", layers)
	}
}

func TestTracker_TraceReturnsCopy(t *testing.T) {
	tr := NewTracker()
	tr.Record(TraceEntry{UnitID: "a", From: UnitStatusPending, To: UnitStatusRunning})

	trace := tr.Trace()
	trace[0].UnitID = "mutated"

	if tr.Trace()[0].UnitID != "a" {
		t.Error("Expected Trace to return an isolated copy")
	}
}
