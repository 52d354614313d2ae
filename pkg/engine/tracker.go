package engine

import (
	"sync"
	"time"
)

// TraceEntry records one status transition of one unit.
type TraceEntry struct {
	// UnitID is the unit that changed status.
	UnitID string `json:"unit_id"`

	// From is the status before the transition.
	From UnitStatus `json:"from"`

	// To is the status after the transition.
	To UnitStatus `json:"to"`

	// Attempt is the executor attempt number at the time of the transition,
	// starting at 1. Zero for transitions outside an attempt.
	Attempt int `json:"attempt,omitempty"`

	// Timestamp is when the transition was observed.
	Timestamp time.Time `json:"timestamp"`
}

// LayerSummary is the wall-clock duration of one execution layer.
type LayerSummary struct {
	// Layer is the layer index.
	Layer int `json:"layer"`

	// Units lists the unit ids in the layer.
	Units []string `json:"units"`

	// StartedAt is when the layer's execution window opened.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when every unit in the layer reached a terminal status.
	CompletedAt time.Time `json:"completed_at"`

	// Duration is CompletedAt - StartedAt.
	Duration time.Duration `json:"duration"`
}

// Tracker passively records status transitions and layer timings emitted by
// the scheduler. It never influences scheduling decisions. All methods are
// safe for concurrent use; units in the same layer record transitions from
// separate goroutines.
type Tracker struct {
	mu      sync.Mutex
	entries []TraceEntry
	layers  []LayerSummary
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Record appends one status transition. Implements TraceSink.
func (t *Tracker) Record(entry TraceEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry)
}

// LayerStarted opens a layer's timing window.
func (t *Tracker) LayerStarted(layer int, units []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.layers = append(t.layers, LayerSummary{
		Layer:     layer,
		Units:     append([]string{}, units...),
		StartedAt: time.Now(),
	})
}

// LayerCompleted closes the most recently started layer's timing window.
func (t *Tracker) LayerCompleted(layer int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.layers {
		if t.layers[i].Layer == layer {
			t.layers[i].CompletedAt = time.Now()
			t.layers[i].Duration = t.layers[i].CompletedAt.Sub(t.layers[i].StartedAt)
			return
		}
	}
}

// Trace returns a copy of the recorded transitions in observation order.
func (t *Tracker) Trace() []TraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]TraceEntry{}, t.entries...)
}

// Layers returns a copy of the per-layer duration summaries.
func (t *Tracker) Layers() []LayerSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]LayerSummary{}, t.layers...)
}

// EntriesFor returns the transitions recorded for one unit, in order.
func (t *Tracker) EntriesFor(unitID string) []TraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []TraceEntry
	for _, entry := range t.entries {
		if entry.UnitID == unitID {
			out = append(out, entry)
		}
	}
	return out
}
