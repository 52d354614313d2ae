package engine

import (
	"time"
)

// Record is an input or output data record passed between units.
// Values are plain JSON-compatible Go values: string, bool, float64/int,
// []interface{}, map[string]interface{}.
type Record map[string]interface{}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// InputField declares one field of a unit's input schema.
type InputField struct {
	// Type is the declared field type.
	Type FieldType `json:"type"`

	// Description is the human-readable field description.
	Description string `json:"description,omitempty"`

	// Required indicates the field must be present after resolution.
	Required bool `json:"required,omitempty"`

	// Default is the value used when the field is left unresolved.
	Default interface{} `json:"default,omitempty"`

	// HasDefault distinguishes an explicit nil default from no default.
	HasDefault bool `json:"has_default,omitempty"`

	// Enum restricts the field to one of the listed values, if non-empty.
	Enum []interface{} `json:"enum,omitempty"`
}

// OutputField declares one field of a unit's output schema.
type OutputField struct {
	// Type is the declared field type.
	Type FieldType `json:"type"`

	// Description is the human-readable field description.
	Description string `json:"description,omitempty"`
}

// UnitDefinition is a registered, independently invocable piece of work with a
// declared input/output schema and dependencies. Definitions are immutable once
// registered.
type UnitDefinition struct {
	// ID is the globally unique identifier for this unit.
	ID string `json:"id"`

	// Name is the human-readable display name.
	Name string `json:"name"`

	// Description describes what the unit does.
	Description string `json:"description,omitempty"`

	// Category groups related units (e.g. "data", "transform").
	Category string `json:"category,omitempty"`

	// Tags are free-form labels used for registry lookups.
	Tags []string `json:"tags,omitempty"`

	// Priority is a display and ordering hint. It never affects correctness.
	Priority int `json:"priority,omitempty"`

	// Timeout bounds a single executor invocation.
	Timeout time.Duration `json:"timeout,omitempty"`

	// MaxRetries is the number of retry attempts for transient failures.
	MaxRetries int `json:"max_retries,omitempty"`

	// Dependencies lists unit ids that must succeed before this unit runs.
	// Order is preserved; duplicates are rejected at registration.
	Dependencies []string `json:"dependencies,omitempty"`

	// Inputs is the input schema, keyed by field name.
	Inputs map[string]InputField `json:"inputs,omitempty"`

	// Outputs is the output schema, keyed by field name.
	Outputs map[string]OutputField `json:"outputs,omitempty"`

	// Executor is the opaque capability invoked with the resolved input record.
	Executor Executor `json:"-"`
}

// RequestedSet is an immutable view of the units requested for one invocation.
type RequestedSet struct {
	// Primary is the primary requested unit id. The plan's overall result is
	// Succeeded only if this unit succeeds.
	Primary string `json:"primary"`

	// Secondary lists additional requested unit ids in request order.
	Secondary []string `json:"secondary,omitempty"`

	// Parameters maps unit id -> input field -> literal value or expression
	// string. Explicit parameters take precedence over implicit mappings.
	Parameters map[string]map[string]interface{} `json:"parameters,omitempty"`

	// ExtraDependencies are ad hoc dependency edges supplied by the caller on
	// top of the registered definitions.
	ExtraDependencies []DependencyEdge `json:"extra_dependencies,omitempty"`
}

// RequestedIDs returns the primary and secondary unit ids in request order.
func (r RequestedSet) RequestedIDs() []string {
	ids := make([]string, 0, len(r.Secondary)+1)
	if r.Primary != "" {
		ids = append(ids, r.Primary)
	}
	ids = append(ids, r.Secondary...)
	return ids
}

// DependencyEdge is a caller-supplied edge: Unit depends on DependsOn.
type DependencyEdge struct {
	// Unit is the dependent unit id.
	Unit string `json:"unit"`

	// DependsOn is the unit id that must succeed first.
	DependsOn string `json:"depends_on"`
}

// InputMapping is the resolved source of one input field, computed at plan
// build time and evaluated at execution time.
type InputMapping struct {
	// Kind identifies the mapping source.
	Kind MappingKind `json:"kind"`

	// Value is the literal value when Kind is MappingLiteral.
	Value interface{} `json:"value,omitempty"`

	// Expression is the raw expression string when Kind is MappingExpression.
	Expression string `json:"expression,omitempty"`

	// Source is the producer unit id when Kind is MappingReference.
	Source string `json:"source,omitempty"`

	// Field is the producer output field name when Kind is MappingReference.
	Field string `json:"field,omitempty"`
}

// ExecutionPlan is the derived, per-invocation execution plan. Plans are
// immutable once built and share no state across concurrent invocations.
type ExecutionPlan struct {
	// ID is the unique identifier for this plan.
	ID string `json:"id"`

	// Requested is the request the plan was built from.
	Requested RequestedSet `json:"requested"`

	// Closure is the requested units plus all transitive dependencies.
	Closure []string `json:"closure"`

	// Layers partitions the closure into parallel execution layers. All units
	// in a layer have their dependencies satisfied by earlier layers.
	Layers [][]string `json:"layers"`

	// Mappings maps unit id -> input field -> mapping.
	Mappings map[string]map[string]InputMapping `json:"mappings"`

	// Producers maps unit id -> the designated producer used for the short
	// form expression reference, when the unit has exactly one in-closure
	// dependency.
	Producers map[string]string `json:"producers,omitempty"`

	// Dependencies maps unit id -> its in-closure dependency ids, including
	// caller-supplied extra edges.
	Dependencies map[string][]string `json:"dependencies"`

	// CreatedAt is when the plan was built.
	CreatedAt time.Time `json:"created_at"`
}

// Layer returns the layer number of the given unit id, or -1 when the unit is
// not part of the plan.
func (p *ExecutionPlan) Layer(unitID string) int {
	for i, layer := range p.Layers {
		for _, id := range layer {
			if id == unitID {
				return i
			}
		}
	}
	return -1
}

// UnitRunResult is the outcome of one unit within one execution. It is created
// when the unit enters its layer's execution window and is terminal once set.
type UnitRunResult struct {
	// UnitID is the unit this result belongs to.
	UnitID string `json:"unit_id"`

	// Status is the terminal status of the unit.
	Status UnitStatus `json:"status"`

	// Input is the resolved input record the executor was invoked with.
	Input Record `json:"input,omitempty"`

	// Output is the output record recorded on success.
	Output Record `json:"output,omitempty"`

	// Error describes the failure, if any.
	Error *EngineError `json:"error,omitempty"`

	// StartedAt is when the unit entered its execution window.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the unit reached a terminal status.
	CompletedAt time.Time `json:"completed_at"`

	// Duration is CompletedAt - StartedAt.
	Duration time.Duration `json:"duration"`

	// Attempts is the number of executor invocations, including retries.
	Attempts int `json:"attempts"`
}

// RunResult is the overall result of executing a plan.
type RunResult struct {
	// RunID is the unique identifier for this execution.
	RunID string `json:"run_id"`

	// PlanID is the plan that was executed.
	PlanID string `json:"plan_id"`

	// Status is the overall run status: Succeeded only if the primary
	// requested unit succeeded.
	Status RunStatus `json:"status"`

	// Units maps unit id to its individual result. Always populated for every
	// unit in the closure, even on overall failure.
	Units map[string]*UnitRunResult `json:"units"`

	// Trace is the ordered list of status transitions observed by the tracker.
	Trace []TraceEntry `json:"trace"`

	// Layers summarizes per-layer wall-clock durations.
	Layers []LayerSummary `json:"layers"`

	// Summary aggregates unit counts by terminal status.
	Summary RunSummary `json:"summary"`

	// StartedAt is when execution began.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when every unit reached a terminal status.
	CompletedAt time.Time `json:"completed_at"`

	// Duration is the total wall-clock execution time.
	Duration time.Duration `json:"duration"`
}

// RunSummary aggregates unit counts for a run.
type RunSummary struct {
	// Total is the number of units in the closure.
	Total int `json:"total"`

	// Succeeded is the number of units that succeeded.
	Succeeded int `json:"succeeded"`

	// Failed is the number of units that failed.
	Failed int `json:"failed"`

	// Skipped is the number of units skipped due to upstream failures.
	Skipped int `json:"skipped"`

	// TimedOut is the number of units that exceeded their timeout.
	TimedOut int `json:"timed_out"`
}
