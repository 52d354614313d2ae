package engine

import (
	"encoding/json"
	"fmt"
)

// UnitStatus represents the execution status of a single unit within a plan.
type UnitStatus string

const (
	// UnitStatusPending indicates the unit is waiting for its layer's execution window.
	UnitStatusPending UnitStatus = "pending"

	// UnitStatusRunning indicates the unit's executor is currently being invoked.
	UnitStatusRunning UnitStatus = "running"

	// UnitStatusSucceeded indicates the unit completed and its output was recorded.
	UnitStatusSucceeded UnitStatus = "succeeded"

	// UnitStatusFailed indicates the unit failed after exhausting its retry budget.
	UnitStatusFailed UnitStatus = "failed"

	// UnitStatusSkipped indicates the unit was never invoked because an upstream
	// dependency did not succeed.
	UnitStatusSkipped UnitStatus = "skipped"

	// UnitStatusTimedOut indicates the unit's executor did not return within the
	// unit's declared timeout.
	UnitStatusTimedOut UnitStatus = "timed_out"
)

// IsTerminal returns true if the unit status represents a final state.
func (s UnitStatus) IsTerminal() bool {
	return s == UnitStatusSucceeded || s == UnitStatusFailed ||
		s == UnitStatusSkipped || s == UnitStatusTimedOut
}

// IsActive returns true if the unit is currently active (pending or running).
func (s UnitStatus) IsActive() bool {
	return s == UnitStatusPending || s == UnitStatusRunning
}

// Validate checks if the unit status is valid.
func (s UnitStatus) Validate() error {
	switch s {
	case UnitStatusPending, UnitStatusRunning, UnitStatusSucceeded,
		UnitStatusFailed, UnitStatusSkipped, UnitStatusTimedOut:
		return nil
	default:
		return fmt.Errorf("invalid unit status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s UnitStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *UnitStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = UnitStatus(str)
	return s.Validate()
}

// RunStatus represents the overall status of a plan execution run.
type RunStatus string

const (
	// RunStatusPending indicates the run has been created but not started.
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning indicates the run is currently executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates the primary requested unit succeeded.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates the primary requested unit did not succeed.
	RunStatusFailed RunStatus = "failed"

	// RunStatusAborted indicates the overall plan deadline was exceeded.
	RunStatusAborted RunStatus = "aborted"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusAborted
}

// IsActive returns true if the run is currently active (pending or running).
func (s RunStatus) IsActive() bool {
	return s == RunStatusPending || s == RunStatusRunning
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusSucceeded,
		RunStatusFailed, RunStatusAborted:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = RunStatus(str)
	return s.Validate()
}

// FieldType represents the declared type of a schema field.
type FieldType string

const (
	// FieldTypeString accepts string values.
	FieldTypeString FieldType = "string"

	// FieldTypeInteger accepts integer values.
	FieldTypeInteger FieldType = "integer"

	// FieldTypeNumber accepts integer or floating point values.
	FieldTypeNumber FieldType = "number"

	// FieldTypeBoolean accepts boolean values.
	FieldTypeBoolean FieldType = "boolean"

	// FieldTypeArray accepts sequence values.
	FieldTypeArray FieldType = "array"

	// FieldTypeObject accepts nested record values.
	FieldTypeObject FieldType = "object"

	// FieldTypeAny accepts any value.
	FieldTypeAny FieldType = "any"
)

// Validate checks if the field type is valid.
func (t FieldType) Validate() error {
	switch t {
	case FieldTypeString, FieldTypeInteger, FieldTypeNumber, FieldTypeBoolean,
		FieldTypeArray, FieldTypeObject, FieldTypeAny:
		return nil
	default:
		return fmt.Errorf("invalid field type: %s", t)
	}
}

// MappingKind identifies how an input field receives its value.
type MappingKind string

const (
	// MappingLiteral supplies a literal value verbatim.
	MappingLiteral MappingKind = "literal"

	// MappingExpression resolves a path expression against completed outputs.
	MappingExpression MappingKind = "expression"

	// MappingReference is an implicit same-name lookup in the output of the
	// unit's sole in-closure dependency.
	MappingReference MappingKind = "reference"
)
