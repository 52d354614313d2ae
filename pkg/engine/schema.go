package engine

import (
	"fmt"
	"reflect"
)

// ApplyDefaults fills unresolved input fields that declare a default value.
// The input record is modified in place and returned.
func (d *UnitDefinition) ApplyDefaults(input Record) Record {
	if input == nil {
		input = make(Record)
	}
	for name, field := range d.Inputs {
		if _, ok := input[name]; ok {
			continue
		}
		if field.HasDefault {
			input[name] = field.Default
		}
	}
	return input
}

// ValidateInput checks a resolved input record against the unit's input
// schema: required fields present, declared types matched, enum values
// respected. Validation failures are permanent and never retried.
func (d *UnitDefinition) ValidateInput(input Record) error {
	for name, field := range d.Inputs {
		value, present := input[name]
		if !present {
			if field.Required {
				return NewPermanentError(
					fmt.Sprintf("missing required input %q", name), nil).
					WithCode(ErrCodeMissingInput).
					WithUnit(d.ID)
			}
			continue
		}

		if err := checkFieldType(name, field.Type, value); err != nil {
			return NewPermanentError(err.Error(), nil).
				WithCode(ErrCodeValidation).
				WithUnit(d.ID)
		}

		if len(field.Enum) > 0 && !enumContains(field.Enum, value) {
			return NewPermanentError(
				fmt.Sprintf("input %q value %v not in allowed set %v", name, value, field.Enum), nil).
				WithCode(ErrCodeValidation).
				WithUnit(d.ID)
		}
	}
	return nil
}

// ValidateOutput checks an output record against the unit's declared output
// schema. Only declared fields are type-checked; extra fields pass through.
func (d *UnitDefinition) ValidateOutput(output Record) error {
	for name, field := range d.Outputs {
		value, present := output[name]
		if !present {
			continue
		}
		if err := checkFieldType(name, field.Type, value); err != nil {
			return NewPermanentError(err.Error(), nil).
				WithCode(ErrCodeValidation).
				WithUnit(d.ID).
				WithOperation("output")
		}
	}
	return nil
}

// checkFieldType verifies a value against a declared field type. Integer
// values arriving as float64 (the JSON decoding default) are accepted for
// integer fields when they carry no fractional part.
func checkFieldType(name string, ft FieldType, value interface{}) error {
	if value == nil || ft == FieldTypeAny || ft == "" {
		return nil
	}

	switch ft {
	case FieldTypeString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("field %q expects string, got %T", name, value)
		}
	case FieldTypeInteger:
		switch v := value.(type) {
		case int, int32, int64:
		case float64:
			if v != float64(int64(v)) {
				return fmt.Errorf("field %q expects integer, got fractional number", name)
			}
		default:
			return fmt.Errorf("field %q expects integer, got %T", name, value)
		}
	case FieldTypeNumber:
		switch value.(type) {
		case int, int32, int64, float32, float64:
		default:
			return fmt.Errorf("field %q expects number, got %T", name, value)
		}
	case FieldTypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("field %q expects boolean, got %T", name, value)
		}
	case FieldTypeArray:
		if reflect.ValueOf(value).Kind() != reflect.Slice {
			return fmt.Errorf("field %q expects array, got %T", name, value)
		}
	case FieldTypeObject:
		if reflect.ValueOf(value).Kind() != reflect.Map {
			return fmt.Errorf("field %q expects object, got %T", name, value)
		}
	}
	return nil
}

func enumContains(enum []interface{}, value interface{}) bool {
	for _, candidate := range enum {
		if reflect.DeepEqual(candidate, value) {
			return true
		}
	}
	return false
}

// validateDefinition checks structural invariants of a definition before it
// enters the registry.
func validateDefinition(d *UnitDefinition) error {
	if d == nil {
		return NewPermanentError("unit definition is nil", nil).
			WithCode(ErrCodeValidation)
	}
	if d.ID == "" {
		return NewPermanentError("unit definition has empty id", nil).
			WithCode(ErrCodeValidation)
	}
	if d.Executor == nil {
		return NewPermanentError("unit definition has no executor", nil).
			WithCode(ErrCodeValidation).
			WithUnit(d.ID)
	}

	seen := make(map[string]struct{}, len(d.Dependencies))
	for _, dep := range d.Dependencies {
		if dep == d.ID {
			return NewPermanentError("unit depends on itself", nil).
				WithCode(ErrCodeCycleDetected).
				WithUnit(d.ID)
		}
		if _, dup := seen[dep]; dup {
			return NewPermanentError(
				fmt.Sprintf("duplicate dependency %q", dep), nil).
				WithCode(ErrCodeValidation).
				WithUnit(d.ID)
		}
		seen[dep] = struct{}{}
	}

	for name, field := range d.Inputs {
		if field.Type != "" {
			if err := field.Type.Validate(); err != nil {
				return NewPermanentError(
					fmt.Sprintf("input %q: %v", name, err), nil).
					WithCode(ErrCodeValidation).
					WithUnit(d.ID)
			}
		}
	}
	for name, field := range d.Outputs {
		if field.Type != "" {
			if err := field.Type.Validate(); err != nil {
				return NewPermanentError(
					fmt.Sprintf("output %q: %v", name, err), nil).
					WithCode(ErrCodeValidation).
					WithUnit(d.ID)
			}
		}
	}
	return nil
}
