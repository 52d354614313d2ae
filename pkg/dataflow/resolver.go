package dataflow

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Context is the read-only resolution environment: the output records of every
// already-completed unit, plus the designated current producer for the $json
// short form.
type Context struct {
	// Outputs maps unit id to that unit's recorded output record.
	Outputs map[string]map[string]interface{}

	// Producer is the unit id the $json short form binds to. Empty when the
	// consuming unit has no single designated producer.
	Producer string
}

// Resolver evaluates expressions against a Context. It holds no state; a
// single Resolver may be shared by concurrent callers.
type Resolver struct{}

// NewResolver creates a resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve evaluates the input string against the context.
//
// A string that is exactly one expression resolves to the referenced value
// with its native type preserved. A string with embedded expressions resolves
// each match, stringifies it and substitutes it in place, producing a string.
// A string without expressions is returned unchanged.
func (r *Resolver) Resolve(s string, ctx Context) (interface{}, error) {
	if !ContainsExpression(s) {
		return s, nil
	}

	exprs, err := parseAll(s)
	if err != nil {
		return nil, err
	}

	if IsExact(s) {
		return r.lookup(exprs[0], ctx)
	}

	// Embedded mode: substitute every match with its stringified value.
	result := s
	for _, expr := range exprs {
		value, err := r.lookup(expr, ctx)
		if err != nil {
			return nil, err
		}
		result = strings.Replace(result, expr.raw, stringify(value), 1)
	}
	return result, nil
}

// lookup walks one parsed expression against the context.
func (r *Resolver) lookup(expr expression, ctx Context) (interface{}, error) {
	producer := expr.node
	if producer == "" {
		producer = ctx.Producer
	}
	if producer == "" {
		return nil, &PathError{
			Path:   expr.raw,
			Reason: "no producer bound for $json short form",
		}
	}

	output, ok := ctx.Outputs[producer]
	if !ok {
		return nil, &PathError{
			Path:   expr.raw,
			Reason: fmt.Sprintf("no recorded output for unit %q", producer),
		}
	}

	var current interface{} = output
	for _, st := range expr.steps {
		next, err := descend(current, st)
		if err != nil {
			return nil, &PathError{Path: expr.raw, Reason: err.Error()}
		}
		current = next
	}
	return current, nil
}

// descend applies one traversal step to a value.
func descend(value interface{}, st step) (interface{}, error) {
	if st.isIndex {
		rv := reflect.ValueOf(value)
		if value == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
			return nil, fmt.Errorf("index [%d] applied to non-sequence value", st.index)
		}
		if st.index >= rv.Len() {
			return nil, fmt.Errorf("index [%d] out of range (length %d)", st.index, rv.Len())
		}
		return rv.Index(st.index).Interface(), nil
	}

	switch m := value.(type) {
	case map[string]interface{}:
		field, ok := m[st.field]
		if !ok {
			return nil, fmt.Errorf("field %q not present", st.field)
		}
		return field, nil
	default:
		// Record aliases and other string-keyed maps resolve through reflection.
		rv := reflect.ValueOf(value)
		if value != nil && rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
			field := rv.MapIndex(reflect.ValueOf(st.field))
			if !field.IsValid() {
				return nil, fmt.Errorf("field %q not present", st.field)
			}
			return field.Interface(), nil
		}
		return nil, fmt.Errorf("field %q applied to non-record value", st.field)
	}
}

// stringify renders a resolved value for embedded-mode substitution. Scalars
// format naturally; structured values render as compact JSON.
func stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return v
	case bool, int, int32, int64, float32, float64:
		return fmt.Sprintf("%v", v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}
