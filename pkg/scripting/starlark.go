// Package scripting provides a sandboxed Starlark executor for units whose
// behavior is defined as a script rather than compiled Go code. Scripts
// receive the resolved input record as the predeclared `input` dict and
// export their output record through top-level assignments.
package scripting

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/unitflow/unitflow/pkg/engine"
)

// DefaultTimeout bounds script evaluation when the unit declares none.
const DefaultTimeout = 30 * time.Second

// Executor runs a fixed Starlark script as a unit executor. The zero value is
// not usable; construct with NewExecutor.
type Executor struct {
	name    string
	script  string
	timeout time.Duration
}

// NewExecutor creates a script executor. The name appears in Starlark
// backtraces; the timeout guards against runaway scripts independently of the
// scheduler's own per-unit timeout.
func NewExecutor(name, script string, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{name: name, script: script, timeout: timeout}
}

// Invoke implements engine.Executor.
func (e *Executor) Invoke(ctx context.Context, input engine.Record) (engine.Record, error) {
	evalCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name: e.name,
		// Scripts may not print.
		Print: func(_ *starlark.Thread, _ string) {},
	}

	type outcome struct {
		output engine.Record
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		output, err := e.run(thread, input)
		done <- outcome{output, err}
	}()

	select {
	case <-evalCtx.Done():
		// Stops the interpreter at its next instruction step; the goroutine
		// then exits instead of running on unobserved.
		thread.Cancel("evaluation timeout")
		<-done
		return nil, engine.NewPermanentError(
			fmt.Sprintf("script %q exceeded evaluation timeout of %s", e.name, e.timeout),
			evalCtx.Err()).
			WithCode(engine.ErrCodeTimeout)
	case o := <-done:
		return o.output, o.err
	}
}

func (e *Executor) run(thread *starlark.Thread, input engine.Record) (engine.Record, error) {
	inputDict, err := toStarlark(map[string]interface{}(input))
	if err != nil {
		return nil, engine.NewPermanentError("failed to convert script input", err).
			WithCode(engine.ErrCodeValidation)
	}

	predeclared := starlark.StringDict{
		"struct": starlarkstruct.Default,
		"input":  inputDict,
	}

	globals, err := starlark.ExecFile(thread, e.name+".star", e.script, predeclared)
	if err != nil {
		return nil, engine.NewPermanentError("script execution failed", err).
			WithCode(engine.ErrCodeExecution)
	}

	output := make(engine.Record)
	for name, val := range globals {
		// Underscore-prefixed globals are script-internal.
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		goVal, err := fromStarlark(val)
		if err != nil {
			return nil, engine.NewPermanentError(
				fmt.Sprintf("failed to convert script output %q", name), err).
				WithCode(engine.ErrCodeExecution)
		}
		output[name] = goVal
	}
	return output, nil
}

// EvalExpr evaluates a single Starlark expression with the given variables in
// scope and returns the result as a plain Go value. It is the engine's
// arithmetic sandbox; the expression has no access to the filesystem, network
// or process environment.
func EvalExpr(expr string, vars map[string]interface{}) (interface{}, error) {
	thread := &starlark.Thread{Name: "expr"}

	env := make(starlark.StringDict, len(vars))
	for key, val := range vars {
		sv, err := toStarlark(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert variable %q: %w", key, err)
		}
		env[key] = sv
	}

	value, err := starlark.Eval(thread, "expr.star", expr, env)
	if err != nil {
		return nil, err
	}
	return fromStarlark(value)
}

// toStarlark converts a plain Go value into its Starlark counterpart.
func toStarlark(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []interface{}:
		items := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			items[i] = sv
		}
		return starlark.NewList(items), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	case engine.Record:
		return toStarlark(map[string]interface{}(val))
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlark converts a Starlark value back into a plain Go value.
func fromStarlark(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer out of range")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		items := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlark(val.Index(i))
			if err != nil {
				return nil, err
			}
			items[i] = item
		}
		return items, nil
	case starlark.Tuple:
		items := make([]interface{}, len(val))
		for i, item := range val {
			converted, err := fromStarlark(item)
			if err != nil {
				return nil, err
			}
			items[i] = converted
		}
		return items, nil
	case *starlark.Dict:
		out := make(map[string]interface{}, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be a string, got %s", item[0].Type())
			}
			value, err := fromStarlark(item[1])
			if err != nil {
				return nil, err
			}
			out[string(key)] = value
		}
		return out, nil
	case *starlarkstruct.Struct:
		out := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlark(attr)
			if err != nil {
				return nil, err
			}
			out[name] = value
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
