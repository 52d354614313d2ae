package scripting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/unitflow/unitflow/pkg/engine"
)

func TestExecutor_Invoke_Basic(t *testing.T) {
	exec := NewExecutor("double", `result = input["value"] * 2`, 0)

	output, err := exec.Invoke(context.Background(), engine.Record{"value": 21})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	if output["result"] != int64(42) {
		t.Errorf("Expected result 42, got %T(%v)", output["result"], output["result"])
	}
}

func TestExecutor_Invoke_UnderscoreGlobalsHidden(t *testing.T) {
	exec := NewExecutor("hidden", `
_scratch = [x * x for x in range(10)]
total = sum(_scratch)
`, 0)

	output, err := exec.Invoke(context.Background(), engine.Record{})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	if _, leaked := output["_scratch"]; leaked {
		t.Error("Expected underscore globals to stay internal")
	}
	if output["total"] != int64(285) {
		t.Errorf("Expected total 285, got %v", output["total"])
	}
}

func TestExecutor_Invoke_StructuredRoundTrip(t *testing.T) {
	exec := NewExecutor("shape", `
keys = sorted(input["data"].keys())
nested = {"inner": [1, 2.5, "three", True, None]}
`, 0)

	output, err := exec.Invoke(context.Background(), engine.Record{
		"data": map[string]interface{}{"b": 1, "a": 2},
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	keys, ok := output["keys"].([]interface{})
	if !ok || len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Expected sorted keys [a b], got %v", output["keys"])
	}

	nested, ok := output["nested"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected nested dict, got %T", output["nested"])
	}
	inner, ok := nested["inner"].([]interface{})
	if !ok || len(inner) != 5 {
		t.Fatalf("Expected 5 inner items, got %v", nested["inner"])
	}
	if inner[1] != 2.5 || inner[3] != true || inner[4] != nil {
		t.Errorf("Expected mixed-type list preserved, got %v", inner)
	}
}

func TestExecutor_Invoke_SyntaxError(t *testing.T) {
	exec := NewExecutor("broken", `this is not starlark`, 0)

	_, err := exec.Invoke(context.Background(), engine.Record{})
	if err == nil {
		t.Fatal("Expected syntax error")
	}
}

func TestExecutor_Invoke_Timeout(t *testing.T) {
	// The loop would run for minutes if the interpreter were not cancelled;
	// Invoke must stop it and return promptly.
	exec := NewExecutor("spin", `
def spin():
    x = 0
    for i in range(1000000000):
        x += i
    return x

y = spin()
`, 50*time.Millisecond)

	start := time.Now()
	_, err := exec.Invoke(context.Background(), engine.Record{})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Expected timeout")
	}
	var engErr *engine.EngineError
	if !errors.As(err, &engErr) || engErr.Code != engine.ErrCodeTimeout {
		t.Fatalf("Expected %s, got %v", engine.ErrCodeTimeout, err)
	}
	if elapsed > 5*time.Second {
		t.Fatalf("Invoke took %s, script was not cancelled", elapsed)
	}
}

func TestEvalExpr_Arithmetic(t *testing.T) {
	cases := []struct {
		expr string
		want interface{}
	}{
		{"25 * 4 + 10", int64(110)},
		{"(2 + 3) * 4.0", 20.0},
		{"2 ** 10", int64(1024)},
		{"10 / 4", 2.5},
	}
	for _, tc := range cases {
		got, err := EvalExpr(tc.expr, nil)
		if err != nil {
			t.Errorf("EvalExpr(%q) failed: %v", tc.expr, err)
			continue
		}
		if got != tc.want {
			t.Errorf("EvalExpr(%q) = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestEvalExpr_Variables(t *testing.T) {
	got, err := EvalExpr("a + b", map[string]interface{}{"a": 1, "b": 2})
	if err != nil {
		t.Fatalf("EvalExpr failed: %v", err)
	}
	if got != int64(3) {
		t.Errorf("Expected 3, got %v", got)
	}
}

func TestEvalExpr_RejectsStatements(t *testing.T) {
	if _, err := EvalExpr("x = 1", nil); err == nil {
		t.Error("Expected statement to be rejected by expression evaluation")
	}
}
