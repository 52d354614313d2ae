package dataflow

import "testing"

func TestIsExact(t *testing.T) {
	cases := []struct {
		s    string
		want bool
	}{
		{`{{ $json.body }}`, true},
		{`  {{ $json.body }}  `, true},
		{`{{ $node("fetch").json.items[0] }}`, true},
		{`prefix {{ $json.body }}`, false},
		{`{{ $json.body }} suffix`, false},
		{`{{ $json.a }}{{ $json.b }}`, false},
		{`plain`, false},
	}
	for _, tc := range cases {
		if got := IsExact(tc.s); got != tc.want {
			t.Errorf("IsExact(%q) = %v, want %v", tc.s, got, tc.want)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := []string{
		`plain literal`,
		`{{ $json.a }}`,
		`{{ $json.a.b[2].c }}`,
		`{{ $node("fetch").json.body }}`,
		`mixed {{ $json.a }} and {{ $node("x").json.b }}`,
	}
	for _, s := range valid {
		if err := Validate(s); err != nil {
			t.Errorf("Validate(%q) failed: %v", s, err)
		}
	}

	invalid := []string{
		`{{ $json.a`,
		`$json.a }}`,
		`{{ $json.a }} {{ broken`,
		`{{ $json[x] }}`,
		`{{ $node().json.a }}`,
	}
	for _, s := range invalid {
		if err := Validate(s); err == nil {
			t.Errorf("Validate(%q): expected error", s)
		}
	}
}

func TestParsePath_Steps(t *testing.T) {
	exprs, err := parseAll(`{{ $json.a.b[3].c }}`)
	if err != nil {
		t.Fatalf("parseAll failed: %v", err)
	}
	if len(exprs) != 1 {
		t.Fatalf("Expected 1 expression, got %d", len(exprs))
	}

	steps := exprs[0].steps
	if len(steps) != 4 {
		t.Fatalf("Expected 4 steps, got %d", len(steps))
	}
	if steps[0].field != "a" || steps[1].field != "b" {
		t.Errorf("Expected field steps a then b, got %+v", steps[:2])
	}
	if !steps[2].isIndex || steps[2].index != 3 {
		t.Errorf("Expected index step [3], got %+v", steps[2])
	}
	if steps[3].field != "c" {
		t.Errorf("Expected trailing field c, got %+v", steps[3])
	}
}
