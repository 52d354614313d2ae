package commands

import (
	"reflect"
	"testing"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{
		"fetch.url=https://example.com",
		"fetch.retries=3",
		"report.include_raw=true",
		"report.title={{ $json.name }}",
	})
	if err != nil {
		t.Fatalf("parseParams: %v", err)
	}

	want := map[string]map[string]interface{}{
		"fetch": {
			"url":     "https://example.com",
			"retries": float64(3),
		},
		"report": {
			"include_raw": true,
			"title":       "{{ $json.name }}",
		},
	}
	if !reflect.DeepEqual(params, want) {
		t.Fatalf("params = %#v, want %#v", params, want)
	}
}

func TestParseParamsRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"noequals", "nodot=1", ".field=1", "unit.=1"} {
		if _, err := parseParams([]string{raw}); err == nil {
			t.Errorf("parseParams(%q) did not fail", raw)
		}
	}
}

func TestParseParamsEmpty(t *testing.T) {
	params, err := parseParams(nil)
	if err != nil {
		t.Fatalf("parseParams: %v", err)
	}
	if params != nil {
		t.Fatalf("expected nil map, got %#v", params)
	}
}
