package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/unitflow/unitflow/pkg/config"
	"github.com/unitflow/unitflow/pkg/engine"
	"github.com/unitflow/unitflow/pkg/units"
)

// buildRegistry loads the built-in units plus any catalog sources into a
// validated registry. A catalog with validation errors fails the whole load;
// partial registries make downstream plan errors confusing.
func buildRegistry(sources []string) (*engine.Registry, *config.ParsedCatalog, error) {
	registry := engine.NewRegistry()
	if err := units.Register(registry); err != nil {
		return nil, nil, fmt.Errorf("registering built-in units: %w", err)
	}

	var catalog *config.ParsedCatalog
	if len(sources) > 0 {
		parser := config.NewParser()
		parsed, err := parser.Parse(sources)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing catalog: %w", err)
		}
		if len(parsed.Errors) > 0 {
			return nil, parsed, fmt.Errorf("catalog has %d validation error(s)", len(parsed.Errors))
		}
		defs, err := parsed.ToDefinitions()
		if err != nil {
			return nil, parsed, err
		}
		if err := registry.RegisterAll(defs); err != nil {
			return nil, parsed, fmt.Errorf("registering catalog units: %w", err)
		}
		catalog = parsed
	}

	if err := registry.ValidateGraph(); err != nil {
		return registry, catalog, err
	}
	return registry, catalog, nil
}

// parseParams turns "unit.field=value" flags into the planner's parameter map.
// Values parse as JSON when possible so numbers and booleans keep their type;
// everything else stays a string, including expressions.
func parseParams(raw []string) (map[string]map[string]interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	params := make(map[string]map[string]interface{})
	for _, p := range raw {
		key, value, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid parameter %q: expected unit.field=value", p)
		}
		unitID, field, ok := strings.Cut(key, ".")
		if !ok || unitID == "" || field == "" {
			return nil, fmt.Errorf("invalid parameter key %q: expected unit.field", key)
		}
		var typed interface{} = value
		var decoded interface{}
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			typed = decoded
		}
		if params[unitID] == nil {
			params[unitID] = make(map[string]interface{})
		}
		params[unitID][field] = typed
	}
	return params, nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
