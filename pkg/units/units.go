// Package units provides the builtin unit catalog: general-purpose data and
// transform units that ship with the engine and double as realistic fixtures
// for plans that mix builtin and user-registered units.
package units

import (
	"github.com/unitflow/unitflow/pkg/engine"
)

// All returns fresh definitions of every builtin unit.
func All() []*engine.UnitDefinition {
	return []*engine.UnitDefinition{
		HTTPRequest(),
		Calculator(),
		WebSearch(),
		DataAnalysis(),
		TextProcessing(),
		FileRead(),
	}
}

// Register registers every builtin unit and validates the graph. Builtins have
// no dependencies among themselves, so registration cannot introduce a cycle.
func Register(registry *engine.Registry) error {
	return registry.RegisterAll(All())
}
