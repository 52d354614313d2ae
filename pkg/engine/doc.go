// Package engine implements the unit orchestration core: a registry of
// schema-typed units, a planner that expands dependency closures into layered
// execution plans, a scheduler that runs those plans with per-layer
// concurrency barriers, and a tracker that records status transitions.
//
// Units declare typed input and output schemas plus static dependencies.
// The planner computes the transitive closure of the requested units,
// topologically orders it into layers of mutually independent units, and
// binds every input field to a literal, an expression, or an implicit
// reference to an upstream output. The scheduler executes layers in order,
// resolving expressions against the accumulated outputs of completed units,
// enforcing per-unit timeouts and retry policy, and cascading skips through
// the dependents of failed units.
//
// All orchestration failures are reported as *EngineError values carrying a
// machine-readable code and a severity class that drives retry behavior.
package engine
