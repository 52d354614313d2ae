package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/unitflow/unitflow/pkg/dataflow"
)

// Planner builds execution plans from requested sets against a validated
// registry. It expands the transitive dependency closure, partitions it into
// parallel execution layers, and computes the per-field input mappings.
type Planner struct {
	registry *Registry
}

// NewPlanner creates a planner bound to the given registry.
func NewPlanner(registry *Registry) *Planner {
	return &Planner{registry: registry}
}

// BuildPlan turns a requested set into an execution plan, or fails without
// producing a partial plan. The registry must have passed graph validation;
// caller-supplied extra edges are re-checked for cycles because they can
// introduce one that was not visible at registration time.
func (p *Planner) BuildPlan(req RequestedSet) (*ExecutionPlan, error) {
	if ok, verr := p.registry.Validated(); !ok {
		return nil, NewPermanentError("registry has not passed graph validation", verr).
			WithCode(ErrCodeValidation).
			WithOperation("build_plan")
	}

	if req.Primary == "" {
		return nil, NewPermanentError("requested set has no primary unit", nil).
			WithCode(ErrCodeValidation).
			WithOperation("build_plan")
	}

	// Boundary validation: an unknown id in the request fails fast instead of
	// being silently defaulted away.
	for _, id := range req.RequestedIDs() {
		if !p.registry.Exists(id) {
			return nil, NewPermanentError(
				fmt.Sprintf("requested unit %q is not registered", id), nil).
				WithCode(ErrCodeUnknownDep).
				WithUnit(id)
		}
	}
	for _, edge := range req.ExtraDependencies {
		if !p.registry.Exists(edge.Unit) {
			return nil, NewPermanentError(
				fmt.Sprintf("extra dependency references unknown unit %q", edge.Unit), nil).
				WithCode(ErrCodeUnknownDep).
				WithUnit(edge.Unit)
		}
		if !p.registry.Exists(edge.DependsOn) {
			return nil, NewPermanentError(
				fmt.Sprintf("extra dependency references unknown unit %q", edge.DependsOn), nil).
				WithCode(ErrCodeUnknownDep).
				WithUnit(edge.DependsOn)
		}
	}

	closure, deps := p.expandClosure(req)

	layers, err := p.assignLayers(req, closure, deps)
	if err != nil {
		return nil, err
	}

	mappings, producers, err := p.computeMappings(req, closure, deps)
	if err != nil {
		return nil, err
	}

	return &ExecutionPlan{
		ID:           uuid.New().String(),
		Requested:    req,
		Closure:      closure,
		Layers:       layers,
		Mappings:     mappings,
		Producers:    producers,
		Dependencies: deps,
		CreatedAt:    time.Now(),
	}, nil
}

// expandClosure computes the transitive dependency closure of the requested
// ids, folding in caller-supplied extra edges, and returns the closure plus
// the per-unit in-closure dependency lists.
func (p *Planner) expandClosure(req RequestedSet) ([]string, map[string][]string) {
	// Extra edges keyed by dependent unit.
	extra := make(map[string][]string)
	for _, edge := range req.ExtraDependencies {
		extra[edge.Unit] = append(extra[edge.Unit], edge.DependsOn)
	}

	dependenciesOf := func(id string) []string {
		def := p.registry.Get(id)
		out := make([]string, 0, len(def.Dependencies)+len(extra[id]))
		seen := make(map[string]struct{})
		for _, dep := range append(append([]string{}, def.Dependencies...), extra[id]...) {
			if _, dup := seen[dep]; dup || dep == id {
				continue
			}
			seen[dep] = struct{}{}
			out = append(out, dep)
		}
		return out
	}

	inClosure := make(map[string]struct{})
	var order []string
	queue := append([]string{}, req.RequestedIDs()...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, done := inClosure[id]; done {
			continue
		}
		inClosure[id] = struct{}{}
		order = append(order, id)
		queue = append(queue, dependenciesOf(id)...)
	}

	deps := make(map[string][]string, len(order))
	for _, id := range order {
		deps[id] = dependenciesOf(id)
	}

	sort.Strings(order)
	return order, deps
}

// assignLayers runs level-aware Kahn's algorithm over the closure. Every unit
// with zero remaining in-degree at the same iteration lands in the same layer,
// so layer(v) = 1 + max layer over v's in-closure dependencies.
func (p *Planner) assignLayers(req RequestedSet, closure []string, deps map[string][]string) ([][]string, error) {
	inDegree := make(map[string]int, len(closure))
	dependents := make(map[string][]string, len(closure))
	for _, id := range closure {
		inDegree[id] = len(deps[id])
		for _, dep := range deps[id] {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	frontier := make([]string, 0)
	for _, id := range closure {
		if inDegree[id] == 0 {
			frontier = append(frontier, id)
		}
	}

	var layers [][]string
	assigned := 0
	for len(frontier) > 0 {
		p.sortLayer(req, frontier)
		layer := append([]string{}, frontier...)
		layers = append(layers, layer)
		assigned += len(layer)

		next := make([]string, 0)
		for _, id := range layer {
			for _, dependent := range dependents[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		frontier = next
	}

	// Registration-time validation rules out registry cycles, but an extra
	// caller edge can close one that is only visible now.
	if assigned != len(closure) {
		var remaining []string
		for _, id := range closure {
			if inDegree[id] > 0 {
				remaining = append(remaining, id)
			}
		}
		sort.Strings(remaining)
		return nil, NewPermanentError(
			fmt.Sprintf("request introduces a dependency cycle among: %s",
				strings.Join(remaining, ", ")), nil).
			WithCode(ErrCodeCycleDetected).
			WithOperation("build_plan")
	}

	return layers, nil
}

// sortLayer orders a layer deterministically for reproducible traces: units in
// request order first (primary, then secondaries as listed), then pure
// dependencies by ascending lexical id. The order is advisory only; units in a
// layer execute concurrently.
func (p *Planner) sortLayer(req RequestedSet, layer []string) {
	rank := make(map[string]int)
	for i, id := range req.RequestedIDs() {
		if _, dup := rank[id]; !dup {
			rank[id] = i
		}
	}

	sort.SliceStable(layer, func(i, j int) bool {
		ri, iReq := rank[layer[i]]
		rj, jReq := rank[layer[j]]
		switch {
		case iReq && jReq:
			return ri < rj
		case iReq:
			return true
		case jReq:
			return false
		default:
			return layer[i] < layer[j]
		}
	})
}

// computeMappings derives the input mapping for every unit in the closure.
// Explicit request parameters win; otherwise a unit with exactly one
// in-closure dependency whose output schema carries a same-named field gets an
// implicit reference; everything else stays unresolved and falls back to the
// schema default at execution time.
func (p *Planner) computeMappings(
	req RequestedSet,
	closure []string,
	deps map[string][]string,
) (map[string]map[string]InputMapping, map[string]string, error) {
	inClosure := make(map[string]struct{}, len(closure))
	for _, id := range closure {
		inClosure[id] = struct{}{}
	}

	// Parameters addressed at units outside the closure indicate a malformed
	// request and fail fast.
	for unitID := range req.Parameters {
		if _, ok := inClosure[unitID]; !ok {
			return nil, nil, NewPermanentError(
				fmt.Sprintf("parameters reference unit %q outside the plan", unitID), nil).
				WithCode(ErrCodeUnknownDep).
				WithUnit(unitID)
		}
	}

	mappings := make(map[string]map[string]InputMapping, len(closure))
	producers := make(map[string]string)

	for _, id := range closure {
		def := p.registry.Get(id)
		unitMappings := make(map[string]InputMapping)

		var producer string
		if len(deps[id]) == 1 {
			producer = deps[id][0]
			producers[id] = producer
		}

		params := req.Parameters[id]
		for fieldName := range def.Inputs {
			if raw, ok := params[fieldName]; ok {
				mapping, err := classifyParameter(id, fieldName, raw)
				if err != nil {
					return nil, nil, err
				}
				unitMappings[fieldName] = mapping
				continue
			}

			if producer != "" {
				producerDef := p.registry.Get(producer)
				if _, ok := producerDef.Outputs[fieldName]; ok {
					unitMappings[fieldName] = InputMapping{
						Kind:   MappingReference,
						Source: producer,
						Field:  fieldName,
					}
				}
			}
			// Unresolved fields are supplied from schema defaults at execution
			// time, or fail input validation if required.
		}

		// Parameters for fields outside the schema are carried as literals so
		// executors can accept open-ended input.
		for fieldName, raw := range params {
			if _, declared := def.Inputs[fieldName]; declared {
				continue
			}
			mapping, err := classifyParameter(id, fieldName, raw)
			if err != nil {
				return nil, nil, err
			}
			unitMappings[fieldName] = mapping
		}

		mappings[id] = unitMappings
	}

	return mappings, producers, nil
}

// classifyParameter turns a raw request parameter into a mapping: strings
// containing expression delimiters are validated as expressions at build time,
// everything else is a literal.
func classifyParameter(unitID, fieldName string, raw interface{}) (InputMapping, error) {
	if s, ok := raw.(string); ok && dataflow.ContainsExpression(s) {
		if err := dataflow.Validate(s); err != nil {
			return InputMapping{}, NewPermanentError(
				fmt.Sprintf("parameter %q: %v", fieldName, err), nil).
				WithCode(ErrCodeExprSyntax).
				WithUnit(unitID)
		}
		return InputMapping{Kind: MappingExpression, Expression: s}, nil
	}
	return InputMapping{Kind: MappingLiteral, Value: raw}, nil
}
