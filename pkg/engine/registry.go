package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry owns unit definitions for the process lifetime. It indexes
// definitions by category and tag, and validates the dependency graph of the
// whole registry. Forward references are permitted at registration; dependency
// targets are checked by ValidateGraph, which runs automatically at the end of
// a bulk registration pass.
//
// A registry whose last validation failed refuses to build plans until the
// offending definitions are corrected.
type Registry struct {
	mu sync.RWMutex

	// units maps unit id to definition.
	units map[string]*UnitDefinition

	// categories maps category name to unit ids in registration order.
	categories map[string][]string

	// tags maps tag to unit ids in registration order.
	tags map[string][]string

	// validated reports whether the graph passed its most recent validation.
	// Any mutation resets it to false.
	validated bool

	// validationErr is the most recent validation failure, if any.
	validationErr error
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		units:      make(map[string]*UnitDefinition),
		categories: make(map[string][]string),
		tags:       make(map[string][]string),
	}
}

// Register adds a single definition. It fails with DUPLICATE_UNIT_ID if the id
// is already present. Dependency targets are not required to exist yet.
func (r *Registry) Register(def *UnitDefinition) error {
	if err := validateDefinition(def); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.units[def.ID]; exists {
		return NewPermanentError(
			fmt.Sprintf("unit id %q already registered", def.ID), nil).
			WithCode(ErrCodeDuplicateUnitID).
			WithUnit(def.ID)
	}

	r.units[def.ID] = def
	if def.Category != "" {
		r.categories[def.Category] = append(r.categories[def.Category], def.ID)
	}
	for _, tag := range def.Tags {
		r.tags[tag] = append(r.tags[tag], def.ID)
	}

	r.validated = false
	r.validationErr = nil
	return nil
}

// RegisterAll registers a sequence of definitions and then validates the whole
// graph. The first failure is returned; definitions registered earlier in the
// same call remain registered, but the registry stays unvalidated until a
// successful ValidateGraph.
func (r *Registry) RegisterAll(defs []*UnitDefinition) error {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return r.ValidateGraph()
}

// Unregister removes a definition and its index entries. It returns false when
// the id is not registered.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, exists := r.units[id]
	if !exists {
		return false
	}

	delete(r.units, id)
	if def.Category != "" {
		r.categories[def.Category] = removeID(r.categories[def.Category], id)
		if len(r.categories[def.Category]) == 0 {
			delete(r.categories, def.Category)
		}
	}
	for _, tag := range def.Tags {
		r.tags[tag] = removeID(r.tags[tag], id)
		if len(r.tags[tag]) == 0 {
			delete(r.tags, tag)
		}
	}

	r.validated = false
	r.validationErr = nil
	return true
}

// Get returns the definition for the given id, or nil when absent.
func (r *Registry) Get(id string) *UnitDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.units[id]
}

// Exists reports whether the id is registered.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.units[id]
	return ok
}

// Count returns the number of registered definitions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.units)
}

// List returns all definitions sorted by id.
func (r *Registry) List() []*UnitDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*UnitDefinition, 0, len(r.units))
	for _, def := range r.units {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListByCategory returns the definitions registered under the given category,
// in registration order.
func (r *Registry) ListByCategory(category string) []*UnitDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.categories[category])
}

// ListByTag returns the definitions carrying the given tag, in registration
// order.
func (r *Registry) ListByTag(tag string) []*UnitDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.tags[tag])
}

// Categories returns all known category names sorted lexically.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.categories)
}

// Tags returns all known tags sorted lexically.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.tags)
}

// ValidateGraph checks that every dependency reference resolves to a
// registered unit and that the dependency relation over the full registry is
// acyclic. On success the registry becomes eligible for plan building.
func (r *Registry) ValidateGraph() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.validateGraphLocked()
	r.validated = err == nil
	r.validationErr = err
	return err
}

// Validated reports whether the registry passed its most recent graph
// validation. A registry that was mutated since the last ValidateGraph call
// reports false.
func (r *Registry) Validated() (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.validated, r.validationErr
}

func (r *Registry) validateGraphLocked() error {
	// Unknown dependency check first: cycle detection assumes resolvable ids.
	for _, id := range sortedKeys(r.units) {
		for _, dep := range r.units[id].Dependencies {
			if _, ok := r.units[dep]; !ok {
				return NewPermanentError(
					fmt.Sprintf("unit %q depends on unregistered unit %q", id, dep), nil).
					WithCode(ErrCodeUnknownDep).
					WithUnit(id)
			}
		}
	}

	// DFS coloring over the dependency relation.
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(r.units))

	var visit func(id string, path []string) []string
	visit = func(id string, path []string) []string {
		color[id] = gray
		path = append(path, id)

		for _, dep := range r.units[id].Dependencies {
			switch color[dep] {
			case gray:
				// Close the cycle at the first occurrence of dep on the path.
				for i, onPath := range path {
					if onPath == dep {
						return append(path[i:], dep)
					}
				}
				return append(path, dep)
			case white:
				if cycle := visit(dep, path); cycle != nil {
					return cycle
				}
			}
		}

		color[id] = black
		return nil
	}

	for _, id := range sortedKeys(r.units) {
		if color[id] == white {
			if cycle := visit(id, nil); cycle != nil {
				return NewPermanentError(
					fmt.Sprintf("circular dependency detected: %s", strings.Join(cycle, " -> ")), nil).
					WithCode(ErrCodeCycleDetected)
			}
		}
	}
	return nil
}

func (r *Registry) collect(ids []string) []*UnitDefinition {
	out := make([]*UnitDefinition, 0, len(ids))
	for _, id := range ids {
		if def, ok := r.units[id]; ok {
			out = append(out, def)
		}
	}
	return out
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, candidate := range ids {
		if candidate != id {
			out = append(out, candidate)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
