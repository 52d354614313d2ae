package config

import (
	"context"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for catalog validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a schema registry with the built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
	sr.registerBuiltInSchemas()
	return sr
}

// registerBuiltInSchemas compiles the built-in schema file and registers each
// definition under its lookup name.
func (sr *SchemaRegistry) registerBuiltInSchemas() {
	val := sr.ctx.CompileString(builtinSchemas)
	if err := val.Err(); err != nil {
		panic(fmt.Sprintf("built-in schemas failed to compile: %v", err))
	}

	sr.schemas["catalog"] = val.LookupPath(cue.ParsePath("#Catalog"))
	sr.schemas["unit"] = val.LookupPath(cue.ParsePath("#Unit"))
	sr.schemas["field"] = val.LookupPath(cue.ParsePath("#Field"))
}

// RegisterSchema registers a CUE schema under the given name. The schema
// string must evaluate to the constraint itself, not a file wrapping one.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	return names
}

// ValidateUnit validates a unit configuration against the unit schema.
func (sr *SchemaRegistry) ValidateUnit(ctx context.Context, unit UnitConfig) error {
	return sr.ValidateAgainstSchema(ctx, "unit", unit)
}

// ValidateCatalogMeta validates catalog metadata against the catalog schema.
func (sr *SchemaRegistry) ValidateCatalogMeta(ctx context.Context, meta CatalogMeta) error {
	return sr.ValidateAgainstSchema(ctx, "catalog", meta)
}

// builtinSchemas holds the catalog schema definitions. They live in one CUE
// file so #Unit can reference #Field.
const builtinSchemas = `
// Catalog metadata
#Catalog: {
	// Name is the catalog name
	name: string & =~"^[a-zA-Z0-9_-]+$"

	// Version is the catalog version
	version?: string

	// Description describes the catalog
	description?: string
}

// Unit declaration
#Unit: {
	// ID is the unique unit identifier
	id: string & =~"^[a-zA-Z0-9_-]+$"

	// Name is the human-readable name
	name: string

	// Description describes what the unit does
	description?: string

	// Category groups related units
	category?: string

	// Tags are free-form labels
	tags?: [...string]

	// Priority is an ordering hint
	priority?: int

	// Timeout bounds one invocation, as a Go duration string
	timeout?: string & =~"^([0-9]+(\\.[0-9]+)?(ns|us|ms|s|m|h))+$"

	// MaxRetries is the retry budget for transient failures
	max_retries?: int & >=0

	// Dependencies lists unit ids that must succeed first
	dependencies?: [...string & =~"^[a-zA-Z0-9_-]+$"]

	// Inputs declares the input schema
	inputs?: {[string]: #Field}

	// Outputs declares the output schema
	outputs?: {[string]: #Field}

	// Script is the Starlark executor body
	script: string
}

// Field declaration for unit input and output schemas
#Field: {
	// Type is the declared field type
	type: "string" | "integer" | "number" | "boolean" | "array" | "object" | "any"

	// Description describes the field
	description?: string

	// Required indicates the field must be present after resolution
	required?: bool

	// Default is used when the field is left unresolved
	default?: _

	// Enum restricts the field to the listed values
	enum?: [..._]
}
`
