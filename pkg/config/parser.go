package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/go-playground/validator/v10"

	"github.com/unitflow/unitflow/pkg/engine"
	"github.com/unitflow/unitflow/pkg/scripting"
)

// Parser parses and validates CUE unit catalogs.
type Parser struct {
	ctx       *cue.Context
	schemas   *SchemaRegistry
	validator *validator.Validate
}

// NewParser creates a catalog parser.
func NewParser() *Parser {
	return &Parser{
		ctx:       cuecontext.New(),
		schemas:   NewSchemaRegistry(),
		validator: validator.New(),
	}
}

// Parse parses a unit catalog from the given sources. Each source is a CUE
// file or a directory loaded as a CUE package; multiple sources are unified.
// Parse reports syntax and schema problems through ParsedCatalog.Errors
// rather than an error return, so callers can render all of them at once.
func (p *Parser) Parse(sources []string) (*ParsedCatalog, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources provided")
	}

	var cueValue cue.Value
	var sourceFiles []string
	var parseErrors []ValidationError

	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
		}

		var val cue.Value
		if info.IsDir() {
			var files []string
			var errs []ValidationError
			val, files, errs = p.loadDirectory(source)
			parseErrors = append(parseErrors, errs...)
			sourceFiles = append(sourceFiles, files...)
		} else {
			var errs []ValidationError
			val, errs = p.loadFile(source)
			parseErrors = append(parseErrors, errs...)
			sourceFiles = append(sourceFiles, source)
		}

		if val.Exists() {
			if cueValue.Exists() {
				cueValue = cueValue.Unify(val)
			} else {
				cueValue = val
			}
		}
	}

	if len(parseErrors) > 0 {
		return &ParsedCatalog{
			SourceFiles: sourceFiles,
			ParsedAt:    time.Now(),
			Errors:      parseErrors,
		}, nil
	}

	if err := cueValue.Err(); err != nil {
		return &ParsedCatalog{
			SourceFiles: sourceFiles,
			ParsedAt:    time.Now(),
			Errors:      p.convertCUEErrors(err),
		}, nil
	}

	return p.extractCatalog(cueValue, sourceFiles), nil
}

// ParseInline parses inline CUE content.
func (p *Parser) ParseInline(content string) (*ParsedCatalog, error) {
	val := p.ctx.CompileString(content)
	if err := val.Err(); err != nil {
		return &ParsedCatalog{
			SourceFiles: []string{"inline"},
			ParsedAt:    time.Now(),
			Errors:      p.convertCUEErrors(err),
		}, nil
	}

	return p.extractCatalog(val, []string{"inline"}), nil
}

// loadDirectory loads a directory as a CUE package.
func (p *Parser) loadDirectory(dir string) (cue.Value, []string, []ValidationError) {
	buildInstances := load.Instances([]string{dir}, nil)
	if len(buildInstances) == 0 {
		return cue.Value{}, nil, []ValidationError{{
			File:     dir,
			Message:  "no CUE files found",
			Severity: "error",
		}}
	}

	inst := buildInstances[0]
	if inst.Err != nil {
		return cue.Value{}, nil, p.convertCUEErrors(inst.Err)
	}

	val := p.ctx.BuildInstance(inst)
	if err := val.Err(); err != nil {
		return cue.Value{}, nil, p.convertCUEErrors(err)
	}

	var files []string
	for _, file := range inst.Files {
		if file.Filename != "" {
			files = append(files, file.Filename)
		}
	}

	return val, files, nil
}

// loadFile loads a single CUE file.
func (p *Parser) loadFile(path string) (cue.Value, []ValidationError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, []ValidationError{{
			File:     path,
			Message:  fmt.Sprintf("failed to read file: %v", err),
			Severity: "error",
		}}
	}

	val := p.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, p.convertCUEErrors(err)
	}

	return val, nil
}

// extractCatalog extracts the catalog metadata and unit definitions from a
// unified CUE value.
func (p *Parser) extractCatalog(val cue.Value, sourceFiles []string) *ParsedCatalog {
	catalog := &ParsedCatalog{
		SourceFiles: sourceFiles,
		ParsedAt:    time.Now(),
	}

	metaVal := val.LookupPath(cue.ParsePath("catalog"))
	if metaVal.Exists() {
		if err := metaVal.Decode(&catalog.Catalog); err != nil {
			catalog.Errors = append(catalog.Errors, ValidationError{
				Path:     "catalog",
				Message:  fmt.Sprintf("failed to decode catalog metadata: %v", err),
				Severity: "error",
			})
		}
	}

	unitsVal := val.LookupPath(cue.ParsePath("units"))
	if !unitsVal.Exists() {
		catalog.Errors = append(catalog.Errors, ValidationError{
			Path:     "units",
			Message:  "catalog declares no units",
			Severity: "error",
		})
		return catalog
	}

	iter, err := unitsVal.Fields(cue.All())
	if err != nil {
		catalog.Errors = append(catalog.Errors, ValidationError{
			Path:     "units",
			Message:  fmt.Sprintf("failed to iterate units: %v", err),
			Severity: "error",
		})
		return catalog
	}

	for iter.Next() {
		key := iter.Selector().String()
		unit, err := p.extractUnit(key, iter.Value())
		if err != nil {
			catalog.Errors = append(catalog.Errors, ValidationError{
				Path:     fmt.Sprintf("units.%s", key),
				Message:  err.Error(),
				Severity: "error",
			})
			continue
		}
		catalog.Units = append(catalog.Units, unit)
	}

	sort.Slice(catalog.Units, func(i, j int) bool {
		return catalog.Units[i].ID < catalog.Units[j].ID
	})

	return catalog
}

// extractUnit decodes and validates one unit declaration.
func (p *Parser) extractUnit(key string, val cue.Value) (UnitConfig, error) {
	var unit UnitConfig

	if err := val.Decode(&unit); err != nil {
		return unit, fmt.Errorf("failed to decode unit: %w", err)
	}

	// The map key doubles as the id when not set explicitly.
	if unit.ID == "" {
		unit.ID = key
	}

	if err := p.validator.Struct(unit); err != nil {
		return unit, fmt.Errorf("validation failed: %w", err)
	}

	if unit.Timeout != "" {
		if _, err := time.ParseDuration(unit.Timeout); err != nil {
			return unit, fmt.Errorf("invalid timeout %q: %w", unit.Timeout, err)
		}
	}

	return unit, nil
}

// convertCUEErrors converts CUE errors to a ValidationError slice.
func (p *Parser) convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	for _, e := range errors.Errors(err) {
		pos := errors.Positions(e)
		var file string
		var line, column int
		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Message:  errors.Details(e, nil),
			Severity: "error",
		})
	}

	return validationErrors
}

// Schemas returns the parser's schema registry.
func (p *Parser) Schemas() *SchemaRegistry {
	return p.schemas
}

// ToDefinitions converts the catalog's units into registrable unit
// definitions backed by scripted executors.
func (c *ParsedCatalog) ToDefinitions() ([]*engine.UnitDefinition, error) {
	if len(c.Errors) > 0 {
		return nil, fmt.Errorf("catalog has %d validation errors", len(c.Errors))
	}

	defs := make([]*engine.UnitDefinition, 0, len(c.Units))
	for _, unit := range c.Units {
		def, err := unit.ToDefinition()
		if err != nil {
			return nil, fmt.Errorf("unit %s: %w", unit.ID, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// ToDefinition converts one catalog unit into a unit definition.
func (u UnitConfig) ToDefinition() (*engine.UnitDefinition, error) {
	var timeout time.Duration
	if u.Timeout != "" {
		var err error
		timeout, err = time.ParseDuration(u.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", u.Timeout, err)
		}
	}

	inputs := make(map[string]engine.InputField, len(u.Inputs))
	for name, field := range u.Inputs {
		inputs[name] = engine.InputField{
			Type:        engine.FieldType(field.Type),
			Description: field.Description,
			Required:    field.Required,
			Default:     field.Default,
			HasDefault:  field.Default != nil,
			Enum:        field.Enum,
		}
	}

	outputs := make(map[string]engine.OutputField, len(u.Outputs))
	for name, field := range u.Outputs {
		outputs[name] = engine.OutputField{
			Type:        engine.FieldType(field.Type),
			Description: field.Description,
		}
	}

	return &engine.UnitDefinition{
		ID:           u.ID,
		Name:         u.Name,
		Description:  u.Description,
		Category:     u.Category,
		Tags:         u.Tags,
		Priority:     u.Priority,
		Timeout:      timeout,
		MaxRetries:   u.MaxRetries,
		Dependencies: u.Dependencies,
		Inputs:       inputs,
		Outputs:      outputs,
		Executor:     scripting.NewExecutor(u.ID, u.Script, timeout),
	}, nil
}
