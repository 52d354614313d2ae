package config

import (
	"time"
)

// CatalogMeta describes a unit catalog.
type CatalogMeta struct {
	// Name is the catalog name.
	Name string `json:"name" validate:"required"`

	// Version is the catalog version string.
	Version string `json:"version,omitempty"`

	// Description describes the catalog.
	Description string `json:"description,omitempty"`
}

// FieldConfig declares one input or output field of a catalog unit.
type FieldConfig struct {
	// Type is the declared field type.
	Type string `json:"type" validate:"required,oneof=string integer number boolean array object any"`

	// Description is the human-readable field description.
	Description string `json:"description,omitempty"`

	// Required marks the field as mandatory (inputs only).
	Required bool `json:"required,omitempty"`

	// Default is the value used when the field is left unresolved.
	Default interface{} `json:"default,omitempty"`

	// Enum restricts the field to one of the listed values.
	Enum []interface{} `json:"enum,omitempty"`
}

// UnitConfig is a unit definition as declared in a catalog file. Its executor
// is a Starlark script run in the scripting sandbox.
type UnitConfig struct {
	// ID is the unique unit identifier. Defaults to the catalog map key.
	ID string `json:"id" validate:"required"`

	// Name is the human-readable display name.
	Name string `json:"name" validate:"required"`

	// Description describes what the unit does.
	Description string `json:"description,omitempty"`

	// Category groups related units.
	Category string `json:"category,omitempty"`

	// Tags are free-form labels used for registry lookups.
	Tags []string `json:"tags,omitempty"`

	// Priority is an ordering hint.
	Priority int `json:"priority,omitempty"`

	// Timeout bounds a single invocation, as a Go duration string.
	Timeout string `json:"timeout,omitempty"`

	// MaxRetries is the retry budget for transient failures.
	MaxRetries int `json:"max_retries,omitempty"`

	// Dependencies lists unit ids that must succeed first.
	Dependencies []string `json:"dependencies,omitempty"`

	// Inputs is the input schema, keyed by field name.
	Inputs map[string]FieldConfig `json:"inputs,omitempty"`

	// Outputs is the output schema, keyed by field name.
	Outputs map[string]FieldConfig `json:"outputs,omitempty"`

	// Script is the Starlark executor body.
	Script string `json:"script" validate:"required"`
}

// ParsedCatalog is the fully parsed catalog from one or more CUE sources.
type ParsedCatalog struct {
	// Catalog is the catalog metadata.
	Catalog CatalogMeta `json:"catalog"`

	// Units are all units defined in the catalog, in stable id order.
	Units []UnitConfig `json:"units"`

	// SourceFiles are the CUE files that were parsed.
	SourceFiles []string `json:"source_files"`

	// ParsedAt is when the catalog was parsed.
	ParsedAt time.Time `json:"parsed_at"`

	// Errors lists any validation errors.
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the CUE path to the error (e.g., "units.summarize.inputs").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`

	// Severity is the error severity (error, warning, info).
	Severity string `json:"severity"`
}
