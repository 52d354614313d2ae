package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that block plan admission.
	SeverityError Severity = "error"

	// SeverityCritical is for violations that must never be admitted.
	SeverityCritical Severity = "critical"
)

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Unit is the unit id the violation applies to, when unit-scoped.
	Unit string `json:"unit,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// Result represents the result of evaluating a plan against all policies.
type Result struct {
	// Allowed indicates if the plan may be executed. A plan is allowed when
	// no violation carries error or critical severity.
	Allowed bool `json:"allowed"`

	// Violations lists all policy violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists evaluation problems that did not block admission.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the evaluation happened.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Input is the document handed to Rego evaluation.
type Input struct {
	// Plan is the plan document under evaluation.
	Plan *PlanDocument `json:"plan,omitempty"`

	// Context provides additional evaluation context.
	Context *Context `json:"context"`
}

// PlanDocument is the policy-facing projection of an execution plan.
type PlanDocument struct {
	// ID is the plan id.
	ID string `json:"id"`

	// Primary is the primary requested unit id.
	Primary string `json:"primary"`

	// Requested lists all requested unit ids.
	Requested []string `json:"requested"`

	// ClosureSize is the number of units in the plan.
	ClosureSize int `json:"closure_size"`

	// LayerCount is the number of execution layers.
	LayerCount int `json:"layer_count"`

	// MaxLayerWidth is the widest layer's unit count.
	MaxLayerWidth int `json:"max_layer_width"`

	// Units lists every unit in the closure.
	Units []UnitDocument `json:"units"`
}

// UnitDocument is the policy-facing projection of one planned unit.
type UnitDocument struct {
	// ID is the unit id.
	ID string `json:"id"`

	// Category is the unit's category.
	Category string `json:"category,omitempty"`

	// Tags are the unit's registry tags.
	Tags []string `json:"tags,omitempty"`

	// Layer is the unit's execution layer.
	Layer int `json:"layer"`

	// TimeoutMS is the unit's invocation timeout in milliseconds, 0 when
	// unbounded.
	TimeoutMS int64 `json:"timeout_ms"`

	// MaxRetries is the unit's retry budget.
	MaxRetries int `json:"max_retries"`

	// Dependencies lists in-plan dependency ids.
	Dependencies []string `json:"dependencies,omitempty"`
}

// Context provides context information for policy evaluation.
type Context struct {
	// User is the user requesting the run.
	User string `json:"user,omitempty"`

	// Environment is the environment (e.g. "production", "staging").
	Environment string `json:"environment,omitempty"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	// DryRun indicates if this is a dry-run evaluation.
	DryRun bool `json:"dry_run"`

	// Metadata contains additional context metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Bundle represents a collection of related policies.
type Bundle struct {
	// Name is the unique name of the bundle.
	Name string `json:"name"`

	// Version is the bundle version.
	Version string `json:"version"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Policies are the policies in this bundle.
	Policies []Policy `json:"policies"`

	// CreatedAt is when the bundle was created.
	CreatedAt time.Time `json:"created_at"`
}
