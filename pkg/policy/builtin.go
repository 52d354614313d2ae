package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		planSizePolicy(),
		layerWidthPolicy(),
		unitTimeoutPolicy(),
		retryBudgetPolicy(),
		externalUnitsPolicy(),
	}
}

// planSizePolicy bounds how large a single plan may grow.
func planSizePolicy() Policy {
	return Policy{
		Name:        "plan-size",
		Description: "Bounds the number of units a single plan may execute",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"plan", "limits"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package unitflow.policies.size

import rego.v1

# Hard cap on plan closure size
max_units := 100

# Review threshold
review_units := 25

deny contains violation if {
	input.plan
	input.plan.closure_size > max_units
	violation := {
		"message": sprintf("Plan has %d units, exceeding the maximum of %d", [input.plan.closure_size, max_units]),
		"severity": "error",
	}
}

deny contains violation if {
	input.plan
	input.plan.closure_size > review_units
	input.plan.closure_size <= max_units
	violation := {
		"message": sprintf("Plan has %d units - please review before running", [input.plan.closure_size]),
		"severity": "warning",
	}
}`,
	}
}

// layerWidthPolicy warns when one layer would flood the worker pool.
func layerWidthPolicy() Policy {
	return Policy{
		Name:        "layer-width",
		Description: "Warns when a single layer schedules many units at once",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"plan", "concurrency"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package unitflow.policies.width

import rego.v1

max_layer_width := 20

deny contains violation if {
	input.plan
	input.plan.max_layer_width > max_layer_width
	violation := {
		"message": sprintf("Widest layer schedules %d units concurrently (limit %d)", [input.plan.max_layer_width, max_layer_width]),
		"severity": "warning",
	}
}`,
	}
}

// unitTimeoutPolicy requires every unit to carry an invocation timeout.
func unitTimeoutPolicy() Policy {
	return Policy{
		Name:        "unit-timeouts",
		Description: "Requires every planned unit to declare an invocation timeout",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"units", "safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package unitflow.policies.timeouts

import rego.v1

# Single invocations should not run longer than this
max_timeout_ms := 300000

deny contains violation if {
	input.plan
	some unit in input.plan.units
	unit.timeout_ms == 0
	violation := {
		"message": sprintf("Unit %s has no invocation timeout", [unit.id]),
		"severity": "warning",
		"unit": unit.id,
	}
}

deny contains violation if {
	input.plan
	some unit in input.plan.units
	unit.timeout_ms > max_timeout_ms
	violation := {
		"message": sprintf("Unit %s timeout of %dms exceeds the maximum of %dms", [unit.id, unit.timeout_ms, max_timeout_ms]),
		"severity": "error",
		"unit": unit.id,
	}
}`,
	}
}

// retryBudgetPolicy bounds the plan's aggregate retry budget.
func retryBudgetPolicy() Policy {
	return Policy{
		Name:        "retry-budget",
		Description: "Bounds per-unit and aggregate retry budgets",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"units", "limits"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package unitflow.policies.retries

import rego.v1

max_unit_retries := 5
max_total_retries := 50

deny contains violation if {
	input.plan
	some unit in input.plan.units
	unit.max_retries > max_unit_retries
	violation := {
		"message": sprintf("Unit %s retry budget of %d exceeds the per-unit maximum of %d", [unit.id, unit.max_retries, max_unit_retries]),
		"severity": "error",
		"unit": unit.id,
	}
}

deny contains violation if {
	input.plan
	total := sum([unit.max_retries | some unit in input.plan.units])
	total > max_total_retries
	violation := {
		"message": sprintf("Plan aggregate retry budget of %d exceeds the maximum of %d", [total, max_total_retries]),
		"severity": "warning",
	}
}`,
	}
}

// externalUnitsPolicy gates network-reaching units in production.
func externalUnitsPolicy() Policy {
	return Policy{
		Name:        "external-units",
		Description: "Blocks units tagged 'external' in production unless the run is approved",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"units", "safety", "production"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package unitflow.policies.external

import rego.v1

deny contains violation if {
	input.plan
	input.context
	input.context.environment == "production"
	not input.context.dry_run
	not input.context.metadata.approved

	some unit in input.plan.units
	"external" in unit.tags

	violation := {
		"message": sprintf("Unit %s reaches external systems and needs approval to run in production", [unit.id]),
		"severity": "critical",
		"unit": unit.id,
	}
}

# Dry runs only warn
deny contains violation if {
	input.plan
	input.context
	input.context.environment == "production"
	input.context.dry_run

	some unit in input.plan.units
	"external" in unit.tags

	violation := {
		"message": sprintf("Unit %s would need approval to run in production", [unit.id]),
		"severity": "warning",
		"unit": unit.id,
	}
}`,
	}
}
