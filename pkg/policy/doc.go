// Package policy evaluates execution plans against Rego policies before the
// scheduler admits them. Policies publish violations through a deny set;
// error and critical violations block admission, warnings do not.
//
// Built-in policies cover plan size, layer width, unit timeouts, retry
// budgets, and external units in production. Additional policies load from
// .rego or .json files and reload on change.
package policy
