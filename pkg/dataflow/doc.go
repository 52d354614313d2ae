// Package dataflow implements the path-expression language used to wire one
// unit's output into another unit's input.
//
// An expression is delimited by {{ and }} and contains a path reference:
//
//	{{ $json.temp }}                     short form, reads the current producer
//	{{ $json.user.name }}                nested records
//	{{ $json.items[0].id }}              sequence indexing
//	{{ $node("fetch").json.city }}       explicit producer reference
//
// Resolution has two modes. When an input string is exactly one expression,
// the referenced value replaces it with its native type preserved. When
// expressions are embedded among literal text, each match is resolved,
// stringified and substituted in place, yielding a string.
//
// The resolver is pure: identical (expression, context) pairs always yield
// identical results, and resolution performs no mutation and no I/O. Syntax is
// validated independently of resolution so that malformed expressions are
// rejected at plan build time, before any unit executes.
package dataflow
