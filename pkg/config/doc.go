// Package config loads unit catalogs written in CUE.
//
// A catalog declares catalog metadata and a set of units, each with a typed
// input/output schema, dependencies, and a Starlark script body. Parsed
// catalogs convert to engine unit definitions via ToDefinitions, and the
// Watcher re-parses sources on change for hot reload.
package config
