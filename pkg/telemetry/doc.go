// Package telemetry provides structured logging, metrics and distributed
// tracing for the unitflow engine.
//
// Logging is built on zerolog with component child loggers and context
// propagation. Metrics are exported through a dedicated Prometheus registry
// served on a configurable HTTP endpoint. Tracing uses OpenTelemetry with
// stdout and OTLP gRPC exporters.
//
// The Observer type adapts the engine's status-transition stream into logs
// and metrics: pass it to the scheduler as its trace sink and every unit
// start, retry and terminal transition is logged and counted without any
// instrumentation inside the engine itself.
package telemetry
