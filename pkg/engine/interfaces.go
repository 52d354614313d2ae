package engine

import (
	"context"
)

// Executor is the opaque capability behind a unit: it receives a resolved
// input record validated against the unit's input schema and returns an output
// record, or fails with a classified error.
//
// Executors must honor context cancellation: the scheduler signals the unit's
// timeout and the overall plan deadline through ctx. A result returned after
// ctx is done is discarded for plan purposes.
//
// Errors returned by an executor are classified via EngineError: transient,
// throttled and conflict errors are retried according to the unit's retry
// policy, permanent errors (and unclassified errors) are not.
type Executor interface {
	Invoke(ctx context.Context, input Record) (Record, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, input Record) (Record, error)

// Invoke implements Executor.
func (f ExecutorFunc) Invoke(ctx context.Context, input Record) (Record, error) {
	return f(ctx, input)
}

// TraceSink receives status transitions as they are emitted by the scheduler.
// The engine's Tracker implements this; external observers (persistence,
// streaming) may wrap it. Sinks must not block and never influence scheduling.
type TraceSink interface {
	Record(entry TraceEntry)
}
