package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unitflow/unitflow/pkg/dataflow"
)

// DefaultConcurrency bounds per-layer parallelism when the caller does not
// configure a cap.
const DefaultConcurrency = 10

// ScheduleOptions configures one plan execution.
type ScheduleOptions struct {
	// Concurrency caps the number of units executing at once within a layer.
	// Zero or negative selects DefaultConcurrency.
	Concurrency int

	// PlanDeadline bounds the whole run. Zero means no overall deadline.
	// Per-unit timeouts are independent of this deadline.
	PlanDeadline time.Duration

	// Sink optionally receives every status transition in addition to the
	// run's own tracker. It must not block.
	Sink TraceSink
}

// Scheduler executes plans layer by layer. A layer boundary is a barrier: no
// unit of layer n+1 starts before every unit of layer n has reached a terminal
// status. Within a layer, units run concurrently under the configured cap.
type Scheduler struct {
	registry *Registry
	resolver *dataflow.Resolver
}

// NewScheduler creates a scheduler bound to the given registry.
func NewScheduler(registry *Registry) *Scheduler {
	return &Scheduler{
		registry: registry,
		resolver: dataflow.NewResolver(),
	}
}

// runState is the mutable state of one execution. It is owned by a single
// Execute call and shares nothing with concurrent runs.
type runState struct {
	mu       sync.RWMutex
	statuses map[string]UnitStatus
	results  map[string]*UnitRunResult

	// outputs accumulates completed units' output records. Each unit writes
	// exactly one entry, after it has been Running, so there is never a
	// concurrent writer to the same key.
	outputs map[string]Record
}

func (rs *runState) status(id string) UnitStatus {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.statuses[id]
}

func (rs *runState) setStatus(id string, status UnitStatus) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.statuses[id] = status
}

func (rs *runState) storeResult(result *UnitRunResult) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.results[result.UnitID] = result
	rs.statuses[result.UnitID] = result.Status
	if result.Status == UnitStatusSucceeded && result.Output != nil {
		rs.outputs[result.UnitID] = result.Output
	}
}

// outputView snapshots the completed outputs for expression resolution.
func (rs *runState) outputView() map[string]map[string]interface{} {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	view := make(map[string]map[string]interface{}, len(rs.outputs))
	for id, record := range rs.outputs {
		view[id] = record
	}
	return view
}

// Execute walks the plan's layers in order and returns the full per-unit
// results, trace and overall status. Execution-time failures never produce an
// error return; they surface as unit statuses so the caller always receives
// the complete trace.
func (s *Scheduler) Execute(ctx context.Context, plan *ExecutionPlan, opts ScheduleOptions) (*RunResult, error) {
	if plan == nil {
		return nil, NewPermanentError("plan is nil", nil).WithCode(ErrCodeValidation)
	}
	if ok, verr := s.registry.Validated(); !ok {
		return nil, NewPermanentError("registry has not passed graph validation", verr).
			WithCode(ErrCodeValidation).
			WithOperation("execute")
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	if opts.PlanDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.PlanDeadline)
		defer cancel()
	}

	tracker := NewTracker()
	sink := TraceSink(tracker)
	if opts.Sink != nil {
		sink = multiSink{tracker, opts.Sink}
	}

	state := &runState{
		statuses: make(map[string]UnitStatus, len(plan.Closure)),
		results:  make(map[string]*UnitRunResult, len(plan.Closure)),
		outputs:  make(map[string]Record),
	}
	for _, id := range plan.Closure {
		state.statuses[id] = UnitStatusPending
	}

	startedAt := time.Now()
	aborted := false

	for layerIdx, layer := range plan.Layers {
		if ctx.Err() != nil {
			aborted = true
			s.skipRemaining(plan, state, sink, "plan deadline exceeded", ErrCodePlanAborted)
			break
		}

		tracker.LayerStarted(layerIdx, layer)
		s.executeLayer(ctx, plan, state, layer, concurrency, sink)
		tracker.LayerCompleted(layerIdx)
	}

	completedAt := time.Now()

	// The deadline may have fired inside the final layer.
	if !aborted && opts.PlanDeadline > 0 && ctx.Err() != nil {
		aborted = true
	}

	result := &RunResult{
		RunID:       uuid.New().String(),
		PlanID:      plan.ID,
		Units:       state.results,
		Trace:       tracker.Trace(),
		Layers:      tracker.Layers(),
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
	}
	result.Summary = summarize(plan, state)

	switch {
	case aborted:
		result.Status = RunStatusAborted
	case state.status(plan.Requested.Primary) == UnitStatusSucceeded:
		result.Status = RunStatusSucceeded
	default:
		result.Status = RunStatusFailed
	}

	return result, nil
}

// executeLayer runs every unit in the layer through a bounded worker pool and
// waits for all of them to reach a terminal status. Failures within the layer
// never interrupt siblings already in flight.
func (s *Scheduler) executeLayer(
	ctx context.Context,
	plan *ExecutionPlan,
	state *runState,
	layer []string,
	concurrency int,
	sink TraceSink,
) {
	workers := concurrency
	if len(layer) < workers {
		workers = len(layer)
	}

	queue := make(chan string, len(layer))
	for _, id := range layer {
		queue <- id
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for unitID := range queue {
				s.runUnit(ctx, plan, state, unitID, sink)
			}
		}()
	}
	wg.Wait()
}

// runUnit drives one unit from Pending to a terminal status.
func (s *Scheduler) runUnit(
	ctx context.Context,
	plan *ExecutionPlan,
	state *runState,
	unitID string,
	sink TraceSink,
) {
	def := s.registry.Get(unitID)
	startedAt := time.Now()

	// Cascading skip: any non-succeeded dependency rules the unit out before
	// its resolver or executor is touched.
	for _, dep := range plan.Dependencies[unitID] {
		if state.status(dep) != UnitStatusSucceeded {
			s.finish(state, sink, &UnitRunResult{
				UnitID:    unitID,
				Status:    UnitStatusSkipped,
				StartedAt: startedAt,
				Error: NewPermanentError(
					fmt.Sprintf("dependency %q did not succeed", dep), nil).
					WithCode(ErrCodeDependencyFailed).
					WithUnit(unitID),
			}, UnitStatusPending, 0)
			return
		}
	}

	if ctx.Err() != nil {
		s.finish(state, sink, &UnitRunResult{
			UnitID:    unitID,
			Status:    UnitStatusSkipped,
			StartedAt: startedAt,
			Error: NewPermanentError("plan deadline exceeded", ctx.Err()).
				WithCode(ErrCodePlanAborted).
				WithUnit(unitID),
		}, UnitStatusPending, 0)
		return
	}

	// Resolve inputs against the accumulated output context. A resolution
	// failure is this unit's own failure, not a skip.
	input, rerr := s.resolveInput(plan, state, unitID, def)
	if rerr != nil {
		s.finish(state, sink, &UnitRunResult{
			UnitID:    unitID,
			Status:    UnitStatusFailed,
			StartedAt: startedAt,
			Error:     rerr,
		}, UnitStatusPending, 0)
		return
	}

	input = def.ApplyDefaults(input)
	if err := def.ValidateInput(input); err != nil {
		var engErr *EngineError
		if e, ok := err.(*EngineError); ok {
			engErr = e
		} else {
			engErr = NewPermanentError("input validation failed", err).
				WithCode(ErrCodeValidation).WithUnit(unitID)
		}
		s.finish(state, sink, &UnitRunResult{
			UnitID:    unitID,
			Status:    UnitStatusFailed,
			StartedAt: startedAt,
			Input:     input,
			Error:     engErr,
		}, UnitStatusPending, 0)
		return
	}

	state.setStatus(unitID, UnitStatusRunning)
	sink.Record(TraceEntry{
		UnitID: unitID, From: UnitStatusPending, To: UnitStatusRunning,
		Attempt: 1, Timestamp: time.Now(),
	})

	result := s.invokeWithRetry(ctx, def, input, sink)
	result.StartedAt = startedAt
	s.finish(state, sink, result, UnitStatusRunning, result.Attempts)
}

// invokeWithRetry runs the unit's executor under its timeout, retrying
// transient failures with exponential backoff. Timeouts are terminal and never
// retried; validation-class (permanent) errors are never retried.
func (s *Scheduler) invokeWithRetry(
	ctx context.Context,
	def *UnitDefinition,
	input Record,
	sink TraceSink,
) *UnitRunResult {
	result := &UnitRunResult{UnitID: def.ID, Input: input}

	for attempt := 1; ; attempt++ {
		result.Attempts = attempt

		output, err := s.invokeOnce(ctx, def, input)

		if err == nil {
			if verr := def.ValidateOutput(output); verr != nil {
				result.Status = UnitStatusFailed
				result.Error = classify(def.ID, verr)
				return result
			}
			result.Status = UnitStatusSucceeded
			result.Output = output
			return result
		}

		engErr := classify(def.ID, err)

		if engErr.Code == ErrCodeTimeout {
			result.Status = UnitStatusTimedOut
			result.Error = engErr
			return result
		}
		if engErr.Code == ErrCodePlanAborted {
			result.Status = UnitStatusFailed
			result.Error = engErr
			return result
		}

		if !IsRetryable(engErr) || attempt > def.MaxRetries {
			result.Status = UnitStatusFailed
			result.Error = engErr
			return result
		}

		backoff := calculateBackoff(attempt-1, engErr)
		sink.Record(TraceEntry{
			UnitID: def.ID, From: UnitStatusRunning, To: UnitStatusRunning,
			Attempt: attempt + 1, Timestamp: time.Now(),
		})

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			result.Status = UnitStatusFailed
			result.Error = NewPermanentError("plan deadline exceeded during backoff", ctx.Err()).
				WithCode(ErrCodePlanAborted).
				WithUnit(def.ID)
			return result
		}
	}
}

// invokeOnce invokes the executor bounded by the unit's declared timeout.
// Cancellation is cooperative: a result arriving after the deadline is
// discarded for plan purposes.
func (s *Scheduler) invokeOnce(ctx context.Context, def *UnitDefinition, input Record) (Record, error) {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if def.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, def.Timeout)
		defer cancel()
	}

	type outcome struct {
		output Record
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		output, err := def.Executor.Invoke(attemptCtx, input)
		done <- outcome{output, err}
	}()

	select {
	case o := <-done:
		if attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, NewPermanentError(
				fmt.Sprintf("execution exceeded timeout of %s", def.Timeout), attemptCtx.Err()).
				WithCode(ErrCodeTimeout).
				WithUnit(def.ID)
		}
		return o.output, o.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, NewPermanentError("plan deadline exceeded", ctx.Err()).
				WithCode(ErrCodePlanAborted).
				WithUnit(def.ID)
		}
		return nil, NewPermanentError(
			fmt.Sprintf("execution exceeded timeout of %s", def.Timeout), attemptCtx.Err()).
			WithCode(ErrCodeTimeout).
			WithUnit(def.ID)
	}
}

// resolveInput materializes the unit's input record from its plan mappings.
func (s *Scheduler) resolveInput(
	plan *ExecutionPlan,
	state *runState,
	unitID string,
	def *UnitDefinition,
) (Record, *EngineError) {
	mappings := plan.Mappings[unitID]
	input := make(Record, len(mappings))

	var resolveCtx dataflow.Context
	var ctxReady bool
	ensureCtx := func() dataflow.Context {
		if !ctxReady {
			resolveCtx = dataflow.Context{
				Outputs:  state.outputView(),
				Producer: plan.Producers[unitID],
			}
			ctxReady = true
		}
		return resolveCtx
	}

	for field, mapping := range mappings {
		switch mapping.Kind {
		case MappingLiteral:
			input[field] = mapping.Value

		case MappingExpression:
			value, err := s.resolver.Resolve(mapping.Expression, ensureCtx())
			if err != nil {
				code := ErrCodeInputResolution
				var pathErr *dataflow.PathError
				if errors.As(err, &pathErr) {
					code = ErrCodePathNotFound
				}
				return nil, NewPermanentError(
					fmt.Sprintf("failed to resolve input %q", field), err).
					WithCode(code).
					WithUnit(unitID)
			}
			input[field] = value

		case MappingReference:
			// Implicit same-name reference: a producer that succeeded without
			// emitting the field falls back to the consumer's schema default.
			view := ensureCtx()
			if output, ok := view.Outputs[mapping.Source]; ok {
				if value, ok := output[mapping.Field]; ok {
					input[field] = value
				}
			}
		}
	}
	return input, nil
}

// finish records the terminal result and emits the closing trace transition.
func (s *Scheduler) finish(
	state *runState,
	sink TraceSink,
	result *UnitRunResult,
	from UnitStatus,
	attempt int,
) {
	result.CompletedAt = time.Now()
	if result.StartedAt.IsZero() {
		result.StartedAt = result.CompletedAt
	}
	result.Duration = result.CompletedAt.Sub(result.StartedAt)
	state.storeResult(result)
	sink.Record(TraceEntry{
		UnitID: result.UnitID, From: from, To: result.Status,
		Attempt: attempt, Timestamp: result.CompletedAt,
	})
}

// skipRemaining marks every still-pending unit Skipped when the plan deadline
// expires between layers. Already-terminal results are preserved.
func (s *Scheduler) skipRemaining(
	plan *ExecutionPlan,
	state *runState,
	sink TraceSink,
	reason, code string,
) {
	for _, id := range plan.Closure {
		if state.status(id).IsTerminal() {
			continue
		}
		s.finish(state, sink, &UnitRunResult{
			UnitID: id,
			Status: UnitStatusSkipped,
			Error: NewPermanentError(reason, nil).
				WithCode(code).
				WithUnit(id),
		}, UnitStatusPending, 0)
	}
}

// classify normalizes an executor error into an EngineError. Unclassified
// errors are permanent execution failures. The executor's error is copied
// before annotation: executors may return a shared sentinel from several
// units at once.
func classify(unitID string, err error) *EngineError {
	if engErr, ok := err.(*EngineError); ok {
		annotated := *engErr
		if annotated.Code == "" {
			annotated.Code = ErrCodeExecution
		}
		if annotated.Unit == "" {
			annotated.Unit = unitID
		}
		return &annotated
	}
	return NewPermanentError("execution failed", err).
		WithCode(ErrCodeExecution).
		WithUnit(unitID)
}

// calculateBackoff computes exponential backoff with jitter, scaled by error
// class the way throttled errors deserve longer waits.
func calculateBackoff(attempt int, err error) time.Duration {
	baseDelay := 100 * time.Millisecond
	if IsThrottled(err) {
		baseDelay = 500 * time.Millisecond
	} else if IsConflict(err) {
		baseDelay = 200 * time.Millisecond
	}

	delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt)))
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}

	// Add jitter (up to +25%).
	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}

// summarize aggregates unit counts by terminal status.
func summarize(plan *ExecutionPlan, state *runState) RunSummary {
	summary := RunSummary{Total: len(plan.Closure)}
	for _, id := range plan.Closure {
		switch state.status(id) {
		case UnitStatusSucceeded:
			summary.Succeeded++
		case UnitStatusFailed:
			summary.Failed++
		case UnitStatusSkipped:
			summary.Skipped++
		case UnitStatusTimedOut:
			summary.TimedOut++
		}
	}
	return summary
}

// multiSink fans a trace entry out to multiple sinks.
type multiSink []TraceSink

// Record implements TraceSink.
func (m multiSink) Record(entry TraceEntry) {
	for _, sink := range m {
		sink.Record(entry)
	}
}
