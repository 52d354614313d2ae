package telemetry

import (
	"sync"
	"time"

	"github.com/unitflow/unitflow/pkg/engine"
)

// Observer bridges the engine's status-transition stream into logs and
// metrics. It implements engine.TraceSink and is passed to the scheduler
// through ScheduleOptions.
type Observer struct {
	logger  *Logger
	metrics *Metrics

	mu sync.Mutex
	// started remembers when each unit entered Running so terminal
	// transitions can be recorded with a duration.
	started map[string]time.Time
}

// NewObserver creates an observer. Either argument may be nil to disable that
// output.
func NewObserver(logger *Logger, metrics *Metrics) *Observer {
	if logger != nil {
		logger = logger.NewComponentLogger("scheduler")
	}
	return &Observer{
		logger:  logger,
		metrics: metrics,
		started: make(map[string]time.Time),
	}
}

// Record implements engine.TraceSink. It is called from scheduler worker
// goroutines and must not block.
func (o *Observer) Record(entry engine.TraceEntry) {
	switch {
	case entry.To == engine.UnitStatusRunning && entry.From == engine.UnitStatusPending:
		o.mu.Lock()
		o.started[entry.UnitID] = entry.Timestamp
		o.mu.Unlock()
		if o.logger != nil {
			o.logger.WithUnitID(entry.UnitID).Debug("unit started")
		}

	case entry.To == engine.UnitStatusRunning && entry.From == engine.UnitStatusRunning:
		if o.metrics != nil {
			o.metrics.RecordUnitRetry(entry.UnitID)
		}
		if o.logger != nil {
			o.logger.WithUnitID(entry.UnitID).
				WithField("attempt", entry.Attempt).
				Warn("unit retrying")
		}

	case entry.To.IsTerminal():
		var duration time.Duration
		o.mu.Lock()
		if start, ok := o.started[entry.UnitID]; ok {
			duration = entry.Timestamp.Sub(start)
		}
		o.mu.Unlock()
		if o.metrics != nil {
			o.metrics.RecordUnitExecution(entry.UnitID, string(entry.To), duration)
		}
		if o.logger != nil {
			log := o.logger.WithUnitID(entry.UnitID).
				WithField("status", string(entry.To)).
				WithField("duration", duration.String())
			switch entry.To {
			case engine.UnitStatusSucceeded:
				log.Info("unit completed")
			case engine.UnitStatusSkipped:
				log.Warn("unit skipped")
			default:
				log.Error("unit failed")
			}
		}
	}
}
