package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the unitflow engine. A disabled
// instance is a safe no-op so callers never need nil checks.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Unit metrics
	unitsExecuted *prometheus.CounterVec
	unitDuration  *prometheus.HistogramVec
	unitRetries   *prometheus.CounterVec

	// Plan metrics
	plansBuilt  *prometheus.CounterVec
	closureSize prometheus.Histogram
	layerCount  prometheus.Histogram

	// Registry metrics
	registeredUnits prometheus.Gauge

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// System metrics
	activeRuns prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of plan executions started",
			},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of plan executions completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of plan execution in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		unitsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "units_executed_total",
				Help:      "Total number of units reaching a terminal status",
			},
			[]string{"unit", "status"},
		),
		unitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "unit_duration_seconds",
				Help:      "Duration of unit execution in seconds",
				Buckets:   buckets,
			},
			[]string{"unit", "status"},
		),
		unitRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unit_retries_total",
				Help:      "Total number of unit retry attempts",
			},
			[]string{"unit"},
		),

		plansBuilt: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plans_built_total",
				Help:      "Total number of execution plans built",
			},
			[]string{"outcome"},
		),
		closureSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "plan_closure_size",
				Help:      "Number of units in built plan closures",
				Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
			},
		),
		layerCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "plan_layer_count",
				Help:      "Number of layers in built plans",
				Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
			},
		),

		registeredUnits: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "registered_units",
				Help:      "Current number of registered unit definitions",
			},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Current number of in-flight plan executions",
			},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.unitsExecuted,
		m.unitDuration,
		m.unitRetries,
		m.plansBuilt,
		m.closureSize,
		m.layerCount,
		m.registeredUnits,
		m.errorsByClass,
		m.errorsByCode,
		m.activeRuns,
	)

	return m, nil
}

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted() {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.Inc()
	m.activeRuns.Inc()
}

// RecordRunCompleted records a completed run with its status and duration.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// RecordUnitExecution records a unit reaching a terminal status.
func (m *Metrics) RecordUnitExecution(unitID, status string, duration time.Duration) {
	if m.unitsExecuted == nil {
		return
	}
	m.unitsExecuted.WithLabelValues(unitID, status).Inc()
	m.unitDuration.WithLabelValues(unitID, status).Observe(duration.Seconds())
}

// RecordUnitRetry records one retry attempt for a unit.
func (m *Metrics) RecordUnitRetry(unitID string) {
	if m.unitRetries == nil {
		return
	}
	m.unitRetries.WithLabelValues(unitID).Inc()
}

// RecordPlanBuilt records a plan build attempt and, on success, the plan shape.
func (m *Metrics) RecordPlanBuilt(outcome string, closureSize, layers int) {
	if m.plansBuilt == nil {
		return
	}
	m.plansBuilt.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		m.closureSize.Observe(float64(closureSize))
		m.layerCount.Observe(float64(layers))
	}
}

// SetRegisteredUnits sets the current registry size.
func (m *Metrics) SetRegisteredUnits(count float64) {
	if m.registeredUnits == nil {
		return
	}
	m.registeredUnits.Set(count)
}

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer(logger *Logger) error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.WithError(err).Error("metrics server stopped")
			}
		}
	}()

	return nil
}
