package telemetry

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a thin wrapper over zerolog that carries the run, plan, unit and
// layer fields used throughout the engine.
type Logger struct {
	base   zerolog.Logger
	config LoggingConfig
}

type loggerContextKey struct{}

// NewLogger creates a logger from the given configuration.
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	writer, err := newLogWriter(cfg)
	if err != nil {
		return nil, err
	}

	zerolog.TimeFieldFormat = timeFieldFormat(cfg.TimeFormat)

	base := zerolog.New(writer).With().Timestamp().Logger().Level(parseLogLevel(cfg.Level))
	if cfg.EnableCaller {
		base = base.With().Caller().Logger()
	}
	if cfg.EnableSampling {
		base = base.Sample(&zerolog.BurstSampler{
			Burst:       uint32(cfg.SamplingInitial),
			Period:      time.Second,
			NextSampler: &zerolog.BasicSampler{N: uint32(cfg.SamplingThereafter)},
		})
	}

	return &Logger{base: base, config: cfg}, nil
}

func newLogWriter(cfg LoggingConfig) (io.Writer, error) {
	var writer io.Writer
	switch cfg.Output {
	case "stdout":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		// Anything else is a file path.
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		writer = file
	}

	if cfg.Format == "console" {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
	}
	return writer, nil
}

func timeFieldFormat(format string) string {
	switch format {
	case "unix":
		return zerolog.TimeFormatUnix
	case "unixms":
		return zerolog.TimeFormatUnixMs
	case "unixmicro":
		return zerolog.TimeFormatUnixMicro
	default:
		return time.RFC3339
	}
}

// NewComponentLogger creates a child logger for a specific component.
func (l *Logger) NewComponentLogger(component string) *Logger {
	return l.derive(l.base.With().Str("component", component).Logger())
}

// Zerolog exposes the underlying zerolog logger for packages that take one
// directly.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.base
}

// WithContext adds the logger to the context.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, l)
}

// FromContext retrieves the logger from the context, or a plain stdout logger
// when none was attached.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(*Logger); ok {
		return l
	}
	return &Logger{base: zerolog.New(os.Stdout).With().Timestamp().Logger()}
}

func (l *Logger) derive(base zerolog.Logger) *Logger {
	return &Logger{base: base, config: l.config}
}

// WithField returns a logger with a single additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.derive(l.base.With().Interface(key, value).Logger())
}

// WithFields returns a logger with additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.base.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return l.derive(ctx.Logger())
}

// WithError adds error information to the logger.
func (l *Logger) WithError(err error) *Logger {
	return l.derive(l.base.With().Err(err).Logger())
}

// WithRunID adds a run_id field to the logger.
func (l *Logger) WithRunID(runID string) *Logger {
	return l.WithField("run_id", runID)
}

// WithPlanID adds a plan_id field to the logger.
func (l *Logger) WithPlanID(planID string) *Logger {
	return l.WithField("plan_id", planID)
}

// WithUnitID adds a unit_id field to the logger.
func (l *Logger) WithUnitID(unitID string) *Logger {
	return l.WithField("unit_id", unitID)
}

// WithLayer adds a layer field to the logger.
func (l *Logger) WithLayer(layer int) *Logger {
	return l.WithField("layer", layer)
}

// Debug logs a debug-level message.
func (l *Logger) Debug(msg string) { l.base.Debug().Msg(msg) }

// Info logs an info-level message.
func (l *Logger) Info(msg string) { l.base.Info().Msg(msg) }

// Warn logs a warning-level message.
func (l *Logger) Warn(msg string) { l.base.Warn().Msg(msg) }

// Error logs an error-level message.
func (l *Logger) Error(msg string) { l.base.Error().Msg(msg) }

// Fatal logs a fatal-level message and exits.
func (l *Logger) Fatal(msg string) { l.base.Fatal().Msg(msg) }

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
