package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ComponentLogger provides structured logging for the validation engine
type ComponentLogger struct {
	logger    zerolog.Logger
	component string
	version   string
}

// NewComponentLogger creates a new component logger
func NewComponentLogger(component, version string) *ComponentLogger {
	// Set up pretty console logging for development
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	logger := zerolog.New(output).
		With().
		Timestamp().
		Str("component", component).
		Str("version", version).
		Logger()

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	return &ComponentLogger{
		logger:    logger,
		component: component,
		version:   version,
	}
}

// Info returns an info level event
func (cl *ComponentLogger) Info() *zerolog.Event {
	return cl.logger.Info()
}

// Debug returns a debug level event
func (cl *ComponentLogger) Debug() *zerolog.Event {
	return cl.logger.Debug()
}

// Warn returns a warn level event
func (cl *ComponentLogger) Warn() *zerolog.Event {
	return cl.logger.Warn()
}

// Error returns an error level event
func (cl *ComponentLogger) Error() *zerolog.Event {
	return cl.logger.Error()
}

// Fatal returns a fatal level event
func (cl *ComponentLogger) Fatal() *zerolog.Event {
	return cl.logger.Fatal()
}

// With creates a child logger with additional context
func (cl *ComponentLogger) With() zerolog.Context {
	return cl.logger.With()
}

// GetLogger returns the underlying zerolog logger
func (cl *ComponentLogger) GetLogger() zerolog.Logger {
	return cl.logger
}

// ValidationMetrics holds metrics for a single batch validation
type ValidationMetrics struct {
	JobID            string
	ScopeID          string
	RowsTotal        int64
	RowsAccepted     int64
	RowsQuarantined  int64
	ShapeRejected    bool
	ValidateDuration time.Duration
}

// LogValidation logs batch validation metrics
func (cl *ComponentLogger) LogValidation(metrics ValidationMetrics) {
	rate := float64(0)
	if metrics.ValidateDuration > 0 {
		rate = float64(metrics.RowsTotal) / metrics.ValidateDuration.Seconds()
	}

	cl.Info().
		Str("job_id", metrics.JobID).
		Str("scope_id", metrics.ScopeID).
		Int64("rows_total", metrics.RowsTotal).
		Int64("rows_accepted", metrics.RowsAccepted).
		Int64("rows_quarantined", metrics.RowsQuarantined).
		Bool("shape_rejected", metrics.ShapeRejected).
		Dur("validate_duration", metrics.ValidateDuration).
		Float64("rows_per_second", rate).
		Msg("Validated batch")
}

// SetLevel sets the logging level
func SetLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		log.Warn().Str("level", level).Msg("Unknown log level, defaulting to info")
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
