// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	level := ParseLevel(string(cfg.Level))
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to zerolog.Level, falling back to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// ForRun derives a run-scoped logger carrying the identifiers of one sync run.
func ForRun(base zerolog.Logger, runID, platform, tenant, subject string) zerolog.Logger {
	return base.With().
		Str("run_id", runID).
		Str("platform", platform).
		Str("tenant", tenant).
		Str("subject", subject).
		Logger()
}

// Log Level Guidelines:
//
// Debug: per-item decisions and internal flow
//   - Duplicate / new decisions for single connections
//   - Credential poll probes
//   - Identity index hits, misses and rebuilds
//
// Info: run lifecycle
//   - Credentials obtained
//   - Page fetched (start offset, item count)
//   - Run completed (stop reason, counters)
//
// Warn: degraded but continuing
//   - Unreadable or malformed collection files (treated as empty)
//   - Throttle cooldown recorded after a 429
//   - Credential requester or Redis index failures
//
// Error: the run failed
//   - Remote request errors
//   - Credential wait timeout or cancellation
//   - Notification delivery failures
//
// Context Fields:
//   - run_id, platform, tenant, subject: run scope
//   - start, page_size: pagination cursor
//   - status, error_class: remote failures
//   - consecutive_existing: duplicate streak counter
