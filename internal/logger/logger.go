// Package logger owns the process-wide zerolog logger and per-subsystem
// child loggers used by the ambient stack (not by the Telemetry Core's
// own structured logs, which are a separate signal kind — see
// internal/telemetry).
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the global logger instance, scoped with the service name.
var Log zerolog.Logger

// Initialize configures the global logger's level and output format.
// Call once at process startup before any subsystem logger is used.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().
		Str("service", "pluginrtd").
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("logger initialized")
}

// GetLogger returns the global logger instance.
func GetLogger() *zerolog.Logger {
	return &Log
}

// Plugin creates a logger scoped to the plugin host subsystem.
func Plugin() *zerolog.Logger {
	l := Log.With().Str("component", "plugin").Logger()
	return &l
}

// Telemetry creates a logger for the Telemetry Core's own operational
// logging (distinct from structured Log signals it emits for consumers).
func Telemetry() *zerolog.Logger {
	l := Log.With().Str("component", "telemetry").Logger()
	return &l
}

// Transport creates a logger for the RPC transport adapters.
func Transport() *zerolog.Logger {
	l := Log.With().Str("component", "transport").Logger()
	return &l
}

// RPC creates a logger for the RPC binding layer.
func RPC() *zerolog.Logger {
	l := Log.With().Str("component", "rpc").Logger()
	return &l
}
