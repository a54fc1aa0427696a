// Package middleware provides gin middleware for the httptransport RPC
// adapter: request correlation ids and structured access logging.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/streamspace-dev/pluginrt/internal/logger"
)

// StructuredLoggerConfig customizes StructuredLoggerWithConfig.
type StructuredLoggerConfig struct {
	// SkipPaths lists request paths to skip logging for (e.g. /healthz).
	SkipPaths []string

	// LogQuery, if false, omits query parameters from the log line.
	LogQuery bool
}

// DefaultStructuredLoggerConfig returns the default configuration: skip
// /healthz and /metrics, log query parameters.
func DefaultStructuredLoggerConfig() StructuredLoggerConfig {
	return StructuredLoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
		LogQuery:  true,
	}
}

// StructuredLogger is StructuredLoggerWithConfig with the default config.
func StructuredLogger() gin.HandlerFunc {
	return StructuredLoggerWithConfig(DefaultStructuredLoggerConfig())
}

// StructuredLoggerWithConfig logs one structured line per request: the
// correlation id set by RequestID, method, path, status, duration, and
// any gin errors accumulated during the handler chain.
func StructuredLoggerWithConfig(cfg StructuredLoggerConfig) gin.HandlerFunc {
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}
	log := logger.Transport()

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skip[path] {
			c.Next()
			return
		}

		start := time.Now()
		raw := c.Request.URL.RawQuery

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		evt := log.Info()
		switch {
		case status >= 500:
			evt = log.Error()
		case status >= 400:
			evt = log.Warn()
		}

		evt = evt.
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP())

		if cfg.LogQuery && raw != "" {
			evt = evt.Str("query", raw)
		}
		if len(c.Errors) > 0 {
			evt = evt.Str("errors", c.Errors.String())
		}
		evt.Msg("request handled")
	}
}
