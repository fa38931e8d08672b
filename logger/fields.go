package logger

import (
	"go.uber.org/zap"
)

// Standard field names for consistent structured logging.
// Use these constants instead of raw strings.
const (
	// Identity
	FieldSessionID = "session_id"
	FieldRequestID = "request_id"

	// Components
	FieldComponent = "component"

	// Protocol
	FieldMethod  = "method"
	FieldURI     = "uri"
	FieldVersion = "version"
	FieldFrame   = "frame"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldDelayMS    = "delay_ms"

	// Errors
	FieldError     = "error"
	FieldErrorCode = "error_code"

	// Counts and sizes
	FieldCount   = "count"
	FieldSize    = "size"
	FieldAttempt = "attempt"

	// Status
	FieldState = "state"
	FieldFrom  = "from"
	FieldTo    = "to"

	// Network
	FieldAddress = "address"
	FieldCode    = "code"
	FieldReason  = "reason"

	// Files
	FieldFile = "file"
)

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type Session struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func New() *Session {
//	    return &Session{
//	        logger: logger.ComponentLogger("session"),
//	    }
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// ChildLogger creates a child logger with additional context.
func ChildLogger(parent *zap.SugaredLogger, keysAndValues ...interface{}) *zap.SugaredLogger {
	return parent.With(keysAndValues...)
}
