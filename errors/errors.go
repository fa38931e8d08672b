// Package errors provides error handling for lspsession.
//
// This package re-exports github.com/cockroachdb/errors and defines the
// session's error taxonomy. Every per-request failure surfaced by the
// session wraps one of the sentinels below, so callers can branch with
// errors.Is regardless of the context added along the way:
//
//	items, err := sess.Completion(ctx, uri, line, char)
//	if errors.Is(err, errors.ErrRequestTimeout) {
//	    // server never answered
//	}
//
//	if remote, ok := errors.IsRemoteError(err); ok {
//	    fmt.Println(remote.Code, remote.Message)
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	"fmt"

	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint       = crdb.WithHint
	WithHintf      = crdb.WithHintf
	WithDetail     = crdb.WithDetail
	WithDetailf    = crdb.WithDetailf
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
	Mark      = crdb.Mark
)

// Assertions
var AssertionFailedf = crdb.AssertionFailedf

// Session error taxonomy. Wrap these with errors.Wrap() to add context
// while preserving identity for errors.Is().
var (
	// ErrTransportNotReady indicates a send was attempted while the
	// connection was not open.
	ErrTransportNotReady = New("transport not ready")

	// ErrMalformedMessage indicates an inbound frame could not be decoded
	// as a JSON-RPC 2.0 message.
	ErrMalformedMessage = New("malformed message")

	// ErrRequestTimeout indicates no response arrived within the
	// request deadline.
	ErrRequestTimeout = New("request timed out")

	// ErrHandshakeFailure indicates the initialize request failed.
	ErrHandshakeFailure = New("handshake failed")

	// ErrCancelled indicates the caller abandoned an in-flight request.
	ErrCancelled = New("request cancelled")

	// ErrShutdown indicates the session was closed while the request was
	// still pending.
	ErrShutdown = New("session shut down")
)

// RemoteError is an error object returned by the server in a response.
type RemoteError struct {
	Code    int
	Message string
	Data    []byte
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

// NewRemoteError creates a RemoteError from the fields of a JSON-RPC
// error object. data may be nil.
func NewRemoteError(code int, message string, data []byte) *RemoteError {
	return &RemoteError{Code: code, Message: message, Data: data}
}

// IsRemoteError reports whether err is or wraps a RemoteError and
// returns it.
func IsRemoteError(err error) (*RemoteError, bool) {
	var remote *RemoteError
	if err != nil && As(err, &remote) {
		return remote, true
	}
	return nil, false
}

// IsTransportNotReady checks if an error is or wraps ErrTransportNotReady
func IsTransportNotReady(err error) bool {
	return err != nil && Is(err, ErrTransportNotReady)
}

// IsTimeout checks if an error is or wraps ErrRequestTimeout
func IsTimeout(err error) bool {
	return err != nil && Is(err, ErrRequestTimeout)
}

// Outcome classifies a request error into a short label suitable for
// metrics and log fields. A nil error is "ok".
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case Is(err, ErrRequestTimeout):
		return "timeout"
	case Is(err, ErrCancelled):
		return "cancelled"
	case Is(err, ErrTransportNotReady):
		return "not_ready"
	case Is(err, ErrShutdown):
		return "shutdown"
	}
	if _, ok := IsRemoteError(err); ok {
		return "remote_error"
	}
	return "error"
}
