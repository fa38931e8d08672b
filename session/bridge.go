package session

import (
	"time"

	"github.com/teranos/lspsession/reconnect"
)

// Bridge connects the session to the editor and its user-facing sinks.
// Methods are called from the session's connection goroutine and must
// not block for long.
type Bridge interface {
	// OnDiagnostics replaces the markers shown for uri.
	OnDiagnostics(uri string, markers []Marker)
	// OnLog receives server log lines.
	OnLog(text string, level LogLevel)
	// OnAlert receives user-facing messages; urgent ones should interrupt.
	OnAlert(text string, urgent bool)
	// DocumentSnapshot returns the document to open once the session is
	// ready. ok is false when no document is open.
	DocumentSnapshot() (doc Document, ok bool)
	// OnContentChange registers the session's change listener.
	OnContentChange(func(ContentChange))
}

// StatusSink is an optional Bridge extension for a connection status
// indicator.
type StatusSink interface {
	OnStatus(Status)
}

// Document identifies an open text document and its full contents.
type Document struct {
	URI        string
	LanguageID string
	Version    int32
	Text       string
}

// ContentChange is a full-text edit with the version to attach.
type ContentChange struct {
	URI     string
	Version int32
	Text    string
}

// LogLevel is the collapsed severity of a server log message.
type LogLevel int

const (
	LevelInfo LogLevel = iota
	LevelError
)

func (l LogLevel) String() string {
	if l == LevelError {
		return "error"
	}
	return "info"
}

// Status is a snapshot for a visible connection indicator.
type Status struct {
	Connection reconnect.State
	Session    State
	Attempt    int
	// Delay is set when Connection is Backoff.
	Delay time.Duration
	// Err is the most recent failure, if any.
	Err error
}

type nopBridge struct{}

func (nopBridge) OnDiagnostics(string, []Marker) {}
func (nopBridge) OnLog(string, LogLevel) {}
func (nopBridge) OnAlert(string, bool) {}
func (nopBridge) DocumentSnapshot() (Document, bool) { return Document{}, false }
func (nopBridge) OnContentChange(func(ContentChange)) {}
