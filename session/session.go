// Package session runs a Language Server Protocol client session over a
// re-establishable transport link.
//
// A Session owns one link at a time. Link events are consumed in order
// by a single goroutine per connection, which resolves responses and
// dispatches notifications. Callers block on their own goroutine until
// their request is resolved, times out, or their context ends.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/teranos/lspsession/errors"
	"github.com/teranos/lspsession/logger"
	"github.com/teranos/lspsession/metrics"
	"github.com/teranos/lspsession/pending"
	"github.com/teranos/lspsession/reconnect"
	"github.com/teranos/lspsession/transport"
	"go.uber.org/zap"
)

// DefaultAddress is the language server endpoint when none is configured.
const DefaultAddress = "ws://localhost:8080/lsp"

// State is the protocol state of the session.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	}
	return "unknown"
}

// Opener starts a new link to address.
type Opener func(ctx context.Context, address string) transport.Link

// Options configures a Session.
type Options struct {
	Address        string
	RequestTimeout time.Duration
	// Trace is sent in initialize: off, messages or verbose.
	Trace     string
	Reconnect reconnect.Config
	// FailPendingOnDisconnect rejects in-flight requests as soon as the
	// link drops instead of leaving them to time out.
	FailPendingOnDisconnect bool

	Open   Opener
	Bridge Bridge
	// Status receives connection status changes. Defaults to Bridge when
	// it implements StatusSink.
	Status  StatusSink
	Metrics *metrics.Recorder
	Logger  *zap.SugaredLogger

	ClientName    string
	ClientVersion string
	RootURI       string
	// MinServerVersion logs a warning when serverInfo.version is older.
	MinServerVersion string
	// LogFrames logs every frame at debug level.
	LogFrames bool
}

// Session is an LSP client session.
type Session struct {
	opts   Options
	id     string
	logger *zap.SugaredLogger
	bridge Bridge
	status StatusSink

	table  *pending.Table
	ctrl   *reconnect.Controller
	nextID atomic.Int64
	caps   atomic.Pointer[Capabilities]

	notifications map[string]notificationHandler
	serverCalls   map[string]serverRequestHandler

	mu       sync.Mutex
	state    State
	link     transport.Link
	running  bool
	closed   bool
	cancel   context.CancelFunc
	loopDone chan struct{}
	// handshakeErr is the failure of the current link's handshake
	handshakeErr error

	// syncMu orders document notifications; synced holds the last
	// version sent per URI on the current link
	syncMu sync.Mutex
	synced map[string]int32

	// after schedules reconnection delays; replaced in tests
	after func(time.Duration) <-chan time.Time
}

// New creates a session. It does not connect until Connect is called.
func New(opts Options) *Session {
	if opts.Address == "" {
		opts.Address = DefaultAddress
	}
	if opts.Trace == "" {
		opts.Trace = "off"
	}
	if opts.ClientName == "" {
		opts.ClientName = "lspsession"
	}
	if opts.Reconnect == (reconnect.Config{}) {
		opts.Reconnect = reconnect.DefaultConfig()
	}
	if opts.Open == nil {
		opts.Open = transport.NewDialer(transport.DefaultOptions()).OpenLink
	}
	if opts.Bridge == nil {
		opts.Bridge = nopBridge{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.ComponentLogger("session")
	}

	id := uuid.NewString()
	s := &Session{
		opts:   opts,
		id:     id,
		logger: opts.Logger.With(logger.FieldSessionID, id),
		bridge: opts.Bridge,
		table:  pending.New(opts.RequestTimeout),
		ctrl:   reconnect.New(opts.Reconnect),
		status: opts.Status,
		after:  time.After,
		synced: make(map[string]int32),
	}
	if s.status == nil {
		if sink, ok := opts.Bridge.(StatusSink); ok {
			s.status = sink
		}
	}
	s.registerHandlers()

	s.ctrl.Subscribe(func(from, to reconnect.State) {
		s.opts.Metrics.SetConnectionState(to)
		s.logger.Debugw("Connection state changed",
			logger.FieldFrom, from.String(),
			logger.FieldTo, to.String())
	})

	s.bridge.OnContentChange(func(c ContentChange) {
		s.DidChange(c.URI, c.Version, c.Text)
	})

	return s
}

// ID returns the session's unique id.
func (s *Session) ID() string {
	return s.id
}

// State returns the protocol state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConnectionState returns the reconnection controller's state.
func (s *Session) ConnectionState() reconnect.State {
	return s.ctrl.State()
}

// Capabilities returns the negotiated capabilities, or nil before the
// handshake completes and after the connection drops.
func (s *Session) Capabilities() *Capabilities {
	return s.caps.Load()
}

// Pending returns the number of in-flight requests.
func (s *Session) Pending() int {
	return s.table.Len()
}

// readyLink returns the link and capabilities when feature requests may
// be sent.
func (s *Session) readyLink() (transport.Link, *Capabilities) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Ready || s.link == nil {
		return nil, nil
	}
	return s.link, s.caps.Load()
}

func (s *Session) currentLink() transport.Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link
}

// Connect starts the connection loop and returns immediately. Calling it
// while the loop runs is a no-op; calling it after the controller gave up
// starts a fresh series of attempts.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.Wrap(errors.ErrShutdown, "session is closed")
	}
	if s.running {
		return nil
	}
	if s.ctrl.State() == reconnect.GaveUp {
		s.ctrl.Reset()
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.loopDone = make(chan struct{})

	s.logger.Infow("Connecting", logger.FieldAddress, s.opts.Address)
	go s.run(loopCtx, s.loopDone)
	return nil
}

// WaitReady blocks until the handshake completes or ctx ends. It fails
// early when the controller gave up or the handshake on the open link
// failed.
func (s *Session) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		s.mu.Lock()
		state, handshakeErr := s.state, s.handshakeErr
		s.mu.Unlock()
		if state == Ready {
			return nil
		}
		if handshakeErr != nil {
			return errors.WithHint(handshakeErr, "check the language server's log for why initialize was rejected")
		}
		if s.ConnectionState() == reconnect.GaveUp {
			return errors.WithHint(
				errors.Wrapf(errors.ErrTransportNotReady, "gave up connecting to %s", s.opts.Address),
				"is the language server running?")
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "waiting for session to become ready")
		case <-ticker.C:
		}
	}
}

// run is the connection loop: dial, consume the link until it closes,
// back off, repeat.
func (s *Session) run(ctx context.Context, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(done)
	}()

	for {
		s.ctrl.Connecting()
		s.emitStatus(nil)

		link := s.opts.Open(ctx, s.opts.Address)
		s.mu.Lock()
		s.link = link
		s.mu.Unlock()

		lastErr := s.consume(ctx, link)
		s.disconnected(link)

		if ctx.Err() != nil {
			s.ctrl.Disconnect()
			s.emitStatus(nil)
			return
		}

		delay, ok := s.ctrl.Dropped()
		if !ok {
			s.logger.Errorw("Giving up on reconnection",
				logger.FieldAddress, s.opts.Address,
				logger.FieldAttempt, s.ctrl.Attempts())
			s.emitStatus(lastErr)
			return
		}

		s.opts.Metrics.RecordReconnect()
		s.logger.Infow("Reconnecting after backoff",
			logger.FieldAttempt, s.ctrl.Attempts(),
			logger.FieldDelayMS, delay.Milliseconds())
		s.emitStatusDelay(delay, lastErr)

		select {
		case <-ctx.Done():
			s.ctrl.Disconnect()
			s.emitStatus(nil)
			return
		case <-s.after(delay):
		}
	}
}

// consume handles the events of one link in order until the link's
// event stream ends. It returns the last transport error seen.
func (s *Session) consume(ctx context.Context, link transport.Link) error {
	var lastErr error
	events := link.Events()
	stop := ctx.Done()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return lastErr
			}
			switch ev.Kind {
			case transport.EventOpen:
				s.opened(ctx, link)
			case transport.EventMessage:
				s.handleFrame(link, ev.Frame)
			case transport.EventError:
				lastErr = ev.Err
				s.logger.Warnw("Transport error", logger.FieldError, ev.Err)
			case transport.EventClose:
				s.logger.Infow("Connection closed",
					logger.FieldCode, ev.Code,
					logger.FieldReason, ev.Reason)
			}

		case <-stop:
			// Keep draining so the close event and any late frames are
			// still processed in order
			stop = nil
			link.Close()
		}
	}
}

func (s *Session) opened(ctx context.Context, link transport.Link) {
	s.ctrl.Opened()
	s.opts.Metrics.SetConnectionState(reconnect.Open)

	s.mu.Lock()
	s.state = Initializing
	s.handshakeErr = nil
	s.mu.Unlock()

	s.logger.Infow("Connection open, starting handshake", logger.FieldAddress, s.opts.Address)
	s.emitStatus(nil)
	go s.handshake(ctx, link)
}

// disconnected resets per-connection state.
func (s *Session) disconnected(link transport.Link) {
	s.mu.Lock()
	if s.link == link {
		s.link = nil
	}
	s.state = Uninitialized
	s.handshakeErr = nil
	s.caps.Store(nil)
	s.mu.Unlock()

	s.syncMu.Lock()
	clear(s.synced)
	s.syncMu.Unlock()

	if s.opts.FailPendingOnDisconnect {
		if n := s.table.FailAll(errors.Wrap(errors.ErrTransportNotReady, "connection lost")); n > 0 {
			s.logger.Infow("Failed pending requests after disconnect", logger.FieldCount, n)
		}
	}
	s.recordPending()
}

// handshake sends initialize and, on success, publishes the negotiated
// capabilities, sends initialized and moves to Ready.
func (s *Session) handshake(ctx context.Context, link transport.Link) {
	var result initializeResult
	err := s.request(ctx, link, MethodInitialize, s.initializeParams(), &result)

	var caps *Capabilities
	if err == nil {
		caps, err = parseCapabilities(result)
		if err != nil {
			err = errors.Wrap(err, "failed to parse server capabilities")
		}
	}

	if err != nil {
		if s.currentLink() != link {
			return
		}
		err = errors.Mark(errors.Wrap(err, "initialize failed"), errors.ErrHandshakeFailure)
		s.logger.Errorw("Handshake failed", logger.FieldError, err)
		s.mu.Lock()
		if s.link == link {
			s.state = Uninitialized
			s.handshakeErr = err
		}
		s.mu.Unlock()
		s.emitStatus(err)
		return
	}

	s.mu.Lock()
	if s.link != link {
		s.mu.Unlock()
		return
	}
	s.caps.Store(caps)
	s.mu.Unlock()

	if err := s.notify(link, MethodInitialized, struct{}{}); err != nil {
		s.logger.Warnw("Failed to send initialized", logger.FieldError, err)
		return
	}

	// Re-sync the open document before Ready so feature requests never
	// reach the server ahead of it
	s.syncMu.Lock()
	doc, hasDoc := s.bridge.DocumentSnapshot()
	if hasDoc {
		if err := s.sendDidOpen(link, doc); err != nil {
			s.logger.Warnw("Failed to re-open document", logger.FieldURI, doc.URI, logger.FieldError, err)
		}
	}
	s.syncMu.Unlock()

	s.mu.Lock()
	if s.link != link {
		s.mu.Unlock()
		return
	}
	s.state = Ready
	s.mu.Unlock()

	// Changes made between the snapshot and Ready were dropped
	if hasDoc {
		if cur, ok := s.bridge.DocumentSnapshot(); ok && cur.URI == doc.URI && cur.Version != doc.Version {
			s.DidChange(cur.URI, cur.Version, cur.Text)
		}
	}

	s.logger.Infow("Session ready",
		"server", caps.ServerName,
		logger.FieldVersion, caps.ServerVersion,
		"completion", caps.Completion,
		"hover", caps.Hover)
	s.checkServerVersion(caps)
	s.emitStatus(nil)
}

func (s *Session) checkServerVersion(caps *Capabilities) {
	if s.opts.MinServerVersion == "" || caps.ServerVersion == "" {
		return
	}
	minVer, err := semver.NewVersion(s.opts.MinServerVersion)
	if err != nil {
		s.logger.Warnw("Invalid minimum server version", logger.FieldError, err)
		return
	}
	serverVer, err := semver.NewVersion(caps.ServerVersion)
	if err != nil {
		s.logger.Debugw("Server version is not semver", logger.FieldVersion, caps.ServerVersion)
		return
	}
	if serverVer.LessThan(minVer) {
		s.logger.Warnw("Language server is older than the configured minimum",
			"server", caps.ServerName,
			logger.FieldVersion, serverVer.String(),
			"minimum", minVer.String())
	}
}

func (s *Session) emitStatus(err error) {
	s.emitStatusDelay(0, err)
}

func (s *Session) emitStatusDelay(delay time.Duration, err error) {
	if s.status == nil {
		return
	}
	s.status.OnStatus(Status{
		Connection: s.ctrl.State(),
		Session:    s.State(),
		Attempt:    s.ctrl.Attempts(),
		Delay:      delay,
		Err:        err,
	})
}

func (s *Session) recordPending() {
	s.opts.Metrics.SetPending(s.table.Len(), s.table.Oldest())
}

// Close shuts the session down: shutdown and exit when ready, then the
// link closes and every pending request fails with ErrShutdown. Close is
// idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	link := s.link
	ready := s.state == Ready
	cancel := s.cancel
	done := s.loopDone
	s.mu.Unlock()

	if ready && link != nil {
		if err := s.request(ctx, link, MethodShutdown, nil, nil); err != nil {
			s.logger.Debugw("Shutdown request failed", logger.FieldError, err)
		}
		if err := s.notify(link, MethodExit, nil); err != nil {
			s.logger.Debugw("Exit notification failed", logger.FieldError, err)
		}
	}

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	if n := s.table.FailAll(errors.ErrShutdown); n > 0 {
		s.logger.Infow("Failed pending requests on shutdown", logger.FieldCount, n)
	}
	s.recordPending()
	s.ctrl.Disconnect()
	s.logger.Infow("Session closed")
	return nil
}
