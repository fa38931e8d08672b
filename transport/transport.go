// Package transport wraps one WebSocket connection and surfaces its
// lifecycle as an ordered event stream. It knows nothing about JSON-RPC
// and never retries.
package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teranos/lspsession/errors"
	"github.com/teranos/lspsession/logger"
	"go.uber.org/zap"
)

// WebSocket timeout defaults following Gorilla best practices
// See: https://github.com/gorilla/websocket/blob/master/examples/chat/client.go
const (
	// Time allowed to write a message to the peer
	DefaultWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	DefaultPongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	DefaultPingPeriod = (DefaultPongWait * 9) / 10

	// Maximum message size allowed from peer
	DefaultReadLimit = 1024 * 1024

	DefaultHandshakeTimeout = 10 * time.Second

	sendBufferSize  = 256
	eventBufferSize = 64
)

// State is the lifecycle state of one connection.
type State int

const (
	Connecting State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// EventKind identifies a transport event.
type EventKind int

const (
	EventOpen EventKind = iota
	EventMessage
	EventError
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	}
	return "unknown"
}

// Event is one lifecycle or data event. Frame is set for EventMessage,
// Err for EventError, Code and Reason for EventClose.
type Event struct {
	Kind   EventKind
	Frame  []byte
	Err    error
	Code   int
	Reason string
}

// Link is a single duplex connection. Events delivers events in the
// order they happened; EventClose is always last and is followed by the
// channel closing. Consumers must drain Events until it is closed.
type Link interface {
	Events() <-chan Event
	Send(frame []byte) error
	Close() error
	State() State
}

// Options contains keepalive and limit settings.
type Options struct {
	WriteWait        time.Duration
	PongWait         time.Duration
	PingPeriod       time.Duration
	ReadLimit        int64
	HandshakeTimeout time.Duration
	Header           http.Header
}

// DefaultOptions returns the Gorilla-recommended settings
func DefaultOptions() Options {
	return Options{
		WriteWait:        DefaultWriteWait,
		PongWait:         DefaultPongWait,
		PingPeriod:       DefaultPingPeriod,
		ReadLimit:        DefaultReadLimit,
		HandshakeTimeout: DefaultHandshakeTimeout,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = (o.PongWait * 9) / 10
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = d.ReadLimit
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = d.HandshakeTimeout
	}
	return o
}

// Dialer opens WebSocket links.
type Dialer struct {
	Options Options
	Logger  *zap.SugaredLogger
}

// NewDialer creates a dialer with the given options.
func NewDialer(opts Options) *Dialer {
	return &Dialer{Options: opts.withDefaults(), Logger: logger.ComponentLogger("transport")}
}

// Open starts connecting to address and returns immediately in the
// Connecting state. The outcome arrives on Events: EventOpen on success,
// or EventError followed by EventClose on failure.
func (d *Dialer) Open(ctx context.Context, address string) *Conn {
	opts := d.Options.withDefaults()
	log := d.Logger
	if log == nil {
		log = logger.ComponentLogger("transport")
	}

	dialCtx, cancel := context.WithCancel(ctx)
	c := &Conn{
		address: address,
		opts:    opts,
		logger:  log.With(logger.FieldAddress, address),
		events:  make(chan Event, eventBufferSize),
		send:    make(chan []byte, sendBufferSize),
		stop:    make(chan struct{}),
		cancel:  cancel,
		state:   Connecting,
	}
	go c.run(dialCtx)
	return c
}

// OpenLink is Open returning the Link interface.
func (d *Dialer) OpenLink(ctx context.Context, address string) Link {
	return d.Open(ctx, address)
}

// Conn is a WebSocket Link.
type Conn struct {
	address string
	opts    Options
	logger  *zap.SugaredLogger

	events chan Event
	send   chan []byte
	stop   chan struct{}
	cancel context.CancelFunc

	mu       sync.Mutex
	state    State
	ws       *websocket.Conn
	closing  bool
	writeErr error

	closeOnce sync.Once
	stopOnce  sync.Once
}

// Events returns the ordered event stream.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send queues one text frame. It fails with ErrTransportNotReady unless
// the connection is open.
func (c *Conn) Send(frame []byte) error {
	// Held across the enqueue so the state cannot flip to Closed (and
	// stop close) between the check and the send
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Open || c.closing {
		return errors.Wrapf(errors.ErrTransportNotReady, "connection is %s", c.state)
	}
	select {
	case <-c.stop:
		return errors.Wrap(errors.ErrTransportNotReady, "connection is closing")
	default:
	}

	select {
	case c.send <- frame:
		return nil
	default:
		c.logger.Warnw("Send buffer full, dropping frame",
			logger.FieldSize, len(frame))
		return errors.Wrap(errors.ErrTransportNotReady, "send buffer full")
	}
}

// Close performs a normal WebSocket close. The final EventClose arrives
// once the peer acknowledges or WriteWait elapses. Close is idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		ws := c.ws
		c.mu.Unlock()

		if ws == nil {
			// Still dialing
			c.cancel()
			return
		}

		deadline := time.Now().Add(c.opts.WriteWait)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := ws.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
			ws.Close()
			return
		}
		// Force the read side down if the peer never answers
		time.AfterFunc(c.opts.WriteWait, func() { ws.Close() })
	})
	return nil
}

func (c *Conn) emit(ev Event) {
	c.events <- ev
}

// run owns the connection: it dials, then runs the read pump until the
// connection ends, then emits the single EventClose.
func (c *Conn) run(ctx context.Context) {
	defer c.cancel()

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.opts.HandshakeTimeout,
	}

	ws, _, err := dialer.DialContext(ctx, c.address, c.opts.Header)
	if err != nil {
		c.mu.Lock()
		closing := c.closing
		c.mu.Unlock()

		if closing {
			c.finish(websocket.CloseNormalClosure, "closed before open")
			return
		}
		c.logger.Debugw("Dial failed", logger.FieldError, err)
		c.emit(Event{Kind: EventError, Err: errors.Wrapf(err, "failed to connect to %s", c.address)})
		c.finish(websocket.CloseAbnormalClosure, err.Error())
		return
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		ws.Close()
		c.finish(websocket.CloseNormalClosure, "closed before open")
		return
	}
	c.ws = ws
	c.state = Open
	c.mu.Unlock()

	c.logger.Debugw("Connection open")
	c.emit(Event{Kind: EventOpen})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(ws)
	}()

	code, reason := c.readPump(ws)

	c.markClosed()
	<-writerDone
	ws.Close()
	c.finish(code, reason)
}

// markClosed moves to Closed and releases the writer in one step, so
// Send never accepts a frame after stop is closed.
func (c *Conn) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Closed
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Conn) finish(code int, reason string) {
	c.markClosed()

	c.logger.Debugw("Connection closed",
		logger.FieldCode, code,
		logger.FieldReason, reason)
	c.emit(Event{Kind: EventClose, Code: code, Reason: reason})
	close(c.events)
}

// readPump forwards inbound frames until the connection fails and
// returns the close code and reason.
func (c *Conn) readPump(ws *websocket.Conn) (int, string) {
	ws.SetReadLimit(c.opts.ReadLimit)
	ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})

	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			return c.handleReadError(err)
		}
		c.emit(Event{Kind: EventMessage, Frame: frame})
	}
}

// handleReadError maps a read failure to a close code. Expected closure
// codes are not reported as errors.
func (c *Conn) handleReadError(err error) (int, string) {
	c.mu.Lock()
	closing := c.closing
	writeErr := c.writeErr
	c.mu.Unlock()

	code, reason := websocket.CloseAbnormalClosure, err.Error()
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		code, reason = closeErr.Code, closeErr.Text
	}

	if writeErr != nil {
		c.emit(Event{Kind: EventError, Err: writeErr})
		return code, reason
	}

	if closing {
		return code, reason
	}
	if closeErr == nil || websocket.IsUnexpectedCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		c.logger.Warnw("WebSocket read error", logger.FieldError, err)
		c.emit(Event{Kind: EventError, Err: errors.Wrap(err, "websocket read failed")})
	}
	return code, reason
}

// writePump is the only writer of data frames and pings.
func (c *Conn) writePump(ws *websocket.Conn) {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()

	fail := func(err error) {
		c.mu.Lock()
		if c.writeErr == nil {
			c.writeErr = err
		}
		c.mu.Unlock()
		// Unblocks the read pump
		ws.Close()
	}

	for {
		select {
		case <-c.stop:
			return

		case frame := <-c.send:
			ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Warnw("Frame write error", logger.FieldError, err)
				fail(errors.Wrap(err, "websocket write failed"))
				return
			}

		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				fail(errors.Wrap(err, "websocket ping failed"))
				return
			}
		}
	}
}
