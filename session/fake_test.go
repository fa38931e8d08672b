package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/teranos/lspsession/errors"
	"github.com/teranos/lspsession/reconnect"
	"github.com/teranos/lspsession/transport"
	"go.uber.org/zap"
)

const waitFor = 2 * time.Second

// fakeLink is an in-memory transport.Link driven by the test.
type fakeLink struct {
	events chan transport.Event
	sent   chan []byte

	mu     sync.Mutex
	state  transport.State
	closed bool
}

func newFakeLink() *fakeLink {
	return &fakeLink{
		events: make(chan transport.Event, 64),
		sent:   make(chan []byte, 64),
		state:  transport.Connecting,
	}
}

func (l *fakeLink) Events() <-chan transport.Event { return l.events }

func (l *fakeLink) State() transport.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *fakeLink) Send(frame []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != transport.Open {
		return errors.Wrap(errors.ErrTransportNotReady, "fake link not open")
	}
	l.sent <- append([]byte(nil), frame...)
	return nil
}

func (l *fakeLink) Close() error {
	l.drop(1000, "")
	return nil
}

func (l *fakeLink) open() {
	l.mu.Lock()
	l.state = transport.Open
	l.mu.Unlock()
	l.events <- transport.Event{Kind: transport.EventOpen}
}

func (l *fakeLink) deliver(frame string) {
	l.events <- transport.Event{Kind: transport.EventMessage, Frame: []byte(frame)}
}

// drop closes the link the way the transport does: a close event, then
// the end of the event stream.
func (l *fakeLink) drop(code int, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.state = transport.Closed
	l.events <- transport.Event{Kind: transport.EventClose, Code: code, Reason: reason}
	close(l.events)
}

// wireFrame is an outbound frame as seen by the server.
type wireFrame struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func nextFrame(t *testing.T, l *fakeLink) wireFrame {
	t.Helper()
	select {
	case raw := <-l.sent:
		var f wireFrame
		require.NoError(t, json.Unmarshal(raw, &f))
		return f
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for an outbound frame")
		return wireFrame{}
	}
}

func expectMethod(t *testing.T, l *fakeLink, method string) wireFrame {
	t.Helper()
	f := nextFrame(t, l)
	require.Equal(t, method, f.Method)
	return f
}

func expectNoFrame(t *testing.T, l *fakeLink) {
	t.Helper()
	select {
	case raw := <-l.sent:
		t.Fatalf("unexpected frame: %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}

func respond(l *fakeLink, id json.RawMessage, result string) {
	l.deliver(fmt.Sprintf(`{"jsonrpc":"2.0","id":%s,"result":%s}`, id, result))
}

// recordingBridge captures everything the session forwards.
type recordingBridge struct {
	mu          sync.Mutex
	diagnostics map[string][]Marker
	logs        []logLine
	alerts      []alert
	statuses    []Status
	doc         *Document
	onChange    func(ContentChange)

	// beforeSnapshot runs ahead of the nth DocumentSnapshot call
	snapshots      int
	beforeSnapshot func(n int)
}

type logLine struct {
	text  string
	level LogLevel
}

type alert struct {
	text   string
	urgent bool
}

func newRecordingBridge() *recordingBridge {
	return &recordingBridge{diagnostics: make(map[string][]Marker)}
}

func (b *recordingBridge) OnDiagnostics(uri string, markers []Marker) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.diagnostics[uri] = markers
}

func (b *recordingBridge) OnLog(text string, level LogLevel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logs = append(b.logs, logLine{text, level})
}

func (b *recordingBridge) OnAlert(text string, urgent bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alerts = append(b.alerts, alert{text, urgent})
}

func (b *recordingBridge) DocumentSnapshot() (Document, bool) {
	b.mu.Lock()
	b.snapshots++
	n, hook := b.snapshots, b.beforeSnapshot
	b.mu.Unlock()
	if hook != nil {
		hook(n)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.doc == nil {
		return Document{}, false
	}
	return *b.doc, true
}

func (b *recordingBridge) OnContentChange(fn func(ContentChange)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

func (b *recordingBridge) OnStatus(st Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statuses = append(b.statuses, st)
}

func (b *recordingBridge) setDocument(doc Document) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.doc = &doc
}

func (b *recordingBridge) change(c ContentChange) {
	b.mu.Lock()
	fn := b.onChange
	b.mu.Unlock()
	fn(c)
}

func (b *recordingBridge) markers(uri string) ([]Marker, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.diagnostics[uri]
	return m, ok
}

func (b *recordingBridge) logLines() []logLine {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]logLine(nil), b.logs...)
}

func (b *recordingBridge) alertList() []alert {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]alert(nil), b.alerts...)
}

func (b *recordingBridge) lastStatus() (Status, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.statuses) == 0 {
		return Status{}, false
	}
	return b.statuses[len(b.statuses)-1], true
}

// harness wires a session to fake links handed out in dial order.
type harness struct {
	t       *testing.T
	session *Session
	bridge  *recordingBridge
	links   chan *fakeLink

	mu     sync.Mutex
	delays []time.Duration
}

func newHarness(t *testing.T, configure func(*Options)) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		bridge: newRecordingBridge(),
		links:  make(chan *fakeLink, 16),
	}
	opts := Options{
		Address:   "ws://fake/lsp",
		Bridge:    h.bridge,
		Logger:    zap.NewNop().Sugar(),
		Reconnect: reconnect.DefaultConfig(),
		Open: func(ctx context.Context, address string) transport.Link {
			l := newFakeLink()
			h.links <- l
			return l
		},
	}
	if configure != nil {
		configure(&opts)
	}
	h.session = New(opts)
	h.session.after = func(d time.Duration) <-chan time.Time {
		h.mu.Lock()
		h.delays = append(h.delays, d)
		h.mu.Unlock()
		ch := make(chan time.Time, 1)
		ch <- time.Now()
		return ch
	}
	t.Cleanup(func() {
		// Nothing answers shutdown here, so keep the wait short
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		h.session.Close(ctx)
	})
	return h
}

func (h *harness) connect() *fakeLink {
	h.t.Helper()
	require.NoError(h.t, h.session.Connect(context.Background()))
	return h.nextLink()
}

func (h *harness) nextLink() *fakeLink {
	h.t.Helper()
	select {
	case l := <-h.links:
		return l
	case <-time.After(waitFor):
		h.t.Fatal("timed out waiting for a dial")
		return nil
	}
}

// loopStopped reports whether the connection loop has exited.
func (h *harness) loopStopped() bool {
	h.session.mu.Lock()
	defer h.session.mu.Unlock()
	return !h.session.running
}

func (h *harness) backoffDelays() []time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Duration(nil), h.delays...)
}

const fullCaps = `{"completionProvider":{"triggerCharacters":["."]},"hoverProvider":true,"textDocumentSync":1}`

// handshake opens l and answers initialize with caps.
func (h *harness) handshake(l *fakeLink, caps string) {
	h.t.Helper()
	l.open()
	init := expectMethod(h.t, l, MethodInitialize)
	respond(l, init.ID, fmt.Sprintf(`{"capabilities":%s,"serverInfo":{"name":"fake","version":"1.2.0"}}`, caps))
	expectMethod(h.t, l, MethodInitialized)
	require.Eventually(h.t, func() bool { return h.session.State() == Ready }, waitFor, 5*time.Millisecond)
}

// ready connects and completes the handshake with full capabilities.
func (h *harness) ready() *fakeLink {
	h.t.Helper()
	l := h.connect()
	h.handshake(l, fullCaps)
	return l
}
