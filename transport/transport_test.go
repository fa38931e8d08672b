package transport

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teranos/lspsession/errors"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newServer starts a WebSocket server running handle for each
// connection and returns its ws:// URL.
func newServer(t *testing.T, handle func(ws *websocket.Conn)) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		handle(ws)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func echo(ws *websocket.Conn) {
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if err := ws.WriteMessage(mt, data); err != nil {
			return
		}
	}
}

func next(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "event channel closed early")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for transport event")
		return Event{}
	}
}

func requireDrained(t *testing.T, events <-chan Event) {
	t.Helper()
	select {
	case _, ok := <-events:
		assert.False(t, ok, "expected channel to be closed after EventClose")
	case <-time.After(5 * time.Second):
		t.Fatal("event channel never closed")
	}
}

func TestConn_OpenSendClose(t *testing.T) {
	url := newServer(t, echo)
	conn := NewDialer(DefaultOptions()).Open(context.Background(), url)

	ev := next(t, conn.Events())
	require.Equal(t, EventOpen, ev.Kind)
	assert.Equal(t, Open, conn.State())

	require.NoError(t, conn.Send([]byte(`{"jsonrpc":"2.0","method":"ping"}`)))
	ev = next(t, conn.Events())
	require.Equal(t, EventMessage, ev.Kind)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"ping"}`, string(ev.Frame))

	require.NoError(t, conn.Close())
	ev = next(t, conn.Events())
	require.Equal(t, EventClose, ev.Kind)
	assert.Equal(t, websocket.CloseNormalClosure, ev.Code)
	requireDrained(t, conn.Events())

	assert.Equal(t, Closed, conn.State())
	assert.True(t, errors.Is(conn.Send([]byte("{}")), errors.ErrTransportNotReady))
	assert.NoError(t, conn.Close())
}

func TestConn_FramesArriveInOrder(t *testing.T) {
	url := newServer(t, func(ws *websocket.Conn) {
		for _, m := range []string{"1", "2", "3", "4", "5"} {
			ws.WriteMessage(websocket.TextMessage, []byte(m))
		}
		echo(ws)
	})
	conn := NewDialer(DefaultOptions()).Open(context.Background(), url)
	defer conn.Close()

	require.Equal(t, EventOpen, next(t, conn.Events()).Kind)
	for _, want := range []string{"1", "2", "3", "4", "5"} {
		ev := next(t, conn.Events())
		require.Equal(t, EventMessage, ev.Kind)
		assert.Equal(t, want, string(ev.Frame))
	}
}

func TestConn_SendWhileConnecting(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		echo(ws)
	}))
	defer srv.Close()
	defer close(release)

	conn := NewDialer(DefaultOptions()).Open(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	assert.Equal(t, Connecting, conn.State())

	err := conn.Send([]byte("{}"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTransportNotReady))

	// Closing while still dialing ends quietly
	require.NoError(t, conn.Close())
	ev := next(t, conn.Events())
	assert.Equal(t, EventClose, ev.Kind)
	requireDrained(t, conn.Events())
}

func TestConn_DialFailure(t *testing.T) {
	// Reserve a port and release it so nothing is listening
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	conn := NewDialer(DefaultOptions()).Open(context.Background(), "ws://"+addr+"/lsp")

	ev := next(t, conn.Events())
	require.Equal(t, EventError, ev.Kind)
	assert.Error(t, ev.Err)

	ev = next(t, conn.Events())
	require.Equal(t, EventClose, ev.Kind)
	assert.Equal(t, websocket.CloseAbnormalClosure, ev.Code)
	requireDrained(t, conn.Events())
}

func TestConn_ServerGoingAway(t *testing.T) {
	url := newServer(t, func(ws *websocket.Conn) {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "restarting")
		ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		ws.ReadMessage()
	})
	conn := NewDialer(DefaultOptions()).Open(context.Background(), url)

	require.Equal(t, EventOpen, next(t, conn.Events()).Kind)

	// Expected close codes produce no EventError
	ev := next(t, conn.Events())
	require.Equal(t, EventClose, ev.Kind)
	assert.Equal(t, websocket.CloseGoingAway, ev.Code)
	assert.Equal(t, "restarting", ev.Reason)
	requireDrained(t, conn.Events())
}

func TestConn_AbruptDrop(t *testing.T) {
	url := newServer(t, func(ws *websocket.Conn) {
		ws.UnderlyingConn().Close()
	})
	conn := NewDialer(DefaultOptions()).Open(context.Background(), url)

	require.Equal(t, EventOpen, next(t, conn.Events()).Kind)

	ev := next(t, conn.Events())
	require.Equal(t, EventError, ev.Kind)
	ev = next(t, conn.Events())
	require.Equal(t, EventClose, ev.Kind)
	assert.Equal(t, websocket.CloseAbnormalClosure, ev.Code)
	requireDrained(t, conn.Events())
}

func TestConn_ReadLimit(t *testing.T) {
	url := newServer(t, func(ws *websocket.Conn) {
		ws.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 2048)))
		ws.ReadMessage()
	})
	opts := DefaultOptions()
	opts.ReadLimit = 1024
	conn := NewDialer(opts).Open(context.Background(), url)

	require.Equal(t, EventOpen, next(t, conn.Events()).Kind)
	var kinds []EventKind
	for ev := range conn.Events() {
		kinds = append(kinds, ev.Kind)
	}
	require.NotEmpty(t, kinds)
	assert.Equal(t, EventClose, kinds[len(kinds)-1])
	assert.NotContains(t, kinds, EventMessage)
}

func TestConn_SendAfterStopIsRejected(t *testing.T) {
	// Open but already stopping: the writer is gone, so nothing may be queued
	c := &Conn{
		logger: zap.NewNop().Sugar(),
		send:   make(chan []byte, sendBufferSize),
		stop:   make(chan struct{}),
		state:  Open,
	}
	close(c.stop)

	for i := 0; i < 100; i++ {
		err := c.Send([]byte(`{}`))
		require.Error(t, err)
		assert.True(t, errors.IsTransportNotReady(err))
	}
	assert.Empty(t, c.send)
}

func TestConn_MarkClosedRejectsSend(t *testing.T) {
	c := &Conn{
		logger: zap.NewNop().Sugar(),
		send:   make(chan []byte, sendBufferSize),
		stop:   make(chan struct{}),
		state:  Open,
	}
	require.NoError(t, c.Send([]byte(`{}`)))

	c.markClosed()
	assert.Equal(t, Closed, c.State())
	assert.True(t, errors.IsTransportNotReady(c.Send([]byte(`{}`))))
	assert.Len(t, c.send, 1)
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{PongWait: 10 * time.Second, PingPeriod: 20 * time.Second}.withDefaults()
	assert.Equal(t, DefaultWriteWait, opts.WriteWait)
	assert.Equal(t, 9*time.Second, opts.PingPeriod)
	assert.Equal(t, int64(DefaultReadLimit), opts.ReadLimit)
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "message", EventMessage.String())
	assert.Equal(t, "close", EventClose.String())
}
