package hub

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() ConnectionOptions {
	opts := DefaultConnectionOptions()
	opts.SendBuffer = 4
	opts.KeepAlive = time.Hour
	return opts
}

// wsPair starts a server that wraps each upgraded socket in a
// WebSocketConnection and returns it together with the client side.
func wsPair(t *testing.T, handle InboundHandler) (*WebSocketConnection, *websocket.Conn) {
	t.Helper()

	serverConns := make(chan *WebSocketConnection, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewWebSocketConnection("ws-test", ws, &mockLogger{}, testOptions())
		serverConns <- conn
		conn.Listen(handle)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case conn := <-serverConns:
		return conn, client
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connection")
		return nil, nil
	}
}

func TestWebSocketConnection_SendWritesEnvelope(t *testing.T) {
	conn, client := wsPair(t, func(Connection, *Message) {})

	assert.Equal(t, "ws-test", conn.ID())
	assert.Equal(t, TypeWebSocket, conn.Type())
	require.NoError(t, conn.Send(context.Background(), NewMessage(EventMessage, []byte(`"hello"`))))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := client.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"message","data":"hello"}`, string(frame))
}

func TestWebSocketConnection_ListenDecodesFrames(t *testing.T) {
	received := make(chan *Message, 4)
	_, client := wsPair(t, func(c Connection, m *Message) {
		received <- m
	})

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"event":"message","data":42}`)))

	select {
	case m := <-received:
		assert.Equal(t, EventMessage, m.Event)
		assert.Equal(t, "42", string(m.Data))
		assert.Equal(t, "ws-test", m.From)
	case <-time.After(2 * time.Second):
		t.Fatal("frame was not delivered")
	}

	// Malformed and binary frames were dropped.
	assert.Empty(t, received)
}

func TestWebSocketConnection_ClientCloseEndsConnection(t *testing.T) {
	conn, client := wsPair(t, func(Connection, *Message) {})

	client.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	client.Close()

	select {
	case <-conn.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection context was not cancelled")
	}
	assert.True(t, conn.IsClosed())
	assert.ErrorIs(t, conn.Send(context.Background(), NewMessage(EventMessage, nil)), ErrConnectionClosed)
}

func TestWebSocketConnection_ServerCloseSendsCloseFrame(t *testing.T) {
	conn, client := wsPair(t, func(Connection, *Message) {})

	require.NoError(t, conn.Close())

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := client.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())
}

// flushRecorder is a concurrency-safe ResponseWriter that reports flushes.
type flushRecorder struct {
	mu      sync.Mutex
	header  http.Header
	code    int
	body    bytes.Buffer
	flushed chan struct{}
}

func newFlushRecorder() *flushRecorder {
	return &flushRecorder{header: http.Header{}, flushed: make(chan struct{}, 16)}
}

func (f *flushRecorder) Header() http.Header { return f.header }

func (f *flushRecorder) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.body.Write(p)
}

func (f *flushRecorder) WriteHeader(code int) {
	f.mu.Lock()
	f.code = code
	f.mu.Unlock()
}

func (f *flushRecorder) Flush() {
	select {
	case f.flushed <- struct{}{}:
	default:
	}
}

func (f *flushRecorder) String() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.body.String()
}

func TestSSEConnection_StreamWritesEvents(t *testing.T) {
	w := newFlushRecorder()
	conn := NewSSEConnection(context.Background(), "sse-test", w, &mockLogger{}, testOptions())
	assert.Equal(t, TypeSSE, conn.Type())

	require.NoError(t, conn.Send(context.Background(), ConnectMessage("sse-test")))
	require.NoError(t, conn.Send(context.Background(), NewMessage(EventMessage, []byte(`"hello"`))))

	done := make(chan error, 1)
	go func() { done <- conn.Stream() }()

	assert.Eventually(t, func() bool {
		return strings.Contains(w.String(), "event:message")
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.NoError(t, <-done)

	body := w.String()
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, body, "event:connect\ndata:{\"id\":\"sse-test\"}\n")
	assert.Contains(t, body, "event:message\ndata:\"hello\"\n")
	assert.Less(t, strings.Index(body, "event:connect"), strings.Index(body, "event:message"))
}

func TestSSEConnection_KeepAliveIsComment(t *testing.T) {
	opts := testOptions()
	opts.KeepAlive = 20 * time.Millisecond

	w := newFlushRecorder()
	conn := NewSSEConnection(context.Background(), "sse-test", w, &mockLogger{}, opts)

	done := make(chan error, 1)
	go func() { done <- conn.Stream() }()

	assert.Eventually(t, func() bool {
		return strings.Contains(w.String(), ": keep-alive ")
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.NoError(t, <-done)

	body := w.String()
	assert.NotContains(t, body, "event:")
	assert.NotContains(t, body, "data:")
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		if line != "" {
			assert.True(t, strings.HasPrefix(line, ":"), "unexpected line %q", line)
		}
	}
}

func TestSSEConnection_RequestContextEndsStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	conn := NewSSEConnection(ctx, "sse-test", newFlushRecorder(), &mockLogger{}, testOptions())

	done := make(chan error, 1)
	go func() { done <- conn.Stream() }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end")
	}
	assert.True(t, conn.IsClosed())
}

func TestConnection_SendBufferFull(t *testing.T) {
	opts := testOptions()
	opts.SendBuffer = 1
	conn := NewSSEConnection(context.Background(), "full", newFlushRecorder(), &mockLogger{}, opts)

	require.NoError(t, conn.Send(context.Background(), NewMessage(EventMessage, nil)))
	assert.ErrorIs(t, conn.Send(context.Background(), NewMessage(EventMessage, nil)), ErrSendBufferFull)
}
