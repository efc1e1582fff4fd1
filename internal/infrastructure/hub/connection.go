package hub

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gorilla/websocket"

	"go-message-broadcaster/internal/infrastructure/logger"
)

const (
	TypeWebSocket = "websocket"
	TypeSSE       = "sse"
)

// ConnectionOptions tunes the per-connection queues and deadlines.
type ConnectionOptions struct {
	SendBuffer     int
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64 // WebSocket only, 0 disables the limit
	KeepAlive      time.Duration
}

// DefaultConnectionOptions returns the values used when nothing is configured.
func DefaultConnectionOptions() ConnectionOptions {
	return ConnectionOptions{
		SendBuffer:   256,
		WriteTimeout: 10 * time.Second,
		PongTimeout:  60 * time.Second,
		PingInterval: 54 * time.Second,
		KeepAlive:    30 * time.Second,
	}
}

// base carries the lifecycle shared by both transports. Send and Close
// coordinate through closedMu so nothing is queued after Close returns.
type base struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex

	send   chan *Message
	logger logger.Logger
}

func (b *base) init(ctx context.Context, id string, buffer int, log logger.Logger) {
	b.id = id
	b.ctx, b.cancel = context.WithCancel(ctx)
	b.send = make(chan *Message, buffer)
	b.logger = log.WithField("connection_id", id)
}

// ID returns unique connection identifier
func (b *base) ID() string {
	return b.id
}

// Send queues message without blocking.
func (b *base) Send(ctx context.Context, message *Message) error {
	b.closedMu.RLock()
	defer b.closedMu.RUnlock()

	if b.closed {
		return ErrConnectionClosed
	}

	select {
	case b.send <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrSendBufferFull
	}
}

// IsClosed returns true if connection is closed
func (b *base) IsClosed() bool {
	b.closedMu.RLock()
	defer b.closedMu.RUnlock()
	return b.closed
}

// Context is cancelled once the connection is closed.
func (b *base) Context() context.Context {
	return b.ctx
}

// markClosed reports whether this call performed the transition.
func (b *base) markClosed() bool {
	b.closedMu.Lock()
	defer b.closedMu.Unlock()

	if b.closed {
		return false
	}
	b.closed = true
	b.cancel()
	return true
}

// WebSocketConnection implements the Connection interface for WebSocket connections
type WebSocketConnection struct {
	base
	conn *websocket.Conn
	opts ConnectionOptions

	pumpDone chan struct{}
}

// NewWebSocketConnection wraps an upgraded connection and starts its write
// pump. Frames are read once Listen is called.
func NewWebSocketConnection(
	id string,
	conn *websocket.Conn,
	logger logger.Logger,
	opts ConnectionOptions,
) *WebSocketConnection {
	wsConn := &WebSocketConnection{
		conn:     conn,
		opts:     opts,
		pumpDone: make(chan struct{}),
	}
	wsConn.init(context.Background(), id, opts.SendBuffer, logger)

	go wsConn.writePump()

	return wsConn
}

// Type returns the connection type
func (c *WebSocketConnection) Type() string {
	return TypeWebSocket
}

// Close stops both pumps. The write pump sends the close frame and releases
// the socket, which unblocks Listen.
func (c *WebSocketConnection) Close() error {
	if c.markClosed() {
		c.logger.Debug("WebSocket connection closing")
	}
	return nil
}

// Listen reads client frames until the connection ends, passing each decoded
// envelope to handle. It blocks and closes the connection on return.
func (c *WebSocketConnection) Listen(handle InboundHandler) {
	defer func() {
		c.Close()
		<-c.pumpDone
	}()

	if c.opts.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.opts.MaxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
			) && !c.IsClosed() {
				c.logger.Errorf("WebSocket error: %v", err)
			}
			return
		}

		// Any frame proves the peer is alive.
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))

		switch messageType {
		case websocket.TextMessage:
			message, err := DecodeMessage(data)
			if err != nil {
				c.logger.Warnf("Dropping malformed frame: %v", err)
				continue
			}
			message.From = c.id
			handle(c, message)

		case websocket.BinaryMessage:
			c.logger.Debugf("Ignoring binary frame of length %d", len(data))
		}
	}
}

// writePump owns every write to the socket.
func (c *WebSocketConnection) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.pumpDone)
	}()

	for {
		select {
		case message := <-c.send:
			frame, err := message.Encode()
			if err != nil {
				c.logger.Errorf("Failed to encode %s event: %v", message.Event, err)
				continue
			}

			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Errorf("Failed to write message: %v", err)
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Errorf("Failed to send ping: %v", err)
				c.Close()
				return
			}

		case <-c.ctx.Done():
			c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.opts.WriteTimeout),
			)
			c.logger.Info("WebSocket connection closed")
			return
		}
	}
}

// SSEConnection implements the Connection interface for Server-Sent Events.
// All writes happen on the goroutine running Stream.
type SSEConnection struct {
	base
	writer http.ResponseWriter
	opts   ConnectionOptions
}

// NewSSEConnection creates a new SSE connection bound to the request context.
func NewSSEConnection(
	ctx context.Context,
	id string,
	w http.ResponseWriter,
	logger logger.Logger,
	opts ConnectionOptions,
) *SSEConnection {
	conn := &SSEConnection{
		writer: w,
		opts:   opts,
	}
	conn.init(ctx, id, opts.SendBuffer, logger)
	return conn
}

// Type returns the connection type
func (c *SSEConnection) Type() string {
	return TypeSSE
}

// Close ends the stream.
func (c *SSEConnection) Close() error {
	if c.markClosed() {
		c.logger.Info("SSE connection closed")
	}
	return nil
}

// Stream writes the response headers and then every queued message until
// the connection is closed or the client goes away. It blocks.
func (c *SSEConnection) Stream() error {
	defer c.Close()

	flusher, ok := c.writer.(http.Flusher)
	if !ok {
		return fmt.Errorf("response writer does not support flushing")
	}

	c.setupSSEHeaders()
	c.writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(c.opts.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case message := <-c.send:
			if err := sse.Encode(c.writer, sse.Event{
				Event: message.Event,
				Data:  message.Data,
			}); err != nil {
				return fmt.Errorf("write %s event: %w", message.Event, err)
			}
			flusher.Flush()

		case <-ticker.C:
			// A comment line keeps proxies from timing out; EventSource
			// ignores it.
			if _, err := fmt.Fprintf(c.writer, ": keep-alive %d\n\n", time.Now().Unix()); err != nil {
				return fmt.Errorf("write keep-alive: %w", err)
			}
			flusher.Flush()

		case <-c.ctx.Done():
			return nil
		}
	}
}

// setupSSEHeaders sets up the proper headers for SSE connection
func (c *SSEConnection) setupSSEHeaders() {
	c.writer.Header().Set("Content-Type", "text/event-stream")
	c.writer.Header().Set("Cache-Control", "no-cache")
	c.writer.Header().Set("Connection", "keep-alive")
	c.writer.Header().Set("X-Accel-Buffering", "no") // For nginx
}
