package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go-message-broadcaster/internal/infrastructure/logger"
)

var (
	ErrHubNotRunning       = errors.New("hub is not running")
	ErrHubAlreadyRunning   = errors.New("hub is already running")
	ErrHubShuttingDown     = errors.New("hub is shutting down")
	ErrConnectionNotFound  = errors.New("connection not found")
	ErrConnectionClosed    = errors.New("connection is closed")
	ErrDuplicateConnection = errors.New("connection id already registered")
	ErrSendBufferFull      = errors.New("send buffer full")
)

const (
	defaultRequestTimeout  = 5 * time.Second
	defaultCleanupInterval = 30 * time.Second
)

// Option configures a Hub.
type Option func(*Hub)

// WithRecorder reports hub activity to r.
func WithRecorder(r Recorder) Option {
	return func(h *Hub) {
		if r != nil {
			h.recorder = r
		}
	}
}

// WithRequestTimeout bounds how long callers wait for the event loop.
func WithRequestTimeout(d time.Duration) Option {
	return func(h *Hub) { h.requestTimeout = d }
}

// WithCleanupInterval sets how often closed connections are swept.
func WithCleanupInterval(d time.Duration) Option {
	return func(h *Hub) { h.cleanupInterval = d }
}

type registerRequest struct {
	conn Connection
	err  error
	done chan struct{}
}

type unregisterRequest struct {
	connID string
	done   chan struct{}
}

type broadcastRequest struct {
	message   *Message
	delivered int
	done      chan struct{}
}

// Hub owns the connection registry and fans messages out to it. A single
// event loop goroutine applies register, unregister and broadcast requests
// in arrival order, so every broadcast reaches exactly the connections
// registered when the loop reaches it.
type Hub struct {
	connections   map[string]Connection
	connectionsMu sync.RWMutex

	running   bool
	runningMu sync.RWMutex

	logger   logger.Logger
	recorder Recorder

	requestTimeout  time.Duration
	cleanupInterval time.Duration

	// Channels for internal communication
	register   chan *registerRequest
	unregister chan *unregisterRequest
	broadcast  chan *broadcastRequest

	// Context for graceful shutdown
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
}

// New creates a new Hub instance
func New(logger logger.Logger, opts ...Option) *Hub {
	h := &Hub{
		connections:     make(map[string]Connection),
		logger:          logger.WithField("component", "hub"),
		recorder:        nopRecorder{},
		requestTimeout:  defaultRequestTimeout,
		cleanupInterval: defaultCleanupInterval,
		register:        make(chan *registerRequest, 100),
		unregister:      make(chan *unregisterRequest, 100),
		broadcast:       make(chan *broadcastRequest, 1000),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start starts the hub and begins processing connection events
func (h *Hub) Start(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}

	h.ctx, h.cancel = context.WithCancel(ctx)
	h.stopped = make(chan struct{})
	h.running = true

	go h.run(h.ctx, h.stopped)

	h.logger.Info("Hub started successfully")
	return nil
}

// Stop ends the event loop and closes every registered connection.
func (h *Hub) Stop(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if !h.running {
		return nil
	}

	h.cancel()
	select {
	case <-h.stopped:
	case <-ctx.Done():
		return fmt.Errorf("waiting for hub loop: %w", ctx.Err())
	}

	h.connectionsMu.Lock()
	closing := h.connections
	h.connections = make(map[string]Connection)
	h.connectionsMu.Unlock()

	for _, conn := range closing {
		if err := conn.Close(); err != nil {
			h.logger.Errorf("Failed to close connection %s: %v", conn.ID(), err)
		}
		h.recorder.ConnectionUnregistered(conn.Type())
	}

	h.running = false
	h.logger.Infof("Hub stopped successfully, closed %d connections", len(closing))
	return nil
}

// IsRunning returns true if the hub is currently running
func (h *Hub) IsRunning() bool {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()
	return h.running
}

// loopContext returns the context of the current run. Start replaces it, so
// callers hold on to the returned value for the whole request.
func (h *Hub) loopContext() (context.Context, error) {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()

	if !h.running {
		return nil, ErrHubNotRunning
	}
	return h.ctx, nil
}

// RegisterConnection adds conn to the registry. When it returns nil the
// connection has been greeted with a connect event and will receive every
// broadcast submitted afterwards.
func (h *Hub) RegisterConnection(conn Connection) error {
	loopCtx, err := h.loopContext()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.requestTimeout)
	defer cancel()

	req := &registerRequest{conn: conn, done: make(chan struct{})}
	select {
	case h.register <- req:
	case <-ctx.Done():
		return fmt.Errorf("register connection %s: %w", conn.ID(), errTimeout(ctx))
	case <-loopCtx.Done():
		return ErrHubShuttingDown
	}

	if err := h.wait(ctx, loopCtx, req.done); err != nil {
		return fmt.Errorf("register connection %s: %w", conn.ID(), err)
	}
	return req.err
}

// UnregisterConnection removes a connection from the hub and closes it.
// Unknown ids are ignored.
func (h *Hub) UnregisterConnection(connID string) error {
	loopCtx, err := h.loopContext()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.requestTimeout)
	defer cancel()

	req := &unregisterRequest{connID: connID, done: make(chan struct{})}
	select {
	case h.unregister <- req:
	case <-ctx.Done():
		return fmt.Errorf("unregister connection %s: %w", connID, errTimeout(ctx))
	case <-loopCtx.Done():
		return ErrHubShuttingDown
	}

	if err := h.wait(ctx, loopCtx, req.done); err != nil {
		return fmt.Errorf("unregister connection %s: %w", connID, err)
	}
	return nil
}

// Broadcast sends message to every registered connection, the originator
// included, and returns how many copies were enqueued.
func (h *Hub) Broadcast(ctx context.Context, message *Message) (int, error) {
	loopCtx, err := h.loopContext()
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, h.requestTimeout)
	defer cancel()

	req := &broadcastRequest{message: message, done: make(chan struct{})}
	select {
	case h.broadcast <- req:
	case <-ctx.Done():
		return 0, fmt.Errorf("broadcast %s: %w", message.Event, errTimeout(ctx))
	case <-loopCtx.Done():
		return 0, ErrHubShuttingDown
	}

	if err := h.wait(ctx, loopCtx, req.done); err != nil {
		return 0, fmt.Errorf("broadcast %s: %w", message.Event, err)
	}
	return req.delivered, nil
}

// GetConnection returns a connection by ID
func (h *Hub) GetConnection(connID string) (Connection, bool) {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()

	conn, exists := h.connections[connID]
	return conn, exists
}

// GetConnections returns all active connections
func (h *Hub) GetConnections() []Connection {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()

	connections := make([]Connection, 0, len(h.connections))
	for _, conn := range h.connections {
		connections = append(connections, conn)
	}
	return connections
}

// GetConnectionsByType returns connections of a specific type
func (h *Hub) GetConnectionsByType(connType string) []Connection {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()

	var connections []Connection
	for _, conn := range h.connections {
		if conn.Type() == connType {
			connections = append(connections, conn)
		}
	}
	return connections
}

// ConnectionInfo describes one registered connection.
type ConnectionInfo struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Closed bool   `json:"closed"`
}

// Listing is the registry snapshot served by the connection endpoints.
type Listing struct {
	TotalConnections int              `json:"total_connections"`
	Connections      []ConnectionInfo `json:"connections"`
	HubRunning       bool             `json:"hub_running"`
}

// ListConnections snapshots the connections of connType.
func (h *Hub) ListConnections(connType string) Listing {
	connections := h.GetConnectionsByType(connType)
	infos := make([]ConnectionInfo, 0, len(connections))
	for _, conn := range connections {
		infos = append(infos, ConnectionInfo{
			ID:     conn.ID(),
			Type:   conn.Type(),
			Closed: conn.IsClosed(),
		})
	}

	return Listing{
		TotalConnections: len(infos),
		Connections:      infos,
		HubRunning:       h.IsRunning(),
	}
}

// ConnectionCount returns the number of active connections
func (h *Hub) ConnectionCount() int {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()
	return len(h.connections)
}

// SendToConnection sends a message to a single registered connection. A
// connection that cannot accept it is unregistered.
func (h *Hub) SendToConnection(ctx context.Context, connID string, message *Message) error {
	conn, exists := h.GetConnection(connID)
	if !exists {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, connID)
	}

	if err := conn.Send(ctx, message); err != nil {
		h.logger.Errorf("Failed to send message to connection %s: %v", connID, err)
		h.recorder.DeliveryFailed(conn.Type())
		_ = h.UnregisterConnection(connID)
		return err
	}

	return nil
}

// wait blocks until the event loop has processed a submitted request.
func (h *Hub) wait(ctx, loopCtx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errTimeout(ctx)
	case <-loopCtx.Done():
		return ErrHubShuttingDown
	}
}

func errTimeout(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("timeout waiting for hub: %w", ctx.Err())
	}
	return ctx.Err()
}

// run is the main hub loop that processes connection events
func (h *Hub) run(ctx context.Context, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(h.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case req := <-h.register:
			req.err = h.handleRegister(ctx, req.conn)
			close(req.done)

		case req := <-h.unregister:
			h.removeConnection(req.connID, "unregistered")
			close(req.done)

		case req := <-h.broadcast:
			req.delivered = h.handleBroadcast(ctx, req.message)
			close(req.done)

		case <-ticker.C:
			h.cleanupClosedConnections()

		case <-ctx.Done():
			h.logger.Info("Hub run loop stopped")
			return
		}
	}
}

// handleRegister stores conn and greets it with its id.
func (h *Hub) handleRegister(ctx context.Context, conn Connection) error {
	if conn.IsClosed() {
		return ErrConnectionClosed
	}

	h.connectionsMu.Lock()
	if _, exists := h.connections[conn.ID()]; exists {
		h.connectionsMu.Unlock()
		return ErrDuplicateConnection
	}
	h.connections[conn.ID()] = conn
	h.connectionsMu.Unlock()

	h.recorder.ConnectionRegistered(conn.Type())
	h.logger.Infof("Connection %s registered (type: %s)", conn.ID(), conn.Type())

	if err := conn.Send(ctx, ConnectMessage(conn.ID())); err != nil {
		h.recorder.DeliveryFailed(conn.Type())
		h.removeConnection(conn.ID(), "greeting failed")
		return fmt.Errorf("greet connection: %w", err)
	}

	// Monitor connection context for disconnection
	go func() {
		select {
		case <-conn.Context().Done():
			_ = h.UnregisterConnection(conn.ID())
		case <-ctx.Done():
		}
	}()

	return nil
}

// handleBroadcast enqueues message to every registered connection. Sends are
// non-blocking, so a slow client cannot stall the loop; a connection that
// refuses a copy is dropped.
func (h *Hub) handleBroadcast(ctx context.Context, message *Message) int {
	connections := h.GetConnections()
	delivered := 0

	for _, conn := range connections {
		if err := conn.Send(ctx, message); err != nil {
			h.logger.Warnf("Failed to send broadcast to connection %s: %v", conn.ID(), err)
			h.recorder.DeliveryFailed(conn.Type())
			h.removeConnection(conn.ID(), "delivery failed")
			continue
		}
		delivered++
	}

	h.recorder.MessageBroadcast(message.Event, delivered)
	h.logger.Debugf("Broadcasted %s event to %d/%d connections", message.Event, delivered, len(connections))
	return delivered
}

// removeConnection deletes and closes a connection. Only the loop and Stop
// mutate the registry.
func (h *Hub) removeConnection(connID, reason string) {
	h.connectionsMu.Lock()
	conn, exists := h.connections[connID]
	if exists {
		delete(h.connections, connID)
	}
	h.connectionsMu.Unlock()

	if !exists {
		return
	}

	if err := conn.Close(); err != nil {
		h.logger.Errorf("Failed to close connection %s: %v", connID, err)
	}
	h.recorder.ConnectionUnregistered(conn.Type())
	h.logger.Infof("Connection %s removed (%s)", connID, reason)
}

// cleanupClosedConnections removes connections that have been closed
func (h *Hub) cleanupClosedConnections() {
	for _, conn := range h.GetConnections() {
		if conn.IsClosed() {
			h.removeConnection(conn.ID(), "closed")
		}
	}
}
