package hub

import "context"

// Connection represents any type of connection (SSE, WebSocket, etc.)
type Connection interface {
	ID() string
	Type() string
	// Send enqueues message for delivery. It must not block: the hub calls it
	// from its event loop.
	Send(ctx context.Context, message *Message) error
	Close() error
	IsClosed() bool
	Context() context.Context
}

// InboundHandler receives every envelope a client emits on its connection.
type InboundHandler func(conn Connection, message *Message)

// Recorder observes hub activity. The metrics package provides the
// Prometheus implementation.
type Recorder interface {
	ConnectionRegistered(transport string)
	ConnectionUnregistered(transport string)
	MessageBroadcast(event string, delivered int)
	DeliveryFailed(transport string)
}

type nopRecorder struct{}

func (nopRecorder) ConnectionRegistered(string)   {}
func (nopRecorder) ConnectionUnregistered(string) {}
func (nopRecorder) MessageBroadcast(string, int)  {}
func (nopRecorder) DeliveryFailed(string)         {}
