package inbound

import (
	"context"
	"encoding/json"

	"go-message-broadcaster/internal/infrastructure/hub"
)

// BroadcastUseCase is what transports drive when clients connect, emit and
// leave. Implementations must be safe for concurrent use.
type BroadcastUseCase interface {
	// OnConnect registers conn; once it returns nil, conn receives every
	// broadcast that follows.
	OnConnect(ctx context.Context, conn hub.Connection) error
	// OnMessage handles an envelope emitted by conn. A "message" event is
	// re-emitted to every connection, conn included.
	OnMessage(ctx context.Context, conn hub.Connection, message *hub.Message) error
	// OnDisconnect removes conn.
	OnDisconnect(ctx context.Context, conn hub.Connection)
	// Publish emits a "message" event that no client originated and returns
	// the number of recipients.
	Publish(ctx context.Context, payload json.RawMessage) (int, error)
}
