package websocket

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/xid"

	"go-message-broadcaster/internal/infrastructure/hub"
	"go-message-broadcaster/internal/infrastructure/logger"
	"go-message-broadcaster/internal/port/inbound"
)

// WebSocketHandler upgrades clients and bridges their frames to the
// broadcast service.
type WebSocketHandler struct {
	hub      *hub.Hub
	service  inbound.BroadcastUseCase
	logger   logger.Logger
	options  hub.ConnectionOptions
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler instance
func NewWebSocketHandler(
	hubInstance *hub.Hub,
	service inbound.BroadcastUseCase,
	logger logger.Logger,
	options hub.ConnectionOptions,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:     hubInstance,
		service: service,
		logger:  logger.WithField("handler", "websocket"),
		options: options,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The page may be served from another origin during development.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Connect upgrades the request and serves the connection until it closes.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	if !h.hub.IsRunning() {
		h.logger.Error("Hub is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the error response.
		h.logger.Warnf("Failed to upgrade connection: %v", err)
		return
	}

	wsConn := hub.NewWebSocketConnection(newConnectionID(), conn, h.logger, h.options)

	// The connection outlives the request context once hijacked.
	ctx := context.WithoutCancel(c.Request.Context())

	if err := h.service.OnConnect(ctx, wsConn); err != nil {
		h.logger.Errorf("Failed to register WebSocket connection: %v", err)
		wsConn.Close()
		return
	}

	wsConn.Listen(func(from hub.Connection, message *hub.Message) {
		if err := h.service.OnMessage(ctx, from, message); err != nil {
			h.logger.Warnf("Message from %s not broadcast: %v", from.ID(), err)
		}
	})

	h.service.OnDisconnect(ctx, wsConn)
}

// GetConnections returns information about WebSocket connections
func (h *WebSocketHandler) GetConnections(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.ListConnections(hub.TypeWebSocket))
}

func newConnectionID() string {
	return "ws-" + xid.New().String()
}
