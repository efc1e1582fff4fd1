package sse

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/xid"

	"go-message-broadcaster/internal/infrastructure/hub"
	"go-message-broadcaster/internal/infrastructure/logger"
	"go-message-broadcaster/internal/port/inbound"
)

// ServerSentEventHandler serves clients that cannot open a WebSocket: they
// receive events over an SSE stream and emit them with POST requests.
type ServerSentEventHandler struct {
	hub     *hub.Hub
	service inbound.BroadcastUseCase
	logger  logger.Logger
	options hub.ConnectionOptions
}

func NewServerSentEventHandler(
	hubInstance *hub.Hub,
	service inbound.BroadcastUseCase,
	logger logger.Logger,
	options hub.ConnectionOptions,
) *ServerSentEventHandler {
	return &ServerSentEventHandler{
		hub:     hubInstance,
		service: service,
		logger:  logger.WithField("handler", "sse"),
		options: options,
	}
}

// Connect handles SSE connection requests
func (h *ServerSentEventHandler) Connect(c *gin.Context) {
	if !h.hub.IsRunning() {
		h.logger.Error("Hub is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	conn := hub.NewSSEConnection(c.Request.Context(), newConnectionID(), c.Writer, h.logger, h.options)
	ctx := context.WithoutCancel(c.Request.Context())

	if err := h.service.OnConnect(ctx, conn); err != nil {
		h.logger.Errorf("Failed to register connection: %v", err)
		_ = conn.Close()
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to register connection",
		})
		return
	}

	if err := conn.Stream(); err != nil {
		h.logger.Warnf("SSE stream %s ended: %v", conn.ID(), err)
	}

	h.service.OnDisconnect(ctx, conn)
}

// Emit accepts an envelope from an SSE client, exactly as if it had arrived
// as a WebSocket frame on that client's connection.
func (h *ServerSentEventHandler) Emit(c *gin.Context) {
	connID := c.Param("connectionId")

	conn, exists := h.hub.GetConnection(connID)
	if !exists || conn.Type() != hub.TypeSSE {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Unknown connection",
		})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unreadable body",
		})
		return
	}

	message, err := hub.DecodeMessage(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid message format",
		})
		return
	}
	message.From = conn.ID()

	if err := h.service.OnMessage(c.Request.Context(), conn, message); err != nil {
		h.logger.Errorf("Failed to broadcast message from %s: %v", connID, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Failed to broadcast message",
		})
		return
	}

	c.Status(http.StatusAccepted)
}

// GetConnections returns information about SSE connections
func (h *ServerSentEventHandler) GetConnections(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.ListConnections(hub.TypeSSE))
}

func newConnectionID() string {
	return "sse-" + xid.New().String()
}
