package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"go-message-broadcaster/internal/infrastructure/hub"
	"go-message-broadcaster/internal/infrastructure/logger"
	"go-message-broadcaster/internal/port/inbound"
)

type MessageHandler struct {
	hub     *hub.Hub
	service inbound.BroadcastUseCase
	logger  logger.Logger
}

type PublishResponse struct {
	Status     string `json:"status"`
	Recipients int    `json:"recipients"`
}

func NewMessageHandler(hubInstance *hub.Hub, service inbound.BroadcastUseCase, logger logger.Logger) *MessageHandler {
	return &MessageHandler{
		hub:     hubInstance,
		service: service,
		logger:  logger.WithField("handler", "message"),
	}
}

// Publish broadcasts the request body, any JSON value, as a "message" event.
func (h *MessageHandler) Publish(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || !json.Valid(body) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Body must be a JSON value",
		})
		return
	}

	recipients, err := h.service.Publish(c.Request.Context(), json.RawMessage(body))
	if err != nil {
		h.logger.Errorf("Failed to publish message: %v", err)
		status := http.StatusInternalServerError
		if errors.Is(err, hub.ErrHubNotRunning) || errors.Is(err, hub.ErrHubShuttingDown) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"error": "Failed to publish message",
		})
		return
	}

	c.JSON(http.StatusAccepted, PublishResponse{
		Status:     "broadcasted",
		Recipients: recipients,
	})
}

// Status reports whether the hub runs and how many clients it holds.
func (h *MessageHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"hub_running": h.hub.IsRunning(),
		"connections": h.hub.ConnectionCount(),
	})
}
