package websocket

import (
	"github.com/gin-gonic/gin"

	"go-message-broadcaster/internal/infrastructure/hub"
	"go-message-broadcaster/internal/infrastructure/logger"
	"go-message-broadcaster/internal/port/inbound"
)

// InitWebSocketRouter initializes WebSocket routes
func InitWebSocketRouter(
	logger logger.Logger,
	hubInstance *hub.Hub,
	service inbound.BroadcastUseCase,
	options hub.ConnectionOptions,
	rg *gin.RouterGroup,
) {
	wsHandler := NewWebSocketHandler(hubInstance, service, logger, options)

	rg.GET("/ws", wsHandler.Connect)

	apiGroup := rg.Group("/api/v1/ws")
	apiGroup.GET("/connections", wsHandler.GetConnections)
}
