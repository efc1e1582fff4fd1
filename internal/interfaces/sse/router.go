package sse

import (
	"github.com/gin-gonic/gin"

	"go-message-broadcaster/internal/infrastructure/hub"
	"go-message-broadcaster/internal/infrastructure/logger"
	"go-message-broadcaster/internal/port/inbound"
)

func InitSSERouter(
	logger logger.Logger,
	hubInstance *hub.Hub,
	service inbound.BroadcastUseCase,
	options hub.ConnectionOptions,
	rg *gin.RouterGroup,
) {
	sseHandler := NewServerSentEventHandler(hubInstance, service, logger, options)

	sseGroup := rg.Group("/sse")
	sseGroup.GET("", NoBufferingMiddleware(), sseHandler.Connect)
	sseGroup.POST("/:connectionId/messages", sseHandler.Emit)

	apiGroup := rg.Group("/api/v1/sse")
	apiGroup.GET("/connections", sseHandler.GetConnections)
}
