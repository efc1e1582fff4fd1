package main

import (
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"

	"go-message-broadcaster/internal/infrastructure/config"
	"go-message-broadcaster/internal/infrastructure/hub"
	"go-message-broadcaster/internal/infrastructure/logger"
	"go-message-broadcaster/internal/infrastructure/metrics"
	"go-message-broadcaster/internal/interfaces/rest/v1/handler"
	"go-message-broadcaster/internal/interfaces/sse"
	"go-message-broadcaster/internal/interfaces/static"
	"go-message-broadcaster/internal/interfaces/websocket"
	"go-message-broadcaster/internal/port/inbound"
)

func InitRouter(
	cfg *config.Config,
	hubInstance *hub.Hub,
	service inbound.BroadcastUseCase,
	m *metrics.Metrics,
	files fs.FS,
	log logger.Logger,
) http.Handler {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	rootGroup := router.Group("")

	messageHandler := handler.NewMessageHandler(hubInstance, service, log)
	rootGroup.GET("/hub/status", messageHandler.Status)

	apiGroup := rootGroup.Group("/api/v1")
	{
		apiGroup.POST("/messages", messageHandler.Publish)
	}

	options := connectionOptions(cfg.Hub)
	websocket.InitWebSocketRouter(log, hubInstance, service, options, rootGroup)
	sse.InitSSERouter(log, hubInstance, service, options, rootGroup)

	if cfg.Metrics.Enabled && m != nil {
		rootGroup.GET(cfg.Metrics.Path, gin.WrapH(m.Handler()))
	}

	static.InitStaticRouter(log, files, router)

	return router
}

func connectionOptions(c config.HubConfig) hub.ConnectionOptions {
	return hub.ConnectionOptions{
		SendBuffer:     c.SendBuffer,
		WriteTimeout:   c.WriteTimeout,
		PongTimeout:    c.PongTimeout,
		PingInterval:   c.PingInterval,
		MaxMessageSize: c.MaxMessageSize,
		KeepAlive:      c.SSEKeepAlive,
	}
}
