package sse

import "github.com/gin-gonic/gin"

// NoBufferingMiddleware keeps proxies and compression layers from holding
// back stream chunks.
func NoBufferingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Accel-Buffering", "no")
		c.Header("Cache-Control", "no-cache")
		c.Next()
	}
}
