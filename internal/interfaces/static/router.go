package static

import (
	"io/fs"

	"github.com/gin-gonic/gin"

	"go-message-broadcaster/internal/infrastructure/logger"
)

// InitStaticRouter mounts the bundle at "/" and lets every unmatched path
// fall through to it.
func InitStaticRouter(logger logger.Logger, files fs.FS, router *gin.Engine) {
	h := NewHandler(files, logger)

	router.GET("/", h.Serve)
	router.HEAD("/", h.Serve)
	router.NoRoute(h.Serve)
}
