package static

import (
	"bytes"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"go-message-broadcaster/internal/infrastructure/logger"
)

// Handler serves the client bundle. Only files inside the bundle root are
// reachable; anything else is a 404.
type Handler struct {
	files  fs.FS
	logger logger.Logger
}

func NewHandler(files fs.FS, logger logger.Logger) *Handler {
	return &Handler{
		files:  files,
		logger: logger.WithField("handler", "static"),
	}
}

// Serve answers GET and HEAD for "/" (index.html) and for any asset in the
// bundle.
func (h *Handler) Serve(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		notFound(c)
		return
	}

	name := strings.TrimPrefix(path.Clean("/"+c.Request.URL.Path), "/")
	if name == "" {
		name = "index.html"
	}

	info, err := fs.Stat(h.files, name)
	if err != nil || info.IsDir() {
		h.logger.Debugf("no asset for %s", c.Request.URL.Path)
		notFound(c)
		return
	}

	data, err := fs.ReadFile(h.files, name)
	if err != nil {
		h.logger.Errorf("read asset %s: %v", name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	// ServeContent, unlike http.FileServer, answers /index.html itself
	// instead of redirecting to the directory.
	http.ServeContent(c.Writer, c.Request, name, info.ModTime(), bytes.NewReader(data))
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
}
