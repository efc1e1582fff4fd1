package static

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"go-message-broadcaster/internal/infrastructure/logger"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	files := fstest.MapFS{
		"index.html":    {Data: []byte("<!doctype html><title>chat</title>")},
		"app.js":        {Data: []byte("console.log('hi')")},
		"css/style.css": {Data: []byte("body{}")},
	}

	router := gin.New()
	router.GET("/ws", func(c *gin.Context) { c.String(http.StatusOK, "ws") })
	InitStaticRouter(logger.NewNopLogger(), files, router)
	return router
}

func serve(router *gin.Engine, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestStatic_RootServesIndex(t *testing.T) {
	rec := serve(newRouter(), http.MethodGet, "/")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<title>chat</title>")
}

func TestStatic_HeadRoot(t *testing.T) {
	rec := serve(newRouter(), http.MethodHead, "/")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestStatic_Assets(t *testing.T) {
	router := newRouter()

	rec := serve(router, http.MethodGet, "/index.html")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<title>chat</title>")

	rec = serve(router, http.MethodGet, "/app.js")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "javascript")

	rec = serve(router, http.MethodGet, "/css/style.css")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/css")
}

func TestStatic_NotFound(t *testing.T) {
	router := newRouter()

	for _, target := range []string{"/missing.png", "/css", "/css/", "/../etc/passwd"} {
		rec := serve(router, http.MethodGet, target)
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
	}

	rec := serve(router, http.MethodPost, "/app.js")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatic_DoesNotShadowRoutes(t *testing.T) {
	rec := serve(newRouter(), http.MethodGet, "/ws")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ws", rec.Body.String())
}
