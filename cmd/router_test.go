package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-message-broadcaster/internal/application/facade"
	"go-message-broadcaster/internal/infrastructure/config"
	"go-message-broadcaster/internal/infrastructure/hub"
	"go-message-broadcaster/internal/infrastructure/logger"
	"go-message-broadcaster/internal/infrastructure/metrics"
	"go-message-broadcaster/web"
)

func startApp(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Defaults()
	cfg.Hub.PingInterval = cfg.Hub.PongTimeout * 9 / 10

	log := logger.NewNopLogger()
	m := metrics.New()
	h := hub.New(log, hub.WithRecorder(m))
	require.NoError(t, h.Start(context.Background()))

	svc := facade.NewBroadcastApplicationService(h, log)
	srv := httptest.NewServer(InitRouter(cfg, h, svc, m, web.Static(), log))
	t.Cleanup(func() {
		_ = h.Stop(context.Background())
		srv.Close()
	})
	return srv.URL
}

func TestRouter_IndexPage(t *testing.T) {
	url := startApp(t)

	resp, err := http.Get(url + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "app.js")

	noRedirect := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err = noRedirect.Get(url + "/index.html")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "app.js")

	resp, err = http.Get(url + "/nope.html")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_Preflight(t *testing.T) {
	url := startApp(t)

	req, _ := http.NewRequest(http.MethodOptions, url+"/api/v1/messages", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

// A WebSocket client and an SSE client share one hub, so a frame from either
// reaches both.
func TestRouter_BroadcastAcrossTransports(t *testing.T) {
	url := startApp(t)

	ws, _, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	readWS := func() (string, string) {
		ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		var env struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		require.NoError(t, ws.ReadJSON(&env))
		return env.Event, string(env.Data)
	}
	event, _ := readWS()
	require.Equal(t, hub.EventConnect, event)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url+"/sse", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	lines := make(chan string, 32)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()
	nextData := func(want string) string {
		for {
			select {
			case line, ok := <-lines:
				require.True(t, ok, "stream closed")
				if line == "event:"+want {
					data := <-lines
					return strings.TrimPrefix(data, "data:")
				}
			case <-time.After(2 * time.Second):
				t.Fatalf("no %s event", want)
				return ""
			}
		}
	}

	var greeting struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(nextData(hub.EventConnect)), &greeting))

	require.NoError(t, ws.WriteJSON(map[string]any{"event": "message", "data": "from ws"}))
	event, data := readWS()
	assert.Equal(t, "message", event)
	assert.JSONEq(t, `"from ws"`, data)
	assert.JSONEq(t, `"from ws"`, nextData("message"))

	post, err := http.Post(url+"/sse/"+greeting.ID+"/messages", "application/json",
		strings.NewReader(`{"event":"message","data":"from sse"}`))
	require.NoError(t, err)
	post.Body.Close()
	require.Equal(t, http.StatusAccepted, post.StatusCode)

	_, data = readWS()
	assert.JSONEq(t, `"from sse"`, data)
	assert.JSONEq(t, `"from sse"`, nextData("message"))

	status, err := http.Get(url + "/hub/status")
	require.NoError(t, err)
	defer status.Body.Close()
	var body struct {
		Connections int `json:"connections"`
	}
	require.NoError(t, json.NewDecoder(status.Body).Decode(&body))
	assert.Equal(t, 2, body.Connections)

	metricsResp, err := http.Get(url + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	exposition, _ := io.ReadAll(metricsResp.Body)
	assert.Contains(t, string(exposition), `broadcaster_active_connections{transport="websocket"} 1`)
}
