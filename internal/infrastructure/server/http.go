package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type HTTPServer struct {
	addr    string
	handler http.Handler

	readTimeout time.Duration
	idleTimeout time.Duration

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	started  bool
	stopped  bool

	ready     chan struct{}
	readyOnce sync.Once
}

var _ Server = (*HTTPServer)(nil)

var ErrServerStarted = errors.New("http server already started")

func NewHTTPServer(addr string, handler http.Handler, readTimeout, idleTimeout time.Duration) *HTTPServer {
	return &HTTPServer{
		addr:        addr,
		handler:     handler,
		readTimeout: readTimeout,
		idleTimeout: idleTimeout,
		ready:       make(chan struct{}),
	}
}

// Start listens on the configured address and serves until Stop. A listen
// failure such as a port already in use is returned immediately. Start
// after Stop returns nil without listening.
func (h *HTTPServer) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return ErrServerStarted
	}
	h.started = true
	if h.stopped {
		h.mu.Unlock()
		h.markReady()
		return nil
	}

	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		h.mu.Unlock()
		h.markReady()
		return fmt.Errorf("listen on %s: %w", h.addr, err)
	}

	h.listener = ln
	h.srv = &http.Server{
		Handler:     h.handler,
		ReadTimeout: h.readTimeout,
		IdleTimeout: h.idleTimeout,
		// No WriteTimeout: event streams stay open indefinitely.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	srv := h.srv
	h.mu.Unlock()
	h.markReady()

	var eg errgroup.Group
	eg.Go(func() error {
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	return eg.Wait()
}

func (h *HTTPServer) markReady() {
	h.readyOnce.Do(func() { close(h.ready) })
}

// Addr returns the bound address once Start has begun listening, or an empty
// string if the server never listened.
func (h *HTTPServer) Addr() string {
	<-h.ready
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

func (h *HTTPServer) Stop(ctx context.Context) error {
	h.mu.Lock()
	h.stopped = true
	srv := h.srv
	h.mu.Unlock()

	if srv == nil {
		h.markReady()
		return nil
	}
	return srv.Shutdown(ctx)
}
