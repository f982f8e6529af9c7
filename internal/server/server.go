// Package server constructs and starts the relay HTTP service with helpers
// that apply sensible production defaults.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Tyrowin/relaychat/internal/chatlog"
	"github.com/gorilla/websocket"
)

// Server owns the Registry and Broadcaster and runs one Session per accepted
// WebSocket connection.
type Server struct {
	cfg         Config
	log         *slog.Logger
	registry    *Registry
	broadcaster *Broadcaster
	sink        chatlog.Sink
	upgrader    websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closing  bool
	sessions sync.WaitGroup
}

func New(cfg Config, sink chatlog.Sink, log *slog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	registry := NewRegistry()
	origins := newOriginPolicy(cfg.Origins(), log)

	return &Server{
		cfg:         cfg,
		log:         log,
		registry:    registry,
		broadcaster: NewBroadcaster(registry, sink, log),
		sink:        sink,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Server) Registry() *Registry {
	return s.registry
}

// track reserves a slot for a new session, or reports false once Shutdown
// has started.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return false
	}
	s.sessions.Add(1)
	return true
}

// Shutdown closes every connection and waits for their handling tasks to
// deregister, up to timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.log.Info("Initiating relay shutdown...")

	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	s.cancel()
	closed := s.registry.CloseAll()
	s.log.Info("Closing client connections", "connections", closed)

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("Relay shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		s.log.Warn("Relay shutdown timeout reached, some connections may still be open")
		return context.DeadlineExceeded
	}
}

// CreateServer creates and configures an HTTP server with the specified address and handler.
// Write timeouts are left unset: they would cut hijacked WebSocket connections.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active connections.
func ShutdownServer(server *http.Server, timeout time.Duration, log *slog.Logger) error {
	log.Info("Shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
		return err
	}

	log.Info("HTTP server shutdown completed")
	return nil
}
