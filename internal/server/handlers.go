// Package server exposes HTTP handlers: the WebSocket upgrade, a health check
// and the message history endpoint.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Tyrowin/relaychat/internal/chatlog"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// ServeWS upgrades the request and runs the connection's Session on the
// handler goroutine until the connection ends.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	if !s.track() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.sessions.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	session := newSession(conn, r.RemoteAddr, s.registry, s.broadcaster, s.cfg, s.log)
	if err := session.Run(s.ctx); err != nil {
		s.log.Info("Session ended", "conn_id", session.ID(), "reason", err)
	}
}

// HealthHandler reports liveness with the current connection counts.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "relaychat is running: %d connections, %d users\n",
		s.registry.Len(), s.registry.JoinedCount())
}

// MessagesHandler returns the most recent logged messages as JSON when the
// message log backend can be read back.
func (s *Server) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	reader, ok := s.sink.(chatlog.Reader)
	if !ok {
		http.Error(w, "Message history is not available for this log backend", http.StatusNotFound)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(parsed, maxHistoryLimit)
	}

	entries, err := reader.Recent(limit)
	if err != nil {
		s.log.Error("Reading message history failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []chatlog.Entry{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		s.log.Error("Error writing history response", "error", err)
	}
}
