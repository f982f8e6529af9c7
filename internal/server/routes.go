// Package server wires HTTP handlers into a chi router.
package server

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
)

// Routes returns the relay's HTTP handler. Sockets are accepted on "/" so a
// plain ws://host:port URL works, and on "/ws".
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.HealthHandler)
	r.Get("/messages", s.MessagesHandler)
	r.HandleFunc("/ws", s.ServeWS)
	r.HandleFunc("/", s.ServeWS)
	return r
}
