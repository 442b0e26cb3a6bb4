package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func health(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) listActions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.catalog.Names())
}

func NewMux(server *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.DefaultLogger)
	r.Get("/health", health)
	r.Get("/actions", server.listActions)
	r.Get("/{roomName}", server.ServeHTTP)
	return r
}
