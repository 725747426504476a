// Package server wires the HTTP edge: CORS, request logging, panic
// recovery, a liveness endpoint, and the catch-all proxy handler that
// looks up a route, resolves its pipeline, and streams the response.
package server

import (
	"net/http"

	"github.com/fenwick-labs/llmproxy/internal/config"
	"github.com/fenwick-labs/llmproxy/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Server is the HTTP edge: a chi router in front of the pipeline
// registry.
type Server struct {
	router   chi.Router
	cfg      *config.Config
	registry *pipeline.Registry
}

// New builds a Server wired for cfg, routing matched requests through
// registry.
func New(cfg *config.Config, registry *pipeline.Registry) *Server {
	s := &Server{cfg: cfg, registry: registry}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/health", handleHealth)
	// Route matching is a linear, declaration-ordered prefix scan over
	// config, not chi's tree router — chi only dispatches everything
	// else here.
	r.Handle("/*", http.HandlerFunc(s.handleProxy))

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
