package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/fenwick-labs/llmproxy/internal/perr"
)

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleProxy is the catch-all request path: match route, resolve
// pipeline, slurp body, execute, stream the response.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	route, ok := s.cfg.FindRoute(r.URL.Path)
	if !ok {
		http.Error(w, fmt.Sprintf("No route found for path: %s", r.URL.Path), http.StatusNotFound)
		return
	}

	p, err := s.registry.Get(route)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	downstream, err := p.Execute(r.Context(), body)
	if err != nil {
		status := http.StatusInternalServerError
		var pe *perr.Error
		if errors.As(err, &pe) && pe.Kind == perr.KindParse {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for frame := range downstream {
		if _, err := w.Write(frame); err != nil {
			log.Printf("server: writing downstream frame: %v", err)
			return
		}
		flusher.Flush()
	}
}
