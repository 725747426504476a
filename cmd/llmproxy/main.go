// Package main is the entry point for the llmproxy gateway.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/fenwick-labs/llmproxy/internal/config"
	"github.com/fenwick-labs/llmproxy/internal/pipeline"
	"github.com/fenwick-labs/llmproxy/internal/server"
)

func main() {
	configPath := "config.toml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		configPath = v
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// No built-in processor kinds ship; a deployment that needs request
	// augmentation registers its own factories here, keyed by the
	// processor "type" string used in config.
	registry := pipeline.NewRegistry(cfg, nil)

	srv := server.New(cfg, registry)

	httpServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     srv,
		ReadTimeout: cfg.Server.RequestTimeout(),
		// No WriteTimeout: it's a wall-clock deadline on the whole
		// response write, and an SSE stream can legitimately run far
		// longer than the time it takes to read the incoming request.
		WriteTimeout: 0,
	}

	log.Printf("llmproxy listening on %s:%d", cfg.Server.Host, cfg.Server.Port)

	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
