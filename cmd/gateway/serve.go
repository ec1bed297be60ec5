package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/vllora/gateway/config"
)

// ServeCmd runs the gateway's chat-completions endpoint, per the CLI surface
// in spec §6. Flags override the loaded config file's serve/telemetry
// sections.
type ServeCmd struct {
	Port         int    `help:"Port to listen on." short:"p"`
	OTLPEndpoint string `help:"OTLP collector endpoint; empty disables tracing export."`
	DBPath       string `help:"Path to the local SQLite database backing the response cache." default:""`
}

// Run starts an HTTP server hosting /v1/chat/completions, /v1/responses, and
// /healthz, blocking until the process receives a fatal error from
// http.ListenAndServe.
func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.configPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.Port != 0 {
		cfg.Serve.Port = c.Port
	}
	if cfg.Serve.Port == 0 {
		cfg.Serve.Port = 8080
	}
	if c.OTLPEndpoint != "" {
		cfg.Telemetry.OTLPEndpoint = c.OTLPEndpoint
	}

	dbPath := c.DBPath
	if dbPath == "" {
		dbPath = filepath.Join(config.ConfigDir(), "gateway.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}

	pl, err := buildPipeline(cfg, dbPath)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	defer pl.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", chatCompletionsHandler(pl.executor))
	mux.HandleFunc("/v1/responses", responsesHandler(pl.executor))
	mux.HandleFunc("/healthz", healthHandler)

	addr := fmt.Sprintf(":%d", cfg.Serve.Port)
	fmt.Fprintf(os.Stderr, "vllora-gateway listening on %s\n", addr)
	return http.ListenAndServe(addr, mux)
}
