// Package main provides the HTTP server entry point for PDF chat.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/bull/pdfchat-server/internal/api"
	"github.com/bull/pdfchat-server/internal/app"
	"github.com/bull/pdfchat-server/internal/config"
	mcpserver "github.com/bull/pdfchat-server/internal/mcp"
)

var version = "dev"

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "config: %s\n", e)
		}
		return fmt.Errorf("invalid configuration (%d problems)", len(errs))
	}

	logger := app.NewLogger(cfg.Log)
	slog.SetDefault(logger)

	// Create context that cancels on SIGTERM/SIGINT
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, err := app.New(ctx, cfg, app.Options{}, logger)
	if err != nil {
		return err
	}

	opts := api.Options{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		VectorStore:    a.Vectors,
		MetadataStore:  a.Records,
	}
	if cfg.Server.MCPEnabled {
		opts.MCP = mcpserver.NewHTTPHandler(mcpserver.NewServer(a.Service, version), nil)
	}

	srv := &http.Server{
		Addr:    "0.0.0.0:" + cfg.Server.Port,
		Handler: api.NewServer(a.Service, opts, logger.With("component", "api")).Handler(),
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", srv.Addr, "mcp", cfg.Server.MCPEnabled, "version", version)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		logger.Info("Shutting down", "grace", cfg.Server.ShutdownGrace)
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer stop()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("HTTP shutdown failed", "error", shutdownErr)
	}
	// Pending indexing and similarity tasks finish before the stores close.
	if closeErr := a.Close(shutdownCtx); closeErr != nil {
		logger.Error("Shutdown incomplete", "error", closeErr)
	}
	return err
}
