package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/promptwise/promptwise/internal/api"
	"github.com/promptwise/promptwise/internal/app"
	"github.com/promptwise/promptwise/internal/config"
)

// runServe initializes and starts the HTTP API server.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := cfg.Addr
	if len(os.Args) > 2 {
		addr = os.Args[2]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			a.Logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	server, err := api.NewServer(api.ServerConfig{
		Generator: a.Engine,
		Recorder:  a.Recorder,
		Logger:    a.Logger.With("component", "api"),
		Pool:      a.Pool,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	a.Logger.Info("HTTP server ready",
		"addr", addr,
		"api", "/api/*",
		"health", "/health, /ready",
		"version", Version,
	)
	return server.Run(ctx, addr)
}
