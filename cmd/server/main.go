// Package main implements the entry point for the opcore server, which runs
// background tasks on a bounded worker pool, caches computed results and
// monitors the host and itself behind a small HTTP API.
package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("opcore: %v", err)
	}
}

// run loads configuration, wires the application and serves until SIGINT
// or SIGTERM.
func run() error {
	cfg, err := loadAppConfig()
	if err != nil {
		return err
	}

	logger, err := setupAppLogger(cfg)
	if err != nil {
		return err
	}
	logConfig(logger, cfg)

	app, err := newApplication(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx)
}
