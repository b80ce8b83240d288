package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/phrazzld/opcore/internal/config"
	"github.com/phrazzld/opcore/internal/platform/logger"
)

// setupAppLogger configures and initializes the application logger based on config settings.
func setupAppLogger(cfg *config.Config) (*slog.Logger, error) {
	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	return l, nil
}

// openAlertLogger opens path for appending and returns a logger writing one
// JSON line per alert to it. An empty path returns a nil logger, which sends
// alerts to the main logger.
func openAlertLogger(path string) (*slog.Logger, io.Closer, error) {
	if path == "" {
		return nil, nil, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open alert log: %w", err)
	}
	return logger.New(f, "warn"), f, nil
}
