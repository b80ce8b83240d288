package main

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/opcore/internal/config"
)

// loadAppConfig loads the application configuration from environment variables or config file.
func loadAppConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// logConfig logs the effective configuration once the logger is ready.
func logConfig(logger *slog.Logger, cfg *config.Config) {
	logger.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel)

	logger.Debug("Task configuration",
		"worker_count", cfg.Task.WorkerCount,
		"max_tasks", cfg.Task.MaxTasks,
		"max_task_age", cfg.Task.MaxTaskAge,
		"task_timeout", cfg.Task.TaskTimeout)
	logger.Debug("Cache configuration",
		"max_size", cfg.Cache.MaxSize,
		"default_ttl", cfg.Cache.DefaultTTL,
		"cleanup_interval", cfg.Cache.CleanupInterval)
	logger.Debug("Monitoring configuration",
		"interval", cfg.Monitoring.Interval,
		"history_limit", cfg.Monitoring.HistoryLimit,
		"alert_log_configured", cfg.Monitoring.AlertLogPath != "",
		"thresholds", cfg.Monitoring.Thresholds)
}
