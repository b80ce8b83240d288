package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Task       TaskConfig       `mapstructure:"task" validate:"required"`
	Cache      CacheConfig      `mapstructure:"cache" validate:"required"`
	Monitoring MonitoringConfig `mapstructure:"monitoring" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// ShutdownTimeout bounds graceful shutdown of the HTTP server and the task registry
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// TaskConfig controls the background task registry.
type TaskConfig struct {
	WorkerCount  int           `mapstructure:"worker_count" validate:"gte=1"`
	MaxTasks     int           `mapstructure:"max_tasks" validate:"gte=1"`
	MaxTaskAge   time.Duration `mapstructure:"max_task_age" validate:"gt=0"`
	ReapInterval time.Duration `mapstructure:"reap_interval" validate:"gt=0"`
	// TaskTimeout is the deadline applied to each task; zero disables it
	TaskTimeout time.Duration `mapstructure:"task_timeout" validate:"gte=0"`
}

// CacheConfig controls the in-memory result cache.
type CacheConfig struct {
	MaxSize         int           `mapstructure:"max_size" validate:"gte=1"`
	DefaultTTL      time.Duration `mapstructure:"default_ttl" validate:"gt=0"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" validate:"gt=0"`
}

// MonitoringConfig controls metrics retention, health thresholds and alerting.
type MonitoringConfig struct {
	Interval     time.Duration `mapstructure:"interval" validate:"gt=0"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout" validate:"gt=0"`
	HistoryLimit int           `mapstructure:"history_limit" validate:"gte=1"`
	// AlertLogPath is an optional file that receives one JSON line per alert
	AlertLogPath string             `mapstructure:"alert_log_path"`
	Thresholds   map[string]float64 `mapstructure:"thresholds" validate:"dive,gt=0"`
}
