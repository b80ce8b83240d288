package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name, e.g.
// OPCORE_TASK_WORKER_COUNT sets task.worker_count.
const EnvPrefix = "OPCORE"

// Load configuration from environment variables and optionally a config.yaml
// in the working directory or ./config.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFile loads configuration from the file at path, with environment
// variables taking precedence over the file.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// setDefaults registers every key so that AutomaticEnv can override it
// during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("task.worker_count", 4)
	v.SetDefault("task.max_tasks", 100)
	v.SetDefault("task.max_task_age", 24*time.Hour)
	v.SetDefault("task.reap_interval", time.Hour)
	v.SetDefault("task.task_timeout", time.Duration(0))

	v.SetDefault("cache.max_size", 1000)
	v.SetDefault("cache.default_ttl", time.Hour)
	v.SetDefault("cache.cleanup_interval", 10*time.Minute)

	v.SetDefault("monitoring.interval", 30*time.Second)
	v.SetDefault("monitoring.stop_timeout", 5*time.Second)
	v.SetDefault("monitoring.history_limit", 1000)
	v.SetDefault("monitoring.alert_log_path", "")
	for name, value := range DefaultThresholds() {
		v.SetDefault("monitoring.thresholds."+name, value)
	}
}

// DefaultThresholds returns the health check thresholds used when none are configured.
func DefaultThresholds() map[string]float64 {
	return map[string]float64{
		"cpu_percent":      80,
		"memory_percent":   85,
		"disk_percent":     90,
		"response_time_ms": 5000,
	}
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}
