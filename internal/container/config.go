// Package container provides dependency injection and lifecycle management
// for the agency workflow service following Clean Architecture principles.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Workflow configuration
	Workflow WorkflowConfig

	// Notification configuration
	Notification NotificationConfig

	// Server configuration
	Server ServerConfig

	// Metrics configuration
	Metrics MetricsConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration
}

// WorkflowConfig holds stage graph settings.
type WorkflowConfig struct {
	// StageGraphPath is a YAML pipeline file; empty uses the compiled-in graph
	StageGraphPath string
}

// NotificationConfig holds outbox relay and sink settings.
type NotificationConfig struct {
	// RelayInterval is how often the outbox worker redelivers pending events
	RelayInterval time.Duration

	// RelayTimeout bounds a single relay pass
	RelayTimeout time.Duration

	// BatchSize is the number of pending events read per pass
	BatchSize int

	// MaxAttempts parks an event after this many failed deliveries
	MaxAttempts int

	// Redis stream sink
	Redis RedisConfig
}

// RedisConfig holds the optional Redis stream sink settings.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind to
	Host string

	// Port to listen on
	Port int

	// ReadTimeout for HTTP server
	ReadTimeout time.Duration

	// WriteTimeout for HTTP server
	WriteTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/workflow.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Notification: NotificationConfig{
			RelayInterval: 5 * time.Second,
			RelayTimeout:  30 * time.Second,
			BatchSize:     100,
			MaxAttempts:   10,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Stream: "workflow:events",
				MaxLen: 100000,
			},
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Notification.RelayInterval <= 0 {
		return fmt.Errorf("notification.relay_interval must be positive")
	}
	if c.Notification.BatchSize <= 0 {
		return fmt.Errorf("notification.batch_size must be positive")
	}
	if c.Notification.MaxAttempts <= 0 {
		return fmt.Errorf("notification.max_attempts must be positive")
	}

	if c.Notification.Redis.Enabled && c.Notification.Redis.Addr == "" {
		return fmt.Errorf("notification.redis.addr is required when redis is enabled")
	}

	return nil
}
