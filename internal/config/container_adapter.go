package config

import (
	"github.com/garyjia/agency-workflow/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Workflow: container.WorkflowConfig{
			StageGraphPath: c.Workflow.StageGraphPath,
		},
		Notification: container.NotificationConfig{
			RelayInterval: c.Notification.RelayInterval,
			RelayTimeout:  c.Notification.RelayTimeout,
			BatchSize:     c.Notification.BatchSize,
			MaxAttempts:   c.Notification.MaxAttempts,
			Redis: container.RedisConfig{
				Enabled:  c.Notification.Redis.Enabled,
				Addr:     c.Notification.Redis.Addr,
				Password: c.Notification.Redis.Password,
				DB:       c.Notification.Redis.DB,
				Stream:   c.Notification.Redis.Stream,
				MaxLen:   c.Notification.Redis.MaxLen,
			},
		},
		Server: container.ServerConfig{
			Host:            c.Server.Host,
			Port:            c.Server.Port,
			ReadTimeout:     c.Server.ReadTimeout,
			WriteTimeout:    c.Server.WriteTimeout,
			ShutdownTimeout: c.Server.ShutdownTimeout,
		},
		Metrics: container.MetricsConfig{
			Enabled: c.Metrics.Enabled,
			Path:    c.Metrics.Path,
		},
	}
}
