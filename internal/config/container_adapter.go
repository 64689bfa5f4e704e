package config

import (
	"github.com/garyjia/expense-approval/internal/container"
)

// ToContainerConfig converts the file-based Config loaded by viper
// into the container's configuration structure.
func (c *Config) ToContainerConfig(version string) *container.Config {
	return &container.Config{
		Version: version,
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
		},
		Server: container.ServerConfig{
			Host:            c.Server.Host,
			Port:            c.Server.Port,
			ReadTimeout:     c.Server.ReadTimeout,
			WriteTimeout:    c.Server.WriteTimeout,
			ShutdownTimeout: c.Server.ShutdownTimeout,
		},
		Workflow: container.WorkflowConfig{
			LockTimeout: c.Workflow.LockTimeout,
		},
		Outbox: container.OutboxConfig{
			PollInterval:    c.Outbox.PollInterval,
			BatchSize:       c.Outbox.BatchSize,
			MaxAttempts:     c.Outbox.MaxAttempts,
			DispatchTimeout: c.Outbox.DispatchTimeout,
		},
		Lark: container.LarkConfig{
			Enabled:   c.Lark.Enabled,
			AppID:     c.Lark.AppID,
			AppSecret: c.Lark.AppSecret,
			BaseURL:   c.Lark.BaseURL,
		},
		Report: container.ReportConfig{
			Enabled: c.Report.Enabled,
			Dir:     c.Report.Dir,
		},
		Tracing: container.TracingConfig{
			Enabled:     c.Tracing.Enabled,
			ServiceName: c.Tracing.ServiceName,
			OutputPath:  c.Tracing.OutputPath,
			PrettyPrint: c.Tracing.PrettyPrint,
		},
	}
}
