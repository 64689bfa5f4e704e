// Package container provides dependency injection and lifecycle management
// for the expense approval service.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
type Config struct {
	Version string

	Database DatabaseConfig
	Server   ServerConfig
	Workflow WorkflowConfig
	Outbox   OutboxConfig
	Lark     LarkConfig
	Report   ReportConfig
	Tracing  TracingConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// BusyTimeout is how long a writer waits for the SQLite write lock
	BusyTimeout time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// WorkflowConfig holds coordinator settings.
type WorkflowConfig struct {
	LockTimeout time.Duration
}

// OutboxConfig holds outbox relay settings.
type OutboxConfig struct {
	PollInterval    time.Duration
	BatchSize       int
	MaxAttempts     int
	DispatchTimeout time.Duration
}

// LarkConfig holds Lark API settings. Requestors are notified through
// the log notifier when Enabled is false.
type LarkConfig struct {
	Enabled   bool
	AppID     string
	AppSecret string
	BaseURL   string
}

// ReportConfig holds audit report settings.
type ReportConfig struct {
	Enabled bool
	Dir     string
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	OutputPath  string
	PrettyPrint bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: "dev",
		Database: DatabaseConfig{
			Path:            "data/approvals.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Workflow: WorkflowConfig{
			LockTimeout: 5 * time.Second,
		},
		Outbox: OutboxConfig{
			PollInterval:    5 * time.Second,
			BatchSize:       20,
			MaxAttempts:     5,
			DispatchTimeout: 30 * time.Second,
		},
		Report: ReportConfig{
			Enabled: true,
			Dir:     "reports",
		},
		Tracing: TracingConfig{
			ServiceName: "expense-approval",
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Workflow.LockTimeout <= 0 {
		return fmt.Errorf("workflow.lock_timeout must be positive")
	}
	if c.Lark.Enabled && (c.Lark.AppID == "" || c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.app_id and lark.app_secret are required when lark is enabled")
	}
	if c.Report.Enabled && c.Report.Dir == "" {
		return fmt.Errorf("report.dir is required")
	}
	return nil
}
