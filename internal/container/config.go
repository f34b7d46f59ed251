// Package container provides dependency injection and lifecycle management
// for the approval service.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/doc-approval/internal/domain/entity"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Workflow configuration for the flow engine
	Workflow WorkflowConfig

	// Ledger configuration for accounting periods
	Ledger LedgerConfig

	// Lark API configuration
	Lark LarkConfig
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

	// BusyTimeout is how long a writer waits for the database lock
	BusyTimeout time.Duration

	// MigrationsDir is the path to migration files. Empty uses the
	// embedded schema.
	MigrationsDir string
}

// WorkflowConfig holds flow engine settings.
type WorkflowConfig struct {
	// Location is the timezone of the engine clock
	Location *time.Location

	// FallbackRule resolves the approver when no template exists
	FallbackRule entity.ApproverRule
}

// LedgerConfig holds accounting period settings.
type LedgerConfig struct {
	// AutoCloseCron schedules the monthly period close. Empty disables it.
	AutoCloseCron string

	// AutoCloseTimeout bounds one close run
	AutoCloseTimeout time.Duration
}

// LarkConfig holds Lark API settings.
type LarkConfig struct {
	// AppID is the Lark application ID
	AppID string

	// AppSecret is the Lark application secret
	AppSecret string

	// ReceiveIDType maps employee ids to Lark users
	ReceiveIDType string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/approval.db",
			MaxOpenConns:    8,
			MaxIdleConns:    4,
			ConnMaxLifetime: 30 * time.Minute,
			BusyTimeout:     5 * time.Second,
		},
		Workflow: WorkflowConfig{
			Location:     time.Local,
			FallbackRule: entity.ApproverRule{Kind: entity.ApproverSupervisor},
		},
		Ledger: LedgerConfig{
			AutoCloseTimeout: 5 * time.Minute,
		},
		Lark: LarkConfig{
			ReceiveIDType: "user_id",
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}

	if c.Workflow.Location == nil {
		return fmt.Errorf("workflow.location is required")
	}
	if c.Workflow.FallbackRule.Kind == "" {
		return fmt.Errorf("workflow.fallback_rule is required")
	}

	if (c.Lark.AppID == "") != (c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.app_id and lark.app_secret must be set together")
	}

	return nil
}

// LarkEnabled reports whether step notifications are sent
func (c *Config) LarkEnabled() bool {
	return c.Lark.AppID != "" && c.Lark.AppSecret != ""
}
