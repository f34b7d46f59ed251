package config

import (
	"fmt"

	"github.com/garyjia/doc-approval/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() (*container.Config, error) {
	loc, err := c.Workflow.Location()
	if err != nil {
		return nil, fmt.Errorf("workflow.timezone: %w", err)
	}

	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
			MigrationsDir:   c.Database.MigrationsDir,
		},
		Workflow: container.WorkflowConfig{
			Location:     loc,
			FallbackRule: c.Workflow.FallbackRule(),
		},
		Ledger: container.LedgerConfig{
			AutoCloseCron:    c.Ledger.AutoCloseCron,
			AutoCloseTimeout: c.Ledger.AutoCloseTimeout,
		},
		Lark: container.LarkConfig{
			AppID:         c.Lark.AppID,
			AppSecret:     c.Lark.AppSecret,
			ReceiveIDType: c.Lark.ReceiveIDType,
		},
	}, nil
}
