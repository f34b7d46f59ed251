package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/garyjia/doc-approval/internal/domain/entity"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Lark     LarkConfig     `mapstructure:"lark"`
}

// ServerConfig holds the health listener configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Mode            string        `mapstructure:"mode"` // gin mode: debug, release, test
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
	// MigrationsDir overrides the embedded schema when set
	MigrationsDir string `mapstructure:"migrations_dir"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// WorkflowConfig holds flow engine configuration
type WorkflowConfig struct {
	// Timezone decides which calendar day delegation windows are checked on
	Timezone string `mapstructure:"timezone"`
	// FallbackRuleKind and FallbackRuleValue form the approver rule of the
	// implicit single step used when a module has no active template
	FallbackRuleKind  string `mapstructure:"fallback_rule_kind"`
	FallbackRuleValue string `mapstructure:"fallback_rule_value"`
}

// LedgerConfig holds accounting period configuration
type LedgerConfig struct {
	// AutoCloseCron schedules closing of the previous month; empty disables
	AutoCloseCron    string        `mapstructure:"auto_close_cron"`
	AutoCloseTimeout time.Duration `mapstructure:"auto_close_timeout"`
}

// LarkConfig holds Lark API configuration. Notifications are sent only
// when both credentials are present.
type LarkConfig struct {
	AppID         string `mapstructure:"app_id"`
	AppSecret     string `mapstructure:"app_secret"`
	ReceiveIDType string `mapstructure:"receive_id_type"`
}

// Load loads configuration from file and environment variables. An empty
// path runs on defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Override with environment variables
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.mode", "release")

	// Database defaults
	v.SetDefault("database.path", "data/approval.db")
	v.SetDefault("database.max_open_conns", 8)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)
	v.SetDefault("database.migrations_dir", "")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	// Workflow defaults
	v.SetDefault("workflow.timezone", "Local")
	v.SetDefault("workflow.fallback_rule_kind", entity.ApproverSupervisor)
	v.SetDefault("workflow.fallback_rule_value", "")

	// Ledger defaults
	v.SetDefault("ledger.auto_close_cron", "")
	v.SetDefault("ledger.auto_close_timeout", 5*time.Minute)

	// Lark defaults
	v.SetDefault("lark.receive_id_type", "user_id")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"database.path":          "DATABASE_PATH",
		"server.port":            "SERVER_PORT",
		"logger.level":           "LOG_LEVEL",
		"workflow.timezone":      "WORKFLOW_TIMEZONE",
		"ledger.auto_close_cron": "LEDGER_AUTO_CLOSE_CRON",
		"lark.app_id":            "LARK_APP_ID",
		"lark.app_secret":        "LARK_APP_SECRET",
		"lark.receive_id_type":   "LARK_RECEIVE_ID_TYPE",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}

	switch c.Logger.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logger.format must be json or console")
	}

	if _, err := c.Workflow.Location(); err != nil {
		return fmt.Errorf("workflow.timezone: %w", err)
	}
	switch c.Workflow.FallbackRuleKind {
	case entity.ApproverSupervisor, entity.ApproverDepartmentHead:
	case entity.ApproverEmployee, entity.ApproverRole:
		if c.Workflow.FallbackRuleValue == "" {
			return fmt.Errorf("workflow.fallback_rule_value is required for %s", c.Workflow.FallbackRuleKind)
		}
	default:
		return fmt.Errorf("workflow.fallback_rule_kind %q is not supported", c.Workflow.FallbackRuleKind)
	}

	if c.Ledger.AutoCloseCron != "" {
		if _, err := cron.ParseStandard(c.Ledger.AutoCloseCron); err != nil {
			return fmt.Errorf("ledger.auto_close_cron: %w", err)
		}
	}

	if (c.Lark.AppID == "") != (c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.app_id and lark.app_secret must be set together")
	}

	return nil
}

// Location returns the configured workflow timezone
func (w WorkflowConfig) Location() (*time.Location, error) {
	if w.Timezone == "" || w.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(w.Timezone)
}

// FallbackRule returns the configured fallback approver rule
func (w WorkflowConfig) FallbackRule() entity.ApproverRule {
	return entity.ApproverRule{Kind: w.FallbackRuleKind, Value: w.FallbackRuleValue}
}
