package approver

import (
	"fmt"
	"strings"
	"time"

	"github.com/viant/approver/internal/logging"
	"github.com/viant/approver/service/approval"
	"github.com/viant/approver/service/dispatcher/twilio"
	"github.com/viant/approver/service/messaging"
	"github.com/viant/approver/service/webhook"
	"github.com/viant/approver/tracing"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverFS       = "fs"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is a serialisable representation of the service configuration. It
// can be populated from YAML, environment variables or flags; DefaultConfig
// provides a runnable baseline.
type Config struct {
	Server   webhook.Config  `json:"server" yaml:"server" mapstructure:"server"`
	Approval approval.Config `json:"approval" yaml:"approval" mapstructure:"approval"`
	Twilio   twilio.Config   `json:"twilio" yaml:"twilio" mapstructure:"twilio"`
	Store    StoreConfig     `json:"store" yaml:"store" mapstructure:"store"`
	Outbox   OutboxConfig    `json:"outbox" yaml:"outbox" mapstructure:"outbox"`
	Logging  logging.Config  `json:"logging" yaml:"logging" mapstructure:"logging"`
	Tracing  tracing.Config  `json:"tracing" yaml:"tracing" mapstructure:"tracing"`
}

// StoreConfig selects the request store.
type StoreConfig struct {
	Driver string `json:"driver" yaml:"driver" mapstructure:"driver"`
	// DSN is the database source for sqlite and postgres.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty" mapstructure:"dsn"`
	// BasePath is the afs location for the fs driver.
	BasePath string `json:"basePath,omitempty" yaml:"basePath,omitempty" mapstructure:"basePath"`
}

// OutboxConfig controls confirmation delivery.
type OutboxConfig struct {
	// Driver is memory or fs; fs keeps undelivered confirmations across restarts.
	Driver   string `json:"driver" yaml:"driver" mapstructure:"driver"`
	BasePath string `json:"basePath,omitempty" yaml:"basePath,omitempty" mapstructure:"basePath"`
	Workers  int    `json:"workers" yaml:"workers" mapstructure:"workers"`

	messaging.Config `yaml:",inline" mapstructure:",squash"`
}

// DefaultConfig returns the defaults: sqlite store in approvals.db, the
// Twilio sandbox sender and a 5 minute approval window.
func DefaultConfig() *Config {
	return &Config{
		Server:   webhook.DefaultConfig(),
		Approval: approval.DefaultConfig(),
		Twilio:   twilio.DefaultConfig(),
		Store: StoreConfig{
			Driver:   DriverSQLite,
			DSN:      "approvals.db",
			BasePath: "approvals",
		},
		Outbox: OutboxConfig{
			Driver:   DriverMemory,
			BasePath: "outbox",
			Workers:  2,
			Config: messaging.Config{
				MaxRetries: 3,
				RetryDelay: (500 * time.Millisecond).String(),
				Buffer:     256,
			},
		},
		Logging: logging.DefaultConfig(),
	}
}

// Validate returns the first invalid setting or nil.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config was nil")
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Approval.Validate(); err != nil {
		return err
	}
	switch strings.ToLower(c.Store.Driver) {
	case DriverMemory:
	case DriverFS:
		if c.Store.BasePath == "" {
			return fmt.Errorf("store.basePath is required for the %s driver", DriverFS)
		}
	case DriverSQLite, DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the %s driver", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unsupported store driver: %q", c.Store.Driver)
	}
	switch strings.ToLower(c.Outbox.Driver) {
	case DriverMemory:
	case DriverFS:
		if c.Outbox.BasePath == "" {
			return fmt.Errorf("outbox.basePath is required for the %s driver", DriverFS)
		}
	default:
		return fmt.Errorf("unsupported outbox driver: %q", c.Outbox.Driver)
	}
	if c.Outbox.Workers <= 0 {
		return fmt.Errorf("outbox.workers must be > 0")
	}
	if c.Outbox.RetryDelay != "" {
		if _, err := time.ParseDuration(c.Outbox.RetryDelay); err != nil {
			return fmt.Errorf("invalid outbox.retryDelay %q: %w", c.Outbox.RetryDelay, err)
		}
	}
	return nil
}
