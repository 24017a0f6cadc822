package approval

import (
	"fmt"
	"time"

	"github.com/viant/approver/policy"
)

// Config controls request lifetime and waiting.
type Config struct {
	// ValidityWindow is how long a request accepts a decision.
	ValidityWindow time.Duration `json:"validityWindow" yaml:"validityWindow" mapstructure:"validityWindow"`
	// PollInterval is the pause between two store reads while waiting.
	PollInterval time.Duration `json:"pollInterval" yaml:"pollInterval" mapstructure:"pollInterval"`
	// WaitBudget caps how long RequestApproval blocks.
	WaitBudget time.Duration `json:"waitBudget" yaml:"waitBudget" mapstructure:"waitBudget"`
	Requester  string        `json:"requester" yaml:"requester" mapstructure:"requester"`
	// Recipient is the address approval requests are sent to.
	Recipient string `json:"recipient" yaml:"recipient" mapstructure:"recipient"`
	// Policy settles matching tools without asking.
	Policy policy.Policy `json:"policy" yaml:"policy" mapstructure:"policy"`
}

// DefaultConfig returns a 5 minute window polled every 2 seconds.
func DefaultConfig() Config {
	return Config{
		ValidityWindow: 5 * time.Minute,
		PollInterval:   2 * time.Second,
		WaitBudget:     300 * time.Second,
		Requester:      "Claude",
		Policy:         policy.Policy{Mode: policy.ModeAsk},
	}
}

// Validate checks the timing invariants.
func (c *Config) Validate() error {
	if c.ValidityWindow <= 0 {
		return fmt.Errorf("approval validity window must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("approval poll interval must be positive")
	}
	if c.WaitBudget < c.ValidityWindow {
		return fmt.Errorf("approval wait budget %s must not be shorter than the validity window %s", c.WaitBudget, c.ValidityWindow)
	}
	if c.PollInterval >= c.WaitBudget {
		return fmt.Errorf("approval poll interval %s must be shorter than the wait budget %s", c.PollInterval, c.WaitBudget)
	}
	return c.Policy.Validate()
}
