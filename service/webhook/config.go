package webhook

import "fmt"

// Config holds the HTTP server settings.
type Config struct {
	Port        int    `json:"port" yaml:"port" mapstructure:"port"`
	WebhookPath string `json:"webhookPath" yaml:"webhookPath" mapstructure:"webhookPath"`
	// APIKeyHash is a bcrypt hash; when set /mcp and /approvals require the key.
	APIKeyHash string `json:"apiKeyHash,omitempty" yaml:"apiKeyHash,omitempty" mapstructure:"apiKeyHash"`
	// ValidateSignature rejects callbacks without a valid Twilio signature.
	ValidateSignature bool `json:"validateSignature" yaml:"validateSignature" mapstructure:"validateSignature"`
	// PublicURL is the externally visible base URL used to verify signatures
	// behind proxies and tunnels.
	PublicURL string `json:"publicURL,omitempty" yaml:"publicURL,omitempty" mapstructure:"publicURL"`
}

// DefaultConfig returns port 8000 with the Twilio webhook path.
func DefaultConfig() Config {
	return Config{Port: 8000, WebhookPath: "/twilio-webhook"}
}

// Validate checks the port and path.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Port)
	}
	if len(c.WebhookPath) < 2 || c.WebhookPath[0] != '/' {
		return fmt.Errorf("invalid webhook path: %q", c.WebhookPath)
	}
	return nil
}
