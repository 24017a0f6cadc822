package twilio

import "time"

// DefaultFrom is the Twilio WhatsApp sandbox sender.
const DefaultFrom = "whatsapp:+14155238886"

// Config holds the Twilio channel settings.
type Config struct {
	AccountSID string `json:"accountSid,omitempty" yaml:"accountSid,omitempty" mapstructure:"accountSid"`
	AuthToken  string `json:"authToken,omitempty" yaml:"authToken,omitempty" mapstructure:"authToken"`
	From       string `json:"from,omitempty" yaml:"from,omitempty" mapstructure:"from"`
	// ContentSID selects a quick-reply content template; text is sent when empty.
	ContentSID string `json:"contentSid,omitempty" yaml:"contentSid,omitempty" mapstructure:"contentSid"`
	// CredentialsURL points to a scy encrypted basic secret holding
	// the account sid as username and the auth token as password.
	CredentialsURL string `json:"credentialsURL,omitempty" yaml:"credentialsURL,omitempty" mapstructure:"credentialsURL"`
	CredentialsKey string `json:"credentialsKey,omitempty" yaml:"credentialsKey,omitempty" mapstructure:"credentialsKey"`

	// ValidityWindow is quoted in the text fallback.
	ValidityWindow time.Duration `json:"-" yaml:"-" mapstructure:"-"`
}

// DefaultConfig returns the sandbox defaults.
func DefaultConfig() Config {
	return Config{From: DefaultFrom, ValidityWindow: 5 * time.Minute}
}

// Configured reports whether credentials are available.
func (c *Config) Configured() bool {
	return c.AccountSID != "" && c.AuthToken != ""
}
