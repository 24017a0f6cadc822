package twilio

import (
	"context"
	"fmt"
	"strings"

	"github.com/viant/scy"
	"github.com/viant/scy/cred"
	_ "github.com/viant/scy/kms/blowfish"
	"github.com/viant/toolbox"
)

// LoadCredentials fills AccountSID and AuthToken from the encrypted secret at
// CredentialsURL. Values already set on the config win.
func (c *Config) LoadCredentials(ctx context.Context, service *scy.Service) error {
	if c.CredentialsURL == "" {
		return nil
	}
	if service == nil {
		service = scy.New()
	}
	targetType, err := cred.TargetType("basic")
	if err != nil {
		return fmt.Errorf("invalid credentials target: %w", err)
	}
	resource := scy.NewResource(targetType, c.CredentialsURL, c.CredentialsKey)
	secret, err := service.Load(ctx, resource)
	if err != nil {
		return fmt.Errorf("failed to load twilio credentials from %s: %w", c.CredentialsURL, err)
	}
	if secret.IsPlain || secret.Target == nil {
		return fmt.Errorf("twilio credentials at %s are not a basic secret", c.CredentialsURL)
	}
	aMap := map[string]interface{}{}
	if err := toolbox.DefaultConverter.AssignConverted(&aMap, secret.Target); err != nil {
		return fmt.Errorf("failed to convert twilio credentials: %w", err)
	}
	if c.AccountSID == "" {
		c.AccountSID = lookup(aMap, "username")
	}
	if c.AuthToken == "" {
		c.AuthToken = lookup(aMap, "password")
	}
	return nil
}

func lookup(aMap map[string]interface{}, key string) string {
	for k, v := range aMap {
		if strings.EqualFold(k, key) {
			return toolbox.AsString(v)
		}
	}
	return ""
}

// StoreCredentials encrypts the account sid and auth token as a basic secret
// at destURL, readable later through LoadCredentials.
func StoreCredentials(ctx context.Context, service *scy.Service, destURL, key, accountSID, authToken string) error {
	if destURL == "" {
		return fmt.Errorf("credentials destination URL cannot be empty")
	}
	if service == nil {
		service = scy.New()
	}
	targetType, err := cred.TargetType("basic")
	if err != nil {
		return fmt.Errorf("invalid credentials target: %w", err)
	}
	basic := &cred.Basic{Username: accountSID, Password: authToken}
	secret := scy.NewSecret(basic, scy.NewResource(targetType, destURL, key))
	if err := service.Store(ctx, secret); err != nil {
		return fmt.Errorf("failed to store twilio credentials at %s: %w", destURL, err)
	}
	return nil
}
