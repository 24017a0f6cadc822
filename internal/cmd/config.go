package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/viant/approver"
)

const envPrefix = "APPROVER"

// legacyEnv maps configuration keys onto the environment names used by
// existing deployments.
var legacyEnv = map[string][]string{
	"twilio.accountSid":  {"TWILIO_ACCOUNT_SID"},
	"twilio.authToken":   {"TWILIO_AUTH_TOKEN"},
	"twilio.from":        {"TWILIO_WHATSAPP_FROM"},
	"twilio.contentSid":  {"TWILIO_CONTENT_SID"},
	"approval.recipient": {"APPROVAL_PHONE"},
	"server.port":        {"SERVER_PORT"},
}

// setDefaults registers every configuration key with viper so environment
// overrides apply to all of them.
func setDefaults(v *viper.Viper) {
	defaults := approver.DefaultConfig()

	v.SetDefault("server.port", defaults.Server.Port)
	v.SetDefault("server.webhookPath", defaults.Server.WebhookPath)
	v.SetDefault("server.apiKeyHash", defaults.Server.APIKeyHash)
	v.SetDefault("server.validateSignature", defaults.Server.ValidateSignature)
	v.SetDefault("server.publicURL", defaults.Server.PublicURL)

	v.SetDefault("approval.validityWindow", defaults.Approval.ValidityWindow)
	v.SetDefault("approval.pollInterval", defaults.Approval.PollInterval)
	v.SetDefault("approval.waitBudget", defaults.Approval.WaitBudget)
	v.SetDefault("approval.requester", defaults.Approval.Requester)
	v.SetDefault("approval.recipient", defaults.Approval.Recipient)
	v.SetDefault("approval.policy.mode", defaults.Approval.Policy.Mode)
	v.SetDefault("approval.policy.allow", defaults.Approval.Policy.AllowList)
	v.SetDefault("approval.policy.block", defaults.Approval.Policy.BlockList)

	v.SetDefault("twilio.accountSid", defaults.Twilio.AccountSID)
	v.SetDefault("twilio.authToken", defaults.Twilio.AuthToken)
	v.SetDefault("twilio.from", defaults.Twilio.From)
	v.SetDefault("twilio.contentSid", defaults.Twilio.ContentSID)
	v.SetDefault("twilio.credentialsURL", defaults.Twilio.CredentialsURL)
	v.SetDefault("twilio.credentialsKey", defaults.Twilio.CredentialsKey)

	v.SetDefault("store.driver", defaults.Store.Driver)
	v.SetDefault("store.dsn", defaults.Store.DSN)
	v.SetDefault("store.basePath", defaults.Store.BasePath)

	v.SetDefault("outbox.driver", defaults.Outbox.Driver)
	v.SetDefault("outbox.basePath", defaults.Outbox.BasePath)
	v.SetDefault("outbox.workers", defaults.Outbox.Workers)
	v.SetDefault("outbox.maxRetries", defaults.Outbox.MaxRetries)
	v.SetDefault("outbox.retryDelay", defaults.Outbox.RetryDelay)
	v.SetDefault("outbox.buffer", defaults.Outbox.Buffer)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("logging.output", defaults.Logging.Output)

	v.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	v.SetDefault("tracing.output", defaults.Tracing.Output)
}

// bindEnv enables APPROVER_<SECTION>_<KEY> overrides plus the legacy names.
func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		input := append([]string{key, envName(key)}, names...)
		if err := v.BindEnv(input...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// loadDotEnv exports the entries of a dotenv file that are not set in the
// environment yet; a missing file is ignored.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	dotenv := viper.New()
	dotenv.SetConfigFile(path)
	dotenv.SetConfigType("env")
	if err := dotenv.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	for _, key := range dotenv.AllKeys() {
		name := strings.ToUpper(key)
		if _, ok := os.LookupEnv(name); ok {
			continue
		}
		if err := os.Setenv(name, dotenv.GetString(key)); err != nil {
			return err
		}
	}
	return nil
}

// findConfig returns the first approver.yaml found in the working directory
// or the user config directory.
func findConfig() string {
	candidates := []string{"approver.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "approver", "approver.yaml"))
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// readConfig merges a config file after expanding ${env.KEY} expressions.
func readConfig(v *viper.Viper, configFile string) error {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", configFile, err)
	}
	configType := strings.TrimPrefix(filepath.Ext(configFile), ".")
	if configType == "" || configType == "yml" {
		configType = "yaml"
	}
	v.SetConfigType(configType)
	if err = v.ReadConfig(strings.NewReader(expandEnv(string(data)))); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", configFile, err)
	}
	return nil
}

// loadConfig resolves defaults, the optional config file and environment
// overrides into a validated config.
func loadConfig(v *viper.Viper, configFile, envFile string) (*approver.Config, error) {
	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}
	if configFile == "" {
		configFile = findConfig()
	}
	if configFile != "" {
		if err := readConfig(v, configFile); err != nil {
			return nil, err
		}
	}
	cfg := approver.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
