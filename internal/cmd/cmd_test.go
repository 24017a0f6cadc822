package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/scy"

	"github.com/viant/approver"
	"github.com/viant/approver/internal/yml"
	"github.com/viant/approver/service/dispatcher/twilio"
	"github.com/viant/approver/service/webhook"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func unsetEnv(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		if value, ok := os.LookupEnv(name); ok {
			t.Cleanup(func() { _ = os.Setenv(name, value) })
		} else {
			t.Cleanup(func() { _ = os.Unsetenv(name) })
		}
		require.NoError(t, os.Unsetenv(name))
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(viper.New(), "", "")
	require.NoError(t, err)
	expected := approver.DefaultConfig()
	assert.Equal(t, expected.Server, cfg.Server)
	assert.Equal(t, expected.Approval.ValidityWindow, cfg.Approval.ValidityWindow)
	assert.Equal(t, expected.Store, cfg.Store)
	assert.Equal(t, expected.Outbox, cfg.Outbox)
}

func TestLoadConfig_Environment(t *testing.T) {
	testCases := []struct {
		name   string
		env    map[string]string
		verify func(t *testing.T, cfg *approver.Config)
	}{
		{
			name: "legacy names",
			env: map[string]string{
				"TWILIO_ACCOUNT_SID":   "AC123",
				"TWILIO_AUTH_TOKEN":    "token",
				"TWILIO_WHATSAPP_FROM": "whatsapp:+15550009999",
				"TWILIO_CONTENT_SID":   "HX1",
				"APPROVAL_PHONE":       "+15550001111",
				"SERVER_PORT":          "9000",
			},
			verify: func(t *testing.T, cfg *approver.Config) {
				assert.Equal(t, "AC123", cfg.Twilio.AccountSID)
				assert.Equal(t, "token", cfg.Twilio.AuthToken)
				assert.Equal(t, "whatsapp:+15550009999", cfg.Twilio.From)
				assert.Equal(t, "HX1", cfg.Twilio.ContentSID)
				assert.Equal(t, "+15550001111", cfg.Approval.Recipient)
				assert.Equal(t, 9000, cfg.Server.Port)
			},
		},
		{
			name: "prefixed names",
			env: map[string]string{
				"APPROVER_STORE_DRIVER":          "memory",
				"APPROVER_APPROVAL_POLLINTERVAL": "1s",
				"APPROVER_OUTBOX_WORKERS":        "4",
				"APPROVER_SERVER_PORT":           "8100",
				"APPROVER_APPROVAL_POLICY_ALLOW": "Read,Glob",
			},
			verify: func(t *testing.T, cfg *approver.Config) {
				assert.Equal(t, approver.DriverMemory, cfg.Store.Driver)
				assert.Equal(t, time.Second, cfg.Approval.PollInterval)
				assert.Equal(t, 4, cfg.Outbox.Workers)
				assert.Equal(t, 8100, cfg.Server.Port)
				assert.Equal(t, []string{"Read", "Glob"}, cfg.Approval.Policy.AllowList)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			cfg, err := loadConfig(viper.New(), "", "")
			require.NoError(t, err)
			tc.verify(t, cfg)
		})
	}
}

func TestLoadConfig_File(t *testing.T) {
	t.Setenv("APPROVER_T_PHONE", "+15550002222")
	path := writeFile(t, "approver.yaml", `
store:
  driver: memory
approval:
  validityWindow: 2m
  waitBudget: 3m
  recipient: "${env.APPROVER_T_PHONE}"
outbox:
  retryDelay: 1s
  maxRetries: 5
`)
	cfg, err := loadConfig(viper.New(), path, "")
	require.NoError(t, err)
	assert.Equal(t, approver.DriverMemory, cfg.Store.Driver)
	assert.Equal(t, 2*time.Minute, cfg.Approval.ValidityWindow)
	assert.Equal(t, 3*time.Minute, cfg.Approval.WaitBudget)
	assert.Equal(t, "+15550002222", cfg.Approval.Recipient)
	assert.Equal(t, "1s", cfg.Outbox.RetryDelay)
	assert.Equal(t, 5, cfg.Outbox.MaxRetries)

	_, err = loadConfig(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.Error(t, err)

	invalid := writeFile(t, "invalid.yaml", "approval:\n  waitBudget: 1m\n")
	_, err = loadConfig(viper.New(), invalid, "")
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	unsetEnv(t, "APPROVAL_PHONE", "TWILIO_CONTENT_SID")
	t.Setenv("TWILIO_CONTENT_SID", "from-env")
	path := writeFile(t, ".env", "APPROVAL_PHONE=+15550003333\nTWILIO_CONTENT_SID=from-file\n")

	cfg, err := loadConfig(viper.New(), "", path)
	require.NoError(t, err)
	assert.Equal(t, "+15550003333", cfg.Approval.Recipient)
	assert.Equal(t, "from-env", cfg.Twilio.ContentSID)

	assert.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}

func TestConfigCommand_Redacts(t *testing.T) {
	t.Setenv("TWILIO_AUTH_TOKEN", "supersecret")
	t.Setenv("APPROVER_STORE_DRIVER", "memory")
	out, err := run(t, "config", "--env-file", "")
	require.NoError(t, err)
	assert.Contains(t, out, "driver: memory")
	assert.Contains(t, out, "webhookPath: /twilio-webhook")
	assert.Contains(t, out, yml.Mask)
	assert.NotContains(t, out, "supersecret")
}

func TestSecureCommand(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "AC999")
	t.Setenv("TWILIO_AUTH_TOKEN", "tok999")
	dest := filepath.Join(t.TempDir(), "twilio.json")

	out, err := run(t, "secure", "--env-file", "", "--url", dest, "--key", "blowfish://default")
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, dest))

	cfg := twilio.Config{CredentialsURL: dest, CredentialsKey: "blowfish://default"}
	require.NoError(t, cfg.LoadCredentials(context.Background(), scy.New()))
	assert.Equal(t, "AC999", cfg.AccountSID)
	assert.Equal(t, "tok999", cfg.AuthToken)
}

func TestSecureCommand_MissingCredentials(t *testing.T) {
	unsetEnv(t, "TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN")
	_, err := run(t, "secure", "--env-file", "", "--url", filepath.Join(t.TempDir(), "x.json"))
	assert.Error(t, err)
}

func TestHashKeyCommand(t *testing.T) {
	out, err := run(t, "hash-key", "my-key")
	require.NoError(t, err)
	assert.True(t, webhook.VerifyAPIKey("my-key", strings.TrimSpace(out)))
}
