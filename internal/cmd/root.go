// Package cmd implements the approver command line.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/viant/approver"
	"github.com/viant/approver/internal/logging"
)

type globalOptions struct {
	configFile string
	envFile    string
	logLevel   string
	version    string
	viper      *viper.Viper
}

// load resolves the effective configuration, applying the log level flag.
func (o *globalOptions) load() (*approver.Config, error) {
	cfg, err := loadConfig(o.viper, o.configFile, o.envFile)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return cfg, nil
}

// NewRootCommand builds the approver command tree.
func NewRootCommand(version string) *cobra.Command {
	opts := &globalOptions{version: version, viper: viper.New()}
	root := &cobra.Command{
		Use:   "approver",
		Short: "Human approval of agent tool calls over WhatsApp",
		Long: `Approver sends tool call approval requests to a WhatsApp recipient
through Twilio and waits for the reply. It is exposed as the MCP tool
permissions__approve over stdio and HTTP, and receives replies on a
Twilio webhook.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (default is ./approver.yaml)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file merged into the environment")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		newServeCommand(opts),
		newMCPCommand(opts),
		newConfigCommand(opts),
		newSecureCommand(opts),
		newHashKeyCommand(),
	)
	return root
}

// Execute runs the command line.
func Execute(version string) error {
	return NewRootCommand(version).Execute()
}

func stdoutIsOutput(cfg logging.Config) bool {
	return cfg.Output == "stdout" || cfg.Output == os.Stdout.Name()
}
