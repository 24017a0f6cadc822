package cmd

import (
	"github.com/spf13/cobra"

	"github.com/viant/approver/internal/yml"
)

// secretKeys are masked when the configuration is printed.
var secretKeys = []string{"authToken", "accountSid", "apiKeyHash", "credentialsKey", "dsn"}

func newConfigCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			node, err := yml.Encode(cfg)
			if err != nil {
				return err
			}
			node.Redact(secretKeys...)
			data, err := node.Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
