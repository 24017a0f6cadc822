package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/viant/scy"

	"github.com/viant/approver/service/dispatcher/twilio"
	"github.com/viant/approver/service/webhook"
)

func newSecureCommand(opts *globalOptions) *cobra.Command {
	var destURL, key string
	cmd := &cobra.Command{
		Use:   "secure",
		Short: "Encrypt the Twilio credentials into a scy secret",
		Long: `Encrypt the configured Twilio account sid and auth token into a scy
secret at --url. Point twilio.credentialsURL and twilio.credentialsKey at it
to drop the plain text credentials from the environment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if destURL == "" {
				destURL = cfg.Twilio.CredentialsURL
			}
			if key == "" {
				key = cfg.Twilio.CredentialsKey
			}
			if destURL == "" {
				return fmt.Errorf("destination url is required")
			}
			if !cfg.Twilio.Configured() {
				return fmt.Errorf("twilio.accountSid and twilio.authToken are required")
			}
			if err = twilio.StoreCredentials(cmd.Context(), scy.New(), destURL, key, cfg.Twilio.AccountSID, cfg.Twilio.AuthToken); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "credentials stored at %s\n", destURL)
			return err
		},
	}
	cmd.Flags().StringVar(&destURL, "url", "", "secret destination URL (default twilio.credentialsURL)")
	cmd.Flags().StringVar(&key, "key", "", "scy key, e.g. blowfish://default (default twilio.credentialsKey)")
	return cmd
}

func newHashKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key <api-key>",
		Short: "Print the bcrypt hash to use as server.apiKeyHash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := webhook.HashAPIKey(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
}
