package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/viant/approver"
	"github.com/viant/approver/internal/logging"
)

func newMCPCommand(opts *globalOptions) *cobra.Command {
	withHTTP := true
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the approval tool over MCP stdio",
		Long: `Serve the permissions__approve tool over MCP stdio. The webhook
server runs alongside so replies reach the same process; disable it with
--http=false when another instance shares the store and receives replies.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			// stdout carries JSON-RPC
			if stdoutIsOutput(cfg.Logging) {
				cfg.Logging.Output = "stderr"
			}
			logger, closer, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			srv, err := approver.New(ctx, cfg, approver.WithLogger(logger), approver.WithVersion(opts.version))
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
			if err = srv.StartWorkers(ctx); err != nil {
				return err
			}
			if withHTTP {
				srv.Banner(logger)
				go func() {
					if hErr := srv.HTTP().Start(ctx); hErr != nil {
						logger.Error().Err(hErr).Msg("http server stopped")
					}
				}()
			}
			return srv.MCP().Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&withHTTP, "http", withHTTP, "run the webhook server alongside stdio")
	return cmd
}
