package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/viant/approver"
	"github.com/viant/approver/internal/logging"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the webhook, MCP over HTTP, health and metrics endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
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
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(ctx) }()

			select {
			case err = <-errCh:
			case <-ctx.Done():
				logger.Info().Msg("shutting down")
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if sErr := srv.Shutdown(shutdownCtx); sErr != nil && err == nil {
				err = sErr
			}
			return err
		},
	}
}
