package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/solo-machine/soloend/internal/api"
)

const flagListen = "listen"

// NewStartCmd builds the `start` subcommand: a long-running process that
// keeps the plugin subprocesses alive and exposes a gRPC health check,
// the way the teacher's own daemon command blocks on a signal channel
// rather than a one-shot RunE.
func NewStartCmd(v *viper.Viper) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run soloendd as a long-lived process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := loggerFromCmd(cmd)

			_, closer, err := buildService(cmd, v, "")
			if closer != nil {
				defer closer()
			}
			if err != nil {
				return err
			}

			stop, err := api.Serve(cmd.Context(), listen, logger)
			if err != nil {
				return err
			}
			defer stop()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			logger.Info("soloendd started", "listen", listen)
			<-sigCh
			logger.Info("shutting down")
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, flagListen, ":9090", "gRPC health listener address")
	return cmd
}
