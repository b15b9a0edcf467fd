package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"opsmon/internal/config"
	"opsmon/internal/logger"
	"opsmon/internal/processor"
)

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "opsmon",
		Short: "Host threshold monitor",
		Long: `opsmon polls memory, CPU load, disk space and inode usage on a fixed
interval and reports when a metric crosses its limit and when it recovers.

Every flag can also be set through an OPS_ environment variable
(e.g. OPS_MEMORY=80, OPS_WEBHOOK_URL=...) or a YAML file passed with --config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			logger.Init(cfg.LogLevel, cfg.LogFormat)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return processor.New(cfg).Run(ctx)
		},
	}

	if err := config.AddFlags(cmd, v); err != nil {
		panic(err)
	}
	return cmd
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		log := logger.WithError(err)
		log.Error().Msg("opsmon exited")
		os.Exit(1)
	}
}
