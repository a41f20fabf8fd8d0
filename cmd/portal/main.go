package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vaihtoaktivaattori/portal/internal/config"
	"github.com/vaihtoaktivaattori/portal/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("portal command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "portal",
		Short:         "Vaihtoaktivaattori exchange portal service and clients",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(cfgPath); err != nil {
				return err
			}
			logger.Init(config.GetLogLevel(), config.GetLogConsole())
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ./portal.yaml or /etc/portal/portal.yaml)")
	root.PersistentFlags().String("log-level", "", "log level: trace, debug, info, warn, error")
	root.PersistentFlags().Bool("log-console", false, "human readable log output")
	_ = config.BindFlag("log.level", root.PersistentFlags().Lookup("log-level"))
	_ = config.BindFlag("log.console", root.PersistentFlags().Lookup("log-console"))

	root.AddCommand(newServeCmd())
	root.AddCommand(newChatCmd())
	root.AddCommand(newBudgetCmd())
	root.AddCommand(newTokenCmd())

	return root
}
