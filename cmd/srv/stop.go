package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop [service...]",
	Short: "Stop services",
	Long: `Stop the named services, or every running service when no names
are given. Each service receives SIGTERM and a grace period before being
killed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		sup, _, err := loadSupervisor(logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if len(args) == 0 {
			outcomes, err := sup.StopAll(ctx)
			reportOutcomes(cmd.OutOrStdout(), "stopped", outcomes)
			return err
		}

		return forEachService(ctx, sup, args, "stopped", cmd, sup.StopOne)
	},
}
