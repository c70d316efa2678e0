package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start [service...]",
	Short: "Start services in their declared order",
	Long: `Start the named services, or every configured service when no
names are given. A failing service is reported but does not prevent the
others from starting.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		sup, _, err := loadSupervisor(logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if len(args) == 0 {
			outcomes, err := sup.StartAll(ctx)
			reportOutcomes(cmd.OutOrStdout(), "started", outcomes)
			return err
		}

		return forEachService(ctx, sup, args, "started", cmd, sup.StartOne)
	},
}
