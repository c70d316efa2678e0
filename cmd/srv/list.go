package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all configured services and their state",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		sup, _, err := loadSupervisor(logger)
		if err != nil {
			return err
		}
		printServiceTable(cmd.OutOrStdout(), sup.ListAll())
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <service>",
	Short: "Show one service's state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()
		sup, _, err := loadSupervisor(logger)
		if err != nil {
			return err
		}

		rp, err := sup.Status(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %s\n", args[0], rp.State)
		if rp.PID > 0 {
			fmt.Fprintf(out, "  pid:     %d\n", rp.PID)
			fmt.Fprintf(out, "  started: %s\n", rp.StartedAt.Format("2006-01-02 15:04:05"))
		}
		if rp.Err != nil {
			fmt.Fprintf(out, "  error:   %v\n", rp.Err)
		}
		return nil
	},
}
