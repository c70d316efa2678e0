package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/lordbuffcloud/srv/internal/config"
	"github.com/lordbuffcloud/srv/internal/ui"
)

var interactiveCmd = &cobra.Command{
	Use:     "interactive",
	Aliases: []string{"tui"},
	Short:   "Open the interactive service list",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive(cmd)
	},
}

func runInteractive(cmd *cobra.Command) error {
	logger := newLogger()
	sup, path, err := loadSupervisor(logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Config edits apply live while the session is open. Watching is
	// best effort; the session works without it.
	events, cleanup, err := config.Watch(ctx, path)
	if err != nil {
		logger.Warn("config watching unavailable", "err", err)
		events = nil
	} else {
		defer func() { _ = cleanup() }()
	}

	return ui.Run(sup, events)
}
