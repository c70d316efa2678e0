package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/lordbuffcloud/srv"
)

var (
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func renderState(state srv.State) string {
	switch state {
	case srv.StateRunning:
		return okStyle.Render(state.String())
	case srv.StateStarting, srv.StateStopping:
		return pendingStyle.Render(state.String())
	case srv.StateFailed:
		return failStyle.Render(state.String())
	default:
		return dimStyle.Render(state.String())
	}
}

// printServiceTable writes one line per service: name, state, and process
// details when there is a process to describe
func printServiceTable(w io.Writer, rows []srv.ServiceStatus) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "no services configured")
		return
	}

	for _, row := range rows {
		state := srv.StateStopped
		detail := ""
		if row.Proc != nil {
			state = row.Proc.State
			switch {
			case row.Proc.State == srv.StateFailed && row.Proc.Err != nil:
				detail = row.Proc.Err.Error()
			case row.Proc.PID > 0:
				detail = fmt.Sprintf("pid %d, up %s",
					row.Proc.PID, time.Since(row.Proc.StartedAt).Round(time.Second))
			}
		}

		line := fmt.Sprintf("%-20s %s", row.Spec.Name, renderState(state))
		if detail != "" {
			line += "  " + dimStyle.Render(detail)
		}
		fmt.Fprintln(w, line)
	}
}

// reportOutcomes prints one line per batch outcome
func reportOutcomes(w io.Writer, verb string, outcomes []srv.Outcome) {
	for _, o := range outcomes {
		if o.Err != nil {
			fmt.Fprintf(w, "%s %-20s %v\n", failStyle.Render("✗"), o.Name, o.Err)
		} else {
			fmt.Fprintf(w, "%s %-20s %s\n", okStyle.Render("✓"), o.Name, verb)
		}
	}
}

// forEachService applies op to each named service, continuing past
// failures like its batch counterparts
func forEachService(ctx context.Context, sup *srv.Supervisor, names []string, verb string, cmd *cobra.Command, op func(context.Context, string) error) error {
	merr := &srv.MultiError{}
	outcomes := make([]srv.Outcome, 0, len(names))
	for _, name := range names {
		err := op(ctx, name)
		outcomes = append(outcomes, srv.Outcome{Name: name, Err: err})
		merr.Add(err)
	}
	reportOutcomes(cmd.OutOrStdout(), verb, outcomes)
	return merr.Err()
}
