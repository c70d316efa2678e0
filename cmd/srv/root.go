package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/lordbuffcloud/srv"
	"github.com/lordbuffcloud/srv/internal/config"
)

var (
	flagConfig  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "srv",
	Short: "Manage local development services",
	Long: `srv starts, stops, and inspects the services defined in a YAML
config file. Services start in their declared order, honoring per-service
delays, working directories, and Python virtual environments. Running
without a subcommand opens the interactive session.`,
	Version:       srv.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to the service config file")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(interactiveCmd)
}

func newLogger() *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})
	if flagVerbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// configPath returns the config file in effect for this invocation
func configPath() string {
	if flagConfig != "" {
		return srv.ExpandHome(flagConfig)
	}
	return config.DefaultPath()
}

// loadSupervisor builds a Supervisor from the config file, seeding a
// default config on first run
func loadSupervisor(logger *log.Logger) (*srv.Supervisor, string, error) {
	path := configPath()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if werr := config.WriteDefault(path); werr != nil {
			return nil, "", fmt.Errorf("creating default config: %w", werr)
		}
		fmt.Fprintf(os.Stderr, "created starter config at %s, edit it to define your services\n", path)
	}

	f, warns, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	for _, w := range warns {
		logger.Warn("skipping service definition", "err", w)
	}

	sup, err := srv.New(f.Specs,
		srv.WithLogger(logger),
		srv.WithStateFile(config.StatePath(path)),
	)
	if err != nil {
		return nil, "", err
	}
	return sup, path, nil
}
