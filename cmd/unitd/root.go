package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unitd/unitd/internal/config"
	"github.com/unitd/unitd/internal/log"
)

type contextKey int

const appContextKey contextKey = 0

var (
	configFilePath string
	unitDir        string
	runtimeDir     string
	verbose        bool
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "unitd",
		Short: "unitd supervises services declared as unit files",
		Long: `unitd is a userspace service supervisor: it loads declarative unit
files, starts them in dependency order, tracks their pids and readiness,
restarts them per policy, and exposes a control socket for
list/start/stop/restart/status/shutdown.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			provider, err := config.NewProvider(configFilePath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if unitDir != "" {
				provider.SetOverride("unit_dir", unitDir)
			}
			if runtimeDir != "" {
				provider.SetOverride("runtime_dir", runtimeDir)
			}
			if verbose {
				provider.SetOverride("verbose", true)
			}

			logger := log.NewLogger(verbose)
			app, err := NewApp(logger, provider)
			if err != nil {
				return fmt.Errorf("building app: %w", err)
			}
			if app.Config.Verbose {
				if used := provider.ConfigFileUsed(); used != "" {
					app.Logger.Info("using config file", "path", used)
				}
			}

			cmd.SetContext(context.WithValue(cmd.Context(), appContextKey, app))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFilePath, "config", "", "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&unitDir, "unit-dir", "", "directory unit files are loaded from")
	rootCmd.PersistentFlags().StringVar(&runtimeDir, "runtime-dir", "", "directory the control and notification sockets live under")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(
		newDaemonCmd(),
		newListCmd(),
		newStatusCmd(),
		newStartCmd(),
		newStopCmd(),
		newRestartCmd(),
		newShutdownCmd(),
	)

	return rootCmd
}

func appFromContext(cmd *cobra.Command) *App {
	return cmd.Context().Value(appContextKey).(*App)
}
