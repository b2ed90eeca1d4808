package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and its subcommands.
func buildRoot() *cobra.Command {
	g := &GlobalFlags{}
	root := &cobra.Command{
		Use:   "procdash",
		Short: "Local process supervisor with a live dashboard",
		Long: `Procdash keeps a list of named executables, starts and stops them on
request, and reports when one exits on its own.

Examples:
  procdash console --config procdash.toml
  procdash run
  procdash telemetry -n 5 --top 10`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.ConfigPath, "config", "", "path to TOML or YAML config file (optional)")
	root.PersistentFlags().StringVar(&g.LogLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(
		createRunCommand(g),
		createConsoleCommand(g),
		createListCommand(g),
		createTelemetryCommand(g),
		createHistoryCommand(g),
		createVersionCommand(),
	)
	return root
}
