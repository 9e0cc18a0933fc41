// Package main implements the browserlog CLI: extract logs from a browser's
// remote debugging endpoint, or serve extraction over HTTP and MCP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// Global flags shared by every command.
var (
	configPath string
	logLevel   string
	logFormat  string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "browserlog",
		Short: "Extract console, log and network events from a debuggable browser",
		Long: `browserlog attaches to a browser started with --remote-debugging-port,
collects events from the active page for a time window, and prints them as
filtered, optionally grouped records.

Configuration is read from ~/.config/browserlog/config.yaml (or --config),
then BROWSERLOG_* environment variables, then flags.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(fmt.Sprintf("browserlog %s (commit %s, built %s)\n", version, gitCommit, buildDate))

	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/browserlog/config.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: json, console")

	root.AddCommand(newExtractCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newMCPCmd())
	root.AddCommand(newClassifyCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "browserlog by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}
