// Outreachd is the dynamic context daemon for the outreach content
// pipeline. It owns the versioned context store, the update admission
// engine, the staleness engine over the generation DAG, and the event
// bus, and exposes them over HTTP.
//
// Usage:
//
//	# Start the daemon with defaults
//	outreachd serve
//
//	# Start with a config file
//	outreachd serve --config /etc/outreachd/config.yaml
//
//	# Inspect the approval queue of a running daemon
//	outreachd approvals list
//	outreachd approvals approve 42 --by ops@example.com
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

var rootCmd = &cobra.Command{
	Use:   "outreachd",
	Short: "Dynamic context daemon for the outreach content pipeline",
	Long: `outreachd maintains versioned per-client context documents, admits
context updates through a confidence and approval gate, tracks staleness
across the generation pipeline, and publishes change events.`,
	Version: version,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show detailed version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("outreachd by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(approvalsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
