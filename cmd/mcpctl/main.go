// Package main implements mcpctl, a command-line client for manual
// operations against a running coremcpd server.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL of the coremcpd server.
	serverURL string
	version   = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mcpctl",
	Short: "CLI for coremcpd MCP server operations",
	Long: `mcpctl is a command-line interface for interacting with a running coremcpd
server. It provides commands for checking server health, performing the
initialize handshake, and sending arbitrary JSON-RPC requests.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "coremcpd server URL")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(callCmd)
}
