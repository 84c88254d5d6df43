// Package cmd provides the CLI commands for Toolgate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/toolgate/toolgate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sentinelgate",
	Short: "Toolgate - a sandboxed MCP tool-execution gateway",
	Long: `Toolgate mediates tool calls from an MCP client to a fixed set of
built-in tools: every call is authenticated, checked against the calling
client's permission grants (and an optional CEL policy layer), run inside
a per-client filesystem jail under a resource quota, and recorded to an
append-only audit log.

Quick start:
  1. Create a config file: toolgate.yaml
  2. Run: sentinelgate start

Configuration:
  Config is loaded from toolgate.yaml in the current directory,
  $HOME/.toolgate/, or /etc/toolgate/.

  Environment variables can override config values with the TOOLGATE_ prefix.
  Example: TOOLGATE_TRANSPORT_BIND_ADDR=:9090

Commands:
  start       Start the gateway server
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./toolgate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
