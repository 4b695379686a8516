// Serial2ip bridges a UART to raw TCP clients over Wi-Fi.
//
// The daemon joins a stored Wi-Fi network, serves the serial port on a TCP
// port while the link is up, drives the front panel and offers a menu
// console on stdin. Companion commands browse for other bridges, list
// serial ports and manage the configuration file.
//
// Usage:
//
//	serial2ip [command] [flags]
//
// See 'serial2ip --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/serial2ip/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// configPath is shared by every command that reads the config file.
var configPath string

var rootCmd = &cobra.Command{
	Use:   "serial2ip",
	Short: "Wi-Fi UART bridge",
	Long: `A Wi-Fi to UART bridge.

The 'run' command starts the bridge daemon: it keeps the station connected
to a stored network, forwards bytes between the serial port and up to five
TCP clients, and shows its state on the front panel and the console.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <config dir>/serial2ip/config.yaml)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("serial2ip %s (commit: %s, released: %s)\n", version.Version, version.Commit, version.Released)
	},
}
