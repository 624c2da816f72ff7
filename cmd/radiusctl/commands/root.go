// Package commands implements the radiusctl CLI commands.
package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverAddr is the RADIUS server address (host:port) commands send to.
	serverAddr string

	// sharedSecret authenticates requests against serverAddr.
	sharedSecret string

	// requestTimeout bounds how long "send" commands wait for a response.
	requestTimeout time.Duration

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string
)

// rootCmd is the top-level cobra command for radiusctl.
var rootCmd = &cobra.Command{
	Use:   "radiusctl",
	Short: "CLI client for a RADIUS server",
	Long:  "radiusctl sends RADIUS requests directly over UDP and inspects the attribute dictionary.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "127.0.0.1:1812",
		"RADIUS server address (host:port)")
	rootCmd.PersistentFlags().StringVar(&sharedSecret, "secret", "",
		"shared secret for the target server (required for send commands)")
	rootCmd.PersistentFlags().DurationVar(&requestTimeout, "timeout", 5*time.Second,
		"time to wait for a response")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(dictionaryCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
