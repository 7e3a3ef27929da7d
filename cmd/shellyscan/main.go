// Shellyscan finds Shelly smart-home devices on the local network.
//
// It probes every address in one or more IPv4 ranges with GET /shelly,
// keeps the replies that identify as Shelly devices, and prints the
// (name, address) pairs in one of several formats. It can also read a saved
// device list and query a device's status over its RPC interface.
//
// Usage:
//
//	shellyscan [command] [flags]
//
// Running without a command scans the local network.
// See 'shellyscan --help' for available commands.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/shellyscan/internal/logging"
	"github.com/muurk/shellyscan/internal/version"
)

func main() {
	err := rootCmd.Execute()
	logging.Sync()
	if err != nil {
		var done *errReported
		if !silent && !errors.As(err, &done) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(exitCode(err))
	}
}

// Global flags
var (
	logLevel   string
	configPath string
	verbose    bool
	debug      bool
	silent     bool
)

var rootCmd = &cobra.Command{
	Use:   "shellyscan",
	Short: "Shelly device discovery utility",
	Long: `Find Shelly smart-home devices on the local network.

Every address in the given ranges is probed with GET /shelly. Devices whose
reply identifies them as Shelly devices are listed by name and address.

If no command is specified, the local network is scanned with default
settings.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := logLevel
		switch {
		case level != "":
		case debug:
			level = "debug"
		case verbose:
			level = "info"
		}
		return logging.Initialize(level)
	},
	RunE: runScan,
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); logs go to stderr")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Preferences file (default is the per-user config file)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().BoolVarP(&silent, "silent", "s", false, "Silence error messages on stderr")

	// The root command scans, so it shares the scan flags
	addScanFlags(rootCmd)

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "shellyscan %s\n", version.Full())
		if verbose {
			fmt.Fprintln(cmd.OutOrStdout(), version.Platform())
		}
	},
}
