// Shelly-sim runs simulated Shelly Gen2 devices on loopback addresses.
//
// Each simulated device answers GET /shelly, the HTTP RPC endpoint
// /rpc/<method> and the WebSocket RPC channel /rpc the way a real device
// does, so shellyscan can be tried out without hardware.
//
// Usage:
//
//	shelly-sim [flags]
//
// See 'shelly-sim --help' for available options.
package main

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/shellyscan/internal/logging"
	"github.com/muurk/shellyscan/internal/sim"
	"github.com/muurk/shellyscan/internal/ui"
	"github.com/muurk/shellyscan/internal/version"
)

func main() {
	err := rootCmd.Execute()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var (
	firstAddr string
	count     int
	port      int
	password  string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "shelly-sim",
	Short: "Simulated Shelly devices",
	Long: `Run simulated Shelly Gen2 devices on consecutive loopback addresses.

Every device listens on the same port at its own address, starting at
--first. Devices are named sim-1, sim-2, ... and identify as Shelly Plus 1
switches. On Linux the whole 127.0.0.0/8 block is routed to loopback; on
other systems extra loopback aliases may have to be added first.`,
	Example: `  # Four devices on 127.0.0.2-127.0.0.5 port 8080
  shelly-sim

  # Then, in another terminal
  shellyscan scan -n 127.0.0.1-127.0.0.10 --port 8080

  # Password protected devices
  shelly-sim --count 2 --password secret`,
	Version:      version.Version,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE:         runSim,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.Flags().StringVar(&firstAddr, "first", "127.0.0.2", "Address of the first device")
	rootCmd.Flags().IntVar(&count, "count", 4, "Number of devices")
	rootCmd.Flags().IntVar(&port, "port", 8080, "Port every device listens on")
	rootCmd.Flags().StringVar(&password, "password", "", "Enable authentication with this password on every device")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

func runSim(cmd *cobra.Command, args []string) error {
	if err := logging.Initialize(logLevel); err != nil {
		return err
	}

	first, err := netip.ParseAddr(firstAddr)
	if err != nil || !first.Is4() {
		return fmt.Errorf("--first must be an IPv4 address, got %q", firstAddr)
	}
	if count < 1 {
		return fmt.Errorf("--count must be at least 1, got %d", count)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("--port must be between 1 and 65535, got %d", port)
	}

	fleet, err := sim.StartFleet(first, count, port, func(d *sim.Device) {
		d.Password = password
	})
	if err != nil {
		return fmt.Errorf("failed to start devices: %w", err)
	}

	details := make(map[string]string, count)
	for _, srv := range fleet.Servers() {
		details[srv.Device().Name] = srv.URL()
	}
	details["Try"] = fmt.Sprintf("shellyscan scan -n %s-%s --port %d",
		first, lastAddr(first, count), port)
	ui.NewPrinter(os.Stderr).PrintSuccess(strconv.Itoa(count)+" simulated device(s) running", details)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logging.Info("Shutdown signal received, stopping simulated devices...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return fleet.Shutdown(shutdownCtx)
}

func lastAddr(first netip.Addr, n int) netip.Addr {
	addr := first
	for range n - 1 {
		addr = addr.Next()
	}
	return addr
}
