package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/muurk/shellyscan/internal/devicelist"
	"github.com/muurk/shellyscan/internal/logging"
	"github.com/muurk/shellyscan/internal/scan"
	"github.com/muurk/shellyscan/internal/shelly"
	"github.com/muurk/shellyscan/internal/ui"
)

// Status command flags
var (
	devicesFile    string
	component      string
	readConfig     bool
	password       string
	useWebSocket   bool
	statusFormat   string
	statusTimeout  float64
	statusPortFlag int
)

func init() {
	f := statusCmd.Flags()
	f.StringVar(&devicesFile, "devices", "", "Device list file (default is the preference, then "+devicelist.DefaultFile+")")
	f.StringVar(&component, "component", "shelly", "Component to query, e.g. shelly, switch:0, sys, wifi")
	f.BoolVar(&readConfig, "get-config", false, "Read the component configuration instead of its status")
	f.StringVar(&password, "password", "", "Device password (username is taken from preferences, default admin)")
	f.BoolVar(&useWebSocket, "ws", false, "Use the WebSocket RPC channel instead of HTTP")
	f.StringVarP(&statusFormat, "format", "f", "json", "Output format (json, yaml)")
	f.Float64VarP(&statusTimeout, "timeout", "t", shelly.DefaultTimeout.Seconds(), "Request timeout in seconds")
	f.IntVar(&statusPortFlag, "port", 80, "Device RPC port")

	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status [name...]",
	Short: "Read the status of devices in a device list",
	Long: `Read the status (or configuration) of devices saved in a device list.

The device list is a name,addr CSV file, as written by 'shellyscan scan --save'
or 'shellyscan scan -f csv'. With no names every device in the list is read.
Each device is queried once over its RPC interface.`,
	Example: `  # Status of every device in shelly_config.csv
  shellyscan status

  # Switch status of one device over WebSocket
  shellyscan status plug1 --component switch:0 --ws

  # WiFi configuration as YAML from a password protected device
  shellyscan status porch --component wifi --get-config --password secret -f yaml`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	if statusFormat != "json" && statusFormat != "yaml" {
		return report(invalidArgf("'%s' is not a valid status format (valid: json, yaml)", statusFormat))
	}
	if statusPortFlag < 1 || statusPortFlag > 65535 {
		return report(invalidArgf("port must be between 1 and 65535, got %d", statusPortFlag))
	}

	reg, err := loadPrefs()
	if err != nil {
		return err
	}

	path := devicesFile
	if path == "" {
		path = reg.Output.DeviceList
	}
	if path == "" {
		path = devicelist.DefaultFile
	}

	list, err := devicelist.Load(path)
	if err != nil {
		return err
	}

	targets, err := selectDevices(list, args)
	if err != nil {
		return report(err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verb := "GetStatus"
	if readConfig {
		verb = "GetConfig"
	}

	printer := ui.NewPrinter(os.Stderr)
	results := make(map[string]any, len(targets))
	var failed []error

	for _, dev := range targets {
		client := shelly.NewClient(dev.Addr, uint16(statusPortFlag))
		client.SetTimeout(time.Duration(statusTimeout * float64(time.Second)))
		client.SetAuth(reg.Auth.Username, password)

		data, err := query(ctx, client, verb)
		if err != nil {
			logging.Warn("Device query failed",
				zap.String("device", dev.Name),
				zap.String("addr", dev.Addr.String()),
				zap.Error(err))
			if !silent {
				printer.PrintError(fmt.Sprintf("%s (%s): %s", dev.Name, dev.Addr, shelly.GetShortErrorMessage(err)),
					err, ui.TipsFromHint(shelly.GetTroubleshootingHint(err)))
			}
			failed = append(failed, fmt.Errorf("%s: %w", dev.Name, err))
			continue
		}
		results[dev.Name] = data
	}

	if err := writeStatus(cmd.OutOrStdout(), results); err != nil {
		return err
	}

	if len(failed) > 0 {
		return &errReported{err: errors.Join(failed...)}
	}
	return nil
}

// selectDevices returns the named devices, or all of them when no names are
// given
func selectDevices(list devicelist.List, names []string) ([]scan.Device, error) {
	if len(names) == 0 {
		if len(list) == 0 {
			return nil, invalidArgf("the device list is empty")
		}
		return list, nil
	}

	out := make([]scan.Device, 0, len(names))
	for _, name := range names {
		dev, err := list.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", errInvalidArgs, name, err)
		}
		out = append(out, dev)
	}
	return out, nil
}

// query reads the component over HTTP or, with --ws, over a WebSocket that is
// opened for this one call
func query(ctx context.Context, client *shelly.Client, verb string) (map[string]any, error) {
	var caller shelly.Caller = client
	if useWebSocket {
		ws, err := client.DialWS(ctx)
		if err != nil {
			return nil, err
		}
		defer func() { _ = ws.Close() }()
		caller = ws
	}

	if verb == "GetConfig" {
		return shelly.GetConfig(ctx, caller, component)
	}
	return shelly.GetStatus(ctx, caller, component)
}

func writeStatus(w io.Writer, results map[string]any) error {
	if statusFormat == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(results); err != nil {
			return fmt.Errorf("failed to write status: %w", err)
		}
		return enc.Close()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}
	return nil
}
