package main

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/shellyscan/internal/config"
	"github.com/muurk/shellyscan/internal/devicelist"
	"github.com/muurk/shellyscan/internal/discovery"
	"github.com/muurk/shellyscan/internal/iprange"
	"github.com/muurk/shellyscan/internal/logging"
	"github.com/muurk/shellyscan/internal/render"
	"github.com/muurk/shellyscan/internal/scan"
	"github.com/muurk/shellyscan/internal/ui"
)

// Scan command flags
var (
	networks     string
	timeoutSecs  float64
	maxQueue     int
	longScan     bool
	outputFormat string
	outputPath   string
	rowDelim     string
	colDelim     string
	quote        string
	probePort    int
	probePath    string
	idPrefix     string
	useMDNS      bool
	mdnsSecs     float64
	showProgress bool
	hubName      string
	devicesOut   string
	noVendor     bool
)

// stdoutPath selects stdout for -o given without a file name
const stdoutPath = "-"

func init() {
	addScanFlags(scanCmd)
	rootCmd.AddCommand(scanCmd)
}

// addScanFlags registers the scan flags on cmd. The root command and the
// scan command share them.
func addScanFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&networks, "network", "n", "", "IP ranges to scan, e.g. 192.168.1.0-192.168.1.255[,...] (default is the local network)")
	f.Float64VarP(&timeoutSecs, "timeout", "t", 2, "Per-probe timeout in seconds")
	f.IntVarP(&maxQueue, "maxqueue", "m", scan.DefaultConcurrency, "Maximum number of probes in flight")
	f.BoolVarP(&longScan, "longscan", "l", false, "Allow large scans (more than 65536 addresses or a whole /16)")
	f.StringVarP(&outputFormat, "format", "f", "csv", "Output format ("+strings.Join(render.Formats(), ", ")+")")
	f.StringVarP(&outputPath, "output", "o", "", "Write output to a file instead of stdout")
	f.StringVarP(&rowDelim, "rowdelim", "r", `\n`, "Row delimiter for csv and table output")
	f.StringVarP(&colDelim, "coldelim", "c", ",", "Column delimiter for csv and table output")
	f.StringVarP(&quote, "quote", "q", "", "Quote string around csv and table fields")
	f.IntVar(&probePort, "port", 80, "Probe port")
	f.StringVar(&probePath, "path", "shelly", "Probe path")
	f.StringVar(&idPrefix, "prefix", "shelly", "Device id prefix that identifies a match")
	f.BoolVar(&useMDNS, "mdns", false, "Also probe devices announced over mDNS")
	f.Float64Var(&mdnsSecs, "mdns-timeout", 3, "mDNS browse time in seconds")
	f.BoolVar(&showProgress, "progress", false, "Show live progress on the terminal")
	f.StringVar(&hubName, "hub", "", "Hub object name for glm output")
	f.StringVar(&devicesOut, "save", "", "Also save the devices found as a device list (name,addr CSV)")
	f.BoolVar(&noVendor, "no-vendor", false, "Do not look up the NIC vendor of each device's MAC address")

	f.Lookup("output").NoOptDefVal = stdoutPath
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the network for Shelly devices",
	Long: `Scan one or more IPv4 ranges for Shelly devices.

Each address is probed once with GET /shelly. A reply whose "id" starts with
"shelly" is a match. Everything else (silence, refusals, other web servers)
is skipped quietly.

A range is "a.b.c.d-e.f.g.h" and is expanded part by part, so
10.0.0.1-10.0.1.2 covers 10.0.0.1, 10.0.0.2, 10.0.1.1 and 10.0.1.2.
Without -n the local network of the outbound interface is scanned.

Defaults for every flag can be stored with 'shellyscan config init'.`,
	Example: `  # Scan the local network and print name,addr lines
  shellyscan scan

  # Scan two ranges with a 1 second timeout and JSON output
  shellyscan scan -n 192.168.1.0-192.168.1.255,10.0.0.1-10.0.0.50 -t 1 -f name

  # Generate a GridLAB-D model for a hub
  shellyscan scan -f glm --hub home -o shelly.glm

  # Watch progress and save a device list for the status command
  shellyscan scan --progress --save shelly_config.csv

  # Include devices announced over mDNS outside the ranges
  shellyscan scan --mdns`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

// scanOptions is the effective scan configuration after merging
// preferences and flags
type scanOptions struct {
	cfg         scan.Config
	format      render.Format
	render      render.Options
	output      string
	mdns        bool
	mdnsTimeout time.Duration
	progress    bool
	save        string
}

func runScan(cmd *cobra.Command, args []string) error {
	reg, err := loadPrefs()
	if err != nil {
		return err
	}

	opts, err := resolveScanOptions(cmd, reg)
	if err != nil {
		return report(err)
	}

	if verbose && !silent {
		ui.NewPrinter(os.Stderr).PrintHeader("Shelly Scan", cmd.CommandPath(), map[string]string{
			"Ranges":  scanLabel(opts.cfg),
			"Timeout": opts.cfg.Timeout.String(),
			"Max":     strconv.Itoa(opts.cfg.Concurrency),
			"Format":  string(opts.format),
		})
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.mdns {
		opts.cfg.Extra = mdnsCandidates(ctx, opts)
	}

	result, err := runSession(ctx, opts)
	if result == nil {
		return report(err)
	}
	if err != nil {
		// Interrupted: the partial result is still written
		logging.Warn("Scan interrupted", zap.Error(err))
		if !silent {
			ui.NewPrinter(os.Stderr).PrintWarning("Scan interrupted", map[string]string{
				"Probed":  fmt.Sprintf("%d of %d", result.Stats.Probed, result.Stats.Targets),
				"Devices": strconv.Itoa(len(result.Entries)),
			})
		}
	}

	if werr := writeResult(opts, result); werr != nil {
		return werr
	}

	if opts.save != "" {
		if serr := devicelist.FromResult(result).Save(opts.save); serr != nil {
			return serr
		}
	}

	if verbose && err == nil && !silent {
		printSummary(result)
	}
	return err
}

// resolveScanOptions merges preferences with flags. A flag given on the
// command line always wins.
func resolveScanOptions(cmd *cobra.Command, reg *config.Registry) (*scanOptions, error) {
	changed := cmd.Flags().Changed

	networkText := networks
	if !changed("network") && len(reg.Scan.Networks) > 0 {
		networkText = strings.Join(reg.Scan.Networks, ",")
	}

	var ranges []iprange.AddressRange
	if strings.TrimSpace(networkText) != "" {
		var err error
		ranges, err = iprange.ParseList(networkText)
		if err != nil {
			return nil, err
		}
	}

	timeout := timeoutSecs
	if !changed("timeout") && reg.Scan.Timeout > 0 {
		timeout = reg.Scan.Timeout
	}
	if timeout <= 0 {
		return nil, invalidArgf("timeout must be positive, got %g", timeout)
	}

	ceiling := maxQueue
	if !changed("maxqueue") && reg.Scan.Concurrency > 0 {
		ceiling = reg.Scan.Concurrency
	}
	if ceiling <= 0 {
		return nil, invalidArgf("maxqueue must be positive, got %d", ceiling)
	}

	port := probePort
	if !changed("port") && reg.Scan.Port != 0 {
		port = reg.Scan.Port
	}
	if port < 1 || port > 65535 {
		return nil, invalidArgf("port must be between 1 and 65535, got %d", port)
	}

	opts := &scanOptions{
		cfg: scan.Config{
			Ranges:      ranges,
			Concurrency: ceiling,
			Timeout:     time.Duration(timeout * float64(time.Second)),
			AllowLarge:  longScan || (!changed("longscan") && reg.Scan.AllowLarge),
			Port:        uint16(port),
			Path:        pick(changed("path"), probePath, reg.Scan.Path),
			Prefix:      pick(changed("prefix"), idPrefix, reg.Scan.Prefix),
			SkipVendor:  noVendor,
		},
		output:   outputPath,
		mdns:     useMDNS || (!changed("mdns") && reg.Scan.MDNS),
		progress: showProgress,
		save:     devicesOut,
		render: render.Options{
			ColDelim: unescape(pick(changed("coldelim"), colDelim, reg.Output.ColDelim)),
			RowDelim: unescape(pick(changed("rowdelim"), rowDelim, reg.Output.RowDelim)),
			Quote:    unescape(pick(changed("quote"), quote, reg.Output.Quote)),
			HubName:  hubName,
		},
	}

	mdnsTimeout := mdnsSecs
	if !changed("mdns-timeout") && reg.Scan.MDNSTimeout > 0 {
		mdnsTimeout = reg.Scan.MDNSTimeout
	}
	opts.mdnsTimeout = time.Duration(mdnsTimeout * float64(time.Second))

	// Validate the format before any probe is sent
	format, err := render.ParseFormat(pick(changed("format"), outputFormat, reg.Output.Format))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidArgs, err)
	}
	opts.format = format

	return opts, nil
}

// pick returns the flag value if it was given, else the preference if set,
// else the flag default
func pick(flagChanged bool, flagValue, pref string) string {
	if flagChanged || pref == "" {
		return flagValue
	}
	return pref
}

// unescape turns backslash escapes such as \n and \t into the characters
// they name. Text that is not a valid escape sequence is kept as is.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	out, err := strconv.Unquote(`"` + strings.ReplaceAll(s, `"`, `\"`) + `"`)
	if err != nil {
		return s
	}
	return out
}

// mdnsCandidates browses for announced devices. Failures only cost the
// extra candidates, so they are logged and the scan goes on.
func mdnsCandidates(ctx context.Context, opts *scanOptions) []netip.Addr {
	scanner := discovery.NewScanner()
	scanner.Timeout = opts.mdnsTimeout
	scanner.Prefix = opts.cfg.Prefix

	candidates, err := scanner.Scan(ctx)
	if err != nil {
		logging.Warn("mDNS browse failed", zap.Error(err))
		if !silent {
			ui.NewPrinter(os.Stderr).PrintWarning("mDNS browse failed", map[string]string{"Error": err.Error()})
		}
	}
	for _, c := range candidates {
		logging.Debug("mDNS candidate", zap.String("candidate", c.String()))
	}
	return discovery.Addrs(candidates)
}

// runSession runs one scan, with a live progress display when asked for and
// stderr is a terminal
func runSession(ctx context.Context, opts *scanOptions) (*scan.Result, error) {
	if !opts.progress || silent || !ui.IsTerminal(os.Stderr) {
		session, err := scan.NewSession(opts.cfg)
		if err != nil {
			return nil, err
		}
		return session.Run(ctx)
	}

	events := make(chan scan.Progress, 64)
	session, err := scan.NewSession(opts.cfg, scan.WithProgress(events))
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	return ui.RunScanProgress(os.Stderr, scanLabel(opts.cfg), events, cancel, func() (*scan.Result, error) {
		return session.Run(runCtx)
	})
}

func scanLabel(cfg scan.Config) string {
	if len(cfg.Ranges) == 0 {
		return "Scanning the local network"
	}
	parts := make([]string, len(cfg.Ranges))
	for i, r := range cfg.Ranges {
		parts[i] = r.String()
	}
	return "Scanning " + strings.Join(parts, ", ")
}

func writeResult(opts *scanOptions, result *scan.Result) (err error) {
	var w io.Writer = os.Stdout
	if opts.output != "" && opts.output != stdoutPath {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("failed to close output file: %w", cerr)
			}
		}()
		w = f
	}

	if err := render.Result(w, opts.format, result, opts.render); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func printSummary(result *scan.Result) {
	details := map[string]string{
		"Targets": strconv.FormatUint(result.Stats.Targets, 10),
		"Probed":  strconv.FormatUint(result.Stats.Probed, 10),
		"Devices": strconv.Itoa(len(result.Entries)),
		"Workers": strconv.Itoa(result.Stats.Workers),
		"Elapsed": result.Stats.Elapsed.Round(time.Millisecond).String(),
	}
	if result.Host != nil {
		details["Network"] = result.Host.String()
	}
	ui.NewPrinter(os.Stderr).PrintSuccess("Scan complete", details)
}

// loadPrefs loads the preferences file named by --config, or the per-user one
func loadPrefs() (*config.Registry, error) {
	var (
		reg *config.Registry
		err error
	)
	if configPath != "" {
		reg, err = config.LoadFile(configPath)
	} else {
		reg, err = config.LoadRegistry()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	return reg, nil
}
